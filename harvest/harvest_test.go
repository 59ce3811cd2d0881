package harvest

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/pacing"
)

var base = time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

func rec(repo, id string, sec int) logpoint.RawRecord {
	return logpoint.RawRecord{
		Repository: repo,
		ID:         id,
		Timestamp:  base.Add(time.Duration(sec) * time.Second),
		Fields:     map[string]any{"_id": id, "msg": "message " + id},
	}
}

// fakeSearcher serves scripted pages per repository. The cursor is the index
// of the next page.
type fakeSearcher struct {
	mu       sync.Mutex
	pages    map[string][][]logpoint.RawRecord
	failures map[string][]error // returned in order before any page is served
	cursors  map[string][]string
	hook     func(ctx context.Context, repo, cursor string) error

	active    int
	maxActive int
}

func newFakeSearcher() *fakeSearcher {
	return &fakeSearcher{
		pages:    make(map[string][][]logpoint.RawRecord),
		failures: make(map[string][]error),
		cursors:  make(map[string][]string),
	}
}

func (f *fakeSearcher) Search(ctx context.Context, req logpoint.PageRequest) (*logpoint.PageResponse, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.cursors[req.Repository] = append(f.cursors[req.Repository], req.Cursor)
	hook := f.hook
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if hook != nil {
		if err := hook(ctx, req.Repository, req.Cursor); err != nil {
			return nil, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if errs := f.failures[req.Repository]; len(errs) > 0 {
		f.failures[req.Repository] = errs[1:]
		return nil, errs[0]
	}

	idx := 0
	if req.Cursor != "" {
		idx, _ = strconv.Atoi(req.Cursor)
	}
	pages := f.pages[req.Repository]
	resp := &logpoint.PageResponse{Total: -1}
	if idx < len(pages) {
		resp.Records = pages[idx]
	}
	if idx+1 < len(pages) {
		resp.NextCursor = strconv.Itoa(idx + 1)
	}
	return resp, nil
}

func (f *fakeSearcher) cursorsFor(repo string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cursors[repo]...)
}

func testPacer(t *testing.T) *pacing.Pacer {
	t.Helper()
	p, err := pacing.New(pacing.Config{MaxRetries: 5})
	require.NoError(t, err)
	return p
}

func newRequest(t *testing.T, repos []string, limit int) SearchRequest {
	t.Helper()
	req, err := NewSearchRequest("error", logpoint.TimeRange{Start: base.Add(-time.Hour), End: base},
		repos, limit, []string{"msg"})
	require.NoError(t, err)
	return req
}

func newCoordinator(t *testing.T, s Searcher, cfg Config) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(s, testPacer(t), cfg, WithRunID(func() string { return "run-test" }))
	require.NoError(t, err)
	return c
}

func ids(records []logpoint.RawRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func assertInvariants(t *testing.T, records []logpoint.RawRecord, limit int) {
	t.Helper()
	assert.LessOrEqual(t, len(records), limit)

	seen := make(map[string]bool)
	for i, r := range records {
		assert.False(t, seen[r.ID], "duplicate identity %s", r.ID)
		seen[r.ID] = true
		if i > 0 {
			assert.LessOrEqual(t, Compare(records[i-1], r), 0, "records %d and %d out of order", i-1, i)
		}
	}
}

func TestHarvest_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	policies := []SplitPolicy{SplitRecency, SplitEven, SplitFirstCome}

	for round := 0; round < 30; round++ {
		s := newFakeSearcher()
		var repos []string
		for r := 0; r < 1+rng.Intn(4); r++ {
			repo := fmt.Sprintf("repo-%d", r)
			repos = append(repos, repo)
			for p := 0; p < 1+rng.Intn(3); p++ {
				var page []logpoint.RawRecord
				for i := 0; i < rng.Intn(5); i++ {
					// shared id space forces cross-repo and cross-page duplicates
					page = append(page, rec(repo, fmt.Sprintf("id-%02d", rng.Intn(20)), rng.Intn(10)))
				}
				s.pages[repo] = append(s.pages[repo], page)
			}
		}
		limit := 1 + rng.Intn(12)
		policy := policies[round%len(policies)]

		res, err := newCoordinator(t, s, Config{SplitPolicy: policy}).Harvest(context.Background(), newRequest(t, repos, limit))
		require.NoError(t, err)
		assert.Equal(t, StatusSucceeded, res.Status)
		assertInvariants(t, res.Records, limit)
	}
}

func TestHarvest_RecencyScenario(t *testing.T) {
	s := newFakeSearcher()
	s.pages["R1"] = [][]logpoint.RawRecord{{rec("R1", "a", 50), rec("R1", "b", 40), rec("R1", "c", 30)}}
	s.pages["R2"] = [][]logpoint.RawRecord{{rec("R2", "d", 20), rec("R2", "e", 10)}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"R1", "R2"}, 4))
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(res.Records))
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, "run-test", res.RunID)
	assert.Empty(t, res.Warnings())
}

func TestHarvest_TiesBrokenByIdentity(t *testing.T) {
	s := newFakeSearcher()
	s.pages["r1"] = [][]logpoint.RawRecord{{rec("r1", "z", 5), rec("r1", "b", 5)}}
	s.pages["r2"] = [][]logpoint.RawRecord{{rec("r2", "a", 5), rec("r2", "y", 9)}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"r1", "r2"}, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "a", "b", "z"}, ids(res.Records))
}

func TestHarvest_ThrottleIsTransparent(t *testing.T) {
	pages := [][]logpoint.RawRecord{
		{rec("r", "1", 3), rec("r", "2", 2)},
		{rec("r", "3", 1)},
	}

	clean := newFakeSearcher()
	clean.pages["r"] = pages
	want, err := newCoordinator(t, clean, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"r"}, 10))
	require.NoError(t, err)

	throttled := newFakeSearcher()
	throttled.pages["r"] = pages
	throttled.failures["r"] = []error{
		&logpoint.ThrottledError{StatusCode: 429, Message: "slow down"},
		&logpoint.ThrottledError{StatusCode: 429, Message: "slow down"},
		&logpoint.TransientError{StatusCode: 502, Message: "bad gateway"},
	}
	got, err := newCoordinator(t, throttled, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"r"}, 10))
	require.NoError(t, err)

	assert.Equal(t, ids(want.Records), ids(got.Records))
	assert.Equal(t, StatusSucceeded, got.Status)
	assert.Equal(t, 3, got.Repos[0].Retries)
	// the failed attempts all re-requested the first page
	assert.Equal(t, []string{"", "", "", "", "1"}, throttled.cursorsFor("r"))
}

func TestHarvest_AuthFailureIsPartial(t *testing.T) {
	s := newFakeSearcher()
	s.pages["good"] = [][]logpoint.RawRecord{{rec("good", "1", 1), rec("good", "2", 2)}}
	s.failures["denied"] = []error{&logpoint.AuthError{StatusCode: 403, Message: "forbidden"}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"denied", "good"}, 10))
	require.NoError(t, err)

	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.Equal(t, StatusFailed, res.Repos[0].Status)
	assert.Empty(t, res.Repos[0].Records)
	assert.True(t, logpoint.IsAuthError(res.Repos[0].Err))
	assert.Equal(t, StatusSucceeded, res.Repos[1].Status)
	assert.Len(t, res.Records, 2)

	warnings := res.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "denied")
	// auth failures are not retried
	assert.Len(t, s.cursorsFor("denied"), 1)
}

func TestHarvest_ServiceErrorFailsOnlyItsRepository(t *testing.T) {
	s := newFakeSearcher()
	s.pages["good"] = [][]logpoint.RawRecord{{rec("good", "1", 1)}}
	s.failures["bad"] = []error{&logpoint.ServiceError{Message: "Internal error while executing search"}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"bad", "good"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.Equal(t, StatusFailed, res.Repos[0].Status)
	assert.Equal(t, StatusSucceeded, res.Repos[1].Status)
	assert.Equal(t, []string{"1"}, ids(res.Records))
}

func TestHarvest_TimedOutCallIsNotCancellation(t *testing.T) {
	s := newFakeSearcher()
	s.pages["good"] = [][]logpoint.RawRecord{{rec("good", "1", 1)}}
	s.hook = func(_ context.Context, repo, _ string) error {
		if repo == "hung" {
			return &logpoint.TransientError{Message: "request failed", Err: context.DeadlineExceeded}
		}
		return nil
	}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"hung", "good"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.Equal(t, StatusFailed, res.Repos[0].Status)
	assert.True(t, errors.Is(res.Repos[0].Err, pacing.ErrRetriesExhausted))

	res, err = newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"hung"}, 10))
	assert.Nil(t, res)
	assert.True(t, IsHarvestFailed(err))
}

func TestHarvest_FailureAfterRecordsKeepsThem(t *testing.T) {
	s := newFakeSearcher()
	s.pages["r"] = [][]logpoint.RawRecord{{rec("r", "1", 1)}, {rec("r", "2", 2)}}
	s.hook = func(_ context.Context, _ string, cursor string) error {
		if cursor == "1" {
			return &logpoint.AuthError{StatusCode: 401, Message: "expired"}
		}
		return nil
	}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"r", "other"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Repos[0].Status)
	assert.Equal(t, []string{"1"}, ids(res.Repos[0].Records))
	assert.Equal(t, StatusPartialFailure, res.Status)
}

func TestHarvest_AllFailed(t *testing.T) {
	s := newFakeSearcher()
	s.failures["a"] = []error{&logpoint.AuthError{Message: "denied"}}
	s.failures["b"] = []error{&logpoint.AuthError{Message: "denied"}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"a", "b"}, 10))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsHarvestFailed(err))

	var hf *HarvestFailedError
	require.True(t, errors.As(err, &hf))
	assert.Len(t, hf.Repos, 2)
	assert.Contains(t, err.Error(), "a: ")
	assert.Contains(t, err.Error(), "b: ")
}

func TestHarvest_InvalidQueryCancelsSiblings(t *testing.T) {
	s := newFakeSearcher()
	s.failures["bad"] = []error{&logpoint.InvalidQueryError{Message: "syntax error"}}
	s.pages["slow"] = [][]logpoint.RawRecord{{rec("slow", "1", 1)}, {rec("slow", "2", 2)}}
	s.hook = func(ctx context.Context, repo, cursor string) error {
		if repo == "slow" && cursor == "1" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"slow", "bad"}, 10))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, logpoint.IsInvalidQueryError(err))
	assert.Contains(t, err.Error(), "bad")
}

func TestHarvest_RetriesExhausted(t *testing.T) {
	s := newFakeSearcher()
	for i := 0; i < 10; i++ {
		s.failures["flaky"] = append(s.failures["flaky"], &logpoint.TransientError{StatusCode: 500, Message: "boom"})
	}
	s.pages["ok"] = [][]logpoint.RawRecord{{rec("ok", "1", 1)}}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), newRequest(t, []string{"flaky", "ok"}, 10))
	require.NoError(t, err)

	flaky := res.Repos[0]
	assert.Equal(t, StatusFailed, flaky.Status)
	assert.True(t, errors.Is(flaky.Err, pacing.ErrRetriesExhausted))
	assert.Equal(t, 5, flaky.Retries)
	assert.Len(t, s.cursorsFor("flaky"), 6)
}

func TestHarvest_EmptyPollsBounded(t *testing.T) {
	s := newFakeSearcher()
	var pages [][]logpoint.RawRecord
	pages = append(pages, []logpoint.RawRecord{rec("r", "1", 1)})
	for i := 0; i < 10; i++ {
		pages = append(pages, nil)
	}
	s.pages["r"] = pages

	res, err := newCoordinator(t, s, Config{MaxEmptyPolls: 3}).Harvest(context.Background(), newRequest(t, []string{"r", "x"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Repos[0].Status)
	assert.True(t, errors.Is(res.Repos[0].Err, ErrSearchIncomplete))
	assert.Equal(t, []string{"1"}, ids(res.Repos[0].Records))
}

func TestHarvest_EmptyPollsThenRows(t *testing.T) {
	s := newFakeSearcher()
	s.pages["r"] = [][]logpoint.RawRecord{nil, nil, {rec("r", "1", 1)}, nil, {rec("r", "2", 2)}}

	res, err := newCoordinator(t, s, Config{MaxEmptyPolls: 2}).Harvest(context.Background(), newRequest(t, []string{"r"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []string{"2", "1"}, ids(res.Records))
}

func TestHarvest_Cancelled(t *testing.T) {
	s := newFakeSearcher()
	s.pages["r"] = [][]logpoint.RawRecord{{rec("r", "1", 1), rec("r", "2", 2)}, {rec("r", "3", 3)}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.hook = func(hctx context.Context, repo, cursor string) error {
		if cursor == "1" {
			cancel()
			<-hctx.Done()
			return hctx.Err()
		}
		return nil
	}

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(ctx, newRequest(t, []string{"r"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, StatusCancelled, res.Repos[0].Status)
	assert.Equal(t, []string{"2", "1"}, ids(res.Records))
}

func TestHarvest_CancelledBeforeStart(t *testing.T) {
	s := newFakeSearcher()
	s.pages["r"] = [][]logpoint.RawRecord{{rec("r", "1", 1)}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := newCoordinator(t, s, DefaultConfig()).Harvest(ctx, newRequest(t, []string{"r", "q"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Empty(t, res.Records)
}

func TestHarvest_FanoutBounded(t *testing.T) {
	s := newFakeSearcher()
	var repos []string
	for i := 0; i < 8; i++ {
		repo := fmt.Sprintf("r%d", i)
		repos = append(repos, repo)
		s.pages[repo] = [][]logpoint.RawRecord{{rec(repo, repo, i)}}
	}
	s.hook = func(context.Context, string, string) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	}

	res, err := newCoordinator(t, s, Config{Fanout: 2}).Harvest(context.Background(), newRequest(t, repos, 100))
	require.NoError(t, err)
	assert.Len(t, res.Records, 8)
	assert.LessOrEqual(t, s.maxActive, 2)
}

func TestHarvest_EvenSplit(t *testing.T) {
	s := newFakeSearcher()
	s.pages["a"] = [][]logpoint.RawRecord{{rec("a", "a1", 9), rec("a", "a2", 8), rec("a", "a3", 7)}}
	s.pages["b"] = [][]logpoint.RawRecord{{rec("b", "b1", 1)}}

	res, err := newCoordinator(t, s, Config{SplitPolicy: SplitEven}).Harvest(context.Background(), newRequest(t, []string{"a", "b"}, 3))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Repos[0].Cap)
	assert.Equal(t, []string{"a1", "a2", "b1"}, ids(res.Records))
}

func TestHarvest_FirstComeBudget(t *testing.T) {
	s := newFakeSearcher()
	s.pages["a"] = [][]logpoint.RawRecord{{rec("a", "a1", 1), rec("a", "a2", 2)}, {rec("a", "a3", 3)}}
	s.pages["b"] = [][]logpoint.RawRecord{{rec("b", "b1", 4), rec("b", "b2", 5)}}

	res, err := newCoordinator(t, s, Config{SplitPolicy: SplitFirstCome, Fanout: 1}).Harvest(context.Background(), newRequest(t, []string{"a", "b"}, 3))
	require.NoError(t, err)

	total := 0
	for _, r := range res.Repos {
		total += len(r.Records)
	}
	assert.Equal(t, 3, total)
	assert.Len(t, res.Records, 3)
	assertInvariants(t, res.Records, 3)
}

func TestHarvest_RejectsInvalidRequest(t *testing.T) {
	s := newFakeSearcher()
	_, err := newCoordinator(t, s, DefaultConfig()).Harvest(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestNewCoordinator_Validation(t *testing.T) {
	_, err := NewCoordinator(nil, testPacer(t), DefaultConfig())
	assert.Error(t, err)

	_, err = NewCoordinator(newFakeSearcher(), testPacer(t), Config{Fanout: -1})
	assert.Error(t, err)

	_, err = NewCoordinator(newFakeSearcher(), testPacer(t), Config{SplitPolicy: "round-robin"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}
