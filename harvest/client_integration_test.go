package harvest

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lptest "github.com/teranos/lpharvest/internal/testing"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/pacing"
)

func newLogpointClient(t *testing.T, fake *lptest.FakeLogpoint, timeout time.Duration) *logpoint.Client {
	t.Helper()
	client, err := logpoint.NewClient(logpoint.NewCredentials(fake.URL(), fake.Account, fake.SecretKey),
		logpoint.Options{AllowPrivateNetworks: true, Timeout: timeout}, nil)
	require.NoError(t, err)
	return client
}

func firstRepo(data map[string]any) string {
	repos, _ := data["repos"].([]any)
	if len(repos) == 0 {
		return ""
	}
	repo, _ := repos[0].(string)
	return repo
}

func TestHarvest_AgainstLogpointServer(t *testing.T) {
	fake := lptest.NewFakeLogpoint(t)
	ts := base.Unix()
	fake.SetRepo("R1",
		[]lptest.Row{{"_id": "a", "log_ts": ts - 10, "user": "alice", "msg": "login"}},
		[]lptest.Row{},
		[]lptest.Row{{"_id": "b", "log_ts": ts - 20, "msg": "logout"}, {"_id": "c", "log_ts": ts - 30, "msg": "x"}},
	)
	fake.SetRepo("R2",
		[]lptest.Row{{"_id": "d", "log_ts": ts - 40, "msg": "old"}, {"_id": "e", "log_ts": ts - 50, "msg": "older"}},
	)

	// every third call is throttled
	fake.SetFault(func(call int, _ map[string]any) (int, string, bool) {
		if call%3 == 0 {
			return http.StatusTooManyRequests, "slow down", true
		}
		return 0, "", false
	})

	coord := newCoordinator(t, newLogpointClient(t, fake, 5*time.Second), DefaultConfig())
	res, err := coord.Harvest(context.Background(), newRequest(t, []string{"R1", "R2"}, 4))
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, res.Status)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(res.Records))
	assert.Equal(t, "alice", res.Records[0].Fields["user"])

	for _, start := range fake.Starts() {
		assert.Equal(t, float64(4), start["limit"])
		assert.Equal(t, "error", start["query"])
	}
}

func TestHarvest_CallsArePacedAndThrottlesPause(t *testing.T) {
	fake := lptest.NewFakeLogpoint(t)
	fake.SetRepo("R1",
		[]lptest.Row{{"_id": "a", "log_ts": base.Unix() - 10}},
		[]lptest.Row{{"_id": "b", "log_ts": base.Unix() - 20}},
	)

	var (
		mu    sync.Mutex
		calls []time.Time
	)
	fake.SetFault(func(call int, _ map[string]any) (int, string, bool) {
		mu.Lock()
		calls = append(calls, time.Now())
		mu.Unlock()
		// the first retrieval after the start
		if call == 2 {
			return http.StatusTooManyRequests, "slow down", true
		}
		return 0, "", false
	})

	const delay = 40 * time.Millisecond
	pacer, err := pacing.New(pacing.Config{Delay: delay, MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	require.NoError(t, err)
	coord, err := NewCoordinator(newLogpointClient(t, fake, 5*time.Second), pacer, DefaultConfig())
	require.NoError(t, err)

	res, err := coord.Harvest(context.Background(), newRequest(t, []string{"R1"}, 10))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(res.Records))

	stats := pacer.Stats()
	assert.Equal(t, int64(fake.Calls()), stats.Calls, "every HTTP call goes through the pacer")
	assert.Equal(t, int64(1), stats.Throttles)
	assert.False(t, stats.PausedUntil.IsZero())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 4)
	for i := 1; i < len(calls); i++ {
		assert.GreaterOrEqual(t, calls[i].Sub(calls[i-1]), delay-5*time.Millisecond, "gap before call %d", i+1)
	}
}

func TestHarvest_CallTimeoutIsFailure(t *testing.T) {
	fake := lptest.NewFakeLogpoint(t)
	fake.SetRepo("good", []lptest.Row{{"_id": "a", "log_ts": base.Unix() - 10}})
	fake.SetFault(func(_ int, data map[string]any) (int, string, bool) {
		if firstRepo(data) == "hung" {
			time.Sleep(200 * time.Millisecond)
			return http.StatusGatewayTimeout, "", true
		}
		return 0, "", false
	})
	client := newLogpointClient(t, fake, 50*time.Millisecond)

	pacer, err := pacing.New(pacing.Config{MaxRetries: 1})
	require.NoError(t, err)
	coord, err := NewCoordinator(client, pacer, DefaultConfig())
	require.NoError(t, err)

	res, err := coord.Harvest(context.Background(), newRequest(t, []string{"hung", "good"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.Equal(t, StatusFailed, res.Repos[0].Status)
	assert.True(t, logpoint.IsTransientError(res.Repos[0].Err))
	assert.Equal(t, []string{"a"}, ids(res.Records))

	res, err = coord.Harvest(context.Background(), newRequest(t, []string{"hung"}, 10))
	assert.Nil(t, res)
	assert.True(t, IsHarvestFailed(err))
}

func TestHarvest_ServerErrorKeepsOtherRepositories(t *testing.T) {
	fake := lptest.NewFakeLogpoint(t)
	fake.SetRepo("good", []lptest.Row{{"_id": "a", "log_ts": base.Unix() - 10}})
	fake.SetFault(func(_ int, data map[string]any) (int, string, bool) {
		if firstRepo(data) == "bad" {
			return http.StatusOK, `{"success": false, "message": "Internal error while executing search"}`, true
		}
		return 0, "", false
	})

	res, err := newCoordinator(t, newLogpointClient(t, fake, 5*time.Second), DefaultConfig()).
		Harvest(context.Background(), newRequest(t, []string{"bad", "good"}, 10))
	require.NoError(t, err)
	assert.Equal(t, StatusPartialFailure, res.Status)
	assert.True(t, logpoint.IsServiceError(res.Repos[0].Err))
	assert.Equal(t, []string{"a"}, ids(res.Records))
}
