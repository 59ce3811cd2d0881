// Package harvest fans one search out across Logpoint repositories and merges
// what comes back.
//
// A Coordinator runs one fetch per repository with bounded concurrency. All
// fetches share a single Pacer, so the combined call rate stays within the
// configured pacing no matter how many repositories run at once. Partial
// failure is a normal outcome: a repository that fails is reported in the
// Result next to the records of the repositories that succeeded.
package harvest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/progress"
)

// DefaultFanout is the number of repositories fetched concurrently
const DefaultFanout = 4

// Config controls a Coordinator
type Config struct {
	Fanout        int
	SplitPolicy   SplitPolicy
	MaxEmptyPolls int
}

// DefaultConfig returns the defaults used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Fanout:        DefaultFanout,
		SplitPolicy:   SplitRecency,
		MaxEmptyPolls: DefaultMaxEmptyPolls,
	}
}

// Option customizes a Coordinator
type Option func(*Coordinator)

// WithEmitter sets the progress emitter
func WithEmitter(e progress.Emitter) Option {
	return func(c *Coordinator) { c.emitter = progress.OrNop(e) }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Coordinator) { c.logger = logger.OrNop(l) }
}

// WithRunID replaces the run id generator
func WithRunID(f func() string) Option {
	return func(c *Coordinator) { c.newRunID = f }
}

// Coordinator runs harvests. It is safe to reuse across invocations.
type Coordinator struct {
	client   Searcher
	pacer    Pacer
	cfg      Config
	emitter  progress.Emitter
	logger   *zap.SugaredLogger
	newRunID func() string
}

// NewCoordinator validates cfg and builds a Coordinator
func NewCoordinator(client Searcher, pacer Pacer, cfg Config, opts ...Option) (*Coordinator, error) {
	if client == nil || pacer == nil {
		return nil, errors.NewInvalidRequestError("coordinator needs a client and a pacer")
	}
	if cfg.Fanout < 0 {
		return nil, errors.NewInvalidRequestError("fanout must not be negative, got %d", cfg.Fanout)
	}
	if cfg.Fanout == 0 {
		cfg.Fanout = DefaultFanout
	}
	policy, err := ParseSplitPolicy(string(cfg.SplitPolicy))
	if err != nil {
		return nil, err
	}
	cfg.SplitPolicy = policy
	if cfg.MaxEmptyPolls <= 0 {
		cfg.MaxEmptyPolls = DefaultMaxEmptyPolls
	}

	c := &Coordinator{
		client:   client,
		pacer:    pacer,
		cfg:      cfg,
		emitter:  progress.Nop{},
		logger:   logger.OrNop(nil),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Harvest runs req across its repositories.
//
// It returns an error only for a contract violation, an invalid query (which
// also cancels the other repositories), or when every repository failed
// (*HarvestFailedError). Cancellation of ctx is not an error: the result
// carries StatusCancelled and whatever records were gathered.
func (c *Coordinator) Harvest(ctx context.Context, req SearchRequest) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	runID := c.newRunID()
	ctx = logger.WithRunID(ctx, runID)
	ctx = logger.WithComponent(ctx, "harvest")
	log := logger.FromContext(ctx, c.logger)

	repos := req.Repos()
	caps := c.cfg.SplitPolicy.Caps(req.Limit(), len(repos))

	var budget *Budget
	if c.cfg.SplitPolicy == SplitFirstCome {
		budget = NewBudget(req.Limit())
	}

	result := &Result{
		RunID:   runID,
		Limit:   req.Limit(),
		Repos:   make([]RepoResult, len(repos)),
		Started: time.Now(),
	}

	log.Infow("Harvest started",
		logger.FieldQuery, req.Query(),
		logger.FieldTimeFrom, req.Range().Start,
		logger.FieldTimeTo, req.Range().End,
		logger.FieldLimit, req.Limit(),
		logger.FieldPolicy, string(c.cfg.SplitPolicy),
		logger.FieldFanout, c.cfg.Fanout,
		"repos", repos,
	)

	fetcher := NewFetcher(c.client, c.pacer, FetcherOptions{
		Query:         req.Query(),
		Range:         req.Range(),
		MaxEmptyPolls: c.cfg.MaxEmptyPolls,
		Budget:        budget,
		Emitter:       c.emitter,
		Logger:        c.logger,
	})

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg         sync.WaitGroup
		once       sync.Once
		invalidErr error
		sem        = make(chan struct{}, c.cfg.Fanout)
	)

	for i, repo := range repos {
		wg.Add(1)
		go func(i int, repo string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-fetchCtx.Done():
				result.Repos[i] = RepoResult{
					Repository: repo,
					Status:     StatusCancelled,
					Cap:        caps[i],
					Err:        fetchCtx.Err(),
				}
				return
			}

			res := fetcher.Fetch(fetchCtx, repo, caps[i])
			result.Repos[i] = res

			if logpoint.IsInvalidQueryError(res.Err) {
				once.Do(func() {
					invalidErr = errors.Wrapf(res.Err, "repository %s", repo)
					cancel()
				})
			}
		}(i, repo)
	}
	wg.Wait()

	result.Finished = time.Now()

	if invalidErr != nil {
		log.Errorw("Query rejected, harvest aborted", logger.FieldError, invalidErr)
		return nil, errors.WithHint(invalidErr, "check search.query and the time range")
	}

	result.Records = Merge(result.Repos, req.Limit())
	result.Status = overallStatus(ctx, result.Repos)

	if result.Status == StatusFailed {
		err := &HarvestFailedError{Repos: result.Repos}
		c.emitter.Summary(result.Summary())
		log.Errorw("Harvest failed", logger.FieldError, err)
		return nil, err
	}

	c.emitter.Summary(result.Summary())
	log.Infow("Harvest finished",
		logger.FieldStatus, result.Status.String(),
		logger.FieldCount, len(result.Records),
		logger.FieldDurationMS, result.Finished.Sub(result.Started).Milliseconds(),
	)
	for _, w := range result.Warnings() {
		log.Warnw(w)
	}
	return result, nil
}

func overallStatus(ctx context.Context, repos []RepoResult) Status {
	if ctx.Err() != nil {
		return StatusCancelled
	}

	failed, succeeded, cancelled := 0, 0, 0
	for _, r := range repos {
		switch r.Status {
		case StatusFailed:
			failed++
		case StatusSucceeded:
			succeeded++
		case StatusCancelled:
			cancelled++
		}
	}

	switch {
	case cancelled > 0:
		return StatusCancelled
	case failed == len(repos):
		return StatusFailed
	case succeeded == len(repos):
		return StatusSucceeded
	default:
		return StatusPartialFailure
	}
}
