package harvest

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/progress"
)

// DefaultMaxEmptyPolls bounds consecutive empty, non-final pages per repository
const DefaultMaxEmptyPolls = 120

// Searcher issues one page request. *logpoint.Client implements it.
type Searcher interface {
	Search(ctx context.Context, req logpoint.PageRequest) (*logpoint.PageResponse, error)
}

// Pacer gates and backs off calls. *pacing.Pacer implements it.
type Pacer interface {
	BeforeCall(ctx context.Context) error
	OnFailure(attempt int, err error) (time.Duration, error)
	Wait(ctx context.Context, d time.Duration) error
}

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	Query         string
	Range         logpoint.TimeRange
	MaxEmptyPolls int     // default DefaultMaxEmptyPolls
	Budget        *Budget // shared allowance under SplitFirstCome, nil otherwise
	Emitter       progress.Emitter
	Logger        *zap.SugaredLogger
}

// Fetcher drives one repository's search to completion. A Fetcher holds no
// per-repository state and may serve several repositories concurrently.
type Fetcher struct {
	client  Searcher
	pacer   Pacer
	opts    FetcherOptions
	emitter progress.Emitter
	logger  *zap.SugaredLogger
}

// NewFetcher builds a Fetcher sharing client and pacer
func NewFetcher(client Searcher, pacer Pacer, opts FetcherOptions) *Fetcher {
	if opts.MaxEmptyPolls <= 0 {
		opts.MaxEmptyPolls = DefaultMaxEmptyPolls
	}
	return &Fetcher{
		client:  client,
		pacer:   pacer,
		opts:    opts,
		emitter: progress.OrNop(opts.Emitter),
		logger:  logger.OrNop(opts.Logger),
	}
}

// Fetch retrieves up to cap records for repo. It never returns an error: the
// outcome, including any failure, is carried by the RepoResult.
func (f *Fetcher) Fetch(ctx context.Context, repo string, cap int) RepoResult {
	start := time.Now()
	log := logger.FromContext(ctx, f.logger).With(logger.FieldRepo, repo)
	res := RepoResult{Repository: repo, Status: StatusSucceeded, Cap: cap}

	f.emitter.RepoStarted(repo, cap)
	log.Debugw("Fetching repository", logger.FieldRepoCap, cap)

	cursor := ""
	emptyPolls := 0
	for len(res.Records) < cap {
		if f.opts.Budget != nil && f.opts.Budget.Remaining() == 0 {
			break
		}

		page, retries, err := f.fetchPage(ctx, log, repo, cursor, cap)
		res.Retries += retries
		if err != nil {
			return f.finish(ctx, log, res, err, start)
		}
		if page.Started {
			if !page.HasMore() {
				break
			}
			cursor = page.NextCursor
			continue
		}
		res.Pages++

		records := page.Records
		if room := cap - len(res.Records); len(records) > room {
			records = records[:room]
		}
		if f.opts.Budget != nil {
			records = records[:f.opts.Budget.Claim(len(records))]
		}
		res.Records = append(res.Records, records...)
		f.emitter.PageFetched(repo, res.Pages, len(records), page.Total)

		if !page.HasMore() {
			break
		}

		if len(page.Records) == 0 {
			emptyPolls++
			if emptyPolls > f.opts.MaxEmptyPolls {
				err := errors.Wrapf(ErrSearchIncomplete, "%d consecutive empty polls", emptyPolls)
				return f.finish(ctx, log, res, err, start)
			}
		} else {
			emptyPolls = 0
		}
		cursor = page.NextCursor
	}

	return f.finish(ctx, log, res, nil, start)
}

// fetchPage requests one page, retrying the same cursor on retryable failures.
// It returns the number of retries made.
func (f *Fetcher) fetchPage(ctx context.Context, log *zap.SugaredLogger, repo, cursor string, cap int) (*logpoint.PageResponse, int, error) {
	req := logpoint.PageRequest{
		Repository: repo,
		Query:      f.opts.Query,
		Range:      f.opts.Range,
		Cursor:     cursor,
		Limit:      cap,
	}

	for attempt := 0; ; attempt++ {
		if err := f.pacer.BeforeCall(ctx); err != nil {
			return nil, attempt, err
		}

		page, err := f.client.Search(ctx, req)
		if err == nil {
			return page, attempt, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, attempt, ctxErr
		}

		delay, err := f.pacer.OnFailure(attempt, err)
		if err != nil {
			return nil, attempt, err
		}
		log.Infow("Retrying page",
			logger.FieldAttempt, attempt+1,
			logger.FieldDelayMS, delay.Milliseconds(),
		)
		if err := f.pacer.Wait(ctx, delay); err != nil {
			return nil, attempt + 1, err
		}
	}
}

// finish settles the status. Only the caller's context decides cancellation;
// a call that timed out on its own is a failure.
func (f *Fetcher) finish(ctx context.Context, log *zap.SugaredLogger, res RepoResult, err error, start time.Time) RepoResult {
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		res.Status = StatusSucceeded
	case ctx.Err() != nil:
		res.Status = StatusCancelled
		res.Err = err
	case len(res.Records) == 0:
		res.Status = StatusFailed
		res.Err = err
	default:
		res.Status = StatusPartialFailure
		res.Err = err
	}

	if res.Err != nil && res.Status != StatusCancelled {
		log.Warnw("Repository fetch stopped",
			logger.FieldStatus, res.Status.String(),
			logger.FieldCount, len(res.Records),
			logger.FieldError, res.Err,
		)
	} else {
		log.Debugw("Repository fetch finished",
			logger.FieldStatus, res.Status.String(),
			logger.FieldCount, len(res.Records),
			"pages", res.Pages,
			logger.FieldDurationMS, res.Duration.Milliseconds(),
		)
	}

	f.emitter.RepoFinished(res.Repository, res.Status.String(), len(res.Records), res.Err)
	return res
}
