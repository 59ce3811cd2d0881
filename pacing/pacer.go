// Package pacing spaces and backs off calls to Logpoint.
//
// One Pacer is shared by every fetcher of a harvest. BeforeCall is the only
// gate to the network: it waits out a throttle pause, the minimum spacing
// between calls, and the per-minute call window, in that order. OnFailure
// decides whether a failed call is retried and how long to wait first.
package pacing

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logger"
)

// ErrRetriesExhausted marks a retryable failure that persisted past MaxRetries
var ErrRetriesExhausted = errors.ErrRetriesExhausted

// Config controls pacing. Zero durations disable the corresponding wait.
type Config struct {
	Delay             time.Duration // minimum spacing between any two calls
	MaxCallsPerMinute int           // 0 = unlimited
	MaxRetries        int           // retries per page
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	Jitter            float64
}

// DefaultConfig returns the defaults used when nothing is configured
func DefaultConfig() Config {
	return Config{
		Delay:             500 * time.Millisecond,
		MaxCallsPerMinute: 60,
		MaxRetries:        5,
		InitialBackoff:    time.Second,
		MaxBackoff:        time.Minute,
		Jitter:            0.2,
	}
}

// Validate checks the config for values that cannot be honored
func (c Config) Validate() error {
	switch {
	case c.Delay < 0:
		return errors.NewInvalidRequestError("pacing delay must not be negative")
	case c.MaxCallsPerMinute < 0:
		return errors.NewInvalidRequestError("max calls per minute must not be negative")
	case c.MaxRetries < 0:
		return errors.NewInvalidRequestError("max retries must not be negative")
	case c.InitialBackoff < 0 || c.MaxBackoff < 0:
		return errors.NewInvalidRequestError("backoff durations must not be negative")
	case c.MaxBackoff > 0 && c.InitialBackoff > c.MaxBackoff:
		return errors.NewInvalidRequestError("initial backoff %s exceeds max backoff %s", c.InitialBackoff, c.MaxBackoff)
	case c.Jitter < 0 || c.Jitter > 1:
		return errors.NewInvalidRequestError("jitter must be within [0,1], got %g", c.Jitter)
	}
	return nil
}

// Stats is a snapshot of pacer activity
type Stats struct {
	Calls         int64
	Retries       int64
	Throttles     int64
	CallsInWindow int
	PausedUntil   time.Time
}

// Option customizes a Pacer
type Option func(*Pacer)

// WithClock replaces time.Now for pause bookkeeping and the call window
func WithClock(now func() time.Time) Option {
	return func(p *Pacer) { p.now = now }
}

// WithRand replaces the jitter source; f must return values in [0,1)
func WithRand(f func() float64) Option {
	return func(p *Pacer) { p.rand = f }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Pacer) { p.logger = logger.OrNop(l) }
}

// Pacer is safe for concurrent use
type Pacer struct {
	cfg     Config
	backoff Backoff
	spacing *rate.Limiter
	window  *Window
	now     func() time.Time
	rand    func() float64
	logger  *zap.SugaredLogger

	mu          sync.Mutex
	pausedUntil time.Time
	calls       int64
	retries     int64
	throttles   int64
}

// New builds a Pacer from cfg
func New(cfg Config, opts ...Option) (*Pacer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Pacer{
		cfg:     cfg,
		backoff: Backoff{Initial: cfg.InitialBackoff, Max: cfg.MaxBackoff, Jitter: cfg.Jitter},
		now:     time.Now,
		rand:    rand.Float64,
		logger:  logger.OrNop(nil),
	}
	for _, opt := range opts {
		opt(p)
	}

	if cfg.Delay > 0 {
		p.spacing = rate.NewLimiter(rate.Every(cfg.Delay), 1)
	}
	if cfg.MaxCallsPerMinute > 0 {
		p.window = NewWindowWithClock(cfg.MaxCallsPerMinute, p.now)
	}
	return p, nil
}

// Config returns the pacer's configuration
func (p *Pacer) Config() Config {
	return p.cfg
}

// BeforeCall suspends until the next call may be issued
func (p *Pacer) BeforeCall(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	for {
		p.mu.Lock()
		pause := p.pausedUntil.Sub(p.now())
		p.mu.Unlock()
		if pause <= 0 {
			break
		}
		if err := p.Wait(ctx, pause); err != nil {
			return err
		}
	}

	if p.spacing != nil {
		if err := p.spacing.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			// the deadline is closer than the next slot
			return errors.Mark(errors.Wrap(err, "wait for call spacing"), context.DeadlineExceeded)
		}
	}

	if p.window != nil {
		if err := p.window.Wait(ctx); err != nil {
			return err
		}
	}

	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return nil
}

// OnFailure returns the delay to await before retrying a call that failed
// with err. attempt counts the retries already made for the same call.
//
// Non-retryable errors are returned unchanged. A retryable error past the
// retry bound is returned marked with ErrRetriesExhausted and no longer
// reports itself retryable.
func (p *Pacer) OnFailure(attempt int, err error) (time.Duration, error) {
	if err == nil {
		return 0, nil
	}
	if !errors.IsRetryable(err) {
		return 0, err
	}
	if attempt >= p.cfg.MaxRetries {
		return 0, errors.Mark(&exhaustedError{attempts: attempt, err: err}, ErrRetriesExhausted)
	}

	p.mu.Lock()
	delay := p.backoff.Delay(attempt, p.rand())
	p.retries++

	var throttle errors.Delayed
	throttled := errors.As(err, &throttle)
	if throttled {
		p.throttles++
		if after := throttle.RetryAfter(); after > delay {
			delay = after
		}
		if until := p.now().Add(delay); until.After(p.pausedUntil) {
			p.pausedUntil = until
		}
	}
	p.mu.Unlock()

	p.logger.Debugw("Backing off",
		logger.FieldAttempt, attempt+1,
		logger.FieldDelayMS, delay.Milliseconds(),
		"throttled", throttled,
		logger.FieldError, err,
	)
	return delay, nil
}

// Wait sleeps for d or until ctx is done
func (p *Pacer) Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Stats returns a snapshot of pacer activity
func (p *Pacer) Stats() Stats {
	p.mu.Lock()
	s := Stats{
		Calls:       p.calls,
		Retries:     p.retries,
		Throttles:   p.throttles,
		PausedUntil: p.pausedUntil,
	}
	p.mu.Unlock()

	if p.window != nil {
		s.CallsInWindow, _ = p.window.Stats()
	}
	return s
}

type exhaustedError struct {
	attempts int
	err      error
}

func (e *exhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d retries: %v", e.attempts, e.err)
}

func (e *exhaustedError) Unwrap() error { return e.err }

func (e *exhaustedError) Retryable() bool { return false }
