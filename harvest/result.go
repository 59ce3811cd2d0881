package harvest

import (
	"fmt"
	"strings"
	"time"

	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/progress"
)

// ErrSearchIncomplete means Logpoint kept reporting a running search without
// producing rows for longer than the empty-poll bound.
var ErrSearchIncomplete = errors.New("search did not complete")

// Status is the outcome of a repository or of a whole harvest
type Status int

const (
	StatusSucceeded Status = iota
	StatusPartialFailure
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusPartialFailure:
		return "partial_failure"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// RepoResult is one repository's contribution
type RepoResult struct {
	Repository string
	Status     Status
	Cap        int
	Records    []logpoint.RawRecord
	Pages      int
	Retries    int
	Err        error
	Duration   time.Duration
}

// Result is the outcome of one harvest invocation
type Result struct {
	RunID    string
	Status   Status
	Limit    int
	Records  []logpoint.RawRecord // merged, deduplicated, ordered, truncated
	Repos    []RepoResult         // request order
	Started  time.Time
	Finished time.Time
}

// Warnings lists every repository that did not fully succeed
func (r *Result) Warnings() []string {
	var warnings []string
	for _, repo := range r.Repos {
		if repo.Status == StatusSucceeded {
			continue
		}
		w := fmt.Sprintf("repository %s %s with %d records", repo.Repository, repo.Status, len(repo.Records))
		if repo.Err != nil {
			w += ": " + repo.Err.Error()
		}
		warnings = append(warnings, w)
	}
	return warnings
}

// Summary converts the result for progress reporting
func (r *Result) Summary() progress.Summary {
	s := progress.Summary{
		RunID:    r.RunID,
		Status:   r.Status.String(),
		Records:  len(r.Records),
		Limit:    r.Limit,
		Duration: r.Finished.Sub(r.Started),
	}
	for _, repo := range r.Repos {
		rs := progress.RepoSummary{
			Repo:    repo.Repository,
			Status:  repo.Status.String(),
			Records: len(repo.Records),
			Pages:   repo.Pages,
			Retries: repo.Retries,
		}
		if repo.Err != nil {
			rs.Error = repo.Err.Error()
		}
		s.Repos = append(s.Repos, rs)
	}
	return s
}

// HarvestFailedError means every repository failed
type HarvestFailedError struct {
	Repos []RepoResult
}

func (e *HarvestFailedError) Error() string {
	parts := make([]string, 0, len(e.Repos))
	for _, r := range e.Repos {
		parts = append(parts, fmt.Sprintf("%s: %v", r.Repository, r.Err))
	}
	return fmt.Sprintf("harvest failed for all %d repositories: %s", len(e.Repos), strings.Join(parts, "; "))
}

// Unwrap exposes each repository error to errors.Is and errors.As
func (e *HarvestFailedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Repos))
	for _, r := range e.Repos {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// IsHarvestFailed reports whether err is or wraps a HarvestFailedError
func IsHarvestFailed(err error) bool {
	var target *HarvestFailedError
	return errors.As(err, &target)
}
