// Package progress reports harvest activity while it runs.
//
// Implementations include:
//   - CLIEmitter: pretty-printed terminal output using pterm
//   - JSONEmitter: one JSON event per line for machine consumers
//   - Nop: discards everything
//
// Emitters are called from concurrent fetchers and must be safe for concurrent use.
package progress

import (
	"time"
)

// Emitter receives harvest events
type Emitter interface {
	// RepoStarted announces a fetcher starting on repo with its record cap
	RepoStarted(repo string, cap int)

	// PageFetched announces an accepted page. total is the service's
	// best-effort count, -1 when unknown.
	PageFetched(repo string, page int, records int, total int)

	// RepoFinished announces the outcome for one repository
	RepoFinished(repo string, status string, records int, err error)

	// Summary announces the merged outcome of the invocation
	Summary(s Summary)
}

// Summary is the end-of-run report
type Summary struct {
	RunID    string        `json:"run_id"`
	Status   string        `json:"status"`
	Records  int           `json:"records"`
	Limit    int           `json:"limit"`
	Duration time.Duration `json:"duration"`
	Repos    []RepoSummary `json:"repos"`
}

// RepoSummary is one repository's line in the summary
type RepoSummary struct {
	Repo    string `json:"repo"`
	Status  string `json:"status"`
	Records int    `json:"records"`
	Pages   int    `json:"pages"`
	Retries int    `json:"retries"`
	Error   string `json:"error,omitempty"`
}

// Nop discards all events
type Nop struct{}

func (Nop) RepoStarted(string, int)                 {}
func (Nop) PageFetched(string, int, int, int)       {}
func (Nop) RepoFinished(string, string, int, error) {}
func (Nop) Summary(Summary)                         {}

// OrNop returns e, or Nop when e is nil
func OrNop(e Emitter) Emitter {
	if e == nil {
		return Nop{}
	}
	return e
}
