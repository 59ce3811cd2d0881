package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"
)

// CLIEmitter outputs pretty-printed progress to a terminal using pterm
type CLIEmitter struct {
	mu        sync.Mutex
	verbosity int
	out       io.Writer
}

// NewCLIEmitter creates a CLI progress emitter writing to stderr
func NewCLIEmitter(verbosity int) *CLIEmitter {
	return NewCLIEmitterTo(os.Stderr, verbosity)
}

// NewCLIEmitterTo creates a CLI progress emitter writing to w
func NewCLIEmitterTo(w io.Writer, verbosity int) *CLIEmitter {
	return &CLIEmitter{verbosity: verbosity, out: w}
}

// RepoStarted prints the repository being fetched (verbosity >= 1)
func (e *CLIEmitter) RepoStarted(repo string, cap int) {
	if e.verbosity < 1 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "🔄 %s: fetching up to %d records\n", pterm.LightCyan(repo), cap)
}

// PageFetched prints page progress (verbosity >= 2)
func (e *CLIEmitter) PageFetched(repo string, page int, records int, total int) {
	if e.verbosity < 2 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if total >= 0 {
		fmt.Fprintf(e.out, "   %s page %d: %s records (of %d)\n", repo, page, pterm.Green(records), total)
		return
	}
	fmt.Fprintf(e.out, "   %s page %d: %s records\n", repo, page, pterm.Green(records))
}

// RepoFinished prints the repository outcome
func (e *CLIEmitter) RepoFinished(repo string, status string, records int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		fmt.Fprintf(e.out, "%s %s: %s after %d records: %v\n",
			pterm.Yellow("⚠"), pterm.LightCyan(repo), status, records, err)
		return
	}
	if e.verbosity >= 1 {
		fmt.Fprintf(e.out, "✅ %s: %s records\n", pterm.LightCyan(repo), pterm.Green(records))
	}
}

// Summary prints a table of repository outcomes
func (e *CLIEmitter) Summary(s Summary) {
	e.mu.Lock()
	defer e.mu.Unlock()

	data := pterm.TableData{{"Repository", "Status", "Records", "Pages", "Retries"}}
	for _, r := range s.Repos {
		data = append(data, []string{
			r.Repo, r.Status,
			fmt.Sprint(r.Records), fmt.Sprint(r.Pages), fmt.Sprint(r.Retries),
		})
	}

	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err == nil {
		fmt.Fprintln(e.out, table)
	}

	msg := fmt.Sprintf("%s: %d of %d records in %s (run %s)",
		s.Status, s.Records, s.Limit, s.Duration.Round(1e6), s.RunID)
	if s.Status == "succeeded" {
		fmt.Fprintln(e.out, pterm.Green("✔ "+msg))
	} else {
		fmt.Fprintln(e.out, pterm.Yellow("⚠ "+msg))
	}
}
