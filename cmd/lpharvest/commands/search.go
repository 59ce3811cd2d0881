package commands

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/lpharvest/am"
	"github.com/teranos/lpharvest/errors"
	"github.com/teranos/lpharvest/harvest"
	"github.com/teranos/lpharvest/logger"
	"github.com/teranos/lpharvest/logpoint"
	"github.com/teranos/lpharvest/pacing"
	"github.com/teranos/lpharvest/so"
)

// SearchCmd runs one harvest and writes the merged rows
var SearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search Logpoint repositories and write the merged rows",
	Long: `Run a Logpoint search across one or more repositories, merge the results
newest first, and write them to every output path.

Every flag overrides the matching config key (see 'lpharvest am show').
List flags take one string; items are separated by spaces or commas and may
be quoted.

Repositories that fail are reported as warnings while the others still
produce output. Exit codes:
  0  success, or partial success
  1  every repository failed, the query was rejected, or output failed
  2  partial success with --strict
  3  cancelled (partial results are still written)

Examples:
  lpharvest search '| chart count() by device_ip' --repos '10.0.0.1:5504/_logpoint'
  lpharvest search 'user=*' --repos 'r1 r2' --fields 'log_ts user _repo' -o users.csv
  lpharvest search 'user=*' --time-range 'Last 15 minutes' -o 'out.jsonl out.db'`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearchCmd,
}

// flag name -> config key
var searchFlagKeys = []struct{ flag, key string }{
	{"query", "search.query"},
	{"time-range", "search.time_range"},
	{"start", "search.start"},
	{"end", "search.end"},
	{"repos", "search.repos"},
	{"fields", "search.fields"},
	{"limit", "search.limit"},
	{"base-url", "logpoint.base_url"},
	{"account", "logpoint.account"},
	{"output", "output.paths"},
	{"format", "output.format"},
	{"delimiter", "output.delimiter"},
	{"missing-value", "output.missing_value"},
	{"fanout", "harvest.fanout"},
	{"split-policy", "harvest.split_policy"},
	{"delay-ms", "pacing.delay_ms"},
	{"max-calls-per-minute", "pacing.max_calls_per_minute"},
	{"max-retries", "pacing.max_retries"},
}

func init() {
	f := SearchCmd.Flags()
	f.StringP("query", "q", "", "Logpoint query (or give it as the argument)")
	f.String("time-range", "", `Relative window, e.g. "Last 1 hour"`)
	f.String("start", "", "Window start (RFC3339), overrides --time-range with --end")
	f.String("end", "", "Window end (RFC3339)")
	f.StringP("repos", "r", "", "Repositories to search")
	f.StringP("fields", "f", "", "Output fields, in order (_repo, _id and _time are virtual)")
	f.IntP("limit", "n", 0, "Maximum records in the merged result")
	f.String("base-url", "", "Logpoint base URL")
	f.String("account", "", "Logpoint account name")
	f.StringP("output", "o", "", "Output paths; none writes CSV to stdout")
	f.String("format", "", "Output format: auto, csv, tsv, json, jsonl, yaml, sqlite")
	f.String("delimiter", "", "CSV delimiter")
	f.String("missing-value", "", "Text written for fields a record lacks")
	f.Int("fanout", 0, "Repositories fetched concurrently")
	f.String("split-policy", "", "How the limit is split: recency, even, first-come")
	f.Int("delay-ms", 0, "Minimum milliseconds between calls")
	f.Int("max-calls-per-minute", 0, "Call ceiling per minute (0 = unlimited)")
	f.Int("max-retries", 0, "Retries per page for transient failures")

	f.Bool("strict", false, "Exit with code 2 when any repository failed")
	f.String("progress", ProgressAuto, "Progress display: auto, pretty, json, none")
}

type searchOptions struct {
	Strict    bool
	Progress  string
	Verbosity int
	Stdout    io.Writer
	Stderr    io.Writer
	Now       func() time.Time
}

func runSearchCmd(cmd *cobra.Command, args []string) error {
	v := am.GetViper()
	for _, b := range searchFlagKeys {
		// only flags given on the command line override the config
		if flag := cmd.Flags().Lookup(b.flag); flag != nil && flag.Changed {
			if err := v.BindPFlag(b.key, flag); err != nil {
				return errors.Wrapf(err, "bind --%s", b.flag)
			}
		}
	}
	if len(args) == 1 {
		v.Set("search.query", args[0])
	}

	cfg, err := am.LoadWithViper(v)
	if err != nil {
		return err
	}

	strict, _ := cmd.Flags().GetBool("strict")
	progressMode, _ := cmd.Flags().GetString("progress")
	verbosity, _ := cmd.Flags().GetCount("verbose")

	return runSearch(cmd.Context(), cfg, searchOptions{
		Strict:    strict,
		Progress:  progressMode,
		Verbosity: verbosity,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
		Now:       time.Now,
	})
}

func runSearch(ctx context.Context, cfg *am.Config, opts searchOptions) error {
	if err := cfg.ValidateTask(); err != nil {
		return err
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	client, err := newClient(cfg)
	if err != nil {
		return err
	}
	pacer, err := pacing.New(pacingConfig(cfg.Pacing), pacing.WithLogger(logger.ComponentLogger("pacing")))
	if err != nil {
		return err
	}
	hcfg, err := harvestConfig(cfg)
	if err != nil {
		return err
	}
	emitter, err := newEmitter(opts.Progress, opts.Stderr, opts.Verbosity)
	if err != nil {
		return err
	}
	coord, err := harvest.NewCoordinator(client, pacer, hcfg,
		harvest.WithEmitter(emitter),
		harvest.WithLogger(logger.ComponentLogger("harvest")))
	if err != nil {
		return err
	}

	start, end, err := cfg.Search.Range(opts.Now())
	if err != nil {
		return err
	}
	req, err := harvest.NewSearchRequest(cfg.Search.Query, logpoint.TimeRange{Start: start, End: end},
		cfg.Search.Repos, cfg.Search.Limit, cfg.Search.Fields)
	if err != nil {
		return err
	}
	mapper, err := so.NewMapper(req.Fields())
	if err != nil {
		return err
	}
	wopts, err := writeOptions(cfg)
	if err != nil {
		return err
	}

	res, err := coord.Harvest(ctx, req)
	if err != nil {
		return err
	}

	wopts.Run = so.RunInfo{
		ID:       res.RunID,
		Query:    req.Query(),
		Status:   res.Status.String(),
		Started:  res.Started,
		Finished: res.Finished,
	}
	// a cancelled run still writes what it gathered
	writeCtx := context.WithoutCancel(ctx)
	if err := writeOutputs(writeCtx, cfg.Output.Paths, mapper.Fields(), mapper.MapAll(res.Records), wopts, opts.Stdout); err != nil {
		return err
	}

	switch res.Status {
	case harvest.StatusCancelled:
		return &ExitError{Code: ExitCodeCancelled,
			Err: errors.Newf("harvest cancelled after %d records", len(res.Records))}
	case harvest.StatusPartialFailure:
		if opts.Strict {
			return &ExitError{Code: ExitCodePartial,
				Err: errors.Newf("%d of %d repositories did not succeed", len(res.Warnings()), len(res.Repos))}
		}
	}
	return nil
}

func writeOutputs(ctx context.Context, paths []string, header []string, rows []so.Row, opts so.WriteOptions, stdout io.Writer) error {
	if len(paths) == 0 {
		paths = []string{"-"}
	}
	for _, path := range paths {
		if path != "-" {
			if err := so.Write(ctx, path, header, rows, opts); err != nil {
				return err
			}
			continue
		}
		format := opts.Format
		if format == "" {
			format = so.FormatCSV
		}
		if err := so.Encode(stdout, format, header, rows, opts); err != nil {
			return errors.Wrap(err, "write stdout")
		}
	}
	return nil
}
