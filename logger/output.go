package logger

// Output controls what categories of information are shown at each verbosity level.
//
// Unlike log levels (which filter by severity), output categories control
// WHAT types of information are displayed regardless of severity.

// OutputCategory defines a category of output that can be enabled/disabled
type OutputCategory int

const (
	// Level 0 (default) - Always shown
	OutputResults OutputCategory = iota // Written files, row counts
	OutputErrors                        // Errors with hints
	OutputWarnings                      // Per-repository failures in a partial result

	// Level 1 (-v)
	OutputProgress // Repository started/finished
	OutputSummary  // Per-repository status table

	// Level 2 (-vv)
	OutputPages  // Every accepted page
	OutputPacing // Backoff and throttle pauses
	OutputConfig // Effective configuration

	// Level 3 (-vvv)
	OutputHTTPCalls // Each request sent to Logpoint

	// Level 4 (-vvvv)
	OutputResponseBody // Raw response bodies
)

// categoryLevels maps each output category to its minimum verbosity level
var categoryLevels = map[OutputCategory]int{
	OutputResults:  VerbosityUser,
	OutputErrors:   VerbosityUser,
	OutputWarnings: VerbosityUser,

	OutputProgress: VerbosityInfo,
	OutputSummary:  VerbosityInfo,

	OutputPages:  VerbosityDebug,
	OutputPacing: VerbosityDebug,
	OutputConfig: VerbosityDebug,

	OutputHTTPCalls: VerbosityTrace,

	OutputResponseBody: VerbosityAll,
}

// ShouldOutput returns true if the given category should be shown at the given verbosity
func ShouldOutput(verbosity int, category OutputCategory) bool {
	minLevel, ok := categoryLevels[category]
	if !ok {
		return verbosity >= VerbosityAll
	}
	return verbosity >= minLevel
}
