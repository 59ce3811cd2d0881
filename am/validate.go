package am

import (
	"net/url"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/teranos/lpharvest/errors"
)

// SplitPolicies and Formats accepted in configuration
var (
	SplitPolicies = []string{"recency", "even", "first-come"}
	Formats       = []string{"auto", "csv", "tsv", "json", "jsonl", "yaml", "sqlite"}
)

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Logpoint connection
	u, err := url.Parse(c.Logpoint.BaseURL)
	if c.Logpoint.BaseURL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.WithHint(
			errors.Newf("logpoint.base_url must be an http(s) URL, got %q", c.Logpoint.BaseURL),
			"e.g. https://demo.logpoint.com/")
	}
	if c.Logpoint.Account == "" {
		return errors.New("logpoint.account cannot be empty")
	}
	if c.Logpoint.TimeoutSeconds <= 0 {
		return errors.Newf("logpoint.timeout_seconds must be > 0, got %d", c.Logpoint.TimeoutSeconds)
	}
	if c.Logpoint.WaiterID == "" {
		return errors.New("logpoint.waiter_id cannot be empty")
	}

	// Search
	if c.Search.Limit < 1 {
		return errors.Newf("search.limit must be >= 1, got %d", c.Search.Limit)
	}
	if c.Search.MaxEmptyPolls < 0 {
		return errors.Newf("search.max_empty_polls must be >= 0, got %d", c.Search.MaxEmptyPolls)
	}
	if c.Search.SearchTimeoutSeconds <= 0 {
		return errors.Newf("search.search_timeout_seconds must be > 0, got %d", c.Search.SearchTimeoutSeconds)
	}
	if c.Search.IDField == "" || c.Search.TimestampField == "" {
		return errors.New("search.id_field and search.timestamp_field cannot be empty")
	}
	if _, _, err := c.Search.Range(time.Now()); err != nil {
		return err
	}

	// Pacing
	if c.Pacing.DelayMS < 0 {
		return errors.Newf("pacing.delay_ms must be >= 0, got %d", c.Pacing.DelayMS)
	}
	if c.Pacing.MaxCallsPerMinute < 0 {
		return errors.Newf("pacing.max_calls_per_minute must be >= 0 (0 = unlimited), got %d", c.Pacing.MaxCallsPerMinute)
	}
	if c.Pacing.MaxRetries < 0 {
		return errors.Newf("pacing.max_retries must be >= 0, got %d", c.Pacing.MaxRetries)
	}
	if c.Pacing.InitialBackoffMS <= 0 {
		return errors.Newf("pacing.initial_backoff_ms must be > 0, got %d", c.Pacing.InitialBackoffMS)
	}
	if c.Pacing.MaxBackoffMS < c.Pacing.InitialBackoffMS {
		return errors.Newf("pacing.max_backoff_ms (%d) must be >= pacing.initial_backoff_ms (%d)",
			c.Pacing.MaxBackoffMS, c.Pacing.InitialBackoffMS)
	}
	if c.Pacing.Jitter < 0 || c.Pacing.Jitter > 1 {
		return errors.Newf("pacing.jitter must be within [0, 1], got %g", c.Pacing.Jitter)
	}

	// Fan-out
	if c.Harvest.Fanout < 1 {
		return errors.Newf("harvest.fanout must be >= 1, got %d", c.Harvest.Fanout)
	}
	if !slices.Contains(SplitPolicies, c.Harvest.SplitPolicy) {
		return errors.WithHintf(
			errors.Newf("harvest.split_policy %q is not supported", c.Harvest.SplitPolicy),
			"choose one of %v", SplitPolicies)
	}

	// Output
	if !slices.Contains(Formats, c.Output.Format) {
		return errors.WithHintf(
			errors.Newf("output.format %q is not supported", c.Output.Format),
			"choose one of %v", Formats)
	}
	if utf8.RuneCountInString(c.Output.Delimiter) != 1 {
		return errors.Newf("output.delimiter must be a single character, got %q", c.Output.Delimiter)
	}

	return nil
}

// ValidateTask additionally requires everything a search run needs
func (c *Config) ValidateTask() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Logpoint.SecretKey == "" {
		return errors.WithHint(errors.New("logpoint.secret_key is not set"),
			"set "+EnvPrefix+"_LOGPOINT_SECRET_KEY or logpoint.secret_key")
	}
	if len(c.Search.Repos) == 0 {
		return errors.WithHint(errors.New("no repositories to search"),
			"set search.repos or pass --repos")
	}
	if len(c.Search.Fields) == 0 {
		return errors.WithHint(errors.New("no output fields"),
			"set search.fields or pass --fields, e.g. \"log_ts user _repo\"")
	}
	return nil
}

// DelimiterRune returns the configured CSV delimiter
func (c OutputConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(c.Delimiter)
	return r
}
