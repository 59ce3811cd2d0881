// Package am holds the lpharvest configuration: the
// Logpoint connection, the search task, pacing, fan-out and output settings.
// Values are layered system < user < project file < environment < flags.
package am

import "time"

// Config represents the lpharvest configuration
type Config struct {
	Logpoint LogpointConfig `mapstructure:"logpoint" toml:"logpoint"`
	Search   SearchConfig   `mapstructure:"search" toml:"search"`
	Pacing   PacingConfig   `mapstructure:"pacing" toml:"pacing"`
	Harvest  HarvestConfig  `mapstructure:"harvest" toml:"harvest"`
	Output   OutputConfig   `mapstructure:"output" toml:"output"`
}

// LogpointConfig configures the connection to one Logpoint instance
type LogpointConfig struct {
	BaseURL              string `mapstructure:"base_url" toml:"base_url"`
	Account              string `mapstructure:"account" toml:"account"`
	SecretKey            string `mapstructure:"secret_key" toml:"secret_key"` // prefer LPHARVEST_LOGPOINT_SECRET_KEY
	TimeoutSeconds       int    `mapstructure:"timeout_seconds" toml:"timeout_seconds"`
	WaiterID             string `mapstructure:"waiter_id" toml:"waiter_id"`
	AllowPrivateNetworks bool   `mapstructure:"allow_private_networks" toml:"allow_private_networks"`
}

// SearchConfig describes the search task
type SearchConfig struct {
	Query     string `mapstructure:"query" toml:"query"`
	TimeRange string `mapstructure:"time_range" toml:"time_range"` // e.g. "Last 1 hour"
	Start     string `mapstructure:"start" toml:"start,omitempty"` // RFC3339, overrides time_range together with End
	End       string `mapstructure:"end" toml:"end,omitempty"`

	// Repos and Fields accept a TOML array or one shell-quoted string
	Repos  []string `mapstructure:"-" toml:"repos"`
	Fields []string `mapstructure:"-" toml:"fields"`

	Limit                int    `mapstructure:"limit" toml:"limit"`
	IDField              string `mapstructure:"id_field" toml:"id_field"`
	TimestampField       string `mapstructure:"timestamp_field" toml:"timestamp_field"`
	MaxEmptyPolls        int    `mapstructure:"max_empty_polls" toml:"max_empty_polls"`
	SearchTimeoutSeconds int    `mapstructure:"search_timeout_seconds" toml:"search_timeout_seconds"`
}

// PacingConfig configures call spacing and retry backoff
type PacingConfig struct {
	DelayMS           int     `mapstructure:"delay_ms" toml:"delay_ms"`
	MaxCallsPerMinute int     `mapstructure:"max_calls_per_minute" toml:"max_calls_per_minute"` // 0 = unlimited
	MaxRetries        int     `mapstructure:"max_retries" toml:"max_retries"`
	InitialBackoffMS  int     `mapstructure:"initial_backoff_ms" toml:"initial_backoff_ms"`
	MaxBackoffMS      int     `mapstructure:"max_backoff_ms" toml:"max_backoff_ms"`
	Jitter            float64 `mapstructure:"jitter" toml:"jitter"`
}

// HarvestConfig configures the fan-out over repositories
type HarvestConfig struct {
	Fanout      int    `mapstructure:"fanout" toml:"fanout"`
	SplitPolicy string `mapstructure:"split_policy" toml:"split_policy"`
}

// OutputConfig configures where harvested rows are written
type OutputConfig struct {
	Paths        []string `mapstructure:"-" toml:"paths"`
	Format       string   `mapstructure:"format" toml:"format"` // "auto" detects by extension
	Delimiter    string   `mapstructure:"delimiter" toml:"delimiter"`
	MissingValue string   `mapstructure:"missing_value" toml:"missing_value"`
}

// Timeout returns the per-call HTTP timeout
func (c LogpointConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// SearchTimeout returns the timeout Logpoint applies to one search
func (c SearchConfig) SearchTimeout() time.Duration {
	return time.Duration(c.SearchTimeoutSeconds) * time.Second
}

// Delay returns the minimum spacing between calls
func (c PacingConfig) Delay() time.Duration {
	return time.Duration(c.DelayMS) * time.Millisecond
}

// InitialBackoff returns the first retry wait
func (c PacingConfig) InitialBackoff() time.Duration {
	return time.Duration(c.InitialBackoffMS) * time.Millisecond
}

// MaxBackoff returns the retry wait cap
func (c PacingConfig) MaxBackoff() time.Duration {
	return time.Duration(c.MaxBackoffMS) * time.Millisecond
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	if out.Logpoint.SecretKey != "" {
		out.Logpoint.SecretKey = redactedSecret
	}
	return &out
}

const redactedSecret = "********"

// Environment and file layout
const (
	EnvPrefix         = "LPHARVEST"
	ProjectConfigName = "lpharvest.toml"
	UserConfigDir     = ".lpharvest"
	SystemConfigPath  = "/etc/lpharvest/config.toml"

	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0600 // config may hold the secret key
)
