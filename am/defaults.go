package am

import (
	"github.com/spf13/viper"
)

// Defaults mirror the Logpoint search plugin's parameter defaults
const (
	DefaultBaseURL        = "https://demo.logpoint.com/"
	DefaultAccount        = "partner"
	DefaultWaiterID       = "lpharvest"
	DefaultTimeRange      = "Last 1 hour"
	DefaultLimit          = 1000
	DefaultIDField        = "_id"
	DefaultTimestampField = "log_ts"
	DefaultSplitPolicy    = "recency"
	DefaultFormat         = "auto"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Logpoint connection
	v.SetDefault("logpoint.base_url", DefaultBaseURL)
	v.SetDefault("logpoint.account", DefaultAccount)
	v.SetDefault("logpoint.secret_key", "")
	v.SetDefault("logpoint.timeout_seconds", 100)
	v.SetDefault("logpoint.waiter_id", DefaultWaiterID)
	v.SetDefault("logpoint.allow_private_networks", true)

	// Search task
	v.SetDefault("search.query", "")
	v.SetDefault("search.time_range", DefaultTimeRange)
	v.SetDefault("search.start", "")
	v.SetDefault("search.end", "")
	v.SetDefault("search.repos", []string{})
	v.SetDefault("search.limit", DefaultLimit)
	v.SetDefault("search.fields", []string{})
	v.SetDefault("search.id_field", DefaultIDField)
	v.SetDefault("search.timestamp_field", DefaultTimestampField)
	v.SetDefault("search.max_empty_polls", 120)       // ~1 minute of polling at the default delay
	v.SetDefault("search.search_timeout_seconds", 60) // sent to Logpoint with each search

	// Pacing
	v.SetDefault("pacing.delay_ms", 500)
	v.SetDefault("pacing.max_calls_per_minute", 60)
	v.SetDefault("pacing.max_retries", 5)
	v.SetDefault("pacing.initial_backoff_ms", 1000)
	v.SetDefault("pacing.max_backoff_ms", 60000)
	v.SetDefault("pacing.jitter", 0.2)

	// Fan-out
	v.SetDefault("harvest.fanout", 4)
	v.SetDefault("harvest.split_policy", DefaultSplitPolicy)

	// Output
	v.SetDefault("output.paths", []string{})
	v.SetDefault("output.format", DefaultFormat)
	v.SetDefault("output.delimiter", ",")
	v.SetDefault("output.missing_value", "")
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("logpoint.secret_key", EnvPrefix+"_LOGPOINT_SECRET_KEY")
	v.BindEnv("logpoint.account", EnvPrefix+"_LOGPOINT_ACCOUNT")
	v.BindEnv("logpoint.base_url", EnvPrefix+"_LOGPOINT_BASE_URL")
}
