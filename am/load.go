package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/lpharvest/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper
var loadedFiles []string

// Load reads the lpharvest configuration using Viper
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance so callers can bind flags before Load
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	lists := []struct {
		key  string
		dest *[]string
	}{
		{"search.repos", &config.Search.Repos},
		{"search.fields", &config.Search.Fields},
		{"output.paths", &config.Output.Paths},
	}
	for _, l := range lists {
		items, err := ParseList(v.Get(l.key))
		if err != nil {
			return nil, errors.Wrapf(err, "config key %s", l.key)
		}
		*l.dest = items
	}

	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return config, nil
}

// UseConfigFile replaces the layered file search with a single explicit file.
// Environment variables still take precedence over it.
func UseConfigFile(configPath string) error {
	v := newViper()

	tmp := viper.New()
	tmp.SetConfigFile(configPath)
	tmp.SetConfigType("toml")
	if err := tmp.ReadInConfig(); err != nil {
		return errors.WithHint(
			errors.Wrapf(err, "failed to read config file %s", configPath),
			"create one with 'lpharvest am init'")
	}
	if err := v.MergeConfigMap(tmp.AllSettings()); err != nil {
		return errors.Wrapf(err, "failed to merge config file %s", configPath)
	}

	globalConfig = nil
	viperInstance = v
	loadedFiles = []string{configPath}
	return nil
}

// LoadedFiles lists the config files merged into the active configuration,
// lowest precedence first
func LoadedFiles() []string {
	initViper()
	return append([]string(nil), loadedFiles...)
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	loadedFiles = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := newViper()

	// Merge configs in precedence order: system -> user -> project, env vars above all
	loadedFiles = mergeConfigFiles(v, configPaths())

	viperInstance = v
	return v
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set up environment variable binding
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind specific sensitive configuration values to environment variables
	BindSensitiveEnvVars(v)

	SetDefaults(v)
	return v
}

func configPaths() []string {
	paths := []string{SystemConfigPath}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, UserConfigDir, "config.toml"))
	}
	if dir, err := os.Getwd(); err == nil {
		if project := findProjectConfig(dir); project != "" {
			paths = append(paths, project)
		}
	}
	return paths
}

// findProjectConfig searches for lpharvest.toml by walking up the directory tree
// from dir. Returns the first file found, or empty string if none found.
func findProjectConfig(dir string) string {
	for {
		path := filepath.Join(dir, ProjectConfigName)
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root, stop searching
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges the existing files among paths in order, later
// files overriding earlier ones. Unreadable files are skipped.
func mergeConfigFiles(v *viper.Viper, paths []string) []string {
	var merged []string
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// MergeConfigMap keeps env vars and flags above file values
		if err := v.MergeConfigMap(tempViper.AllSettings()); err == nil {
			merged = append(merged, configPath)
		}
	}
	return merged
}
