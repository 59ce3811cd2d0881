package am

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	gotoml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/lpharvest/errors"
)

const starterHeader = `# lpharvest configuration
#
# Values here are overridden by LPHARVEST_* environment variables and by flags.
# Keep the secret key out of this file: export LPHARVEST_LOGPOINT_SECRET_KEY.

`

// Defaults returns the configuration built from defaults alone
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	if err != nil {
		// defaults are static
		panic(err)
	}
	return cfg
}

// Starter returns the configuration written by WriteStarter
func Starter() *Config {
	cfg := Defaults()
	cfg.Search.Query = "| chart count() by device_ip"
	cfg.Search.Repos = []string{"127.0.0.1:5504/_logpoint"}
	cfg.Search.Fields = []string{"log_ts", "device_ip", "_repo"}
	cfg.Output.Paths = []string{"harvest.csv"}
	return cfg
}

// WriteStarter writes a starter config to configPath. An existing file is only
// replaced when force is set, after rotating backups.
func WriteStarter(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return errors.WithHint(errors.Newf("%s already exists", configPath),
			"pass --force to replace it (the old file is kept as .back1)")
	}

	data, err := gotoml.Marshal(Starter())
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	content := append([]byte(starterHeader), data...)
	if err := os.WriteFile(configPath, content, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// WriteTOML encodes the configuration with the secret redacted
func (c *Config) WriteTOML(w io.Writer) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c.Redacted()); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// createBackup creates rotating backups (.back1, .back2, .back3) before replacing a config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	// Rotate backups: .back3 -> delete, .back2 -> .back3, .back1 -> .back2, current -> .back1
	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// UserConfigPath returns ~/.lpharvest/config.toml
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserConfigDir, "config.toml")
}

// Describe renders where the configuration came from, for `am show`
func Describe() string {
	files := LoadedFiles()
	if len(files) == 0 {
		return "# sources: defaults and environment\n"
	}
	var buf bytes.Buffer
	buf.WriteString("# sources (lowest precedence first):\n")
	for _, f := range files {
		fmt.Fprintf(&buf, "#   %s\n", f)
	}
	return buf.String()
}
