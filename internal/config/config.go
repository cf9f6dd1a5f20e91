// Package config loads changefeed configuration from command-line flags,
// environment variables and a .env file.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/listenupapp/changefeed/internal/errors"
	"github.com/listenupapp/changefeed/internal/logger"
	"github.com/listenupapp/changefeed/internal/validation"
	"github.com/listenupapp/changefeed/internal/watcher"
)

// Config holds the application configuration.
type Config struct {
	App    AppConfig
	Logger LoggerConfig
	Watch  WatchConfig
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Environment string `env:"ENV" validate:"required,oneof=development staging production"`
}

// LoggerConfig holds logging configuration.
type LoggerConfig struct {
	Level string `env:"LOG_LEVEL" validate:"required,loglevel"`
}

// WatchConfig describes the directory to watch and how.
type WatchConfig struct {
	Path         string        `env:"WATCH_PATH" validate:"required,dir"`
	Changes      string        `env:"WATCH_CHANGES" validate:"required,changes"`
	Backend      string        `env:"WATCH_BACKEND" validate:"required,oneof=auto fsnotify inotify"`
	BufferSize   int           `env:"WATCH_BUFFER_SIZE" validate:"min=4096,max=65536"`
	Recursive    bool          `env:"WATCH_RECURSIVE"`
	IgnoreHidden bool          `env:"WATCH_IGNORE_HIDDEN"`
	RenameWindow time.Duration `env:"WATCH_RENAME_WINDOW" validate:"gt=0s"`
}

// ChangeMask returns the parsed WATCH_CHANGES value.
func (w WatchConfig) ChangeMask() (watcher.ChangeMask, error) {
	return watcher.ParseChangeMask(w.Changes)
}

// Options converts the watch configuration into backend options.
func (w WatchConfig) Options() watcher.Options {
	return watcher.Options{
		Backend:               w.Backend,
		IncludeSubdirectories: w.Recursive,
		IgnoreHidden:          w.IgnoreHidden,
		RenameWindow:          w.RenameWindow,
		BufferSize:            w.BufferSize,
	}
}

// LoadConfig loads configuration with precedence:
// 1. Command-line flags in args (highest priority).
// 2. Environment variables.
// 3. .env file.
// 4. Default values (lowest priority).
func LoadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("changefeed", flag.ContinueOnError)

	env := fs.String("env", "", "Environment (development, staging, production)")
	logLevel := fs.String("log-level", "", "Log level (debug, info, warn, error)")
	envFile := fs.String("env-file", ".env", "Path to .env file")

	watchPath := fs.String("path", "", "Directory to watch")
	changes := fs.String("changes", "", "Comma separated change kinds: created, deleted, changed, renamed or all (default: all)")
	backend := fs.String("backend", "", "Notification backend: auto, fsnotify or inotify (default: auto)")
	bufferSize := fs.String("buffer-size", "", "Initial notification buffer size in bytes (default: 4096)")
	recursive := fs.String("recursive", "", "Watch subdirectories (default: true)")
	ignoreHidden := fs.String("ignore-hidden", "", "Skip dot files and dot directories (default: true)")
	renameWindow := fs.String("rename-window", "", "How long a rename waits for its new name (default: 50ms)")

	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, errors.CodeInvalidConfiguration, "invalid command line")
	}

	// A missing .env file is fine; a malformed one is not.
	if err := loadEnvFile(*envFile); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, errors.CodeInvalidConfiguration, "failed to load %s", *envFile)
	}

	cfg := &Config{
		App: AppConfig{
			Environment: getConfigValue(*env, "ENV", "development"),
		},
		Logger: LoggerConfig{
			Level: getConfigValue(*logLevel, "LOG_LEVEL", "info"),
		},
		Watch: WatchConfig{
			Path:    getConfigValue(*watchPath, "WATCH_PATH", ""),
			Changes: getConfigValue(*changes, "WATCH_CHANGES", "all"),
			Backend: getConfigValue(*backend, "WATCH_BACKEND", watcher.BackendAuto),
		},
	}

	var err error
	if cfg.Watch.BufferSize, err = getIntConfigValue(*bufferSize, "WATCH_BUFFER_SIZE", watcher.DefaultBufferSize); err != nil {
		return nil, err
	}
	if cfg.Watch.Recursive, err = getBoolConfigValue(*recursive, "WATCH_RECURSIVE", true); err != nil {
		return nil, err
	}
	if cfg.Watch.IgnoreHidden, err = getBoolConfigValue(*ignoreHidden, "WATCH_IGNORE_HIDDEN", true); err != nil {
		return nil, err
	}
	if cfg.Watch.RenameWindow, err = getDurationConfigValue(*renameWindow, "WATCH_RENAME_WINDOW", 50*time.Millisecond); err != nil {
		return nil, err
	}

	if cfg.Watch.Path != "" {
		if cfg.Watch.Path, err = expandPath(cfg.Watch.Path); err != nil {
			return nil, errors.Wrap(err, errors.CodeInvalidConfiguration, "invalid watch path")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field and reports all failures at once.
func (c *Config) Validate() error {
	v := validation.New()
	if err := v.RegisterString("loglevel", func(s string) bool {
		_, err := logger.ParseLevel(s)
		return err == nil
	}); err != nil {
		return err
	}
	if err := v.RegisterString("changes", func(s string) bool {
		_, err := watcher.ParseChangeMask(s)
		return err == nil
	}); err != nil {
		return err
	}
	return v.Validate(c)
}

// expandPath expands ~ and makes the path absolute.
func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, strings.TrimPrefix(path[1:], "/"))
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}
	return absPath, nil
}

// getConfigValue returns the first non-empty value from flag, env var, or default.
func getConfigValue(flagValue, envKey, defaultValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envValue := os.Getenv(envKey); envValue != "" {
		return envValue
	}
	return defaultValue
}

func getBoolConfigValue(flagValue, envKey string, defaultValue bool) (bool, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	switch strings.ToLower(strValue) {
	case "yes", "on":
		return true, nil
	case "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strValue)
	if err != nil {
		return false, errors.InvalidConfigurationf("%s: %q is not a boolean", envKey, strValue)
	}
	return b, nil
}

func getIntConfigValue(flagValue, envKey string, defaultValue int) (int, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strValue)
	if err != nil {
		return 0, errors.InvalidConfigurationf("%s: %q is not an integer", envKey, strValue)
	}
	return n, nil
}

func getDurationConfigValue(flagValue, envKey string, defaultValue time.Duration) (time.Duration, error) {
	strValue := getConfigValue(flagValue, envKey, "")
	if strValue == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(strValue)
	if err != nil {
		return 0, errors.InvalidConfigurationf("%s: %q is not a duration", envKey, strValue)
	}
	return d, nil
}

// loadEnvFile loads environment variables from a .env file.
// Format: KEY=value (one per line, # for comments). Variables already set
// in the environment win.
func loadEnvFile(path string) error {
	file, err := os.Open(path) //#nosec G304 -- Config file path from user input is expected
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return fmt.Errorf("invalid format at line %d: %s", lineNum, line)
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)

		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("failed to set env var %s: %w", key, err)
		}
	}

	return scanner.Err()
}
