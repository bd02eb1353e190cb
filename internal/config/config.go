package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Reaper modes
const (
	// ReapModePoll sweeps finished background jobs once per prompt cycle.
	ReapModePoll = "poll"
	// ReapModeNotify sweeps whenever SIGCHLD is delivered to the shell.
	ReapModeNotify = "notify"
)

// Color modes
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config represents the complete tosh configuration
type Config struct {
	Shell   ShellConfig   `mapstructure:"shell" yaml:"shell"`
	Reaper  ReaperConfig  `mapstructure:"reaper" yaml:"reaper"`
	Pager   PagerConfig   `mapstructure:"pager" yaml:"pager"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ShellConfig controls the interactive command loop
type ShellConfig struct {
	// PromptSuffix is printed after the current directory (default: ": ")
	PromptSuffix string `mapstructure:"prompt_suffix" yaml:"prompt_suffix"`
	// ShowTiming prints "Ran for N seconds" after foreground jobs (default: true)
	ShowTiming bool `mapstructure:"show_timing" yaml:"show_timing"`
	// Color controls report and prompt styling: "auto", "always", "never" (default: "auto")
	Color string `mapstructure:"color" yaml:"color"`
}

// ReaperConfig controls how finished children are collected
type ReaperConfig struct {
	// Mode is "poll" (sweep once per prompt) or "notify" (sweep on SIGCHLD).
	// The default is "poll" unless the binary was built with the sigdet tag.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// ShutdownGrace is how long background jobs get to exit after SIGTERM
	// before they are killed when the shell exits (default: 2s)
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// PagerConfig controls the pager alias
type PagerConfig struct {
	// Fallbacks are tried in order after $PAGER (default: ["less", "more"])
	Fallbacks []string `mapstructure:"fallbacks" yaml:"fallbacks"`
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Enabled controls whether debug logging is written (default: false)
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// Dir is the log directory. Empty means {config dir}/logs.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			PromptSuffix: ": ",
			ShowTiming:   true,
			Color:        ColorAuto,
		},
		Reaper: ReaperConfig{
			Mode:          defaultReapMode,
			ShutdownGrace: 2 * time.Second,
		},
		Pager: PagerConfig{
			Fallbacks: []string{"less", "more"},
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
			Dir:     "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Shell defaults
	viper.SetDefault("shell.prompt_suffix", defaults.Shell.PromptSuffix)
	viper.SetDefault("shell.show_timing", defaults.Shell.ShowTiming)
	viper.SetDefault("shell.color", defaults.Shell.Color)

	// Reaper defaults
	viper.SetDefault("reaper.mode", defaults.Reaper.Mode)
	viper.SetDefault("reaper.shutdown_grace", defaults.Reaper.ShutdownGrace)

	// Pager defaults
	viper.SetDefault("pager.fallbacks", defaults.Pager.Fallbacks)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.dir", defaults.Logging.Dir)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration, falling back to defaults if the
// loaded configuration is invalid.
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// LogDir returns the directory debug logs are written to.
func (c *LoggingConfig) LogDir() string {
	if c.Dir != "" {
		return expandHome(c.Dir)
	}
	return filepath.Join(ConfigDir(), "logs")
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tosh")
	}
	// Fall back to ~/.config/tosh
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tosh"
	}
	return filepath.Join(home, ".config", "tosh")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
