package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify tosh configuration",
	Long: `View or modify tosh configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value in the user's config file.

Keys use dot notation, e.g.:
  tosh config set reaper.mode notify
  tosh config set reaper.shutdown_grace 5s
  tosh config set shell.show_timing false

Valid keys:
  shell.prompt_suffix    - Text printed after the current directory
  shell.show_timing      - Print "Ran for" after foreground jobs (true/false)
  shell.color            - Styling: auto, always, never
  reaper.mode            - Background reaping: poll, notify
  reaper.shutdown_grace  - Time background jobs get after SIGTERM on exit
  logging.enabled        - Write debug logs (true/false)
  logging.level          - Log level: debug, info, warn, error`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/tosh/config.yaml with all available options.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	Args:  cobra.NoArgs,
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to render configuration: %w", err)
	}
	return enc.Close()
}

// settableKeys maps each key accepted by "config set" to its value kind.
var settableKeys = map[string]string{
	"shell.prompt_suffix":   "string",
	"shell.show_timing":     "bool",
	"shell.color":           "string",
	"reaper.mode":           "string",
	"reaper.shutdown_grace": "duration",
	"logging.enabled":       "bool",
	"logging.level":         "string",
}

// parseSetting converts value to the kind key expects and validates it
// against the rest of the configuration.
func parseSetting(key, value string) (any, error) {
	kind, ok := settableKeys[key]
	if !ok {
		return nil, fmt.Errorf("unknown configuration key: %s\nRun 'tosh config set --help' to see valid keys", key)
	}

	var typed any
	switch kind {
	case "string":
		typed = value
	case "bool":
		if value != "true" && value != "false" {
			return nil, fmt.Errorf("invalid value for %s: expected true or false", key)
		}
		typed = value == "true"
	case "duration":
		d, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %s: expected a duration such as 2s", key)
		}
		typed = d
	}

	cfg, err := config.Load()
	if err != nil {
		cfg = config.Default()
	}
	applySetting(cfg, key, typed)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return typed, nil
}

func applySetting(cfg *config.Config, key string, value any) {
	switch key {
	case "shell.prompt_suffix":
		cfg.Shell.PromptSuffix = value.(string)
	case "shell.show_timing":
		cfg.Shell.ShowTiming = value.(bool)
	case "shell.color":
		cfg.Shell.Color = value.(string)
	case "reaper.mode":
		cfg.Reaper.Mode = value.(string)
	case "reaper.shutdown_grace":
		cfg.Reaper.ShutdownGrace = value.(time.Duration)
	case "logging.enabled":
		cfg.Logging.Enabled = value.(bool)
	case "logging.level":
		cfg.Logging.Level = value.(string)
	}
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	key := args[0]
	typed, err := parseSetting(key, args[1])
	if err != nil {
		return err
	}

	// Ensure config directory exists
	configDir := config.ConfigDir()
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if d, ok := typed.(time.Duration); ok {
		typed = d.String()
	}
	viper.Set(key, typed)

	configFile := config.ConfigFile()
	if err := viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Set %s = %v\n", key, typed)
	fmt.Fprintf(out, "Config saved to %s\n", configFile)
	return nil
}

const configTemplate = `# tosh configuration

shell:
  # Printed after the current directory in the prompt
  prompt_suffix: ": "
  # Print "Ran for N seconds" after every foreground job
  show_timing: true
  # Styling of the prompt and job reports: auto, always, never
  color: auto

reaper:
  # poll: collect finished background jobs once per prompt
  # notify: collect them as soon as SIGCHLD arrives
  mode: %s
  # How long background jobs get after SIGTERM when the shell exits
  shutdown_grace: 2s

pager:
  # Tried in order after $PAGER
  fallbacks:
    - less
    - more

logging:
  enabled: false
  level: info
  # Empty means {config dir}/logs
  dir: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'tosh config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	content := fmt.Sprintf(configTemplate, config.Default().Reaper.Mode)
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "Active config: %s\n", used)
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", config.ConfigFile())
	}

	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintln(out, "  2. $HOME/.config/tosh/config.yaml")
	fmt.Fprintf(out, "\nEnvironment variables: TOSH_* (e.g., %s)\n", envName("reaper.mode"))
	return nil
}

func envName(key string) string {
	return "TOSH_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
