package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/Iron-Ham/tosh/internal/shell"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "tosh",
	Short: "A small line-oriented shell",
	Long: `tosh reads one command line at a time and runs it as a pipeline of
programs connected stdout to stdin. A trailing & runs the pipeline in the
background; finished background jobs are reported before the next prompt.

Built-ins: cd, exit, jobs. The pager and checkEnv aliases expand to
internal pipelines.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: false,
	RunE:          runShell,
}

var commandLine string

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config file (default is $HOME/.config/tosh/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	rootCmd.Flags().StringVarP(&commandLine, "command", "c", "", "run one command line, then exit")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/tosh")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("TOSH")
	// e.g., TOSH_REAPER_MODE for reaper.mode
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Close() }()

	opts := shell.Options{
		Config:      cfg,
		Logger:      logger,
		Interactive: shell.IsInteractive(os.Stdin),
	}
	if cmd.Flags().Changed("command") {
		opts.In = strings.NewReader(commandLine)
		opts.Interactive = false
	}

	sh, err := shell.New(opts)
	if err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}

	if viper.ConfigFileUsed() != "" {
		viper.OnConfigChange(reloadHandler(sh, logger))
		viper.WatchConfig()
	}

	return sh.Run(cmd.Context())
}

// newLogger returns the debug logger, or a discarding one when debug logging
// is disabled.
func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	logger, err := logging.NewLogger(cfg.Logging.LogDir(), cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	return logger, nil
}

// reloader is the part of the shell a config change is applied to.
type reloader interface {
	Reload(cfg *config.Config)
}

// reloadHandler applies a changed config file to the running shell. A file
// that no longer validates is logged and the previous settings stay.
func reloadHandler(r reloader, logger *logging.Logger) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := config.Load()
		if err != nil {
			logger.Warn("ignoring invalid configuration", "file", e.Name, "error", err.Error())
			return
		}
		r.Reload(cfg)
	}
}
