package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Iron-Ham/tosh/internal/config"
	"github.com/Iron-Ham/tosh/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// isolateConfig points the config directory at a fresh temp dir and resets
// viper afterwards.
func isolateConfig(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv("HOME", dir)
	t.Cleanup(viper.Reset)
	return filepath.Join(dir, "tosh")
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "tosh" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "tosh")
	}

	flag := rootCmd.Flags().Lookup("command")
	if flag == nil || flag.Shorthand != "c" {
		t.Error("expected a -c/--command flag")
	}
	if rootCmd.PersistentFlags().Lookup("config") == nil {
		t.Error("expected a --config flag")
	}

	subs := make(map[string]bool)
	for _, c := range configCmd.Commands() {
		subs[c.Name()] = true
	}
	for _, want := range []string{"show", "path", "set", "init"} {
		if !subs[want] {
			t.Errorf("config subcommand %q not found", want)
		}
	}
}

func TestRootCommand_OneShot(t *testing.T) {
	isolateConfig(t)
	t.Cleanup(func() { commandLine = "" })

	if _, err := executeCommand(rootCmd, "-c", "true"); err != nil {
		t.Fatalf("tosh -c true = %v", err)
	}
}

func TestConfigShow(t *testing.T) {
	isolateConfig(t)
	t.Setenv("TOSH_REAPER_MODE", config.ReapModeNotify)

	output, err := executeCommand(rootCmd, "config", "show")
	if err != nil {
		t.Fatalf("config show = %v", err)
	}
	if !strings.HasPrefix(output, "# Config file: (none - using defaults)\n") {
		t.Errorf("output = %q, want the config file header", output)
	}

	var shown config.Config
	if err := yaml.Unmarshal([]byte(output), &shown); err != nil {
		t.Fatalf("output is not YAML: %v\n%s", err, output)
	}
	if shown.Reaper.Mode != config.ReapModeNotify {
		t.Errorf("reaper.mode = %q, want the environment override", shown.Reaper.Mode)
	}
	if !strings.Contains(output, "shutdown_grace: 2s") {
		t.Errorf("output = %q, want a readable grace period", output)
	}
}

func TestConfigInitAndPath(t *testing.T) {
	dir := isolateConfig(t)

	output, err := executeCommand(rootCmd, "config", "init")
	if err != nil {
		t.Fatalf("config init = %v", err)
	}
	file := filepath.Join(dir, "config.yaml")
	if !strings.Contains(output, file) {
		t.Errorf("output = %q, want %s", output, file)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	var written config.Config
	if err := yaml.Unmarshal(data, &written); err != nil {
		t.Fatalf("written config is not YAML: %v", err)
	}
	if errs := written.Validate(); len(errs) > 0 {
		t.Errorf("written config does not validate: %v", config.ValidationErrors(errs))
	}

	if _, err := executeCommand(rootCmd, "config", "init"); err == nil {
		t.Error("second config init should refuse to overwrite")
	}

	output, err = executeCommand(rootCmd, "config", "path")
	if err != nil {
		t.Fatalf("config path = %v", err)
	}
	if !strings.Contains(output, "TOSH_REAPER_MODE") {
		t.Errorf("output = %q, want the environment variable hint", output)
	}
}

func TestParseSetting(t *testing.T) {
	isolateConfig(t)
	config.SetDefaults()

	tests := []struct {
		key     string
		value   string
		want    any
		wantErr bool
	}{
		{key: "reaper.mode", value: "notify", want: "notify"},
		{key: "reaper.mode", value: "eventually", wantErr: true},
		{key: "reaper.shutdown_grace", value: "5s", want: 5 * time.Second},
		{key: "reaper.shutdown_grace", value: "soon", wantErr: true},
		{key: "reaper.shutdown_grace", value: "2h", wantErr: true},
		{key: "shell.show_timing", value: "false", want: false},
		{key: "shell.show_timing", value: "no", wantErr: true},
		{key: "shell.color", value: "always", want: "always"},
		{key: "logging.level", value: "loud", wantErr: true},
		{key: "pager.fallbacks", value: "cat", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			got, err := parseSetting(tt.key, tt.value)
			if tt.wantErr {
				if err == nil {
					t.Errorf("parseSetting() = %v, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSetting() = %v", err)
			}
			if got != tt.want {
				t.Errorf("parseSetting() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConfigSet(t *testing.T) {
	dir := isolateConfig(t)

	output, err := executeCommand(rootCmd, "config", "set", "reaper.shutdown_grace", "5s")
	if err != nil {
		t.Fatalf("config set = %v", err)
	}
	if !strings.Contains(output, "Set reaper.shutdown_grace = 5s") {
		t.Errorf("output = %q", output)
	}

	data, err := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	if !strings.Contains(string(data), "shutdown_grace: 5s") {
		t.Errorf("config file = %q", data)
	}
}

type fakeReloader struct {
	reloads []*config.Config
}

func (f *fakeReloader) Reload(cfg *config.Config) { f.reloads = append(f.reloads, cfg) }

func TestReloadHandler(t *testing.T) {
	isolateConfig(t)
	config.SetDefaults()

	r := &fakeReloader{}
	handle := reloadHandler(r, logging.NopLogger())

	handle(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Chmod})
	if len(r.reloads) != 0 {
		t.Fatal("a chmod event should not reload")
	}

	viper.Set("pager.fallbacks", []string{"most"})
	handle(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write})
	if len(r.reloads) != 1 || r.reloads[0].Pager.Fallbacks[0] != "most" {
		t.Fatalf("reloads = %+v, want the new fallbacks", r.reloads)
	}

	viper.Set("reaper.mode", "eventually")
	handle(fsnotify.Event{Name: "config.yaml", Op: fsnotify.Write})
	if len(r.reloads) != 1 {
		t.Error("an invalid configuration should not be applied")
	}
}

func TestLogsCommand(t *testing.T) {
	isolateConfig(t)
	logDir := t.TempDir()
	t.Setenv("TOSH_LOGGING_DIR", logDir)
	t.Cleanup(func() { logsLevel, logsTail = "", 50 })

	output, err := executeCommand(rootCmd, "logs")
	if err != nil {
		t.Fatalf("logs = %v", err)
	}
	if !strings.Contains(output, "No debug log in "+logDir) {
		t.Errorf("output = %q, want a missing-log hint", output)
	}

	logger, err := logging.NewLogger(logDir, logging.LevelDebug)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	logger.WithJob("0123456789abcdef").Info("job finished", "pid", 4711)
	logger.Warn("wait failed", "pid", 4712)
	_ = logger.Close()

	output, err = executeCommand(rootCmd, "logs", "--level", "warn")
	if err != nil {
		t.Fatalf("logs --level warn = %v", err)
	}
	if !strings.Contains(output, "wait failed pid=4712") || strings.Contains(output, "job finished") {
		t.Errorf("output = %q, want only the warning", output)
	}
}
