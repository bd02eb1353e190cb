package config

import (
	"strings"
	"testing"
	"time"
)

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{
		Field:   "test.field",
		Value:   123,
		Message: "must be greater than zero",
	}

	expected := "test.field: must be greater than zero (got: 123)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestValidationErrors_Error(t *testing.T) {
	t.Run("empty errors", func(t *testing.T) {
		var errs ValidationErrors
		if errs.Error() != "" {
			t.Errorf("Error() for empty = %q, want empty string", errs.Error())
		}
	})

	t.Run("single error", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "test.field", Value: 123, Message: "is invalid"},
		}
		expected := "test.field: is invalid (got: 123)"
		if errs.Error() != expected {
			t.Errorf("Error() = %q, want %q", errs.Error(), expected)
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		errs := ValidationErrors{
			{Field: "field1", Value: "bad", Message: "is invalid"},
			{Field: "field2", Value: -1, Message: "must be positive"},
		}
		result := errs.Error()
		if !strings.Contains(result, "2 validation errors") {
			t.Errorf("Error() should mention 2 errors: %s", result)
		}
		if !strings.Contains(result, "field1") || !strings.Contains(result, "field2") {
			t.Errorf("Error() should mention both fields: %s", result)
		}
	})
}

func TestConfig_Validate_DefaultConfig(t *testing.T) {
	cfg := Default()
	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Default config should be valid, got errors: %v", errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		modify    func(*Config)
		wantField string
	}{
		{
			name:      "unknown reaper mode",
			modify:    func(c *Config) { c.Reaper.Mode = "sometimes" },
			wantField: "reaper.mode",
		},
		{
			name:      "empty reaper mode",
			modify:    func(c *Config) { c.Reaper.Mode = "" },
			wantField: "reaper.mode",
		},
		{
			name:      "negative shutdown grace",
			modify:    func(c *Config) { c.Reaper.ShutdownGrace = -time.Second },
			wantField: "reaper.shutdown_grace",
		},
		{
			name:      "huge shutdown grace",
			modify:    func(c *Config) { c.Reaper.ShutdownGrace = time.Hour },
			wantField: "reaper.shutdown_grace",
		},
		{
			name:      "blank pager fallback",
			modify:    func(c *Config) { c.Pager.Fallbacks = []string{"less", "  "} },
			wantField: "pager.fallbacks[1]",
		},
		{
			name:      "bad color",
			modify:    func(c *Config) { c.Shell.Color = "rainbow" },
			wantField: "shell.color",
		},
		{
			name:      "multiline prompt",
			modify:    func(c *Config) { c.Shell.PromptSuffix = "$\n" },
			wantField: "shell.prompt_suffix",
		},
		{
			name:      "bad log level",
			modify:    func(c *Config) { c.Logging.Level = "trace" },
			wantField: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			errs := cfg.Validate()
			if len(errs) != 1 {
				t.Fatalf("Validate() returned %d errors, want 1: %v", len(errs), errs)
			}
			if errs[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", errs[0].Field, tt.wantField)
			}
		})
	}
}

func TestConfig_Validate_AcceptsEdgeValues(t *testing.T) {
	cfg := Default()
	cfg.Reaper.Mode = ReapModeNotify
	cfg.Reaper.ShutdownGrace = 0
	cfg.Pager.Fallbacks = nil
	cfg.Shell.Color = ColorNever
	cfg.Logging.Level = ""

	if errs := cfg.Validate(); len(errs) != 0 {
		t.Errorf("Validate() = %v, want no errors", errs)
	}
}
