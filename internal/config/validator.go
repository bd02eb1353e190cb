package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "reaper.mode")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidReapModes returns the list of valid reaper modes
func ValidReapModes() []string {
	return []string{ReapModePoll, ReapModeNotify}
}

// ValidColorModes returns the list of valid color modes
func ValidColorModes() []string {
	return []string{ColorAuto, ColorAlways, ColorNever}
}

// maxShutdownGrace bounds how long exit may block on background jobs.
const maxShutdownGrace = time.Minute

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateShell()...)
	errors = append(errors, c.validateReaper()...)
	errors = append(errors, c.validatePager()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateShell() []ValidationError {
	var errors []ValidationError

	if c.Shell.Color != "" && !slices.Contains(ValidColorModes(), c.Shell.Color) {
		errors = append(errors, ValidationError{
			Field:   "shell.color",
			Value:   c.Shell.Color,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidColorModes(), ", ")),
		})
	}

	if strings.ContainsAny(c.Shell.PromptSuffix, "\n\r") {
		errors = append(errors, ValidationError{
			Field:   "shell.prompt_suffix",
			Value:   c.Shell.PromptSuffix,
			Message: "must not contain line breaks",
		})
	}

	return errors
}

func (c *Config) validateReaper() []ValidationError {
	var errors []ValidationError

	if !slices.Contains(ValidReapModes(), c.Reaper.Mode) {
		errors = append(errors, ValidationError{
			Field:   "reaper.mode",
			Value:   c.Reaper.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidReapModes(), ", ")),
		})
	}

	if c.Reaper.ShutdownGrace < 0 {
		errors = append(errors, ValidationError{
			Field:   "reaper.shutdown_grace",
			Value:   c.Reaper.ShutdownGrace,
			Message: "must be non-negative",
		})
	}

	if c.Reaper.ShutdownGrace > maxShutdownGrace {
		errors = append(errors, ValidationError{
			Field:   "reaper.shutdown_grace",
			Value:   c.Reaper.ShutdownGrace,
			Message: fmt.Sprintf("exceeds maximum of %s", maxShutdownGrace),
		})
	}

	return errors
}

func (c *Config) validatePager() []ValidationError {
	var errors []ValidationError

	for i, name := range c.Pager.Fallbacks {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("pager.fallbacks[%d]", i),
				Value:   name,
				Message: "must not be empty",
			})
		}
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	return errors
}
