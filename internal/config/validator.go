package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "backend.command_timeout")
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

// Bounds shared by the validators.
const (
	maxCommandTimeout   = 10 * time.Minute
	maxSettleDelay      = 30 * time.Second
	minRefreshInterval  = time.Second
	minDescriptionWidth = 16
	maxDescriptionWidth = 200
	maxLogSizeMB        = 1000
)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBackend()...)
	errors = append(errors, c.validateAutoAttach()...)
	errors = append(errors, c.validateRefresh()...)
	errors = append(errors, c.validateTUI()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

// validateBackend validates the BackendConfig
func (c *Config) validateBackend() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Backend.Path) == "" {
		errors = append(errors, ValidationError{
			Field:   "backend.path",
			Value:   c.Backend.Path,
			Message: "must not be empty",
		})
	}

	errors = append(errors, validateTimeout("backend.command_timeout", c.Backend.CommandTimeout)...)
	errors = append(errors, validateTimeout("backend.list_timeout", c.Backend.ListTimeout)...)

	if strings.ContainsAny(c.Backend.WSLTarget, " \t\"") {
		errors = append(errors, ValidationError{
			Field:   "backend.wsl_target",
			Value:   c.Backend.WSLTarget,
			Message: "must be a single distribution name",
		})
	}

	return errors
}

func validateTimeout(field string, d time.Duration) []ValidationError {
	if d <= 0 {
		return []ValidationError{{Field: field, Value: d, Message: "must be positive"}}
	}
	if d > maxCommandTimeout {
		return []ValidationError{{
			Field:   field,
			Value:   d,
			Message: fmt.Sprintf("exceeds maximum of %s", maxCommandTimeout),
		}}
	}
	return nil
}

// validateAutoAttach validates the AutoAttachConfig
func (c *Config) validateAutoAttach() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.AutoAttach.StateFile) == "" {
		errors = append(errors, ValidationError{
			Field:   "auto_attach.state_file",
			Value:   c.AutoAttach.StateFile,
			Message: "must not be empty",
		})
	}

	errors = append(errors, validateTimeout("auto_attach.stop_timeout", c.AutoAttach.StopTimeout)...)

	return errors
}

// validateRefresh validates the RefreshConfig
func (c *Config) validateRefresh() []ValidationError {
	var errors []ValidationError

	if c.Refresh.SettleDelay < 0 || c.Refresh.SettleDelay > maxSettleDelay {
		errors = append(errors, ValidationError{
			Field:   "refresh.settle_delay",
			Value:   c.Refresh.SettleDelay,
			Message: fmt.Sprintf("must be between 0 and %s", maxSettleDelay),
		})
	}

	// 0 disables periodic refresh
	if c.Refresh.Interval != 0 && c.Refresh.Interval < minRefreshInterval {
		errors = append(errors, ValidationError{
			Field:   "refresh.interval",
			Value:   c.Refresh.Interval,
			Message: fmt.Sprintf("must be 0 (disabled) or at least %s", minRefreshInterval),
		})
	}

	return errors
}

// validateTUI validates the TUIConfig
func (c *Config) validateTUI() []ValidationError {
	var errors []ValidationError

	if c.TUI.DescriptionWidth < minDescriptionWidth || c.TUI.DescriptionWidth > maxDescriptionWidth {
		errors = append(errors, ValidationError{
			Field:   "tui.description_width",
			Value:   c.TUI.DescriptionWidth,
			Message: fmt.Sprintf("must be between %d and %d", minDescriptionWidth, maxDescriptionWidth),
		})
	}

	return errors
}

// validateLogging validates the LoggingConfig
func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	// Validate log level
	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	// Max size must be positive
	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	// Max backups must be non-negative
	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}
