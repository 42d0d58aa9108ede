package config

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "broker.port")
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

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateBroker()...)
	errors = append(errors, c.validateWorker()...)
	errors = append(errors, c.validateDriver()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateBroker() []ValidationError {
	var errors []ValidationError

	if c.Broker.Host == "" {
		errors = append(errors, ValidationError{
			Field:   "broker.host",
			Value:   c.Broker.Host,
			Message: "must not be empty",
		})
	}
	if c.Broker.Port < 0 || c.Broker.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "broker.port",
			Value:   c.Broker.Port,
			Message: "must be between 0 and 65535",
		})
	}

	return errors
}

// validateWorker allows negative timeouts: they disable the timeout.
func (c *Config) validateWorker() []ValidationError {
	var errors []ValidationError

	if c.Worker.WorkDuration < 0 {
		errors = append(errors, ValidationError{
			Field:   "worker.work_duration",
			Value:   c.Worker.WorkDuration,
			Message: "must be non-negative",
		})
	}

	return errors
}

func (c *Config) validateDriver() []ValidationError {
	var errors []ValidationError

	if c.Driver.BreakpointWait <= 0 {
		errors = append(errors, ValidationError{
			Field:   "driver.breakpoint_wait",
			Value:   c.Driver.BreakpointWait,
			Message: "must be positive",
		})
	}
	if c.Driver.KillWait <= 0 {
		errors = append(errors, ValidationError{
			Field:   "driver.kill_wait",
			Value:   c.Driver.KillWait,
			Message: "must be positive",
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	if strings.ContainsRune(c.Paths.Dir, '\x00') {
		errors = append(errors, ValidationError{
			Field:   "paths.dir",
			Value:   c.Paths.Dir,
			Message: "path contains invalid null character",
		})
	}

	return errors
}

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
