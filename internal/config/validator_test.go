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
	errs := cfg.Validate()
	if len(errs) != 0 {
		t.Errorf("Default config should be valid, got %d errors: %v", len(errs), errs)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string // empty means no error expected
	}{
		{"empty host", func(c *Config) { c.Broker.Host = "" }, "broker.host"},
		{"negative port", func(c *Config) { c.Broker.Port = -1 }, "broker.port"},
		{"port too large", func(c *Config) { c.Broker.Port = 65536 }, "broker.port"},
		{"max port", func(c *Config) { c.Broker.Port = 65535 }, ""},
		{"disabled breakpoint timeout", func(c *Config) { c.Worker.BreakpointTimeout = -1 }, ""},
		{"disabled lock timeout", func(c *Config) { c.Worker.LockTimeout = -1 }, ""},
		{"zero work duration", func(c *Config) { c.Worker.WorkDuration = 0 }, ""},
		{"negative work duration", func(c *Config) { c.Worker.WorkDuration = -time.Millisecond }, "worker.work_duration"},
		{"zero breakpoint wait", func(c *Config) { c.Driver.BreakpointWait = 0 }, "driver.breakpoint_wait"},
		{"zero kill wait", func(c *Config) { c.Driver.KillWait = 0 }, "driver.kill_wait"},
		{"null in dir", func(c *Config) { c.Paths.Dir = "/tmp/\x00x" }, "paths.dir"},
		{"empty level", func(c *Config) { c.Logging.Level = "" }, ""},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"uppercase level", func(c *Config) { c.Logging.Level = "INFO" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			errs := cfg.Validate()

			if tt.field == "" {
				if len(errs) != 0 {
					t.Errorf("Validate() = %v, want no errors", errs)
				}
				return
			}

			found := false
			for _, err := range errs {
				if err.Field == tt.field {
					found = true
					break
				}
			}
			if !found {
				t.Errorf("Validate() = %v, want an error on %s", errs, tt.field)
			}
		})
	}
}
