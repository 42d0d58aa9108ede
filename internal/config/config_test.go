package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg == nil {
		t.Fatal("Default() returned nil")
	}

	if cfg.Broker.Host != "127.0.0.1" {
		t.Errorf("Broker.Host = %q, want %q", cfg.Broker.Host, "127.0.0.1")
	}
	if cfg.Broker.Port != 0 {
		t.Errorf("Broker.Port = %d, want 0", cfg.Broker.Port)
	}
	if cfg.Worker.BreakpointTimeout != 5*time.Second {
		t.Errorf("Worker.BreakpointTimeout = %v, want 5s", cfg.Worker.BreakpointTimeout)
	}
	if cfg.Worker.LockTimeout != 5*time.Second {
		t.Errorf("Worker.LockTimeout = %v, want 5s", cfg.Worker.LockTimeout)
	}
	if cfg.Worker.WorkDuration != 10*time.Millisecond {
		t.Errorf("Worker.WorkDuration = %v, want 10ms", cfg.Worker.WorkDuration)
	}
	if cfg.Driver.BreakpointWait != 5*time.Second {
		t.Errorf("Driver.BreakpointWait = %v, want 5s", cfg.Driver.BreakpointWait)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestBrokerConfig_Addr(t *testing.T) {
	tests := []struct {
		host string
		port int
		want string
	}{
		{"127.0.0.1", 0, "127.0.0.1:0"},
		{"localhost", 7000, "localhost:7000"},
		{"::1", 9000, "[::1]:9000"},
	}

	for _, tt := range tests {
		b := BrokerConfig{Host: tt.host, Port: tt.port}
		if got := b.Addr(); got != tt.want {
			t.Errorf("Addr() = %q, want %q", got, tt.want)
		}
	}
}

func TestPathsConfig_ResolveDir(t *testing.T) {
	if got := (PathsConfig{}).ResolveDir(); got != os.TempDir() {
		t.Errorf("ResolveDir() = %q, want %q", got, os.TempDir())
	}
	if got := (PathsConfig{Dir: "/var/run/lockstep"}).ResolveDir(); got != "/var/run/lockstep" {
		t.Errorf("ResolveDir() = %q", got)
	}
}

func TestConfigDir(t *testing.T) {
	t.Run("with XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "/custom/config")
		if got := ConfigDir(); got != "/custom/config/lockstep" {
			t.Errorf("ConfigDir() = %q, want %q", got, "/custom/config/lockstep")
		}
	})

	t.Run("without XDG_CONFIG_HOME", func(t *testing.T) {
		t.Setenv("XDG_CONFIG_HOME", "")
		home, _ := os.UserHomeDir()
		want := filepath.Join(home, ".config", "lockstep")
		if got := ConfigDir(); got != want {
			t.Errorf("ConfigDir() = %q, want %q", got, want)
		}
	})
}

func TestConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got := ConfigFile(); got != "/custom/config/lockstep/config.yaml" {
		t.Errorf("ConfigFile() = %q", got)
	}
}

func TestLoad(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if *cfg != *Default() {
		t.Errorf("Load() = %+v, want defaults", cfg)
	}
}

func TestLoad_Overrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("worker.lock_timeout", "250ms")
	viper.Set("broker.port", 7123)
	viper.Set("logging.level", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Worker.LockTimeout != 250*time.Millisecond {
		t.Errorf("Worker.LockTimeout = %v, want 250ms", cfg.Worker.LockTimeout)
	}
	if cfg.Broker.Port != 7123 {
		t.Errorf("Broker.Port = %d, want 7123", cfg.Broker.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_Invalid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	SetDefaults()

	viper.Set("broker.port", 70000)

	if _, err := Load(); err == nil {
		t.Fatal("Load() error = nil for an out-of-range port")
	}
	if cfg := Get(); *cfg != *Default() {
		t.Errorf("Get() = %+v, want fallback to defaults", cfg)
	}
}
