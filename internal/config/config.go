package config

import (
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete lockstep configuration
type Config struct {
	Broker  BrokerConfig  `mapstructure:"broker"`
	Worker  WorkerConfig  `mapstructure:"worker"`
	Driver  DriverConfig  `mapstructure:"driver"`
	Paths   PathsConfig   `mapstructure:"paths"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrokerConfig controls where the broker listens
type BrokerConfig struct {
	// Host is the listen host (default: 127.0.0.1)
	Host string `mapstructure:"host"`
	// Port is the listen port; 0 picks an ephemeral port (default: 0)
	Port int `mapstructure:"port"`
}

// Addr returns the broker listen address as host:port.
func (b BrokerConfig) Addr() string {
	return net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
}

// WorkerConfig holds the defaults applied to every spawned worker
type WorkerConfig struct {
	// BreakpointTimeout bounds a worker's wait at a breakpoint; negative disables it (default: 5s)
	BreakpointTimeout time.Duration `mapstructure:"breakpoint_timeout"`
	// LockTimeout bounds a blocking lock acquisition; negative disables it (default: 5s)
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	// WorkDuration is how long a worker stays in the mutex area (default: 10ms)
	WorkDuration time.Duration `mapstructure:"work_duration"`
}

// DriverConfig controls the driver's own waits
type DriverConfig struct {
	// BreakpointWait bounds WaitForBreakpoint and the wait for a worker's CONNECT (default: 5s)
	BreakpointWait time.Duration `mapstructure:"breakpoint_wait"`
	// KillWait bounds how long Kill waits for the process to be reaped (default: 5s)
	KillWait time.Duration `mapstructure:"kill_wait"`
}

// PathsConfig controls where shared files live
type PathsConfig struct {
	// Dir holds the marker and sync files; empty means the OS temp dir
	Dir string `mapstructure:"dir"`
}

// ResolveDir returns the directory for shared files.
func (p PathsConfig) ResolveDir() string {
	if p.Dir == "" {
		return os.TempDir()
	}
	return p.Dir
}

// LoggingConfig controls debug logging behavior
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// Dir holds lockstep.log; empty logs to stderr (default: "")
	Dir string `mapstructure:"dir"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host: "127.0.0.1",
			Port: 0,
		},
		Worker: WorkerConfig{
			BreakpointTimeout: 5 * time.Second,
			LockTimeout:       5 * time.Second,
			WorkDuration:      10 * time.Millisecond,
		},
		Driver: DriverConfig{
			BreakpointWait: 5 * time.Second,
			KillWait:       5 * time.Second,
		},
		Paths: PathsConfig{
			Dir: "",
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   "",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	viper.SetDefault("broker.host", defaults.Broker.Host)
	viper.SetDefault("broker.port", defaults.Broker.Port)

	viper.SetDefault("worker.breakpoint_timeout", defaults.Worker.BreakpointTimeout)
	viper.SetDefault("worker.lock_timeout", defaults.Worker.LockTimeout)
	viper.SetDefault("worker.work_duration", defaults.Worker.WorkDuration)

	viper.SetDefault("driver.breakpoint_wait", defaults.Driver.BreakpointWait)
	viper.SetDefault("driver.kill_wait", defaults.Driver.KillWait)

	viper.SetDefault("paths.dir", defaults.Paths.Dir)

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

// Get returns the current configuration, falling back to defaults
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "lockstep")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lockstep"
	}
	return filepath.Join(home, ".config", "lockstep")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}
