package worker

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/lockstep/internal/errors"
	"github.com/Iron-Ham/lockstep/internal/signal"
)

// EnvPrefix prefixes every environment variable of the worker configuration.
const EnvPrefix = "LSWORKER"

// Environment keys, without the prefix.
const (
	keyID                 = "id"
	keyBrokerAddr         = "broker_addr"
	keyUseLock            = "use_lock"
	keyTryLock            = "try_lock"
	keySkipUnlock         = "skip_unlock"
	keyHaltInMutexArea    = "halt_in_mutex_area"
	keyBreakpoint         = "breakpoint"
	keyBreakpointTimeout  = "breakpoint_timeout"
	keyLockTimeout        = "lock_timeout"
	keyWorkDuration       = "work_duration"
	keySharedResourcePath = "shared_resource_path"
	keySyncFilePath       = "sync_file_path"
	keyLogLevel           = "log_level"
)

var envKeys = []string{
	keyID, keyBrokerAddr, keyUseLock, keyTryLock, keySkipUnlock,
	keyHaltInMutexArea, keyBreakpoint, keyBreakpointTimeout, keyLockTimeout,
	keyWorkDuration, keySharedResourcePath, keySyncFilePath, keyLogLevel,
}

// Defaults applied by DefaultConfig and when a variable is absent.
const (
	DefaultBreakpointTimeout = 5 * time.Second
	DefaultLockTimeout       = 5 * time.Second
	DefaultWorkDuration      = 10 * time.Millisecond
)

// Config is the immutable parameter set of one worker process. It is built
// by the driver and handed to the child through its environment.
type Config struct {
	ID         signal.WorkerID
	BrokerAddr string

	UseLock         bool
	TryLock         bool
	SkipUnlock      bool
	HaltInMutexArea bool

	// Breakpoint is armed before the script starts.
	Breakpoint Breakpoint

	BreakpointTimeout time.Duration
	LockTimeout       time.Duration
	WorkDuration      time.Duration

	// SharedResourcePath is the mutex-area marker file.
	SharedResourcePath string
	// SyncFilePath is the file backing the inter-process lock.
	SyncFilePath string

	LogLevel string
}

// DefaultConfig returns a Config with the default timeouts and locking on.
func DefaultConfig() Config {
	return Config{
		UseLock:           true,
		BreakpointTimeout: DefaultBreakpointTimeout,
		LockTimeout:       DefaultLockTimeout,
		WorkDuration:      DefaultWorkDuration,
		LogLevel:          "INFO",
	}
}

// EnvVar returns the full environment variable name for key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(key)
}

// Env encodes c as KEY=VALUE pairs for a child process environment.
func (c Config) Env() []string {
	values := map[string]string{
		keyID:                 strconv.Itoa(int(c.ID)),
		keyBrokerAddr:         c.BrokerAddr,
		keyUseLock:            strconv.FormatBool(c.UseLock),
		keyTryLock:            strconv.FormatBool(c.TryLock),
		keySkipUnlock:         strconv.FormatBool(c.SkipUnlock),
		keyHaltInMutexArea:    strconv.FormatBool(c.HaltInMutexArea),
		keyBreakpoint:         c.Breakpoint.String(),
		keyBreakpointTimeout:  c.BreakpointTimeout.String(),
		keyLockTimeout:        c.LockTimeout.String(),
		keyWorkDuration:       c.WorkDuration.String(),
		keySharedResourcePath: c.SharedResourcePath,
		keySyncFilePath:       c.SyncFilePath,
		keyLogLevel:           c.LogLevel,
	}

	env := make([]string, 0, len(envKeys))
	for _, k := range envKeys {
		env = append(env, EnvVar(k)+"="+values[k])
	}
	return env
}

// LoadConfig reads the worker configuration from the process environment.
func LoadConfig() (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	def := DefaultConfig()
	v.SetDefault(keyUseLock, def.UseLock)
	v.SetDefault(keyBreakpointTimeout, def.BreakpointTimeout.String())
	v.SetDefault(keyLockTimeout, def.LockTimeout.String())
	v.SetDefault(keyWorkDuration, def.WorkDuration.String())
	v.SetDefault(keyLogLevel, def.LogLevel)

	return decode(v)
}

// decode converts raw values strictly: a malformed variable is an error
// rather than a silent zero value.
func decode(v *viper.Viper) (Config, error) {
	var (
		cfg  Config
		errs []error
	)

	intVal := func(key string) int {
		n, err := cast.ToIntE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvVar(key), err))
		}
		return n
	}
	boolVal := func(key string) bool {
		b, err := cast.ToBoolE(v.Get(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvVar(key), err))
		}
		return b
	}
	durationVal := func(key string) time.Duration {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvVar(key), err))
		}
		return d
	}

	cfg.ID = signal.WorkerID(intVal(keyID))
	cfg.BrokerAddr = v.GetString(keyBrokerAddr)
	cfg.UseLock = boolVal(keyUseLock)
	cfg.TryLock = boolVal(keyTryLock)
	cfg.SkipUnlock = boolVal(keySkipUnlock)
	cfg.HaltInMutexArea = boolVal(keyHaltInMutexArea)
	cfg.BreakpointTimeout = durationVal(keyBreakpointTimeout)
	cfg.LockTimeout = durationVal(keyLockTimeout)
	cfg.WorkDuration = durationVal(keyWorkDuration)
	cfg.SharedResourcePath = v.GetString(keySharedResourcePath)
	cfg.SyncFilePath = v.GetString(keySyncFilePath)
	cfg.LogLevel = v.GetString(keyLogLevel)

	if name := v.GetString(keyBreakpoint); name != "" {
		bp, err := ParseBreakpoint(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", EnvVar(keyBreakpoint), err))
		}
		cfg.Breakpoint = bp
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid worker environment: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the fields a worker cannot run without.
func (c Config) Validate() error {
	switch {
	case c.ID <= signal.DriverID:
		return fmt.Errorf("worker id must be positive, got %d", c.ID)
	case c.BrokerAddr == "":
		return fmt.Errorf("broker address is required")
	case c.SharedResourcePath == "":
		return fmt.Errorf("shared resource path is required")
	case c.UseLock && c.SyncFilePath == "":
		return fmt.Errorf("sync file path is required when locking")
	case c.WorkDuration < 0:
		return fmt.Errorf("work duration must not be negative, got %v", c.WorkDuration)
	}
	return nil
}
