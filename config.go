package orchestrator

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// SchedulerSettings holds scheduling defaults loaded by LoadSettings. The
// engine does not apply them on its own: New takes a Config, and a Workflow
// Definition's fields are used as given.
type SchedulerSettings struct {
	DefaultTimeout     time.Duration `mapstructure:"default_timeout" yaml:"default_timeout" validate:"min=0" default:"5m"`
	MaxParallelTasks   int           `mapstructure:"max_parallel_tasks" yaml:"max_parallel_tasks" validate:"min=1,max=10000" default:"10"`
	MaxConcurrentTasks int           `mapstructure:"max_concurrent_tasks" yaml:"max_concurrent_tasks" validate:"min=0" default:"0"`
}

// RetrySettings holds default retry values; RetryPolicy converts them into
// a RetryPolicy. The engine does not apply them to tasks on its own.
type RetrySettings struct {
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries" validate:"min=0,max=20" default:"0"`
	InitialDelay      time.Duration `mapstructure:"initial_delay" yaml:"initial_delay" validate:"min=0" default:"100ms"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" yaml:"backoff_multiplier" validate:"min=1" default:"2.0"`
	MaxDelay          time.Duration `mapstructure:"max_delay" yaml:"max_delay" validate:"min=0" default:"30s"`
	Jitter            bool          `mapstructure:"jitter" yaml:"jitter" default:"true"`
}

// CacheSettings configures the result cache.
type CacheSettings struct {
	Strategy            string        `mapstructure:"strategy" yaml:"strategy" validate:"oneof=none memory disk hybrid" default:"none"`
	TTL                 time.Duration `mapstructure:"ttl" yaml:"ttl" validate:"min=0" default:"1h"`
	MaxSize             int           `mapstructure:"max_size" yaml:"max_size" validate:"min=0" default:"1000"`
	DiskRoot            string        `mapstructure:"disk_root" yaml:"disk_root" default:""`
	IncludeDependencies bool          `mapstructure:"include_dependencies" yaml:"include_dependencies" default:"false"`
}

// ObservabilitySettings holds loaded observability toggles. Nothing in the
// engine reads them on its own.
type ObservabilitySettings struct {
	EnableMetrics bool   `mapstructure:"enable_metrics" yaml:"enable_metrics" default:"true"`
	EnableTracing bool   `mapstructure:"enable_tracing" yaml:"enable_tracing" default:"true"`
	MetricsPrefix string `mapstructure:"metrics_prefix" yaml:"metrics_prefix" default:"orchestrator"`
}

// Settings is the file/env-driven configuration surface for an
// Orchestrator, distinct from Config (which wires in live objects: worker
// implementations, an OTel meter/tracer, hook closures — none of which are
// expressible in a config file). Grounded on the teacher's
// pkg/orchestration/config.go section layout (one struct per concern, every
// field mapstructure/yaml/validate/default tagged).
type Settings struct {
	Scheduler     SchedulerSettings     `mapstructure:"scheduler" yaml:"scheduler"`
	Retry         RetrySettings         `mapstructure:"retry" yaml:"retry"`
	Cache         CacheSettings         `mapstructure:"cache" yaml:"cache"`
	Observability ObservabilitySettings `mapstructure:"observability" yaml:"observability"`
}

// DefaultSettings returns the engine's out-of-the-box tuning.
func DefaultSettings() *Settings {
	return &Settings{
		Scheduler: SchedulerSettings{
			DefaultTimeout:     5 * time.Minute,
			MaxParallelTasks:   10,
			MaxConcurrentTasks: 0,
		},
		Retry: RetrySettings{
			MaxRetries:        0,
			InitialDelay:      100 * time.Millisecond,
			BackoffMultiplier: 2.0,
			MaxDelay:          30 * time.Second,
			Jitter:            true,
		},
		Cache: CacheSettings{
			Strategy: "none",
			TTL:      time.Hour,
			MaxSize:  1000,
		},
		Observability: ObservabilitySettings{
			EnableMetrics: true,
			EnableTracing: true,
			MetricsPrefix: "orchestrator",
		},
	}
}

// Validate checks Settings against its struct tags plus the cross-field
// rules validator tags can't express.
func (s *Settings) Validate() error {
	if err := structValidator.Struct(s); err != nil {
		return ErrValidation("Settings.Validate", err)
	}
	if s.Retry.MaxDelay < s.Retry.InitialDelay {
		return ErrValidation("Settings.Validate", fmt.Errorf("retry.max_delay must be >= retry.initial_delay"))
	}
	return nil
}

// RetryPolicy converts s's retry settings into the RetryPolicy a task
// without its own override should use.
func (s *Settings) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        s.Retry.MaxRetries,
		InitialDelay:      s.Retry.InitialDelay,
		BackoffMultiplier: s.Retry.BackoffMultiplier,
		MaxDelay:          s.Retry.MaxDelay,
		Jitter:            s.Retry.Jitter,
	}
}

// CacheConfig converts s's cache settings into a CacheConfig for
// newResultCache.
func (s *Settings) CacheConfig() CacheConfig {
	return CacheConfig{
		Strategy:            s.Cache.Strategy,
		TTL:                 s.Cache.TTL,
		MaxSize:             s.Cache.MaxSize,
		DiskRoot:            s.Cache.DiskRoot,
		IncludeDependencies: s.Cache.IncludeDependencies,
	}
}

// LoadSettings reads Settings from configPath (if non-empty), environment
// variables prefixed TASKFLOW_ (e.g. TASKFLOW_CACHE_STRATEGY=memory), and
// finally DefaultSettings for anything left unset. A missing configPath
// file is not an error; a malformed one is.
func LoadSettings(configPath string) (*Settings, error) {
	v := viper.New()
	v.SetEnvPrefix("TASKFLOW")
	v.AutomaticEnv()

	defaults := DefaultSettings()
	v.SetDefault("scheduler.default_timeout", defaults.Scheduler.DefaultTimeout)
	v.SetDefault("scheduler.max_parallel_tasks", defaults.Scheduler.MaxParallelTasks)
	v.SetDefault("scheduler.max_concurrent_tasks", defaults.Scheduler.MaxConcurrentTasks)
	v.SetDefault("retry.max_retries", defaults.Retry.MaxRetries)
	v.SetDefault("retry.initial_delay", defaults.Retry.InitialDelay)
	v.SetDefault("retry.backoff_multiplier", defaults.Retry.BackoffMultiplier)
	v.SetDefault("retry.max_delay", defaults.Retry.MaxDelay)
	v.SetDefault("retry.jitter", defaults.Retry.Jitter)
	v.SetDefault("cache.strategy", defaults.Cache.Strategy)
	v.SetDefault("cache.ttl", defaults.Cache.TTL)
	v.SetDefault("cache.max_size", defaults.Cache.MaxSize)
	v.SetDefault("cache.disk_root", defaults.Cache.DiskRoot)
	v.SetDefault("cache.include_dependencies", defaults.Cache.IncludeDependencies)
	v.SetDefault("observability.enable_metrics", defaults.Observability.EnableMetrics)
	v.SetDefault("observability.enable_tracing", defaults.Observability.EnableTracing)
	v.SetDefault("observability.metrics_prefix", defaults.Observability.MetricsPrefix)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("orchestrator: reading config %s: %w", configPath, err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("orchestrator: decoding config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
