// Package config assembles the sub-configs for every package in the core
// into one file-loadable Config: read the file, expand environment
// variables, then unmarshal YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jordanhubbard/oya-go/internal/heartbeat"
	"github.com/jordanhubbard/oya-go/internal/reconciler"
)

// SchedulerConfig configures the scheduler actor's mailbox and call timeout.
type SchedulerConfig struct {
	MailboxSize int           `yaml:"mailbox_size"`
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// PersistenceConfig configures the Store backend the core persists beads to.
type PersistenceConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "memory"
	DSN    string `yaml:"dsn"`
}

// EventBusConfig configures the event bus backend.
type EventBusConfig struct {
	Driver     string `yaml:"driver"` // "inproc" or "nats"
	BufferSize int    `yaml:"buffer_size"`
	NATSURL    string `yaml:"nats_url"`
	StreamName string `yaml:"stream_name"`
}

// ObservabilityConfig configures tracing export.
type ObservabilityConfig struct {
	ServiceName  string `yaml:"service_name"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// HotReloadConfig configures the fsnotify-backed config watcher.
type HotReloadConfig struct {
	Enabled          bool          `yaml:"enabled"`
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// Config is the root configuration assembled from every package's own
// sub-config.
type Config struct {
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Reconciler    reconciler.Config   `yaml:"reconciler"`
	Heartbeat     heartbeat.Config    `yaml:"heartbeat"`
	Persistence   PersistenceConfig   `yaml:"persistence"`
	EventBus      EventBusConfig      `yaml:"event_bus"`
	Observability ObservabilityConfig `yaml:"observability"`
	HotReload     HotReloadConfig     `yaml:"hot_reload"`
}

// DefaultConfig returns a Config built from each package's own defaults.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			MailboxSize: 256,
			CallTimeout: 5 * time.Second,
		},
		Reconciler: reconciler.DefaultConfig(),
		Heartbeat:  heartbeat.DefaultConfig(),
		Persistence: PersistenceConfig{
			Driver: "memory",
		},
		EventBus: EventBusConfig{
			Driver:     "inproc",
			BufferSize: 256,
		},
		Observability: ObservabilityConfig{
			ServiceName: "oya-go",
		},
		HotReload: HotReloadConfig{
			Enabled:          false,
			DebounceInterval: 200 * time.Millisecond,
		},
	}
}

// LoadConfigFromFile reads path, expands ${VAR} environment references,
// and unmarshals the result as YAML on top of DefaultConfig, so fields the
// file leaves unset keep their defaults.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
