package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"agentnet/internal/domain"
)

// Defaults applied by Load when fields are unset.
const (
	DefaultReadinessTimeout  = 15 * time.Second
	DefaultReadinessInterval = 250 * time.Millisecond
	DefaultStopGrace         = 5 * time.Second
	DefaultCallTimeout       = 30 * time.Second
	DefaultMaxRetries        = 3
	DefaultConfidence        = 0.6
	DefaultRequestsPerMin    = 120
)

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig        `yaml:"logger"`
	Tracer    TracerConfig        `yaml:"tracer"`
	Router    RouterConfig        `yaml:"router"`
	Lifecycle LifecycleConfig     `yaml:"lifecycle"`
	Bridge    BridgeConfig        `yaml:"bridge"`
	Servers   []CapServerConfig   `yaml:"capability_servers"`
	Agents    []AgentEntry        `yaml:"agents"`
	Discovery DiscoveryConfig     `yaml:"discovery"`
}

// LoggerConfig controls slog construction.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
	Output string `yaml:"output"` // stdout, stderr, or a file path
}

// TracerConfig controls OpenTelemetry setup.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // "stdout" or "noop"
}

// RouterConfig controls query routing.
type RouterConfig struct {
	// Mode selects the primary routing stage: "keyword" (default) or
	// "semantic" to skip straight to the classifier.
	Mode string `yaml:"mode"`
	// ConfidenceThreshold is the minimum classifier confidence for the
	// semantic stage to pick an agent. Below it the router returns no route
	// rather than guessing.
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

// LifecycleConfig controls the process lifecycle manager.
type LifecycleConfig struct {
	Host              string `yaml:"host"`               // bind host for agents (default 127.0.0.1)
	ReadinessTimeout  string `yaml:"readiness_timeout"`  // duration string
	ReadinessInterval string `yaml:"readiness_interval"` // duration string
	StopGrace         string `yaml:"stop_grace"`         // duration string
}

// BridgeConfig controls capability bridge behavior.
type BridgeConfig struct {
	CallTimeout string        `yaml:"call_timeout"` // per-invocation timeout
	MaxRetries  int           `yaml:"max_retries"`  // transport retries before surfacing
	Breaker     BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the capability-server circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32 `yaml:"max_failures"`
	Timeout     string `yaml:"timeout"`  // open-state duration
	Interval    string `yaml:"interval"` // closed-state failure-count reset period
}

// CapServerConfig names one capability server and where it listens.
type CapServerConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Port int    `yaml:"port,omitempty"` // used when hosting the server tier
}

// AgentEntry is one agent definition plus optional fixed port.
type AgentEntry struct {
	domain.AgentDefinition `yaml:",inline"`
	Port                   int `yaml:"port,omitempty"` // 0 = ephemeral
}

// DiscoveryConfig controls optional mDNS agent discovery.
type DiscoveryConfig struct {
	MDNS bool `yaml:"mdns"`
}

// Load reads and validates a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with all defaults applied and no agents or
// capability servers configured.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "text"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stderr"
	}
	if c.Router.Mode == "" {
		c.Router.Mode = "keyword"
	}
	if c.Router.ConfidenceThreshold == 0 {
		c.Router.ConfidenceThreshold = DefaultConfidence
	}
	if c.Lifecycle.Host == "" {
		c.Lifecycle.Host = "127.0.0.1"
	}
	if c.Bridge.MaxRetries == 0 {
		c.Bridge.MaxRetries = DefaultMaxRetries
	}
}

// ReadinessTimeoutD returns the parsed readiness timeout.
func (c LifecycleConfig) ReadinessTimeoutD() time.Duration {
	return parseDuration(c.ReadinessTimeout, DefaultReadinessTimeout)
}

// ReadinessIntervalD returns the parsed readiness poll interval.
func (c LifecycleConfig) ReadinessIntervalD() time.Duration {
	return parseDuration(c.ReadinessInterval, DefaultReadinessInterval)
}

// StopGraceD returns the parsed graceful-stop period.
func (c LifecycleConfig) StopGraceD() time.Duration {
	return parseDuration(c.StopGrace, DefaultStopGrace)
}

// CallTimeoutD returns the parsed per-invocation timeout.
func (c BridgeConfig) CallTimeoutD() time.Duration {
	return parseDuration(c.CallTimeout, DefaultCallTimeout)
}

// TimeoutD returns the parsed breaker open-state duration.
func (c BreakerConfig) TimeoutD() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// IntervalD returns the parsed breaker reset period.
func (c BreakerConfig) IntervalD() time.Duration {
	return parseDuration(c.Interval, 60*time.Second)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
