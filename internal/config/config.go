package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreConfig selects and configures the event store backend.
type StoreConfig struct {
	// Driver is one of "sqlite", "clickhouse" or "memory".
	Driver     string           `yaml:"driver"`
	SQLite     SQLiteConfig     `yaml:"sqlite"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// SQLiteConfig holds the DSN of the embedded store.
type SQLiteConfig struct {
	DSN string `yaml:"dsn"`
}

// ClickHouseConfig holds the connection details for the ClickHouse backend.
type ClickHouseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// APIConfig configures the HTTP server. RequestTimeout is a duration string
// such as "5s".
type APIConfig struct {
	ListenAddr     string `yaml:"listen_addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

// Timeout returns the parsed request timeout. The value is validated at load
// time, so parse failures only occur for hand-built configs and fall back to
// the default.
func (c APIConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

// NATSConfig configures the brokered ingest path between agent and backend.
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// DetectorConfig holds the sliding-window anomaly rule parameters.
type DetectorConfig struct {
	Threshold     int `yaml:"threshold"`
	WindowSeconds int `yaml:"window_seconds"`
}

// StatsConfig holds the aggregation query defaults and the hard cap applied
// to caller-supplied limits.
type StatsConfig struct {
	TopTalkers           int `yaml:"top_talkers"`
	RecentLimit          int `yaml:"recent_limit"`
	TrafficWindowMinutes int `yaml:"traffic_window_minutes"`
	BucketSeconds        int `yaml:"bucket_seconds"`
	MaxLimit             int `yaml:"max_limit"`
}

// AgentConfig configures the capture agent. RetryBaseDelay is a duration
// string such as "200ms".
type AgentConfig struct {
	IngestURL      string `yaml:"ingest_url"`
	SnapshotLen    int32  `yaml:"snapshot_len"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryBaseDelay string `yaml:"retry_base_delay"`
}

// BaseDelay returns the parsed backoff base delay.
func (c AgentConfig) BaseDelay() time.Duration {
	d, err := time.ParseDuration(c.RetryBaseDelay)
	if err != nil || d <= 0 {
		return 200 * time.Millisecond
	}
	return d
}

// Config is the top-level configuration struct for the entire application.
type Config struct {
	Store    StoreConfig    `yaml:"store"`
	API      APIConfig      `yaml:"api"`
	NATS     NATSConfig     `yaml:"nats"`
	Detector DetectorConfig `yaml:"detector"`
	Stats    StatsConfig    `yaml:"stats"`
	Agent    AgentConfig    `yaml:"agent"`
}

// Default returns the documented defaults: an embedded sqlite store, the
// original detector rule (50 packets over 10 seconds) and the dashboard
// query limits.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{DSN: "file:netwatch.db?_pragma=busy_timeout(5000)"},
			ClickHouse: ClickHouseConfig{
				Host:     "localhost",
				Port:     9000,
				Database: "default",
			},
		},
		API: APIConfig{
			ListenAddr:     ":8000",
			RequestTimeout: "5s",
		},
		NATS: NATSConfig{
			Enabled: false,
			URL:     "nats://127.0.0.1:4222",
			Subject: "netwatch.events",
		},
		Detector: DetectorConfig{
			Threshold:     50,
			WindowSeconds: 10,
		},
		Stats: StatsConfig{
			TopTalkers:           5,
			RecentLimit:          20,
			TrafficWindowMinutes: 30,
			BucketSeconds:        30,
			MaxLimit:             1000,
		},
		Agent: AgentConfig{
			IngestURL:      "http://127.0.0.1:8000/packets",
			SnapshotLen:    1600,
			RetryAttempts:  5,
			RetryBaseDelay: "200ms",
		},
	}
}

// LoadConfig reads the configuration from a YAML file, applying defaults for
// every omitted field. The NETWATCH_CONFIG environment variable overrides the
// given path.
func LoadConfig(filePath string) (*Config, error) {
	if env := os.Getenv("NETWATCH_CONFIG"); env != "" {
		filePath = env
	}

	cfg := Default()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "clickhouse", "memory":
	default:
		return fmt.Errorf("unsupported store driver %q", c.Store.Driver)
	}
	if c.Detector.Threshold <= 0 {
		return fmt.Errorf("detector threshold must be positive, got %d", c.Detector.Threshold)
	}
	if c.Detector.WindowSeconds <= 0 {
		return fmt.Errorf("detector window_seconds must be positive, got %d", c.Detector.WindowSeconds)
	}
	if c.Stats.BucketSeconds <= 0 {
		return fmt.Errorf("stats bucket_seconds must be positive, got %d", c.Stats.BucketSeconds)
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		return fmt.Errorf("nats url is required when nats is enabled")
	}
	if _, err := time.ParseDuration(c.API.RequestTimeout); err != nil {
		return fmt.Errorf("invalid api request_timeout: %w", err)
	}
	if _, err := time.ParseDuration(c.Agent.RetryBaseDelay); err != nil {
		return fmt.Errorf("invalid agent retry_base_delay: %w", err)
	}
	return nil
}

// Window returns the detector window as a duration.
func (c *DetectorConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}
