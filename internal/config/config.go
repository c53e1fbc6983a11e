package config

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to run the watcher.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the ops listeners.
type ServerConfig struct {
	GRPCAddress     string        `yaml:"grpcAddress"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SourceConfig points at the access log being followed.
type SourceConfig struct {
	LogPath      string        `yaml:"logPath"`
	PollInterval time.Duration `yaml:"pollInterval"`
	FromStart    bool          `yaml:"fromStart"`
}

// AnalysisConfig holds the detection tunables.
type AnalysisConfig struct {
	WindowSize         int           `yaml:"windowSize"`
	ErrorRateThreshold float64       `yaml:"errorRateThreshold"`
	MinSamples         int           `yaml:"minSamples"`
	Cooldown           time.Duration `yaml:"cooldown"`
	Maintenance        bool          `yaml:"maintenance"`
	ActivePool         string        `yaml:"activePool"`
}

// AlertsConfig selects and configures alert delivery.
type AlertsConfig struct {
	WebhookURL     string        `yaml:"webhookURL"`
	WebhookTimeout time.Duration `yaml:"webhookTimeout"`
	OutboxPath     string        `yaml:"outboxPath"`
	NATSURL        string        `yaml:"natsURL"`
	NATSSubject    string        `yaml:"natsSubject"`
	QueueDepth     int           `yaml:"queueDepth"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("POOL_WATCHER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the analysis engine cannot honour.
func (c *Config) Validate() error {
	var errs []error
	if c.Source.LogPath == "" {
		errs = append(errs, errors.New("source.logPath is required"))
	}
	if c.Analysis.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis.windowSize must be positive, got %d", c.Analysis.WindowSize))
	}
	if t := c.Analysis.ErrorRateThreshold; math.IsNaN(t) || math.IsInf(t, 0) || t < 0 || t > 100 {
		errs = append(errs, fmt.Errorf("analysis.errorRateThreshold must be within [0,100], got %g", c.Analysis.ErrorRateThreshold))
	}
	if c.Analysis.MinSamples <= 0 {
		errs = append(errs, fmt.Errorf("analysis.minSamples must be positive, got %d", c.Analysis.MinSamples))
	}
	if c.Analysis.Cooldown < 0 {
		errs = append(errs, fmt.Errorf("analysis.cooldown must not be negative, got %s", c.Analysis.Cooldown))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddress:     ":50061",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Source: SourceConfig{
			LogPath:      "/var/log/nginx/access.log",
			PollInterval: 500 * time.Millisecond,
		},
		Analysis: AnalysisConfig{
			WindowSize:         200,
			ErrorRateThreshold: 2,
			MinSamples:         10,
			Cooldown:           300 * time.Second,
		},
		Alerts: AlertsConfig{
			WebhookTimeout: 5 * time.Second,
			OutboxPath:     "/watcher/outbox.log",
			NATSSubject:    "alerts",
			QueueDepth:     64,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

// applyEnvOverrides honours the variable names used by existing deployments alongside
// the POOL_WATCHER_* settings. Malformed numeric values are reported rather than ignored.
func applyEnvOverrides(cfg *Config) error {
	var errs []error

	if v := os.Getenv("LOG_PATH"); v != "" {
		cfg.Source.LogPath = v
	}
	if v, ok := os.LookupEnv("SLACK_WEBHOOK_URL"); ok {
		cfg.Alerts.WebhookURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("ERROR_RATE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Analysis.ErrorRateThreshold = f
		} else {
			errs = append(errs, fmt.Errorf("ERROR_RATE_THRESHOLD: %w", err))
		}
	}
	if v := os.Getenv("WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.WindowSize = n
		} else {
			errs = append(errs, fmt.Errorf("WINDOW_SIZE: %w", err))
		}
	}
	if v := os.Getenv("ALERT_COOLDOWN_SEC"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Analysis.Cooldown = time.Duration(n) * time.Second
		} else {
			errs = append(errs, fmt.Errorf("ALERT_COOLDOWN_SEC: %w", err))
		}
	}
	if v, ok := os.LookupEnv("MAINTENANCE_MODE"); ok {
		cfg.Analysis.Maintenance = parseBool(v)
	}
	if v := os.Getenv("OUTBOX_PATH"); v != "" {
		cfg.Alerts.OutboxPath = v
	}
	if v, ok := os.LookupEnv("ACTIVE_POOL"); ok {
		cfg.Analysis.ActivePool = strings.TrimSpace(v)
	}

	if v := os.Getenv("POOL_WATCHER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("POOL_WATCHER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("POOL_WATCHER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("POOL_WATCHER_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("POOL_WATCHER_NATS_URL"); v != "" {
		cfg.Alerts.NATSURL = v
	}
	if v := os.Getenv("POOL_WATCHER_NATS_SUBJECT"); v != "" {
		cfg.Alerts.NATSSubject = v
	}
	if v := os.Getenv("POOL_WATCHER_FROM_START"); v != "" {
		cfg.Source.FromStart = parseBool(v)
	}
	if v := os.Getenv("POOL_WATCHER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Source.PollInterval = d
		} else {
			errs = append(errs, fmt.Errorf("POOL_WATCHER_POLL_INTERVAL: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("environment overrides: %w", errors.Join(errs...))
	}
	return nil
}

func parseBool(v string) bool {
	switch strings.TrimSpace(v) {
	case "1", "true", "True", "TRUE":
		return true
	}
	return false
}
