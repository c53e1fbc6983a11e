package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var envKeys = []string{
	"POOL_WATCHER_CONFIG", "LOG_PATH", "SLACK_WEBHOOK_URL", "ERROR_RATE_THRESHOLD", "WINDOW_SIZE",
	"ALERT_COOLDOWN_SEC", "MAINTENANCE_MODE", "OUTBOX_PATH", "ACTIVE_POOL", "POOL_WATCHER_LOG_LEVEL",
	"POOL_WATCHER_LOG_FORMAT", "POOL_WATCHER_METRICS_ADDRESS", "POOL_WATCHER_GRPC_ADDRESS",
	"POOL_WATCHER_NATS_URL", "POOL_WATCHER_NATS_SUBJECT", "POOL_WATCHER_FROM_START", "POOL_WATCHER_POLL_INTERVAL",
}

// clearEnv unsets every variable Load reads and restores the originals afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if old, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, old) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Analysis.WindowSize != 200 || cfg.Analysis.ErrorRateThreshold != 2 || cfg.Analysis.MinSamples != 10 {
		t.Fatalf("unexpected analysis defaults: %+v", cfg.Analysis)
	}
	if cfg.Analysis.Cooldown != 300*time.Second {
		t.Fatalf("expected 300s cooldown, got %s", cfg.Analysis.Cooldown)
	}
	if cfg.Source.LogPath != "/var/log/nginx/access.log" || cfg.Alerts.OutboxPath != "/watcher/outbox.log" {
		t.Fatalf("unexpected path defaults: %+v %+v", cfg.Source, cfg.Alerts)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "watcher.yaml")
	data := `
source:
  logPath: /tmp/access.log
  fromStart: true
analysis:
  windowSize: 50
  errorRateThreshold: 5
  cooldown: 1m
  activePool: green
alerts:
  natsURL: nats://nats:4222
logging:
  level: debug
  json: true
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	os.Setenv("WINDOW_SIZE", "10")
	os.Setenv("ERROR_RATE_THRESHOLD", "20")
	os.Setenv("ALERT_COOLDOWN_SEC", "1")
	os.Setenv("MAINTENANCE_MODE", "true")
	os.Setenv("ACTIVE_POOL", "blue")
	os.Setenv("SLACK_WEBHOOK_URL", "  https://hooks.example.com/x  ")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Source.LogPath != "/tmp/access.log" || !cfg.Source.FromStart {
		t.Fatalf("file values not applied: %+v", cfg.Source)
	}
	if cfg.Analysis.WindowSize != 10 || cfg.Analysis.ErrorRateThreshold != 20 || cfg.Analysis.Cooldown != time.Second {
		t.Fatalf("env overrides not applied: %+v", cfg.Analysis)
	}
	if !cfg.Analysis.Maintenance || cfg.Analysis.ActivePool != "blue" {
		t.Fatalf("unexpected maintenance/pool: %+v", cfg.Analysis)
	}
	if cfg.Alerts.WebhookURL != "https://hooks.example.com/x" {
		t.Fatalf("webhook URL not trimmed: %q", cfg.Alerts.WebhookURL)
	}
	if cfg.Alerts.NATSURL != "nats://nats:4222" || cfg.Logging.Level != "debug" || !cfg.Logging.JSON {
		t.Fatalf("unexpected alerts/logging: %+v %+v", cfg.Alerts, cfg.Logging)
	}
}

func TestLoadMissingFile(t *testing.T) {
	clearEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadRejectsMalformedEnv(t *testing.T) {
	clearEnv(t)
	os.Setenv("WINDOW_SIZE", "ten")
	_, err := Load("")
	if err == nil || !strings.Contains(err.Error(), "WINDOW_SIZE") {
		t.Fatalf("expected WINDOW_SIZE error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaultConfig()
	cfg.Analysis.WindowSize = 0
	cfg.Analysis.ErrorRateThreshold = 150
	cfg.Analysis.Cooldown = -time.Second
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"windowSize", "errorRateThreshold", "cooldown"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}

	ok := defaultConfig()
	if err := ok.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestMaintenanceModeValues(t *testing.T) {
	for in, want := range map[string]bool{"1": true, "true": true, "True": true, "0": false, "no": false} {
		if got := parseBool(in); got != want {
			t.Fatalf("parseBool(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestValidateRejectsNonFiniteThreshold(t *testing.T) {
	for _, threshold := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		cfg := defaultConfig()
		cfg.Analysis.ErrorRateThreshold = threshold
		if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "errorRateThreshold") {
			t.Fatalf("threshold %v: expected errorRateThreshold error, got %v", threshold, err)
		}
	}
}

func TestLoadRejectsNaNThresholdFromEnv(t *testing.T) {
	for _, value := range []string{"NaN", "nan", "+Inf", "-inf"} {
		clearEnv(t)
		os.Setenv("ERROR_RATE_THRESHOLD", value)
		if _, err := Load(""); err == nil {
			t.Fatalf("ERROR_RATE_THRESHOLD=%s: expected error", value)
		}
	}
}
