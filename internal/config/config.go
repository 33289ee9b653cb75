package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	HTTP    HTTPConfig
	Ledger  LedgerConfig
	Logging LoggingConfig
}

// HTTPConfig governs the API and metrics servers.
type HTTPConfig struct {
	Addr            string
	MetricsAddr     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// LedgerConfig controls the validation engine and the integrity monitor.
type LedgerConfig struct {
	DBPath                string
	AuditInterval         time.Duration
	HighValueThreshold    float64
	RequireHardwareBacked bool
	AlertWorkers          int
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level  string
	Format string // text|json
}

const (
	defaultAddr               = ":8080"
	defaultMetricsAddr        = ":9090"
	defaultReadTimeout        = 30 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 60 * time.Second
	defaultShutdownTimeout    = 30 * time.Second
	defaultDBPath             = "ledger.db"
	defaultAuditInterval      = 5 * time.Minute
	defaultHighValueThreshold = 10000.0
	defaultAlertWorkers       = 3
	defaultLoggingLevel       = "info"
	defaultLoggingFormat      = "json"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		HTTP: HTTPConfig{
			Addr:            envString("LEDGER_HTTP_ADDR", defaultAddr),
			MetricsAddr:     envString("LEDGER_METRICS_ADDR", defaultMetricsAddr),
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			IdleTimeout:     defaultIdleTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Ledger: LedgerConfig{
			DBPath:             envString("LEDGER_DB_PATH", defaultDBPath),
			HighValueThreshold: defaultHighValueThreshold,
			AlertWorkers:       defaultAlertWorkers,
		},
		Logging: LoggingConfig{
			Level:  envString("LEDGER_LOG_LEVEL", defaultLoggingLevel),
			Format: envString("LEDGER_LOG_FORMAT", defaultLoggingFormat),
		},
	}

	interval, err := envDuration("LEDGER_AUDIT_INTERVAL", defaultAuditInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.Ledger.AuditInterval = interval

	threshold, err := envFloat("LEDGER_HIGH_VALUE_THRESHOLD", defaultHighValueThreshold)
	if err != nil {
		return Config{}, err
	}
	cfg.Ledger.HighValueThreshold = threshold

	requireHW, err := envBool("LEDGER_REQUIRE_HARDWARE_KEYS", false)
	if err != nil {
		return Config{}, err
	}
	cfg.Ledger.RequireHardwareBacked = requireHW

	return cfg, nil
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func envBool(key string, fallback bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
