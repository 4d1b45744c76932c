package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"

	"github.com/couchcryptid/burn-suitability-etl/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataDir    string
	Fire       domain.SourceSpec
	Weather    domain.SourceSpec
	Vegetation domain.SourceSpec
	OutputDir  string

	// RegionsFile replaces the built-in region table when set.
	RegionsFile string

	RunInterval     time.Duration
	RunOnStart      bool
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	// LedgerPath is the run history database; empty disables the ledger.
	LedgerPath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	runInterval, err := parseDuration("RUN_INTERVAL", "0")
	if err != nil {
		return nil, err
	}
	runOnStart, err := parseBool("RUN_ON_START", true)
	if err != nil {
		return nil, err
	}
	kafkaEnabled, err := parseBool("KAFKA_ENABLED", false)
	if err != nil {
		return nil, err
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")

	ledgerPath := filepath.Join(dataDir, "runs.db")
	if v, ok := os.LookupEnv("LEDGER_PATH"); ok {
		ledgerPath = v
	}

	cfg := &Config{
		DataDir: dataDir,
		Fire: domain.SourceSpec{
			Source:  domain.SourceFire,
			Dir:     sharedcfg.EnvOrDefault("FIRE_DIR", filepath.Join(dataDir, "fire")),
			Pattern: sharedcfg.EnvOrDefault("FIRE_PATTERN", "california_fires_*.csv"),
		},
		Weather: domain.SourceSpec{
			Source:  domain.SourceWeather,
			Dir:     sharedcfg.EnvOrDefault("WEATHER_DIR", filepath.Join(dataDir, "weather")),
			Pattern: sharedcfg.EnvOrDefault("WEATHER_PATTERN", "*.csv"),
		},
		Vegetation: domain.SourceSpec{
			Source:  domain.SourceVegetation,
			Dir:     sharedcfg.EnvOrDefault("VEGETATION_DIR", filepath.Join(dataDir, "vegetation")),
			Pattern: sharedcfg.EnvOrDefault("VEGETATION_PATTERN", "*_ndvi.csv"),
		},
		OutputDir:       sharedcfg.EnvOrDefault("OUTPUT_DIR", filepath.Join(dataDir, "processed")),
		RegionsFile:     os.Getenv("REGIONS_FILE"),
		RunInterval:     runInterval,
		RunOnStart:      runOnStart,
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		KafkaEnabled:    kafkaEnabled,
		KafkaBrokers:    sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaTopic:      sharedcfg.EnvOrDefault("KAFKA_TOPIC", "burn-suitability-scores"),
		LedgerPath:      ledgerPath,
	}

	for _, spec := range cfg.Specs() {
		if _, err := filepath.Match(spec.Pattern, ""); err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", spec.Source, spec.Pattern, err)
		}
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
	}
	if cfg.KafkaEnabled && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_ENABLED is true")
	}

	return cfg, nil
}

// Specs returns the three source locations in load order.
func (c *Config) Specs() []domain.SourceSpec {
	return []domain.SourceSpec{c.Fire, c.Weather, c.Vegetation}
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parseBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
