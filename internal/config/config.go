package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	StorageSQLite = "sqlite"
	StorageBolt   = "bolt"
)

type Config struct {
	Env       string          `yaml:"env" env-default:"local" env:"ENV"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Spool     SpoolConfig     `yaml:"spool"`
}

type LogConfig struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"28"`
}

type StorageConfig struct {
	Driver  string        `yaml:"driver" env:"STORAGE_DRIVER" env-default:"sqlite"`
	Path    string        `yaml:"path" env:"STORAGE_PATH" env-default:"drilltrack.sqlite"`
	Timeout time.Duration `yaml:"timeout" env:"STORAGE_TIMEOUT" env-default:"5s"`
}

type DiscoveryConfig struct {
	Disabled         bool          `yaml:"disabled" env:"DISCOVERY_DISABLED"`
	Port             int           `yaml:"port" env:"DISCOVERY_PORT" env-default:"9090"`
	ServerName       string        `yaml:"server_name" env:"DISCOVERY_SERVER_NAME" env-default:"DrillTrack"`
	AnnouncePort     int           `yaml:"announce_port" env:"DISCOVERY_ANNOUNCE_PORT" env-default:"9091"`
	BroadcastAddress string        `yaml:"broadcast_address" env:"DISCOVERY_BROADCAST_ADDRESS" env-default:"255.255.255.255"`
	AnnounceInterval time.Duration `yaml:"announce_interval" env:"DISCOVERY_ANNOUNCE_INTERVAL" env-default:"2s"`
	RefreshInterval  time.Duration `yaml:"refresh_interval" env:"DISCOVERY_REFRESH_INTERVAL" env-default:"5s"`
	ResponseRate     float64       `yaml:"response_rate" env:"DISCOVERY_RESPONSE_RATE" env-default:"50"`
	ResponseBurst    int           `yaml:"response_burst" env:"DISCOVERY_RESPONSE_BURST" env-default:"100"`
	Version          string        `yaml:"version" env:"DISCOVERY_VERSION" env-default:"1.0"`
	MDNS             bool          `yaml:"mdns" env:"DISCOVERY_MDNS"`
}

type IngestionConfig struct {
	Disabled            bool          `yaml:"disabled" env:"INGESTION_DISABLED"`
	Port                int           `yaml:"port" env:"INGESTION_PORT" env-default:"8080"`
	CounterSyncInterval time.Duration `yaml:"counter_sync_interval" env:"INGESTION_COUNTER_SYNC_INTERVAL" env-default:"1s"`
	ShutdownTimeout     time.Duration `yaml:"shutdown_timeout" env:"INGESTION_SHUTDOWN_TIMEOUT" env-default:"10s"`
	MaxBodyBytes        int64         `yaml:"max_body_bytes" env:"INGESTION_MAX_BODY_BYTES" env-default:"8388608"`
	CORSOrigins         []string      `yaml:"cors_origins" env:"INGESTION_CORS_ORIGINS" env-default:"*"`
}

type SpoolConfig struct {
	Dir      string        `yaml:"dir" env:"SPOOL_DIR"`
	Debounce time.Duration `yaml:"debounce" env:"SPOOL_DEBOUNCE" env-default:"500ms"`
}

// Load reads the config file at configPath with env overrides. An empty path
// reads env variables and defaults only.
func Load(configPath string) (*Config, error) {
	var cfg Config

	if configPath == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read env: %w", err)
		}
	} else {
		// check if file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			return nil, fmt.Errorf("cannot read config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(configPath string) *Config {
	cfg, err := Load(ResolvePath(configPath))
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// ResolvePath returns flagValue or, when it is empty, CONFIG_PATH.
// Priority: flag > env > default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("CONFIG_PATH")
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageSQLite, StorageBolt:
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	ports := map[string]int{
		"discovery.port":          c.Discovery.Port,
		"discovery.announce_port": c.Discovery.AnnouncePort,
		"ingestion.port":          c.Ingestion.Port,
	}
	for name, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("%w: %s out of range: %d", ErrInvalidConfig, name, p)
		}
	}

	if c.Discovery.AnnounceInterval <= 0 || c.Discovery.RefreshInterval <= 0 || c.Ingestion.CounterSyncInterval <= 0 {
		return fmt.Errorf("%w: intervals must be positive", ErrInvalidConfig)
	}
	if c.Discovery.ServerName == "" {
		return fmt.Errorf("%w: discovery.server_name is empty", ErrInvalidConfig)
	}
	return nil
}
