package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Remote    RemoteConfig
	Store     StoreConfig
	Sync      SyncConfig
	Geo       GeoConfig
	Enrich    EnrichConfig
	Telemetry TelemetryConfig
}

type ServerConfig struct {
	Port string
	Host string
}

// RemoteConfig describes the remote row store that receives sync snapshots.
type RemoteConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type StoreConfig struct {
	Path string
}

type SyncConfig struct {
	Enabled        bool
	Debounce       time.Duration
	HourlyInterval time.Duration
	ForcedMinGap   time.Duration
	MaxRetries     int
	RetryBackoff   time.Duration
}

type GeoConfig struct {
	ReverseGeocodeURL string
	IPLookupURL       string
	IPGeoURL          string
	Timeout           time.Duration
}

type EnrichConfig struct {
	URL     string
	Timeout time.Duration
}

type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	OTLPEndpoint string
}

func Load() (*Config, error) {

	remotePort, err := strconv.Atoi(getEnv("REMOTE_DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMOTE_DB_PORT: %w", err)
	}

	syncDebounce, err := time.ParseDuration(getEnv("SYNC_DEBOUNCE", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_DEBOUNCE: %w", err)
	}
	syncHourly, err := time.ParseDuration(getEnv("SYNC_HOURLY_INTERVAL", "1h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_HOURLY_INTERVAL: %w", err)
	}
	syncForcedGap, err := time.ParseDuration(getEnv("SYNC_FORCED_MIN_GAP", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_FORCED_MIN_GAP: %w", err)
	}
	syncRetries, err := strconv.Atoi(getEnv("SYNC_MAX_RETRIES", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MAX_RETRIES: %w", err)
	}
	syncBackoff, err := time.ParseDuration(getEnv("SYNC_RETRY_BACKOFF", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_RETRY_BACKOFF: %w", err)
	}
	geoTimeout, err := time.ParseDuration(getEnv("GEO_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid GEO_TIMEOUT: %w", err)
	}
	enrichTimeout, err := time.ParseDuration(getEnv("ENRICH_TIMEOUT", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid ENRICH_TIMEOUT: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8090"),
			Host: getEnv("HOST", "127.0.0.1"),
		},
		Remote: RemoteConfig{
			Host:     getEnv("REMOTE_DB_HOST", "localhost"),
			Port:     remotePort,
			User:     getEnv("REMOTE_DB_USER", "moneyhistory"),
			Password: getEnv("REMOTE_DB_PASSWORD", ""),
			DBName:   getEnv("REMOTE_DB_NAME", "moneyhistory"),
			SSLMode:  getEnv("REMOTE_DB_SSLMODE", "disable"),
		},
		Store: StoreConfig{
			Path: getEnv("STORE_PATH", defaultStorePath()),
		},
		Sync: SyncConfig{
			Enabled:        getBoolEnv("SYNC_ENABLED", true),
			Debounce:       syncDebounce,
			HourlyInterval: syncHourly,
			ForcedMinGap:   syncForcedGap,
			MaxRetries:     syncRetries,
			RetryBackoff:   syncBackoff,
		},
		Geo: GeoConfig{
			ReverseGeocodeURL: getEnv("GEO_REVERSE_URL", "https://nominatim.openstreetmap.org/reverse"),
			IPLookupURL:       getEnv("GEO_IP_URL", "https://api.ipify.org?format=json"),
			IPGeoURL:          getEnv("GEO_IPGEO_URL", "https://ipwho.is/"),
			Timeout:           geoTimeout,
		},
		Enrich: EnrichConfig{
			URL:     getEnv("ENRICH_URL", ""),
			Timeout: enrichTimeout,
		},
		Telemetry: TelemetryConfig{
			Enabled:      getBoolEnv("OTEL_ENABLED", false),
			ServiceName:  getEnv("OTEL_SERVICE_NAME", "moneyhistory-agent"),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_ENDPOINT", "localhost:4318"),
		},
	}

	if cfg.Store.Path == "" {
		return nil, fmt.Errorf("STORE_PATH is required")
	}
	if cfg.Sync.MaxRetries < 1 {
		return nil, fmt.Errorf("SYNC_MAX_RETRIES must be at least 1")
	}

	return cfg, nil
}

func (c *RemoteConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "moneyhistory.db"
	}
	return filepath.Join(home, ".moneyhistory", "store.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	// Accept: true, false, 1, 0, yes, no (case-insensitive)
	switch strings.ToLower(value) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}
