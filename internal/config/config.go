package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Directory modes select which hospital data source the server wires.
const (
	DirectoryPostgres = "postgres"
	DirectoryREST     = "rest"
	DirectoryStatic   = "static"
)

type Config struct {
	Port string `mapstructure:"PORT"`
	Env  string `mapstructure:"ENV"`

	DirectoryMode string `mapstructure:"DIRECTORY_MODE"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	CapacityAPIURL        string `mapstructure:"CAPACITY_API_URL"`
	CapacityAPIKey        string `mapstructure:"CAPACITY_API_KEY"`
	CapacityAPITimeoutSec int    `mapstructure:"CAPACITY_API_TIMEOUT_SEC"`

	CapacityFeedWSURL string `mapstructure:"CAPACITY_FEED_WS_URL"`

	RedisURL string `mapstructure:"REDIS_URL"`

	CacheMaxEntries       int   `mapstructure:"CACHE_MAX_ENTRIES"`
	CacheMaxBytes         int64 `mapstructure:"CACHE_MAX_BYTES"`
	CacheSweepIntervalSec int   `mapstructure:"CACHE_SWEEP_INTERVAL_SEC"`
	CapacityTTLSec        int   `mapstructure:"CAPACITY_TTL_SEC"`

	DefaultRadiusKm       float64 `mapstructure:"DEFAULT_RADIUS_KM"`
	RouteMaxDistanceMiles float64 `mapstructure:"ROUTE_MAX_DISTANCE_MILES"`
	RouteMinBedsUrgent    int     `mapstructure:"ROUTE_MIN_BEDS_URGENT"`
	RouteMinBedsRoutine   int     `mapstructure:"ROUTE_MIN_BEDS_ROUTINE"`
	RouteMaxOccupancy     float64 `mapstructure:"ROUTE_MAX_OCCUPANCY"`

	FallbackHospitalsFile string   `mapstructure:"FALLBACK_HOSPITALS_FILE"`
	WatchHospitalIDs      []string `mapstructure:"WATCH_HOSPITAL_IDS"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DIRECTORY_MODE", DirectoryPostgres)
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CAPACITY_API_TIMEOUT_SEC", 10)
	v.SetDefault("CACHE_MAX_ENTRIES", 1000)
	v.SetDefault("CACHE_MAX_BYTES", 50<<20)
	v.SetDefault("CACHE_SWEEP_INTERVAL_SEC", 60)
	v.SetDefault("CAPACITY_TTL_SEC", 300)
	v.SetDefault("DEFAULT_RADIUS_KM", 25)
	v.SetDefault("ROUTE_MAX_DISTANCE_MILES", 30)
	v.SetDefault("ROUTE_MIN_BEDS_URGENT", 1)
	v.SetDefault("ROUTE_MIN_BEDS_ROUTINE", 3)
	v.SetDefault("ROUTE_MAX_OCCUPANCY", 0.95)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DIRECTORY_MODE",
		"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"CAPACITY_API_URL", "CAPACITY_API_KEY", "CAPACITY_API_TIMEOUT_SEC",
		"CAPACITY_FEED_WS_URL", "REDIS_URL",
		"CACHE_MAX_ENTRIES", "CACHE_MAX_BYTES", "CACHE_SWEEP_INTERVAL_SEC", "CAPACITY_TTL_SEC",
		"DEFAULT_RADIUS_KM", "ROUTE_MAX_DISTANCE_MILES",
		"ROUTE_MIN_BEDS_URGENT", "ROUTE_MIN_BEDS_ROUTINE", "ROUTE_MAX_OCCUPANCY",
		"FALLBACK_HOSPITALS_FILE", "WATCH_HOSPITAL_IDS",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.WatchHospitalIDs == nil {
		if raw := v.GetString("WATCH_HOSPITAL_IDS"); raw != "" {
			cfg.WatchHospitalIDs = strings.Split(raw, ",")
		}
	}

	switch cfg.DirectoryMode {
	case DirectoryPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required when DIRECTORY_MODE=postgres")
		}
	case DirectoryREST:
		if cfg.CapacityAPIURL == "" {
			return nil, fmt.Errorf("CAPACITY_API_URL is required when DIRECTORY_MODE=rest")
		}
	case DirectoryStatic:
		if cfg.FallbackHospitalsFile == "" {
			return nil, fmt.Errorf("FALLBACK_HOSPITALS_FILE is required when DIRECTORY_MODE=static")
		}
	default:
		return nil, fmt.Errorf("unknown DIRECTORY_MODE %q", cfg.DirectoryMode)
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) CapacityAPITimeout() time.Duration {
	return time.Duration(c.CapacityAPITimeoutSec) * time.Second
}

func (c *Config) CacheSweepInterval() time.Duration {
	return time.Duration(c.CacheSweepIntervalSec) * time.Second
}

func (c *Config) CapacityTTL() time.Duration {
	return time.Duration(c.CapacityTTLSec) * time.Second
}
