package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(func(cfg Config) Sharding { return cfg.Sharding }),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint   string
	MetricsEnabled bool
	OTLPProtocol   string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	Sharding Sharding
}

// Sharding carries the process-wide shard selection and scaling parameters.
// It is set once at initialization and never mutated afterwards.
type Sharding struct {
	MaxShardsPerType     int
	LoadThresholdPercent int64
	MinCapacity          int64
	MaxCapacity          int64
	RebalanceInterval    time.Duration
	AutoScalingEnabled   bool
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "trackway"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		OTLPEndpoint:   getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol:   strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		MetricsEnabled: getenvBool("METRICS_ENABLED", false),

		DBType:            getenv("DATABASE_TYPE", "sqlite"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "trackway"),
		DBUser:            getenv("DATABASE_USER", "trackway"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 3600),

		Sharding: Sharding{
			MaxShardsPerType:     getenvInt("SHARDING_MAX_SHARDS_PER_TYPE", 10),
			LoadThresholdPercent: getenvInt64("SHARDING_LOAD_THRESHOLD_PERCENT", 80),
			MinCapacity:          getenvInt64("SHARDING_MIN_CAPACITY", 100),
			MaxCapacity:          getenvInt64("SHARDING_MAX_CAPACITY", 10000),
			RebalanceInterval:    time.Duration(getenvInt64("SHARDING_REBALANCE_INTERVAL_SECONDS", 300)) * time.Second,
			AutoScalingEnabled:   getenvBool("SHARDING_AUTO_SCALING_ENABLED", true),
		},
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
