package config

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development" validate:"oneof=development staging production test"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`

	// RoutesFile switches the route source from MongoDB to a YAML/JSON file.
	RoutesFile string `env:"ROUTES_FILE"`

	Engine   EngineConfig
	Dispatch DispatchConfig
	Stream   StreamConfig
	Mongo    MongoConfig
	Redis    RedisConfig
}

type EngineConfig struct {
	DefaultSpeedKmh    float64 `env:"DEFAULT_SPEED_KMH,    default=20"   validate:"gt=0"`
	ArrivalThresholdKm float64 `env:"ARRIVAL_THRESHOLD_KM, default=0.05" validate:"gte=0"`
	FallbackEtaSeconds int     `env:"FALLBACK_ETA_SECONDS, default=60"   validate:"gt=0"`
}

type DispatchConfig struct {
	Workers int `env:"DISPATCH_WORKERS, default=8" validate:"gt=0"`
}

type StreamConfig struct {
	Buffer int `env:"STREAM_BUFFER, default=64" validate:"gt=0"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=transit_tracker"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR,     default=localhost:6379"`
	DB       int    `env:"REDIS_DB,       default=0" validate:"gte=0"`
	Password string `env:"REDIS_PASSWORD"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration from l and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}
	return &cfg, nil
}

// UseMongoRoutes reports whether routes are read from MongoDB.
func (c *Config) UseMongoRoutes() bool {
	return c.RoutesFile == ""
}
