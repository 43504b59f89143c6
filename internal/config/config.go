// Package config loads service configuration from app.env and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"route-optimizer/internal/optimizer"
)

// Config stores all configuration of the service.
// The values are read by viper from a config file or environment variable.
type Config struct {
	Environment      string `mapstructure:"ENVIRONMENT" validate:"oneof=development production test"`
	ServerAddr       string `mapstructure:"SERVER_ADDR" validate:"required"`
	OSRMBaseURL      string `mapstructure:"OSRM_BASE_URL" validate:"required,url"`
	NominatimBaseURL string `mapstructure:"NOMINATIM_BASE_URL" validate:"required,url"`
	CacheBackend     string `mapstructure:"CACHE_BACKEND" validate:"oneof=sqlite memory"`
	// CacheDBPath defaults to ~/.route-optimizer/cache.db when empty.
	CacheDBPath string `mapstructure:"CACHE_DB_PATH"`
	LogLevel    string `mapstructure:"LOG_LEVEL" validate:"oneof=trace debug info warn error"`

	AnnealIterations         int           `mapstructure:"ANNEAL_ITERATIONS" validate:"gt=0"`
	AnnealInitialTemperature float64       `mapstructure:"ANNEAL_INITIAL_TEMPERATURE" validate:"gt=0"`
	AnnealCoolingRate        float64       `mapstructure:"ANNEAL_COOLING_RATE" validate:"gt=0,lt=1"`
	AnnealRestarts           int           `mapstructure:"ANNEAL_RESTARTS" validate:"gte=1,lte=64"`
	OptimizeTimeout          time.Duration `mapstructure:"OPTIMIZE_TIMEOUT" validate:"gt=0"`
	// DistanceSentinelMeters replaces unreachable pairs when positive; zero
	// makes an unreachable pair fail the request.
	DistanceSentinelMeters float64 `mapstructure:"DISTANCE_SENTINEL_METERS" validate:"gte=0"`
}

var defaults = map[string]any{
	"ENVIRONMENT":                "production",
	"SERVER_ADDR":                "127.0.0.1:8080",
	"OSRM_BASE_URL":              "https://router.project-osrm.org",
	"NOMINATIM_BASE_URL":         "https://nominatim.openstreetmap.org",
	"CACHE_BACKEND":              "sqlite",
	"CACHE_DB_PATH":              "",
	"LOG_LEVEL":                  "info",
	"ANNEAL_ITERATIONS":          optimizer.DefaultIterations,
	"ANNEAL_INITIAL_TEMPERATURE": optimizer.DefaultInitialTemperature,
	"ANNEAL_COOLING_RATE":        optimizer.DefaultCoolingRate,
	"ANNEAL_RESTARTS":            4,
	"OPTIMIZE_TIMEOUT":           "60s",
	"DISTANCE_SENTINEL_METERS":   0,
}

// LoadConfig reads app.env from path if present, then environment variables.
// A missing file is not an error.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("failed to read config: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to parse config: %w", err)
	}

	config.Environment = strings.ToLower(strings.TrimSpace(config.Environment))
	config.LogLevel = strings.ToLower(strings.TrimSpace(config.LogLevel))

	if err = validator.New().Struct(config); err != nil {
		return config, fmt.Errorf("invalid config: %w", err)
	}
	return config, nil
}

// IsDevelopment reports whether human-readable console logging is wanted
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Anneal returns the default annealing parameters for requests that omit them
func (c Config) Anneal() optimizer.Config {
	return optimizer.Config{
		Iterations:         c.AnnealIterations,
		InitialTemperature: c.AnnealInitialTemperature,
		CoolingRate:        c.AnnealCoolingRate,
	}
}
