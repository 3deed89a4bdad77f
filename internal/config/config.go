// Package config handles loading application configuration from environment variables.
// All settings have sensible defaults for local development.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application settings loaded from environment variables.
type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	LoggingLevel    string        `envconfig:"LOGGING_LEVEL" default:"info"`
	LogFile         string        `envconfig:"LOG_FILE"`
	GlobalRoomID    string        `envconfig:"GLOBAL_ROOM_ID" default:"global"`
	GlobalRoomName  string        `envconfig:"GLOBAL_ROOM_NAME" default:"The Global Dial"`
	RoomIdleTimeout time.Duration `envconfig:"ROOM_IDLE_TIMEOUT" default:"1h"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	BotsEnabled     bool          `envconfig:"BOTS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables, using defaults where not set.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
