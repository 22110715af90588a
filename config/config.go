package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all the configuration for the application
type Config struct {
	BotToken      string        `env:"BOT_TOKEN"`
	DatabasePath  string        `env:"DB_PATH" envDefault:"./data/studybot.db"`
	StimuliPath   string        `env:"STIMULI_PATH" envDefault:"./assets/stim.json"`
	AssetsDir     string        `env:"ASSETS_DIR" envDefault:"./assets"`
	Experiment    string        `env:"EXPERIMENT" envDefault:"experiment_1"`
	PlatformURL   string        `env:"PLATFORM_URL"`
	PlatformToken string        `env:"PLATFORM_TOKEN"`
	SubmitTimeout time.Duration `env:"SUBMIT_TIMEOUT" envDefault:"10s"`
	SessionTTL    time.Duration `env:"SESSION_TTL" envDefault:"24h"`
	Debug         bool          `env:"DEBUG"`
}

// Load loads the configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if cfg.SubmitTimeout <= 0 {
		return nil, errors.New("SUBMIT_TIMEOUT must be positive")
	}
	if cfg.SessionTTL <= 0 {
		return nil, errors.New("SESSION_TTL must be positive")
	}
	return &cfg, nil
}

// RequireBotToken checks the settings needed to talk to Telegram
func (c *Config) RequireBotToken() error {
	if c.BotToken == "" {
		return errors.New("BOT_TOKEN environment variable is required")
	}
	return nil
}
