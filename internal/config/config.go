package config

import (
	"fmt"
	"time"

	playground "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const devJWTSecret = "dev-secret-change-me"

type Config struct {
	ServerPort  string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	Env         string        `envconfig:"ENV" default:"development" validate:"oneof=development production test"`
	DatabaseURL string        `envconfig:"DATABASE_URL"`
	RedisURL    string        `envconfig:"REDIS_URL"`
	JWTSecret   string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me" validate:"required,min=16"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"24h" validate:"gt=0"`
	TokenIssuer string        `envconfig:"TOKEN_ISSUER" default:"pulsechat" validate:"required"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if err := playground.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Env == "production" && c.JWTSecret == devJWTSecret {
		return fmt.Errorf("invalid config: JWT_SECRET must be set in production")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
