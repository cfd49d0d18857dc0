package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	APIBaseURL            string        `env:"RXMEDIQ_API_BASE_URL" envDefault:"http://localhost:5000"`
	UploadPath            string        `env:"RXMEDIQ_UPLOAD_PATH" envDefault:"/upload"`
	LiveInterval          time.Duration `env:"RXMEDIQ_LIVE_INTERVAL" envDefault:"2s"`
	VisualizationInterval time.Duration `env:"RXMEDIQ_VISUALIZATION_INTERVAL" envDefault:"5s"`
	RequestTimeout        time.Duration `env:"RXMEDIQ_REQUEST_TIMEOUT" envDefault:"30s"`
	UploadTimeout         time.Duration `env:"RXMEDIQ_UPLOAD_TIMEOUT" envDefault:"5m"`
	StartupWait           time.Duration `env:"RXMEDIQ_STARTUP_WAIT" envDefault:"10s"`
	LogFile               string        `env:"RXMEDIQ_LOG_FILE" envDefault:"rxmediq-tui.log"`
	LogLevel              string        `env:"RXMEDIQ_LOG_LEVEL" envDefault:"info"`
}

// Load reads the environment, first applying envFile when given. Variables
// already set in the environment win over the file.
func Load(envFile string) (*Config, error) {
	if path := strings.TrimSpace(envFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return nil, fmt.Errorf("load env file %q: %w", path, err)
		}
		log.Printf("loaded env from file %s", path)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	u, err := url.Parse(strings.TrimSpace(c.APIBaseURL))
	if err != nil {
		return fmt.Errorf("invalid RXMEDIQ_API_BASE_URL %q: %w", c.APIBaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("RXMEDIQ_API_BASE_URL must be an http(s) address, got %q", c.APIBaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("RXMEDIQ_API_BASE_URL is missing a host: %q", c.APIBaseURL)
	}
	if strings.TrimSpace(c.UploadPath) == "" {
		return fmt.Errorf("RXMEDIQ_UPLOAD_PATH is required")
	}

	durations := map[string]time.Duration{
		"RXMEDIQ_LIVE_INTERVAL":          c.LiveInterval,
		"RXMEDIQ_VISUALIZATION_INTERVAL": c.VisualizationInterval,
		"RXMEDIQ_REQUEST_TIMEOUT":        c.RequestTimeout,
		"RXMEDIQ_UPLOAD_TIMEOUT":         c.UploadTimeout,
	}
	for name, value := range durations {
		if value <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, value)
		}
	}
	if c.StartupWait < 0 {
		return fmt.Errorf("RXMEDIQ_STARTUP_WAIT must not be negative, got %s", c.StartupWait)
	}
	return nil
}
