package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" validate:"omitempty,url"`
	} `yaml:"postgres"`
	Ranking struct {
		Source      string `yaml:"source" validate:"omitempty,oneof=static csv postgres"`
		Dataset     string `yaml:"dataset"`
		CSVPath     string `yaml:"csv_path" validate:"required_if=Source csv"`
		NameColumn  string `yaml:"name_column"`
		ScoreColumn string `yaml:"score_column"`
		Title       string `yaml:"title"`
		TTL         string `yaml:"ttl"`
	} `yaml:"ranking"`
	Trial struct {
		TopN         int    `yaml:"top_n" validate:"gte=0,lte=100"`
		Question     string `yaml:"question"`
		TickInterval string `yaml:"tick_interval"`
	} `yaml:"trial"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
		Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	} `yaml:"log"`
}

// Load reads YAML config from path, fills defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints declared in struct tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Ranking.Source == "" {
		c.Ranking.Source = "static"
	}
	if c.Ranking.Dataset == "" {
		c.Ranking.Dataset = "nba-rings"
	}
	if c.Ranking.NameColumn == "" {
		c.Ranking.NameColumn = "Player"
	}
	if c.Ranking.ScoreColumn == "" {
		c.Ranking.ScoreColumn = "Rings"
	}
	if c.Ranking.Title == "" {
		c.Ranking.Title = "NBA Players by Championship Rings"
	}
	if c.Trial.TopN == 0 {
		c.Trial.TopN = 10
	}
	if c.Trial.Question == "" {
		c.Trial.Question = "Which NBA player has won the most championship rings?"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
