package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port" env:"PORT"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level" env:"LOG_LEVEL"`
	} `yaml:"log"`
	Redis struct {
		Addr      string `yaml:"addr" env:"REDIS_ADDR"`
		Password  string `yaml:"password" env:"REDIS_PASSWORD"`
		DB        int    `yaml:"db" env:"REDIS_DB"`
		TTL       string `yaml:"ttl" env:"REDIS_TTL"`
		Retention int64  `yaml:"retention" env:"REDIS_RETENTION"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url" env:"DATABASE_URL"`
	} `yaml:"postgres"`
	Catalog struct {
		TTL  string `yaml:"ttl" env:"CATALOG_TTL"`
		File string `yaml:"file" env:"CATALOG_FILE"`
	} `yaml:"catalog"`
	StandIn struct {
		APIKey      string  `yaml:"apiKey" env:"OPENAI_API_KEY"`
		BaseURL     string  `yaml:"baseUrl" env:"OPENAI_BASE_URL"`
		Model       string  `yaml:"model" env:"STANDIN_MODEL"`
		Temperature float64 `yaml:"temperature" env:"STANDIN_TEMPERATURE"`
		Timeout     string  `yaml:"timeout" env:"STANDIN_TIMEOUT"`
		Attempts    int     `yaml:"attempts" env:"STANDIN_ATTEMPTS"`
	} `yaml:"standIn"`
}

// Load reads YAML config from path and overlays environment variables.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
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
