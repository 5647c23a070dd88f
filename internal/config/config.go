package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Backend struct {
		BaseURL   string  `yaml:"base_url" validate:"required,url"`
		Timeout   string  `yaml:"timeout"`
		RateLimit float64 `yaml:"rate_limit" validate:"gte=0"` // requests per second, 0 disables
		Burst     int     `yaml:"burst" validate:"gte=0"`
	} `yaml:"backend"`
	Session struct {
		UserID      int64  `yaml:"user_id"`
		Role        string `yaml:"role"`
		Token       string `yaml:"token"`
		RefreshSkew string `yaml:"refresh_skew"`
	} `yaml:"session"`
	State struct {
		Driver string `yaml:"driver" validate:"omitempty,oneof=memory file redis postgres"`
		Path   string `yaml:"path"`
		Prefix string `yaml:"prefix"`
		TTL    string `yaml:"ttl"`
	} `yaml:"state"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Quiz struct {
		TTL             string `yaml:"ttl"`
		DefaultDuration int    `yaml:"default_duration" validate:"gte=0"` // minutes
		TickInterval    string `yaml:"tick_interval"`
	} `yaml:"quiz"`
	AttemptCheck struct {
		FailOpen *bool `yaml:"fail_open"`
	} `yaml:"attempt_check"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=json console"`
	} `yaml:"log"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Backend.BaseURL = "http://localhost:5000/api"
	cfg.State.Driver = "file"
	cfg.State.Path = ".quiz-runner/state.json"
	cfg.Quiz.DefaultDuration = 60
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	return cfg
}

// Load reads YAML config from path on top of Default. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, Validate(cfg)
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

var validate = validator.New()

// Validate checks the struct tags on cfg.
func Validate(cfg Config) error {
	return validate.Struct(cfg)
}

// FailOpen reports the attempt-check policy, defaulting to true.
func (c Config) FailOpen() bool {
	if c.AttemptCheck.FailOpen == nil {
		return true
	}
	return *c.AttemptCheck.FailOpen
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
