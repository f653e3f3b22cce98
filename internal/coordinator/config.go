package coordinator

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config carries every tunable of the coordination engine. Values load
// in three layers: built-in defaults, then an optional yaml file named by
// TANKFLEET_CONFIG, then environment overrides.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	DatabaseURL string `yaml:"database_url"`

	DevicePSK   string `yaml:"device_psk"`
	TokenSecret string `yaml:"token_secret"`
	TokenTTL    string `yaml:"token_ttl"`

	OfflineThreshold  string `yaml:"offline_threshold"`
	LivenessInterval  string `yaml:"liveness_interval"`
	DeliveryTimeout   string `yaml:"delivery_timeout"`
	TimeoutInterval   string `yaml:"timeout_interval"`
	ReconcileInterval string `yaml:"reconcile_interval"`
	MaxRetries        int    `yaml:"max_retries"`
	Timezone          string `yaml:"timezone"`

	WebhookURL string `yaml:"webhook_url"`
}

// LoadConfig loads config from yaml or env.
func LoadConfig() (Config, error) {
	cfg := Config{
		ListenAddr:        getenvDefault("TANKFLEET_ADDR", ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DevicePSK:         os.Getenv("TANKFLEET_DEVICE_PSK"),
		TokenSecret:       os.Getenv("TANKFLEET_TOKEN_SECRET"),
		TokenTTL:          getenvDefault("TANKFLEET_TOKEN_TTL", "720h"),
		OfflineThreshold:  getenvDefault("TANKFLEET_OFFLINE_THRESHOLD", "2m"),
		LivenessInterval:  getenvDefault("TANKFLEET_LIVENESS_INTERVAL", "1m"),
		DeliveryTimeout:   getenvDefault("TANKFLEET_DELIVERY_TIMEOUT", "90s"),
		TimeoutInterval:   getenvDefault("TANKFLEET_TIMEOUT_INTERVAL", "30s"),
		ReconcileInterval: getenvDefault("TANKFLEET_RECONCILE_INTERVAL", "1m"),
		MaxRetries:        getenvIntDefault("TANKFLEET_MAX_RETRIES", 3),
		Timezone:          getenvDefault("TANKFLEET_TIMEZONE", "Asia/Kolkata"),
		WebhookURL:        os.Getenv("TANKFLEET_WEBHOOK_URL"),
	}

	if path := os.Getenv("TANKFLEET_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.DevicePSK == "" {
		return cfg, errors.New("coordinator: device psk required")
	}
	if cfg.TokenSecret == "" {
		return cfg, errors.New("coordinator: token secret required")
	}
	if cfg.MaxRetries < 0 {
		return cfg, errors.New("coordinator: negative max retries")
	}
	return cfg, nil
}

// Intervals folds the duration strings into parsed values.
type Intervals struct {
	TokenTTL         time.Duration
	OfflineThreshold time.Duration
	Liveness         time.Duration
	DeliveryTimeout  time.Duration
	TimeoutSweep     time.Duration
	Reconcile        time.Duration
}

// ParseIntervals validates and parses every duration field.
func (c Config) ParseIntervals() (Intervals, error) {
	var iv Intervals
	var err error
	if iv.TokenTTL, err = parseDuration("token_ttl", c.TokenTTL); err != nil {
		return iv, err
	}
	if iv.OfflineThreshold, err = parseDuration("offline_threshold", c.OfflineThreshold); err != nil {
		return iv, err
	}
	if iv.Liveness, err = parseDuration("liveness_interval", c.LivenessInterval); err != nil {
		return iv, err
	}
	if iv.DeliveryTimeout, err = parseDuration("delivery_timeout", c.DeliveryTimeout); err != nil {
		return iv, err
	}
	if iv.TimeoutSweep, err = parseDuration("timeout_interval", c.TimeoutInterval); err != nil {
		return iv, err
	}
	if iv.Reconcile, err = parseDuration("reconcile_interval", c.ReconcileInterval); err != nil {
		return iv, err
	}
	return iv, nil
}

// Location resolves the fleet timezone used for schedule windows.
func (c Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("coordinator: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func parseDuration(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("coordinator: %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("coordinator: %s must be positive", name)
	}
	return d, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
