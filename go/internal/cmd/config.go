package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kalee/two-rooms-client/go/internal/cache"
)

// Config is the client configuration, loaded from yaml with environment
// variable overrides on top.
type Config struct {
	Server struct {
		APIBaseURL  string `yaml:"api_base_url"`
		PushBaseURL string `yaml:"push_base_url"`
	} `yaml:"server"`
	Client struct {
		CacheDir                 string `yaml:"cache_dir"`
		HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
		ReconcileIntervalSeconds int    `yaml:"reconcile_interval_seconds"`
		ReconnectAttempts        int    `yaml:"reconnect_attempts"`
		ReconnectIntervalSeconds int    `yaml:"reconnect_interval_seconds"`
		AnimationCap             int    `yaml:"animation_cap"`
	} `yaml:"client"`
	LogLevel string `yaml:"log_level"`
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml file when a path is given, then applies env
// overrides and defaults. An empty path means env/defaults only.
func loadConfig(path string) (*Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Server.APIBaseURL = getEnv("API_BASE_URL", defaultStr(config.Server.APIBaseURL, "http://localhost:8080"))
	config.Server.PushBaseURL = getEnv("PUSH_BASE_URL", defaultStr(config.Server.PushBaseURL, "ws://localhost:8080"))
	config.Client.CacheDir = getEnv("CACHE_DIR", defaultStr(config.Client.CacheDir, cache.DefaultDir()))
	config.Client.HTTPTimeoutSeconds = getEnvAsInt("HTTP_TIMEOUT_SECONDS", defaultInt(config.Client.HTTPTimeoutSeconds, 10))
	config.Client.ReconcileIntervalSeconds = getEnvAsInt("RECONCILE_INTERVAL_SECONDS", defaultInt(config.Client.ReconcileIntervalSeconds, 3))
	config.Client.ReconnectAttempts = getEnvAsInt("RECONNECT_ATTEMPTS", defaultInt(config.Client.ReconnectAttempts, 5))
	config.Client.ReconnectIntervalSeconds = getEnvAsInt("RECONNECT_INTERVAL_SECONDS", defaultInt(config.Client.ReconnectIntervalSeconds, 3))
	config.Client.AnimationCap = getEnvAsInt("ANIMATION_CAP", defaultInt(config.Client.AnimationCap, 2))
	config.LogLevel = getEnv("LOG_LEVEL", defaultStr(config.LogLevel, "info"))

	return &config, nil
}

func defaultStr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func defaultInt(value, fallback int) int {
	if value != 0 {
		return value
	}
	return fallback
}
