package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

type Config struct {
	// Client
	APIBase string
	Author  string
	Timeout time.Duration

	// Server
	HTTPPort     string
	DatabaseURL  string
	GeminiAPIKey string
	RateLimitRPS float64
	ShareBaseURL string

	LogLevel    string
	LogFile     string
	Environment string
}

// Profile holds the client keys a YAML file may override.
type Profile struct {
	APIBase        string `yaml:"api_base"`
	Author         string `yaml:"author"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	ShareBaseURL   string `yaml:"share_base_url"`
}

var AppConfig Config

// LoadConfig reads an optional .env file and the environment into AppConfig.
// It reports whether a .env file was found.
func LoadConfig() bool {
	found := godotenv.Load() == nil
	AppConfig = FromEnv()
	return found
}

func FromEnv() Config {
	return Config{
		APIBase:      getEnv("PYTHAGOREAN_API_BASE", "http://localhost:8000"),
		Author:       getEnv("PYTHAGOREAN_AUTHOR", "Anonymous"),
		Timeout:      time.Duration(getEnvAsInt("PYTHAGOREAN_TIMEOUT", 120)) * time.Second,
		HTTPPort:     getEnv("HTTP_PORT", "8000"),
		DatabaseURL:  getEnv("DATABASE_URL", "pythagorean.db"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		RateLimitRPS: getEnvAsFloat("RATE_LIMIT_RPS", 20),
		ShareBaseURL: getEnv("SHARE_BASE_URL", "http://localhost:3000"),
		LogLevel:     getEnv("LOG_LEVEL", "INFO"),
		LogFile:      getEnv("LOG_FILE", ""),
		Environment:  getEnv("ENVIRONMENT", "development"),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func LoadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if p.TimeoutSeconds < 0 {
		return nil, fmt.Errorf("timeout_seconds must not be negative, got %d", p.TimeoutSeconds)
	}
	return &p, nil
}

// Apply overrides the client keys set in p.
func (c *Config) Apply(p *Profile) {
	if p == nil {
		return
	}
	if p.APIBase != "" {
		c.APIBase = p.APIBase
	}
	if p.Author != "" {
		c.Author = p.Author
	}
	if p.TimeoutSeconds > 0 {
		c.Timeout = time.Duration(p.TimeoutSeconds) * time.Second
	}
	if p.ShareBaseURL != "" {
		c.ShareBaseURL = p.ShareBaseURL
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
