package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr          string `yaml:"addr"`
	DatabaseURL   string `yaml:"database_url"`
	MigrationsDir string `yaml:"migrations_dir"`
	// Redis Configuration; empty keeps sessions in Postgres (or memory)
	RedisURL string `yaml:"redis_url"`

	SessionTTLSeconds int           `yaml:"session_ttl_seconds"`
	SessionTTL        time.Duration `yaml:"-"`
	BcryptCost        int           `yaml:"bcrypt_cost"`

	CORSOrigin   string `yaml:"cors_origin"`
	ErrorDocsURL string `yaml:"error_docs_url"`
	HistoryDir   string `yaml:"history_dir"`
	AppURL       string `yaml:"app_url"`

	MeiliURL       string `yaml:"meili_url"`
	MeiliMasterKey string `yaml:"meili_master_key"`
	// SMTP Configuration
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     string `yaml:"smtp_port"`
	SMTPUsername string `yaml:"smtp_username"`
	SMTPPassword string `yaml:"smtp_password"`
	SMTPFrom     string `yaml:"smtp_from"`
	SMTPFromName string `yaml:"smtp_from_name"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func defaults() Config {
	return Config{
		Addr:              ":8787",
		MigrationsDir:     "./db/migrations",
		SessionTTLSeconds: 86400,
		BcryptCost:        12,
		CORSOrigin:        "*",
		AppURL:            "http://localhost:5173",
		SMTPPort:          "587",
		SMTPFromName:      "Inkvault",
		LogLevel:          "info",
		LogFormat:         "json",
	}
}

// Load reads NOTES_CONFIG_FILE when set, then lets environment variables
// override individual keys.
func Load() (Config, error) {
	cfg := defaults()
	if path := os.Getenv("NOTES_CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnv(&cfg)
	cfg.SessionTTL = time.Duration(cfg.SessionTTLSeconds) * time.Second
	if cfg.SessionTTL <= 0 {
		return Config{}, fmt.Errorf("session ttl must be positive, got %d seconds", cfg.SessionTTLSeconds)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.Addr = getenv("API_ADDR", cfg.Addr)
	// DATABASE_URL empty runs against the in-memory store
	cfg.DatabaseURL = getenv("DATABASE_URL", cfg.DatabaseURL)
	cfg.MigrationsDir = getenv("NOTES_MIGRATIONS_DIR", cfg.MigrationsDir)
	cfg.RedisURL = getenv("REDIS_URL", cfg.RedisURL)
	cfg.SessionTTLSeconds = getenvInt("NOTES_SESSION_TTL_SECONDS", cfg.SessionTTLSeconds)
	cfg.BcryptCost = getenvInt("NOTES_BCRYPT_COST", cfg.BcryptCost)
	cfg.CORSOrigin = getenv("NOTES_CORS_ORIGIN", cfg.CORSOrigin)
	cfg.ErrorDocsURL = getenv("NOTES_ERROR_DOCS_URL", cfg.ErrorDocsURL)
	cfg.HistoryDir = getenv("NOTES_HISTORY_DIR", cfg.HistoryDir)
	cfg.AppURL = getenv("NOTES_APP_URL", cfg.AppURL)
	cfg.MeiliURL = getenv("MEILI_URL", cfg.MeiliURL)
	cfg.MeiliMasterKey = getenv("MEILI_MASTER_KEY", cfg.MeiliMasterKey)
	// SMTP - email disabled if host or sender is missing
	cfg.SMTPHost = getenv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getenv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = getenv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getenv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SMTPFrom = getenv("SMTP_FROM", cfg.SMTPFrom)
	cfg.SMTPFromName = getenv("SMTP_FROM_NAME", cfg.SMTPFromName)
	cfg.LogLevel = getenv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getenv("LOG_FORMAT", cfg.LogFormat)
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
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
