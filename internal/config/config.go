package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	DBDSN          string
	ListenAddr     string
	MigrationsPath string
	Environment    string

	// WhatsApp Business Cloud API
	WAToken         string
	WAPhoneNumberID string
	WAVerifyToken   string
	WAAPIBase       string
}

// Load reads configuration from the environment, with .env as a convenience
// for local runs.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	cfg := &Config{
		DBDSN:           os.Getenv("DB_DSN"),
		ListenAddr:      os.Getenv("LISTEN_ADDR"),
		MigrationsPath:  os.Getenv("MIGRATIONS_PATH"),
		Environment:     os.Getenv("ENV"),
		WAToken:         os.Getenv("WA_TOKEN"),
		WAPhoneNumberID: os.Getenv("WA_PHONE_NUMBER_ID"),
		WAVerifyToken:   os.Getenv("WA_VERIFY_TOKEN"),
		WAAPIBase:       os.Getenv("WA_API_BASE"),
	}

	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MigrationsPath == "" {
		cfg.MigrationsPath = "migrations"
	}
	if cfg.WAAPIBase == "" {
		cfg.WAAPIBase = "https://graph.facebook.com/v19.0"
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("DB_DSN is required but not set")
	}
	if cfg.WAToken == "" {
		return nil, fmt.Errorf("WA_TOKEN is required but not set")
	}
	if cfg.WAPhoneNumberID == "" {
		return nil, fmt.Errorf("WA_PHONE_NUMBER_ID is required but not set")
	}
	if cfg.WAVerifyToken == "" {
		return nil, fmt.Errorf("WA_VERIFY_TOKEN is required but not set")
	}

	return cfg, nil
}
