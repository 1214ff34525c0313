package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database  DatabaseConfig
	Server    ServerConfig
	App       AppConfig
	Providers ProvidersConfig
	Matcher   MatcherConfig
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type ServerConfig struct {
	Port string
}

type AppConfig struct {
	LogLevel string
}

// ProviderConfig holds credentials for one payment service provider.
type ProviderConfig struct {
	BaseURL       string
	AccessToken   string
	WebhookSecret string
	Timeout       time.Duration
}

type ProvidersConfig struct {
	DirectDebit ProviderConfig
	Card        ProviderConfig
}

// MatcherConfig tunes reconciliation candidate search.
type MatcherConfig struct {
	DateWindowDays       int
	AmountTolerance      string
	AutoConfirmThreshold int
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments use plain environment variables.
	_ = godotenv.Load()

	dateWindow, err := strconv.Atoi(getEnv("MATCH_DATE_WINDOW_DAYS", "3"))
	if err != nil {
		dateWindow = 3
	}

	autoThreshold, err := strconv.Atoi(getEnv("MATCH_AUTO_CONFIRM_THRESHOLD", "90"))
	if err != nil {
		autoThreshold = 90
	}

	return &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "rentledger"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		App: AppConfig{
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
		Providers: ProvidersConfig{
			DirectDebit: ProviderConfig{
				BaseURL:       getEnv("DIRECTDEBIT_BASE_URL", "https://api.gocardless.com"),
				AccessToken:   getEnv("DIRECTDEBIT_ACCESS_TOKEN", ""),
				WebhookSecret: getEnv("DIRECTDEBIT_WEBHOOK_SECRET", ""),
				Timeout:       getDuration("DIRECTDEBIT_TIMEOUT", 15*time.Second),
			},
			Card: ProviderConfig{
				BaseURL:       getEnv("CARD_BASE_URL", "https://api.stripe.com"),
				AccessToken:   getEnv("CARD_ACCESS_TOKEN", ""),
				WebhookSecret: getEnv("CARD_WEBHOOK_SECRET", ""),
				Timeout:       getDuration("CARD_TIMEOUT", 15*time.Second),
			},
		},
		Matcher: MatcherConfig{
			DateWindowDays:       dateWindow,
			AmountTolerance:      getEnv("MATCH_AMOUNT_TOLERANCE", "1.00"),
			AutoConfirmThreshold: autoThreshold,
		},
	}, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
