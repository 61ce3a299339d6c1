package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server       ServerConfig
	Database     DatabaseConfig
	JWT          JWTConfig
	Payment      PaymentConfig
	SMS          SMSConfig
	Mail         MailConfig
	Booking      BookingConfig
	Notification NotificationConfig
	CORS         CORSConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// PaymentConfig holds payment gateway (IPG) configuration
type PaymentConfig struct {
	Environment   string // "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	ReturnURL     string // URL to redirect after payment
	WebhookURL    string // Server webhook URL for payment notifications
	Currency      string
}

// SMSConfig holds SMS gateway configuration
type SMSConfig struct {
	Mode     string // "dev" logs instead of sending
	APIURL   string
	Username string
	Password string
	Mask     string
}

// MailConfig holds SMTP configuration for email delivery
type MailConfig struct {
	Mode     string // "dev" logs instead of sending
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// BookingConfig holds booking pipeline configuration
type BookingConfig struct {
	// PaymentTimeout is how long a PENDING booking may wait for a payment
	// callback before the expiry job cancels it.
	PaymentTimeout time.Duration
	// ProjectionDaysAhead bounds how far trip search projects schedules.
	ProjectionDaysAhead int
}

// NotificationConfig holds outbound queue processor configuration
type NotificationConfig struct {
	SweepInterval time.Duration // delivery sweep tick
	BatchSize     int           // messages picked up per sweep
	MaxAttempts   int           // delivery attempts before FAILED
	RetentionDays int           // terminal messages kept this long
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Payment: PaymentConfig{
			Environment:   getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
			MerchantKey:   getEnv("PAYMENT_MERCHANT_KEY", ""),
			MerchantToken: getEnv("PAYMENT_MERCHANT_TOKEN", ""),
			ReturnURL:     getEnv("PAYMENT_RETURN_URL", ""),
			WebhookURL:    getEnv("PAYMENT_WEBHOOK_URL", ""),
			Currency:      getEnv("PAYMENT_CURRENCY", "LKR"),
		},
		SMS: SMSConfig{
			Mode:     getEnv("SMS_MODE", "dev"),
			APIURL:   getEnv("SMS_API_URL", "https://e-sms.dialog.lk/api/v2"),
			Username: getEnv("SMS_USERNAME", ""),
			Password: getEnv("SMS_PASSWORD", ""),
			Mask:     getEnv("SMS_MASK", "Buslink"),
		},
		Mail: MailConfig{
			Mode:     getEnv("MAIL_MODE", "dev"),
			Host:     getEnv("MAIL_HOST", ""),
			Port:     getEnvAsInt("MAIL_PORT", 587),
			Username: getEnv("MAIL_USERNAME", ""),
			Password: getEnv("MAIL_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "bookings@buslink.lk"),
		},
		Booking: BookingConfig{
			PaymentTimeout:      time.Duration(getEnvAsInt("BOOKING_PAYMENT_TIMEOUT_MINUTES", 30)) * time.Minute,
			ProjectionDaysAhead: getEnvAsInt("BOOKING_PROJECTION_DAYS_AHEAD", 30),
		},
		Notification: NotificationConfig{
			SweepInterval: time.Duration(getEnvAsInt("NOTIFICATION_SWEEP_SECONDS", 60)) * time.Second,
			BatchSize:     getEnvAsInt("NOTIFICATION_BATCH_SIZE", 10),
			MaxAttempts:   getEnvAsInt("NOTIFICATION_MAX_ATTEMPTS", 3),
			RetentionDays: getEnvAsInt("NOTIFICATION_RETENTION_DAYS", 7),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Payment.Environment == "production" {
		if c.Payment.MerchantKey == "" || c.Payment.MerchantToken == "" {
			return fmt.Errorf("PAYMENT_MERCHANT_KEY and PAYMENT_MERCHANT_TOKEN are required in production")
		}
	}

	if c.SMS.Mode == "production" {
		if c.SMS.Username == "" || c.SMS.Password == "" {
			return fmt.Errorf("SMS_USERNAME and SMS_PASSWORD are required in production mode")
		}
	}

	if c.Mail.Mode == "production" && c.Mail.Host == "" {
		return fmt.Errorf("MAIL_HOST is required in production mode")
	}

	if c.Notification.BatchSize <= 0 {
		return fmt.Errorf("NOTIFICATION_BATCH_SIZE must be positive")
	}

	if c.Notification.MaxAttempts <= 0 {
		return fmt.Errorf("NOTIFICATION_MAX_ATTEMPTS must be positive")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
