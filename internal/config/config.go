package config

import (
	"fmt"
	"strings"
	"time"

	"cafe_backend/pkg/utils"

	"github.com/joho/godotenv"
)

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
	Migrations   string
}

// DSN renders a lib/pq key=value connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL renders the postgres:// form expected by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RazorpayConfig struct {
	KeyID         string
	KeySecret     string
	WebhookSecret string
}

type WhatsAppConfig struct {
	PhoneNumberID string
	AccessToken   string
	APIURL        string
}

// OrderConfig holds the business knobs of the ordering workflow.
type OrderConfig struct {
	CancellationWindow time.Duration
	PendingPaymentTTL  time.Duration
	LowStockThreshold  int
	RateLimit          int
	RateWindow         time.Duration
	MenuCacheTTL       time.Duration
}

type Config struct {
	AppEnv             string
	Port               string
	LogLevel           string
	Timezone           *time.Location
	JWTSecret          string
	JWTTTL             time.Duration
	CORSAllowedOrigins []string
	CronSecret         string
	AdminAlertPhone    string
	FirebaseCredsFile  string

	Database DatabaseConfig
	Redis    RedisConfig
	Razorpay RazorpayConfig
	WhatsApp WhatsAppConfig
	Orders   OrderConfig
}

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	tzName := utils.Getenv("APP_TIMEZONE", "Asia/Kolkata")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", tzName, err)
	}

	cfg := &Config{
		AppEnv:             utils.Getenv("APP_ENV", "development"),
		Port:               utils.Getenv("PORT", "8080"),
		LogLevel:           utils.Getenv("LOG_LEVEL", "info"),
		Timezone:           loc,
		JWTSecret:          utils.Getenv("JWT_SECRET", ""),
		JWTTTL:             utils.GetenvDuration("JWT_TTL", 12*time.Hour),
		CORSAllowedOrigins: utils.GetenvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		CronSecret:         utils.Getenv("CRON_SECRET", ""),
		AdminAlertPhone:    utils.Getenv("ADMIN_ALERT_PHONE", ""),
		FirebaseCredsFile:  utils.Getenv("FIREBASE_CREDENTIALS_FILE", ""),
		Database: DatabaseConfig{
			Host:         utils.Getenv("DB_HOST", "localhost"),
			Port:         utils.Getenv("DB_PORT", "5432"),
			User:         utils.Getenv("DB_USER", "postgres"),
			Password:     utils.Getenv("DB_PASSWORD", "postgres"),
			Name:         utils.Getenv("DB_NAME", "cafe"),
			SSLMode:      utils.Getenv("DB_SSLMODE", "disable"),
			MaxOpenConns: utils.GetenvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: utils.GetenvInt("DB_MAX_IDLE_CONNS", 5),
			AutoMigrate:  utils.GetenvBool("DB_AUTO_MIGRATE", false),
			Migrations:   utils.Getenv("DB_MIGRATIONS_PATH", "file://migrations"),
		},
		Redis: RedisConfig{
			Addr:     utils.Getenv("REDIS_ADDR", "localhost:6379"),
			Password: utils.Getenv("REDIS_PASSWORD", ""),
			DB:       utils.GetenvInt("REDIS_DB", 0),
		},
		Razorpay: RazorpayConfig{
			KeyID:         utils.Getenv("RAZORPAY_KEY_ID", ""),
			KeySecret:     utils.Getenv("RAZORPAY_KEY_SECRET", ""),
			WebhookSecret: utils.Getenv("RAZORPAY_WEBHOOK_SECRET", ""),
		},
		WhatsApp: WhatsAppConfig{
			PhoneNumberID: utils.Getenv("WHATSAPP_PHONE_NUMBER_ID", ""),
			AccessToken:   utils.Getenv("WHATSAPP_ACCESS_TOKEN", ""),
			APIURL:        utils.Getenv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
		},
		Orders: OrderConfig{
			CancellationWindow: utils.GetenvDuration("CANCELLATION_WINDOW", 2*time.Minute),
			PendingPaymentTTL:  utils.GetenvDuration("PENDING_PAYMENT_TTL", 15*time.Minute),
			LowStockThreshold:  utils.GetenvInt("LOW_STOCK_THRESHOLD", 10),
			RateLimit:          utils.GetenvInt("ORDER_RATE_LIMIT", 10),
			RateWindow:         utils.GetenvDuration("ORDER_RATE_WINDOW", time.Minute),
			MenuCacheTTL:       utils.GetenvDuration("MENU_CACHE_TTL", 5*time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.IsProduction() {
			return fmt.Errorf("JWT_SECRET must be set in production")
		}
		c.JWTSecret = "dev-only-jwt-secret"
		utils.LogWarn("JWT_SECRET not set, using development secret")
	}
	if c.Orders.CancellationWindow <= 0 {
		return fmt.Errorf("CANCELLATION_WINDOW must be positive")
	}
	if c.Orders.RateLimit <= 0 || c.Orders.RateWindow <= 0 {
		return fmt.Errorf("ORDER_RATE_LIMIT and ORDER_RATE_WINDOW must be positive")
	}
	return nil
}
