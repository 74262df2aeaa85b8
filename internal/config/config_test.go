package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("CANCELLATION_WINDOW", "")
	t.Setenv("DB_HOST", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Minute, cfg.Orders.CancellationWindow)
	assert.Equal(t, 15*time.Minute, cfg.Orders.PendingPaymentTTL)
	assert.Equal(t, 10, cfg.Orders.LowStockThreshold)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, "dev-only-jwt-secret", cfg.JWTSecret)
	assert.Equal(t, "Asia/Kolkata", cfg.Timezone.String())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("CANCELLATION_WINDOW", "5m")
	t.Setenv("ORDER_RATE_LIMIT", "3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DB_PORT", "6543")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.Orders.CancellationWindow)
	assert.Equal(t, 3, cfg.Orders.RateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Contains(t, cfg.Database.DSN(), "port=6543")
	assert.Contains(t, cfg.Database.URL(), ":6543/")
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.Error(t, err)
}
