package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, "INR", cfg.Fees.Currency)
	assert.False(t, cfg.Fees.PartialOverdue)
	assert.Equal(t, 3, cfg.Fees.PaymentMaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.Fees.StatsCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
	assert.Nil(t, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"Content-Disposition", "X-Request-ID"}, cfg.CORS.ExposedHeaders)
	assert.Contains(t, cfg.CORS.AllowedHeaders, "Authorization")
	assert.Contains(t, cfg.CORS.AllowedMethods, "PATCH")
	assert.True(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, 10*time.Minute, cfg.CORS.MaxAge)
	assert.False(t, cfg.Database.AutoMigrate)
	assert.Equal(t, "migrations", cfg.Database.Migrations)
	assert.Equal(t, 10, cfg.Limits.LoginPerMinute)
	assert.Equal(t, 5, cfg.Limits.LoginBurst)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("FEES_PARTIAL_OVERDUE", true)
	v.Set("FEES_PAYMENT_MAX_RETRIES", -2)
	v.Set("FEES_STATS_CACHE_TTL", "not-a-duration")
	v.Set("FEES_CURRENCY", "usd")
	v.Set("ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	v.Set("CORS_EXPOSED_HEADERS", "X-Request-ID")
	v.Set("CORS_ALLOW_CREDENTIALS", false)
	v.Set("CORS_MAX_AGE", "1h")

	cfg := fromViper(v)

	assert.True(t, cfg.Fees.PartialOverdue)
	assert.Equal(t, 0, cfg.Fees.PaymentMaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.Fees.StatsCacheTTL)
	assert.Equal(t, "USD", cfg.Fees.Currency)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, []string{"X-Request-ID"}, cfg.CORS.ExposedHeaders)
	assert.False(t, cfg.CORS.AllowCredentials)
	assert.Equal(t, time.Hour, cfg.CORS.MaxAge)
}
