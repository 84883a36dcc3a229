package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadRateLimitConfigDefaults(t *testing.T) {
	cfg := LoadRateLimitConfig()
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 60, cfg.Capacity)
	assert.Equal(t, time.Second, cfg.RefillInterval)
	assert.Equal(t, "ip_user_route", cfg.KeyStrategy)
}

func TestLoadRateLimitConfigOverrides(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL, "ttl is raised to five refill intervals")
}

func TestRateLimitNormalize(t *testing.T) {
	cfg := RateLimitConfig{Capacity: 0, RefillTokens: -3}.normalize()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, time.Second, cfg.RefillInterval)
	assert.Equal(t, 5*time.Second, cfg.TTL)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.Equal(t, 30*time.Second, cfg.TTL)
}

func TestCheckoutURLs(t *testing.T) {
	cfg := Config{FrontendURL: "https://shop.example"}
	assert.Equal(t,
		"https://shop.example/success?reservationId=42&session_id={CHECKOUT_SESSION_ID}",
		cfg.CheckoutSuccessURL(42))
	assert.Equal(t, "https://shop.example/cart", cfg.CheckoutCancelURL())
	assert.Equal(t, "https://shop.example/reset-password?token=abc", cfg.ResetPasswordURL("abc"))
}
