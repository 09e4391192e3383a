package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, k := range []string{"KYCFLOW_ADDR", "DATABASE_URL", "REDIS_URL", "UPLOAD_ALLOWED_TYPES", "KYCFLOW_PUBLIC_URL", "RATE_LIMIT_WRITES"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.PublicBaseURL)
	assert.Empty(t, cfg.Postgres.URL)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "application/pdf"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, 120, cfg.RateLimit.Writes)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("KYCFLOW_ADDR", ":9090")
	t.Setenv("KYCFLOW_PUBLIC_URL", "https://kyc.example.com/")
	t.Setenv("REDIS_DRAFT_TTL", "90s")
	t.Setenv("UPLOAD_ALLOWED_TYPES", " image/png, image/png ,,application/pdf")
	t.Setenv("UPLOAD_MAX_BYTES", "not-a-number")
	t.Setenv("RATE_LIMIT_WRITES", "0")

	cfg := FromEnv()
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "https://kyc.example.com", cfg.PublicBaseURL)
	assert.Equal(t, 90*time.Second, cfg.Redis.DraftTTL)
	assert.Equal(t, []string{"image/png", "application/pdf"}, cfg.Upload.AllowedTypes)
	assert.Equal(t, int64(10<<20), cfg.Upload.MaxBytes)
	assert.Zero(t, cfg.RateLimit.Writes, "zero disables the write limit")
}

func TestWizardFromEnv(t *testing.T) {
	t.Setenv("KYCFLOW_URL", "http://kyc.internal:8080/")
	t.Setenv("KYCFLOW_DEBOUNCE", "250ms")
	cfg := WizardFromEnv()
	assert.Equal(t, "http://kyc.internal:8080", cfg.BaseURL)
	assert.Equal(t, 250*time.Millisecond, cfg.Debounce)
	assert.Equal(t, 4, cfg.Concurrency)
}
