package config

import (
	"testing"
	"time"
)

func TestLoadClientDefaults(t *testing.T) {
	for _, k := range []string{"API_BASE_URL", "MAX_RETRIES", "TIMEOUT", "FLAG_REDIS_URL"} {
		t.Setenv(k, "")
	}

	cfg := LoadClient()
	if cfg.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.MaxRetries)
	}
	if cfg.Timeout != 20*time.Second {
		t.Errorf("Timeout = %s, want 20s", cfg.Timeout)
	}
	if cfg.FlagStorePath == "" || cfg.SessionPath == "" {
		t.Error("state paths not set")
	}
}

func TestLoadClientOverrides(t *testing.T) {
	t.Setenv("API_BASE_URL", "https://exam.example.sch.id/api/v1")
	t.Setenv("MAX_RETRIES", "1")
	t.Setenv("TIMEOUT", "1500")

	cfg := LoadClient()
	if cfg.APIBaseURL != "https://exam.example.sch.id/api/v1" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.MaxRetries != 1 || cfg.Timeout != 1500*time.Millisecond {
		t.Errorf("MaxRetries = %d, Timeout = %s", cfg.MaxRetries, cfg.Timeout)
	}
}

func TestLoadServer(t *testing.T) {
	t.Setenv("MAX_UPLOAD_SIZE_MB", "")
	t.Setenv("AUTH_RATE_LIMIT_PER_MINUTE", "120")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("MINIO_USE_SSL", "yes-please")

	cfg := Load()
	if cfg.MaxUploadBytes != 50<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
	if cfg.AuthRateLimit != 2 {
		t.Errorf("AuthRateLimit = %v, want 2/s", cfg.AuthRateLimit)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %q", cfg.AllowedOrigins)
	}
	if cfg.Storage.MinioUseSSL {
		t.Error("unparseable bool should fall back to false")
	}
}

func TestCacheKeys(t *testing.T) {
	if got := CacheKey.StudentSessionKey(42); got == CacheKey.StudentSessionKey(43) {
		t.Errorf("session keys collide: %s", got)
	}
	if got := CacheKey.CompromiseAtField(7); got != "7:at" {
		t.Errorf("compromise at field = %q", got)
	}
}
