package config

import (
	"os"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	os.Setenv("JWT_SECRET_CURRENT", "test-secret")
	os.Setenv("EVENT_BUS_URL", "wss://example.invalid/subscribe")
	defer os.Unsetenv("JWT_SECRET_CURRENT")
	defer os.Unsetenv("EVENT_BUS_URL")

	cfg, errs := Load("")
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if cfg.RetentionSeconds != DefaultRetentionSeconds {
		t.Errorf("RetentionSeconds = %d, want %d", cfg.RetentionSeconds, DefaultRetentionSeconds)
	}
	if cfg.KafkaNumThreads != DefaultKafkaNumThreads {
		t.Errorf("KafkaNumThreads = %d, want %d", cfg.KafkaNumThreads, DefaultKafkaNumThreads)
	}
	if !cfg.IsServing {
		t.Errorf("IsServing = false, want true by default")
	}
}

func TestLoadMissingRequired(t *testing.T) {
	os.Unsetenv("JWT_SECRET_CURRENT")
	os.Unsetenv("EVENT_BUS_URL")

	_, errs := Load("")
	if len(errs) == 0 {
		t.Fatal("expected validation errors for missing required fields")
	}
}

func TestLoadInvalidPort(t *testing.T) {
	os.Setenv("JWT_SECRET_CURRENT", "test-secret")
	os.Setenv("EVENT_BUS_URL", "wss://example.invalid/subscribe")
	os.Setenv("PORT", "not-a-number")
	defer os.Unsetenv("JWT_SECRET_CURRENT")
	defer os.Unsetenv("EVENT_BUS_URL")
	defer os.Unsetenv("PORT")

	_, errs := Load("")
	if len(errs) == 0 {
		t.Fatal("expected an error for invalid PORT")
	}
}
