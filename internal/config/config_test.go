package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if !cfg.Headless {
		t.Error("Headless default should be true")
	}
	if cfg.DefaultTimeout != 30*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.DefaultTimeout)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ReadyAttempts != 3 {
		t.Errorf("ReadyAttempts = %d", cfg.ReadyAttempts)
	}
	if cfg.HTTPTimeout != 30*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PADEL_HEADLESS", "false")
	t.Setenv("PADEL_TIMEOUT_SECONDS", "10")
	t.Setenv("PADEL_POLL_MS", "250")
	t.Setenv("PADEL_READY_ATTEMPTS", "5")
	t.Setenv("PADEL_HTTP_TIMEOUT_SECONDS", "15")
	t.Setenv("PADEL_LOG_LEVEL", "debug")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Headless {
		t.Error("Headless should be false")
	}
	if cfg.DefaultTimeout != 10*time.Second {
		t.Errorf("DefaultTimeout = %v", cfg.DefaultTimeout)
	}
	if cfg.PollInterval != 250*time.Millisecond {
		t.Errorf("PollInterval = %v", cfg.PollInterval)
	}
	if cfg.ReadyAttempts != 5 {
		t.Errorf("ReadyAttempts = %d", cfg.ReadyAttempts)
	}
	if cfg.HTTPTimeout != 15*time.Second {
		t.Errorf("HTTPTimeout = %v", cfg.HTTPTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
}

func TestFromEnvRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PADEL_HEADLESS", "maybe"},
		{"PADEL_TIMEOUT_SECONDS", "0"},
		{"PADEL_TIMEOUT_SECONDS", "ten"},
		{"PADEL_POLL_MS", "10"},
		{"PADEL_READY_ATTEMPTS", "0"},
		{"PADEL_HTTP_TIMEOUT_SECONDS", "-1"},
	}
	for _, tc := range tests {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv(tc.key, tc.value)
			if _, err := FromEnv(); err == nil {
				t.Fatalf("FromEnv accepted %s=%s", tc.key, tc.value)
			}
		})
	}
}
