package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config carries everything the core components take at construction time.
// No component reads the environment on its own.
type Config struct {
	// Headless controls whether booking sessions run a visible browser.
	Headless bool
	// DefaultTimeout bounds readiness waits and enabled-click retries.
	DefaultTimeout time.Duration
	// PollInterval bounds how long the idle worker sleeps before
	// re-checking the stop signal.
	PollInterval time.Duration
	// ReadyAttempts bounds widget readiness retries.
	ReadyAttempts int
	// HTTPTimeout bounds catalog and slot queries.
	HTTPTimeout time.Duration
	// LogLevel is a zerolog level name ("debug", "info", ...).
	LogLevel string
}

func FromEnv() (Config, error) {
	cfg := Config{
		LogLevel: getenv("PADEL_LOG_LEVEL", "info"),
	}

	headless, err := strconv.ParseBool(getenv("PADEL_HEADLESS", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid PADEL_HEADLESS")
	}
	cfg.Headless = headless

	timeoutSec, err := strconv.Atoi(getenv("PADEL_TIMEOUT_SECONDS", "30"))
	if err != nil || timeoutSec < 1 {
		return Config{}, fmt.Errorf("invalid PADEL_TIMEOUT_SECONDS")
	}
	cfg.DefaultTimeout = time.Duration(timeoutSec) * time.Second

	pollMs, err := strconv.Atoi(getenv("PADEL_POLL_MS", "500"))
	if err != nil || pollMs < 50 {
		return Config{}, fmt.Errorf("invalid PADEL_POLL_MS")
	}
	cfg.PollInterval = time.Duration(pollMs) * time.Millisecond

	attempts, err := strconv.Atoi(getenv("PADEL_READY_ATTEMPTS", "3"))
	if err != nil || attempts < 1 {
		return Config{}, fmt.Errorf("invalid PADEL_READY_ATTEMPTS")
	}
	cfg.ReadyAttempts = attempts

	httpSec, err := strconv.Atoi(getenv("PADEL_HTTP_TIMEOUT_SECONDS", "30"))
	if err != nil || httpSec < 1 {
		return Config{}, fmt.Errorf("invalid PADEL_HTTP_TIMEOUT_SECONDS")
	}
	cfg.HTTPTimeout = time.Duration(httpSec) * time.Second

	return cfg, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}
