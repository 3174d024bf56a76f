package config

import (
	"log/slog"
	"os"
	"testing"
)

func clearEnv(t *testing.T) {
	for _, env := range []string{
		"SHIFTLINE_HTTP_PORT", "SHIFTLINE_LOG_LEVEL", "SHIFTLINE_LOG_FORMAT",
		"SHIFTLINE_REDIS_URL", "SHIFTLINE_PIN_LENGTH", "SHIFTLINE_SHIFT_LIST_PAGE_SIZE",
		"SHIFTLINE_SESSION_IDLE_TTL", "SHIFTLINE_CATALOG_BASE_URL",
	} {
		t.Setenv(env, "")
		os.Unsetenv(env)
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline"}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != defaultHTTPPort {
		t.Errorf("HTTPPort = %d, want %d", cfg.HTTPPort, defaultHTTPPort)
	}
	if cfg.LogLevel != defaultLogLevel {
		t.Errorf("LogLevel = %q, want %q", cfg.LogLevel, defaultLogLevel)
	}
	if cfg.LogFormat != defaultLogFormat {
		t.Errorf("LogFormat = %q, want %q", cfg.LogFormat, defaultLogFormat)
	}
	if cfg.PinLength != defaultPinLength {
		t.Errorf("PinLength = %d, want %d", cfg.PinLength, defaultPinLength)
	}
	if cfg.ShiftListPageSize != defaultShiftListPageSize {
		t.Errorf("ShiftListPageSize = %d, want %d", cfg.ShiftListPageSize, defaultShiftListPageSize)
	}
	if cfg.SessionIdleTTL != defaultSessionIdleTTL {
		t.Errorf("SessionIdleTTL = %v, want %v", cfg.SessionIdleTTL, defaultSessionIdleTTL)
	}
}

func TestEnvVarOverride(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline"}
	t.Setenv("SHIFTLINE_HTTP_PORT", "9090")
	t.Setenv("SHIFTLINE_LOG_LEVEL", "debug")
	t.Setenv("SHIFTLINE_CATALOG_BASE_URL", "https://catalog.internal")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 9090 {
		t.Errorf("HTTPPort = %d, want 9090", cfg.HTTPPort)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.CatalogBaseURL != "https://catalog.internal" {
		t.Errorf("CatalogBaseURL = %q, want https://catalog.internal", cfg.CatalogBaseURL)
	}
}

func TestCLIFlagsPrecedence(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline", "--http-port", "3000", "--log-level", "warn"}
	t.Setenv("SHIFTLINE_HTTP_PORT", "9090")
	t.Setenv("SHIFTLINE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.HTTPPort != 3000 {
		t.Errorf("HTTPPort = %d, want 3000 (CLI should override env)", cfg.HTTPPort)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn (CLI should override env)", cfg.LogLevel)
	}
}

func TestValidateInvalidPort(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline", "--http-port", "99999"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid port, got nil")
	}
}

func TestValidateInvalidLogLevel(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline", "--log-level", "verbose"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid log level, got nil")
	}
}

func TestValidateInvalidPinLength(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline", "--pin-length", "1"}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for pin-length out of range, got nil")
	}
}

func TestValidateEmptyRedisURL(t *testing.T) {
	clearEnv(t)
	os.Args = []string{"shiftline", "--redis-url", ""}
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for empty redis-url, got nil")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.SlogLevel(); got != tt.want {
				t.Errorf("SlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJWTSecretBytesGeneratesWhenEmpty(t *testing.T) {
	cfg := &Config{}
	key, err := cfg.JWTSecretBytes()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("generated key length = %d, want 32", len(key))
	}
	if cfg.JWTSecret == "" {
		t.Error("expected JWTSecret to be populated after generation")
	}
}

func TestJWTSecretBytesRejectsWrongLength(t *testing.T) {
	cfg := &Config{JWTSecret: "abcd"}
	if _, err := cfg.JWTSecretBytes(); err == nil {
		t.Fatal("expected error for short secret, got nil")
	}
}
