// Package config loads runtime configuration for the shiftline server.
// Precedence: CLI flags > environment variables > defaults, matching the
// teacher repo's own flag.FlagSet + env-override idiom.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the shiftline server.
type Config struct {
	HTTPPort  int
	LogLevel  string
	LogFormat string

	RedisURL string // Call-State Store, Queue, Event Stream backing

	ObjectStoreBucket   string
	ObjectStoreRegion   string
	ObjectStorePrefix   string
	ObjectStoreEndpoint string // non-empty for S3-compatible (non-AWS) endpoints

	RecordingRetentionDays     int
	RecordingRetentionInterval time.Duration

	CatalogBaseURL string
	CatalogAPIKey  string

	MessageGatewayURL       string
	MessageGatewayServiceID string
	MessageGatewayFrom      string

	VoiceOfferGatewayURL    string
	VoiceOfferGatewayAPIKey string

	CarrierAuthToken   string
	CarrierAPIBaseURL  string
	CarrierAPITimeout  time.Duration

	PublicBaseDomain              string
	DefaultTransferFallbackNumber string

	JWTSecret string // hex-encoded 32-byte secret for operator API tokens

	FeatureVoiceAIEnabled   bool
	FeatureRecordingEnabled bool

	PinLength         int
	ShiftListPageSize int
	SessionIdleTTL    time.Duration
	DTMFGatherTimeout time.Duration
	VoiceOfferTimeout time.Duration
}

const (
	defaultHTTPPort          = 8080
	defaultLogLevel          = "info"
	defaultLogFormat         = "text"
	defaultPinLength         = 4
	defaultShiftListPageSize = 3
	defaultSessionIdleTTL    = time.Hour
	defaultDTMFGatherTimeout = 8 * time.Second
	defaultVoiceOfferTimeout = 30 * time.Second
	defaultRecordingRetentionDays     = 0 // disabled by default; operators opt in
	defaultRecordingRetentionInterval = time.Hour
)

const envPrefix = "SHIFTLINE_"

// Load reads a .env file if present (ignored if absent — never required in
// production), then parses CLI flags and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	fs := flag.NewFlagSet("shiftline", flag.ContinueOnError)

	fs.IntVar(&cfg.HTTPPort, "http-port", defaultHTTPPort, "HTTP server listen port (webhooks + operator API)")
	fs.StringVar(&cfg.LogLevel, "log-level", defaultLogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", defaultLogFormat, "log output format (text, json)")
	fs.StringVar(&cfg.RedisURL, "redis-url", "redis://localhost:6379/0", "redis connection URL for state/queue/event-stream")
	fs.StringVar(&cfg.ObjectStoreBucket, "object-store-bucket", "", "S3 bucket for recording assets")
	fs.StringVar(&cfg.ObjectStoreRegion, "object-store-region", "us-east-1", "S3 region")
	fs.StringVar(&cfg.ObjectStorePrefix, "object-store-prefix", "recordings", "S3 key prefix for recordings")
	fs.StringVar(&cfg.ObjectStoreEndpoint, "object-store-endpoint", "", "S3-compatible endpoint override (empty for AWS)")
	fs.IntVar(&cfg.RecordingRetentionDays, "recording-retention-days", defaultRecordingRetentionDays, "delete object-store recordings older than this many days (0 disables retention cleanup)")
	fs.DurationVar(&cfg.RecordingRetentionInterval, "recording-retention-interval", defaultRecordingRetentionInterval, "how often to sweep for expired recordings")
	fs.StringVar(&cfg.CatalogBaseURL, "catalog-base-url", "", "base URL of the record-system API")
	fs.StringVar(&cfg.CatalogAPIKey, "catalog-api-key", "", "API key for the record-system API")
	fs.StringVar(&cfg.MessageGatewayURL, "message-gateway-url", "", "base URL of the text-message gateway")
	fs.StringVar(&cfg.MessageGatewayServiceID, "message-gateway-service-id", "", "service id presented to the text-message gateway")
	fs.StringVar(&cfg.MessageGatewayFrom, "message-gateway-from", "", "from address presented to the text-message gateway")
	fs.StringVar(&cfg.VoiceOfferGatewayURL, "voice-offer-gateway-url", "", "base URL of the outbound voice-offer placement API")
	fs.StringVar(&cfg.VoiceOfferGatewayAPIKey, "voice-offer-gateway-api-key", "", "API key for the outbound voice-offer placement API")
	fs.StringVar(&cfg.CarrierAuthToken, "carrier-auth-token", "", "shared secret validating inbound carrier webhooks")
	fs.StringVar(&cfg.CarrierAPIBaseURL, "carrier-api-base-url", "", "base URL of the carrier's call-control REST API")
	fs.DurationVar(&cfg.CarrierAPITimeout, "carrier-api-timeout", 10*time.Second, "per-request timeout against the carrier control API")
	fs.StringVar(&cfg.PublicBaseDomain, "public-base-domain", "", "public domain used to build carrier callback URLs")
	fs.StringVar(&cfg.DefaultTransferFallbackNumber, "default-transfer-fallback-number", "", "PSTN number used when a provider has no transfer number configured")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", "", "hex-encoded 32-byte secret for operator API tokens (auto-generated if empty)")
	fs.BoolVar(&cfg.FeatureVoiceAIEnabled, "feature-voice-ai-enabled", true, "enable voice-offer calling")
	fs.BoolVar(&cfg.FeatureRecordingEnabled, "feature-recording-enabled", true, "enable call recording")
	fs.IntVar(&cfg.PinLength, "pin-length", defaultPinLength, "length of the worker PIN")
	fs.IntVar(&cfg.ShiftListPageSize, "shift-list-page-size", defaultShiftListPageSize, "shift list pagination page size")
	fs.DurationVar(&cfg.SessionIdleTTL, "session-idle-ttl", defaultSessionIdleTTL, "call-session idle timeout / state TTL")
	fs.DurationVar(&cfg.DTMFGatherTimeout, "dtmf-gather-timeout", defaultDTMFGatherTimeout, "DTMF gather timeout")
	fs.DurationVar(&cfg.VoiceOfferTimeout, "voice-offer-timeout", defaultVoiceOfferTimeout, "per-attempt voice-offer timeout")

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, fmt.Errorf("parsing flags: %w", err)
	}

	// Apply env var overrides for any flags not explicitly set on the command line.
	// CLI flags take precedence over env vars.
	applyEnvOverrides(fs, cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides checks environment variables for any flag that was not
// explicitly provided on the command line, preserving CLI > env > default.
func applyEnvOverrides(fs *flag.FlagSet, cfg *Config) {
	set := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	envMap := map[string]string{
		"http-port":                        envPrefix + "HTTP_PORT",
		"log-level":                        envPrefix + "LOG_LEVEL",
		"log-format":                       envPrefix + "LOG_FORMAT",
		"redis-url":                       envPrefix + "REDIS_URL",
		"object-store-bucket":             envPrefix + "OBJECT_STORE_BUCKET",
		"object-store-region":             envPrefix + "OBJECT_STORE_REGION",
		"object-store-prefix":             envPrefix + "OBJECT_STORE_PREFIX",
		"object-store-endpoint":           envPrefix + "OBJECT_STORE_ENDPOINT",
		"recording-retention-days":        envPrefix + "RECORDING_RETENTION_DAYS",
		"recording-retention-interval":    envPrefix + "RECORDING_RETENTION_INTERVAL",
		"catalog-base-url":                envPrefix + "CATALOG_BASE_URL",
		"catalog-api-key":                 envPrefix + "CATALOG_API_KEY",
		"message-gateway-url":             envPrefix + "MESSAGE_GATEWAY_URL",
		"message-gateway-service-id":      envPrefix + "MESSAGE_GATEWAY_SERVICE_ID",
		"message-gateway-from":            envPrefix + "MESSAGE_GATEWAY_FROM",
		"voice-offer-gateway-url":         envPrefix + "VOICE_OFFER_GATEWAY_URL",
		"voice-offer-gateway-api-key":     envPrefix + "VOICE_OFFER_GATEWAY_API_KEY",
		"carrier-auth-token":              envPrefix + "CARRIER_AUTH_TOKEN",
		"carrier-api-base-url":            envPrefix + "CARRIER_API_BASE_URL",
		"carrier-api-timeout":             envPrefix + "CARRIER_API_TIMEOUT",
		"public-base-domain":              envPrefix + "PUBLIC_BASE_DOMAIN",
		"default-transfer-fallback-number": envPrefix + "DEFAULT_TRANSFER_FALLBACK_NUMBER",
		"jwt-secret":                      envPrefix + "JWT_SECRET",
		"feature-voice-ai-enabled":        envPrefix + "FEATURE_VOICE_AI_ENABLED",
		"feature-recording-enabled":       envPrefix + "FEATURE_RECORDING_ENABLED",
		"pin-length":                      envPrefix + "PIN_LENGTH",
		"shift-list-page-size":            envPrefix + "SHIFT_LIST_PAGE_SIZE",
		"session-idle-ttl":                envPrefix + "SESSION_IDLE_TTL",
		"dtmf-gather-timeout":             envPrefix + "DTMF_GATHER_TIMEOUT",
		"voice-offer-timeout":             envPrefix + "VOICE_OFFER_TIMEOUT",
	}

	for flagName, envVar := range envMap {
		if set[flagName] {
			continue
		}
		val, ok := os.LookupEnv(envVar)
		if !ok || val == "" {
			continue
		}
		switch flagName {
		case "http-port":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.HTTPPort = v
			}
		case "log-level":
			cfg.LogLevel = val
		case "log-format":
			cfg.LogFormat = val
		case "redis-url":
			cfg.RedisURL = val
		case "object-store-bucket":
			cfg.ObjectStoreBucket = val
		case "object-store-region":
			cfg.ObjectStoreRegion = val
		case "object-store-prefix":
			cfg.ObjectStorePrefix = val
		case "object-store-endpoint":
			cfg.ObjectStoreEndpoint = val
		case "recording-retention-days":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.RecordingRetentionDays = v
			}
		case "recording-retention-interval":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.RecordingRetentionInterval = v
			}
		case "catalog-base-url":
			cfg.CatalogBaseURL = val
		case "catalog-api-key":
			cfg.CatalogAPIKey = val
		case "message-gateway-url":
			cfg.MessageGatewayURL = val
		case "message-gateway-service-id":
			cfg.MessageGatewayServiceID = val
		case "message-gateway-from":
			cfg.MessageGatewayFrom = val
		case "voice-offer-gateway-url":
			cfg.VoiceOfferGatewayURL = val
		case "voice-offer-gateway-api-key":
			cfg.VoiceOfferGatewayAPIKey = val
		case "carrier-auth-token":
			cfg.CarrierAuthToken = val
		case "carrier-api-base-url":
			cfg.CarrierAPIBaseURL = val
		case "carrier-api-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.CarrierAPITimeout = v
			}
		case "public-base-domain":
			cfg.PublicBaseDomain = val
		case "default-transfer-fallback-number":
			cfg.DefaultTransferFallbackNumber = val
		case "jwt-secret":
			cfg.JWTSecret = val
		case "feature-voice-ai-enabled":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.FeatureVoiceAIEnabled = v
			}
		case "feature-recording-enabled":
			if v, err := strconv.ParseBool(val); err == nil {
				cfg.FeatureRecordingEnabled = v
			}
		case "pin-length":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.PinLength = v
			}
		case "shift-list-page-size":
			if v, err := strconv.Atoi(val); err == nil {
				cfg.ShiftListPageSize = v
			}
		case "session-idle-ttl":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.SessionIdleTTL = v
			}
		case "dtmf-gather-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.DTMFGatherTimeout = v
			}
		case "voice-offer-timeout":
			if v, err := time.ParseDuration(val); err == nil {
				cfg.VoiceOfferTimeout = v
			}
		}
	}
}

// validate checks that the config values are sane.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http-port must be between 1 and 65535, got %d", c.HTTPPort)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log-level must be one of debug, info, warn, error; got %q", c.LogLevel)
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[strings.ToLower(c.LogFormat)] {
		return fmt.Errorf("log-format must be one of text, json; got %q", c.LogFormat)
	}
	c.LogFormat = strings.ToLower(c.LogFormat)

	if c.PinLength < 3 || c.PinLength > 10 {
		return fmt.Errorf("pin-length must be between 3 and 10, got %d", c.PinLength)
	}
	if c.ShiftListPageSize < 1 {
		return fmt.Errorf("shift-list-page-size must be >= 1, got %d", c.ShiftListPageSize)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("redis-url must be set")
	}
	return nil
}

// JWTSecretBytes returns the decoded 32-byte operator-API signing secret.
// If no secret is configured, it generates a random 32-byte key and stores
// the hex-encoded value back in the config for the process lifetime.
func (c *Config) JWTSecretBytes() ([]byte, error) {
	if c.JWTSecret == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generating jwt secret: %w", err)
		}
		c.JWTSecret = hex.EncodeToString(key)
		slog.Warn("no jwt-secret configured, generated ephemeral key (tokens will not survive restart)")
		return key, nil
	}
	key, err := hex.DecodeString(c.JWTSecret)
	if err != nil {
		return nil, fmt.Errorf("decoding jwt secret: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("jwt secret must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// SlogHandler returns a slog.Handler configured with the appropriate format
// (text or json) and log level.
func (c *Config) SlogHandler(w *os.File) slog.Handler {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SlogLevel returns the slog.Level corresponding to the configured log level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
