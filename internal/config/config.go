package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the call orchestration service
type Config struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string

	// WebSocket tuning (signaling and monitor connections)
	WSReadTimeout  time.Duration
	WSWriteTimeout time.Duration
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64

	// Call lifecycle
	RingingTimeout time.Duration // ringing -> missed when no answer arrives

	// Recording pipeline
	CaptureDir         string // local scratch dir for raw capture WAVs
	EncodeWorkers      int
	EncodeMaxRetries   int
	EncodeRetryBackoff time.Duration

	// Playback
	PlaybackURLTTL time.Duration

	// Retention
	RetentionMaxAge   time.Duration // 0 disables cleanup
	RetentionInterval time.Duration

	// Lead pricing (debited from partners on connected customer calls)
	LeadPriceCents int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "http://localhost:5173"), ","),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		CaptureDir:     getEnv("CAPTURE_DIR", "/var/lib/callcore/captures"),
	}

	wsReadTimeout, err := strconv.Atoi(getEnv("WS_READ_TIMEOUT", "60"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_READ_TIMEOUT: %w", err)
	}
	config.WSReadTimeout = time.Duration(wsReadTimeout) * time.Second

	wsWriteTimeout, err := strconv.Atoi(getEnv("WS_WRITE_TIMEOUT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}
	config.WSWriteTimeout = time.Duration(wsWriteTimeout) * time.Second

	config.PongWait = config.WSReadTimeout
	config.PingPeriod = (config.PongWait * 9) / 10 // Must be less than pongWait
	config.WriteWait = config.WSWriteTimeout
	config.MaxMessageSize = 16384 // session descriptions can run a few KB

	ringingTimeout, err := strconv.Atoi(getEnv("RINGING_TIMEOUT", "45"))
	if err != nil || ringingTimeout <= 0 {
		return nil, fmt.Errorf("invalid RINGING_TIMEOUT: %q", getEnv("RINGING_TIMEOUT", "45"))
	}
	config.RingingTimeout = time.Duration(ringingTimeout) * time.Second

	config.EncodeWorkers, err = strconv.Atoi(getEnv("ENCODE_WORKERS", "2"))
	if err != nil || config.EncodeWorkers < 1 {
		return nil, fmt.Errorf("invalid ENCODE_WORKERS: %q", getEnv("ENCODE_WORKERS", "2"))
	}

	config.EncodeMaxRetries, err = strconv.Atoi(getEnv("ENCODE_MAX_RETRIES", "3"))
	if err != nil || config.EncodeMaxRetries < 0 {
		return nil, fmt.Errorf("invalid ENCODE_MAX_RETRIES: %q", getEnv("ENCODE_MAX_RETRIES", "3"))
	}

	backoffSecs, err := strconv.Atoi(getEnv("ENCODE_RETRY_BACKOFF", "5"))
	if err != nil || backoffSecs < 1 {
		return nil, fmt.Errorf("invalid ENCODE_RETRY_BACKOFF: %q", getEnv("ENCODE_RETRY_BACKOFF", "5"))
	}
	config.EncodeRetryBackoff = time.Duration(backoffSecs) * time.Second

	urlTTLMins, err := strconv.Atoi(getEnv("PLAYBACK_URL_TTL", "60"))
	if err != nil || urlTTLMins < 1 {
		return nil, fmt.Errorf("invalid PLAYBACK_URL_TTL: %q", getEnv("PLAYBACK_URL_TTL", "60"))
	}
	config.PlaybackURLTTL = time.Duration(urlTTLMins) * time.Minute

	retentionDays, err := strconv.Atoi(getEnv("RETENTION_MAX_DAYS", "0"))
	if err != nil || retentionDays < 0 {
		return nil, fmt.Errorf("invalid RETENTION_MAX_DAYS: %q", getEnv("RETENTION_MAX_DAYS", "0"))
	}
	config.RetentionMaxAge = time.Duration(retentionDays) * 24 * time.Hour

	retentionHours, err := strconv.Atoi(getEnv("RETENTION_INTERVAL", "6"))
	if err != nil || retentionHours < 1 {
		return nil, fmt.Errorf("invalid RETENTION_INTERVAL: %q", getEnv("RETENTION_INTERVAL", "6"))
	}
	config.RetentionInterval = time.Duration(retentionHours) * time.Hour

	config.LeadPriceCents, err = strconv.Atoi(getEnv("LEAD_PRICE_CENTS", "500"))
	if err != nil || config.LeadPriceCents < 0 {
		return nil, fmt.Errorf("invalid LEAD_PRICE_CENTS: %q", getEnv("LEAD_PRICE_CENTS", "500"))
	}

	// Trim spaces from allowed origins
	for i, origin := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(origin)
	}

	return config, nil
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
