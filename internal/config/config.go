package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Redis (sessions, cooldowns)
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration

	// TechAura order backend
	TechAuraAPIBaseURL string
	TechAuraAPIKey     string

	// Outbound gate policy knobs
	GateMinFollowUpGap      time.Duration
	GateMinActiveGap        time.Duration
	GateSendWindowStart     string
	GateSendWindowEnd       string
	GateSendWindowTimezone  string
	GatePerChatHourlyLimit  int
	GateMinSendInterval     time.Duration
	GateMinDelay            time.Duration
	GateMaxDelay            time.Duration
	GateFailOpenOnCooldown  bool
	GateFailOpenOnContent   bool
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 0),

		TechAuraAPIBaseURL: getEnv("TECHAURA_API_BASE_URL", "https://api.techaura.com/v1"),
		TechAuraAPIKey:     getEnv("TECHAURA_API_KEY", ""),

		GateMinFollowUpGap:      getEnvAsDuration("GATE_MIN_FOLLOWUP_GAP", 24*time.Hour),
		GateMinActiveGap:        getEnvAsDuration("GATE_MIN_ACTIVE_GAP", time.Hour),
		GateSendWindowStart:     getEnv("GATE_SEND_WINDOW_START", "08:00"),
		GateSendWindowEnd:       getEnv("GATE_SEND_WINDOW_END", "21:00"),
		GateSendWindowTimezone:  getEnv("GATE_SEND_WINDOW_TZ", "America/Bogota"),
		GatePerChatHourlyLimit:  getEnvAsInt("GATE_PER_CHAT_HOURLY_LIMIT", 10),
		GateMinSendInterval:     getEnvAsDuration("GATE_MIN_SEND_INTERVAL", 45*time.Second),
		GateMinDelay:            getEnvAsDuration("GATE_MIN_DELAY", 800*time.Millisecond),
		GateMaxDelay:            getEnvAsDuration("GATE_MAX_DELAY", 2500*time.Millisecond),
		GateFailOpenOnCooldown:  getEnvAsBool("GATE_FAIL_OPEN_COOLDOWN", true),
		GateFailOpenOnContent:   getEnvAsBool("GATE_FAIL_OPEN_CONTENT", true),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
