package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string

	DatabaseURL  string
	SeedDemoData bool

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	OpenAIAPIKey string
	OpenAIModel  string
	GeminiAPIKey string
	GeminiModel  string

	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	// Call pacing. Defaults mirror the demo UI the backend replaced.
	CallDialDelay     time.Duration
	CallGreetingDelay time.Duration
	CallReplyMinDelay time.Duration
	CallReplyMaxDelay time.Duration
	CallWrapUpDelay   time.Duration
	CallDismissDelay  time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "8080"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SeedDemoData: getEnvAsBool("SEED_DEMO_DATA", false),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		OpenAIAPIKey: getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:  getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		ElevenLabsAPIKey:  getEnv("ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID: getEnv("ELEVENLABS_VOICE_ID", ""),

		CallDialDelay:     getEnvAsDuration("CALL_DIAL_DELAY", 2*time.Second),
		CallGreetingDelay: getEnvAsDuration("CALL_GREETING_DELAY", 1500*time.Millisecond),
		CallReplyMinDelay: getEnvAsDuration("CALL_REPLY_MIN_DELAY", time.Second),
		CallReplyMaxDelay: getEnvAsDuration("CALL_REPLY_MAX_DELAY", 2*time.Second),
		CallWrapUpDelay:   getEnvAsDuration("CALL_WRAPUP_DELAY", 2*time.Second),
		CallDismissDelay:  getEnvAsDuration("CALL_DISMISS_DELAY", 1500*time.Millisecond),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
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

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
