package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"cinegen-server/modules/common/logger"
)

// Config - every environment setting the server reads
type Config struct {
	// Gemini API
	GeminiAPIKeys      []string // first key is GEMINI_API_KEY, the rest come from GEMINI_API_KEYS
	GeminiModel        string
	UseVertexAI        bool
	VertexAIProject    string
	VertexAILocation   string
	GeminiRateInterval time.Duration
	RequestTimeout     time.Duration
	StrictSceneCount   bool

	// Redis (optional; empty host keeps sessions in memory)
	RedisHost     string
	RedisPort     string
	RedisUsername string
	RedisPassword string
	RedisUseTLS   bool

	// Supabase (optional; export is disabled without it)
	SupabaseURL        string
	SupabaseServiceKey string

	// Server
	Port          string
	AllowedOrigin string
	SessionTTL    time.Duration
	MaxImageBytes int64
	LogLevel      string
}

const (
	DefaultGeminiModel    = "gemini-2.5-flash"
	DefaultRequestTimeout = 120 * time.Second
	DefaultSessionTTL     = 2 * time.Hour
	DefaultMaxImageBytes  = 10 << 20
)

// LoadConfig - read .env (if present) and the environment
func LoadConfig() (*Config, error) {
	log := logger.WithModule("Config")

	if err := godotenv.Load(); err != nil {
		log.Debug("⚠️  .env file not found, using environment variables")
	}

	cfg := &Config{
		GeminiAPIKeys:      collectAPIKeys(getEnv("GEMINI_API_KEY", ""), getEnv("GEMINI_API_KEYS", "")),
		GeminiModel:        getEnv("GEMINI_MODEL", DefaultGeminiModel),
		UseVertexAI:        getBool("GEMINI_USE_VERTEXAI", false),
		VertexAIProject:    getEnv("VERTEXAI_PROJECT", ""),
		VertexAILocation:   getEnv("VERTEXAI_LOCATION", "us-central1"),
		GeminiRateInterval: getDuration("GEMINI_RATE_INTERVAL", 0),
		RequestTimeout:     getDuration("REQUEST_TIMEOUT", DefaultRequestTimeout),
		StrictSceneCount:   getBool("STRICT_SCENE_COUNT", false),

		RedisHost:     getEnv("REDIS_HOST", ""),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisUsername: getEnv("REDIS_USERNAME", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisUseTLS:   getBool("REDIS_USE_TLS", false),

		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_KEY", ""),

		Port:          getEnv("PORT", "8080"),
		AllowedOrigin: getEnv("ALLOWED_ORIGIN", "*"),
		SessionTTL:    getDuration("SESSION_TTL", DefaultSessionTTL),
		MaxImageBytes: getInt64("MAX_IMAGE_BYTES", DefaultMaxImageBytes),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Info("✅ Configuration loaded successfully")
	log.Infof("   Gemini: %s (keys: %d, vertex: %v, timeout: %s)", cfg.GeminiModel, len(cfg.GeminiAPIKeys), cfg.UseVertexAI, cfg.RequestTimeout)
	if cfg.RedisEnabled() {
		log.Infof("   Redis: %s (TLS: %v)", cfg.GetRedisAddr(), cfg.RedisUseTLS)
	} else {
		log.Info("   Redis: disabled, sessions kept in memory")
	}
	log.Infof("   Supabase export: %v", cfg.SupabaseEnabled())

	return cfg, nil
}

// validate - reject settings the server cannot start with
func (c *Config) validate() error {
	if c.UseVertexAI {
		if c.VertexAIProject == "" {
			return fmt.Errorf("VERTEXAI_PROJECT is required when GEMINI_USE_VERTEXAI is set")
		}
	} else if len(c.GeminiAPIKeys) == 0 {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	if (c.SupabaseURL == "") != (c.SupabaseServiceKey == "") {
		return fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY must be set together")
	}
	return nil
}

// RedisEnabled - Redis snapshots are used only when a host is configured
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// SupabaseEnabled - export needs both URL and service key
func (c *Config) SupabaseEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// GetRedisAddr - host:port for the Redis client
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

func collectAPIKeys(primary, extra string) []string {
	var keys []string
	seen := map[string]bool{}
	add := func(k string) {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		keys = append(keys, k)
	}
	add(primary)
	for _, k := range strings.Split(extra, ",") {
		add(k)
	}
	return keys
}

// getEnv - environment value or the default when unset
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseBool(raw); err == nil {
			return parsed
		}
		logger.WithModule("Config").Warnf("⚠️  Invalid boolean for %s: %q, using %v", key, raw, defaultValue)
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			return parsed
		}
		logger.WithModule("Config").Warnf("⚠️  Invalid duration for %s: %q, using %s", key, raw, defaultValue)
	}
	return defaultValue
}

func getInt64(key string, defaultValue int64) int64 {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return parsed
		}
		logger.WithModule("Config").Warnf("⚠️  Invalid integer for %s: %q, using %d", key, raw, defaultValue)
	}
	return defaultValue
}
