package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// HTTP
	HTTPAddr           string
	CORSAllowedOrigins []string
	JWTSecret          string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSchema   string
	// Memory keeps all state in process; used by the simulator and local runs.
	UseMemoryStore bool

	// Redis (activity feed)
	RedisAddr     string
	RedisPassword string
	FeedKey       string
	FeedMaxLen    int64

	// Gateway
	GatewayBaseURL   string
	GatewayKeyID     string
	GatewayKeySecret string
	GatewayTimeout   time.Duration
	GatewayRPS       float64

	// MonthlyPlans maps a billing currency to the gateway plan id.
	MonthlyPlans map[string]string

	LogLevel string
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:           getEnv("HTTP_ADDR", ":8080"),
		CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		JWTSecret:          getEnv("JWT_SECRET", ""),

		DBHost:         getEnv("BLUEPRINT_DB_HOST", "localhost"),
		DBPort:         getEnv("BLUEPRINT_DB_PORT", "5432"),
		DBUser:         getEnv("BLUEPRINT_DB_USERNAME", "postgres"),
		DBPassword:     getEnv("BLUEPRINT_DB_PASSWORD", ""),
		DBName:         getEnv("BLUEPRINT_DB_DATABASE", "founding"),
		DBSchema:       getEnv("BLUEPRINT_DB_SCHEMA", "public"),
		UseMemoryStore: getEnvBool("USE_MEMORY_STORE", false),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		FeedKey:       getEnv("ACTIVITY_FEED_KEY", "activity:feed"),
		FeedMaxLen:    int64(getEnvInt("ACTIVITY_FEED_MAX_LEN", 200)),

		GatewayBaseURL:   strings.TrimSuffix(getEnv("GATEWAY_BASE_URL", "https://api.razorpay.com"), "/"),
		GatewayKeyID:     getEnv("GATEWAY_KEY_ID", ""),
		GatewayKeySecret: getEnv("GATEWAY_KEY_SECRET", ""),
		GatewayTimeout:   getEnvDuration("GATEWAY_TIMEOUT", 15*time.Second),
		GatewayRPS:       getEnvFloat("GATEWAY_RPS", 10),

		MonthlyPlans: map[string]string{
			"INR": getEnv("PLAN_MONTHLY_INR", ""),
			"USD": getEnv("PLAN_MONTHLY_USD", ""),
			"GBP": getEnv("PLAN_MONTHLY_GBP", ""),
			"EUR": getEnv("PLAN_MONTHLY_EUR", ""),
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return cfg, cfg.Validate()
}

// Validate checks the settings the server cannot start without.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GatewayKeyID == "" || c.GatewayKeySecret == "" {
		return fmt.Errorf("GATEWAY_KEY_ID and GATEWAY_KEY_SECRET are required")
	}
	if c.GatewayTimeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive, got %s", c.GatewayTimeout)
	}
	return nil
}

// PostgresDSN builds the connection string for the pgx driver.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSchema,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
