package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minJWTSecretLength = 32

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	DBQueryTimeout time.Duration

	JWTSecret              string
	JWTAccessTTL           time.Duration
	BcryptCost             int
	AllowAdminRegistration bool

	CORSOrigins      []string
	TrustedProxies   []string
	RateLimitRPM     int
	AuthRateLimitRPM int

	ReadingsListLimit int
	DeviceAPIKey      string
	RedisURL          string
	ReadingsCacheTTL  time.Duration
	RetentionDays     int
	RetentionSchedule string

	AMQPURL            string
	AMQPExchange       string
	AlertPM25Threshold float64
	AlertPM10Threshold float64
	AlertBatteryMin    float64
	AlertCooldown      time.Duration

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present) and the environment, then validates the result.
func Load() (*Config, error) {
	cfg := Read()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Read applies defaults without validating. Tools that never sign tokens use it directly.
func Read() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 1)),
		DBQueryTimeout:          getDuration("DB_QUERY_TIMEOUT", 5*time.Second),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 30*time.Minute),
		BcryptCost:              getInt("BCRYPT_COST", 12),
		AllowAdminRegistration:  getBool("ALLOW_ADMIN_REGISTRATION", true),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		TrustedProxies:          splitCSV(os.Getenv("TRUSTED_PROXIES")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),
		ReadingsListLimit:       getInt("READINGS_LIST_LIMIT", 3000),
		DeviceAPIKey:            strings.TrimSpace(os.Getenv("DEVICE_API_KEY")),
		RedisURL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		ReadingsCacheTTL:        getDuration("READINGS_CACHE_TTL", 10*time.Second),
		RetentionDays:           getInt("RETENTION_DAYS", 0),
		RetentionSchedule:       getEnv("RETENTION_SCHEDULE", "@daily"),
		AMQPURL:                 strings.TrimSpace(os.Getenv("AMQP_URL")),
		AMQPExchange:            getEnv("AMQP_EXCHANGE", "aqms.alerts"),
		AlertPM25Threshold:      getFloat("ALERT_PM25_THRESHOLD", 35.4),
		AlertPM10Threshold:      getFloat("ALERT_PM10_THRESHOLD", 154),
		AlertBatteryMin:         getFloat("ALERT_BATTERY_MIN", 3.3),
		AlertCooldown:           getDuration("ALERT_COOLDOWN", 30*time.Minute),
		LogLevel:                getEnv("LOG_LEVEL", "info"),
		LogFormat:               getEnv("LOG_FORMAT", "pretty"),
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	if c.JWTAccessTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL must be positive")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be within 4..31")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DBQueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT must be positive")
	}

	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
	}

	if c.ReadingsListLimit <= 0 {
		return fmt.Errorf("READINGS_LIST_LIMIT must be positive")
	}

	for _, proxy := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}

	if c.RetentionDays < 0 {
		return fmt.Errorf("RETENTION_DAYS cannot be negative")
	}

	if c.RetentionDays > 0 && strings.TrimSpace(c.RetentionSchedule) == "" {
		return fmt.Errorf("RETENTION_SCHEDULE is required when RETENTION_DAYS is set")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getFloat(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
