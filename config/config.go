package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Redis      RedisConfig      `json:"redis"`
	Auth       AuthConfig       `json:"auth"`
	Logging    LoggingConfig    `json:"logging"`
	RouterPolicy RouterPolicyConfig `json:"router_policy"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Components ComponentsConfig `json:"components"`
	Providers  ProvidersConfig  `json:"providers"`
	Delivery   DeliveryConfig   `json:"delivery"`
}

type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"read_timeout"`
	WriteTimeout int    `json:"write_timeout"`
	IdleTimeout  int    `json:"idle_timeout"`
}

type DatabaseConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Name         string `json:"name"`
	SSLMode      string `json:"ssl_mode"`
	MaxOpenConns int    `json:"max_open_conns"`
	MaxIdleConns int    `json:"max_idle_conns"`
	MaxLifetime  int    `json:"max_lifetime"`
}

type AuthConfig struct {
	JWTSecret      string   `json:"jwt_secret"`
	JWTExpiration  int      `json:"jwt_expiration"`
	AllowedOrigins []string `json:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output"`
}

// RedisConfig backs the Scheduler's per-job execution lock, the Router's
// model-limits cache, and the Gateway's dedupe cache.
type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// RouterPolicyConfig controls the Model Router's routing policy and
// cascading timeouts.
type RouterPolicyConfig struct {
	GlobalTimeoutMs            int `json:"global_timeout_ms"`
	ComplexityTimeoutMs        int `json:"complexity_timeout_ms"`
	LocalAvailabilityTimeoutMs int `json:"local_availability_timeout_ms"`
	MaxRetries                 int `json:"max_retries"`
	ModelLimitsCacheTTLSeconds int `json:"model_limits_cache_ttl_seconds"`
}

// SchedulerConfig controls the durable job loop's tick interval and
// shutdown grace period.
type SchedulerConfig struct {
	Enabled              bool `json:"enabled"`
	TickIntervalSeconds  int  `json:"tick_interval_seconds"`
	ShutdownGraceSeconds int  `json:"shutdown_grace_seconds"`
	LockTTLSeconds       int  `json:"lock_ttl_seconds"`
}

// ComponentsConfig controls the Prompt Component System.
type ComponentsConfig struct {
	DefaultVersion string `json:"default_version"`
}

// ProviderConfig describes one backing LLM provider the Router can call.
type ProviderConfig struct {
	Name    string `json:"name"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Timeout int    `json:"timeout"`
	Local   bool   `json:"local"`
}

type ProvidersConfig struct {
	Local          ProviderConfig `json:"local"`
	CloudPrimary   ProviderConfig `json:"cloud_primary"`
	CloudSecondary ProviderConfig `json:"cloud_secondary"`
}

// DeliveryConfig configures the digest delivery senders (SMTP, WhatsApp).
type DeliveryConfig struct {
	SMTPHost          string `json:"smtp_host"`
	SMTPPort          int    `json:"smtp_port"`
	SMTPUsername      string `json:"smtp_username"`
	SMTPPassword      string `json:"smtp_password"`
	SMTPFrom          string `json:"smtp_from"`
	WhatsAppWebhook   string `json:"whatsapp_webhook"`
	WhatsAppAPIToken  string `json:"whatsapp_api_token"`
}

func LoadConfig() (*Config, error) {
	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsInt("SERVER_READ_TIMEOUT", 30),
			WriteTimeout: getEnvAsInt("SERVER_WRITE_TIMEOUT", 30),
			IdleTimeout:  getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			User:         getEnv("DB_USER", "contentmind"),
			Password:     getEnv("DB_PASSWORD", ""),
			Name:         getEnv("DB_NAME", "contentmind"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvAsInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:      getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
			JWTExpiration:  getEnvAsInt("JWT_EXPIRATION", 3600),
			AllowedOrigins: getEnvAsSlice("ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		RouterPolicy: RouterPolicyConfig{
			GlobalTimeoutMs:            getEnvAsInt("ROUTER_GLOBAL_TIMEOUT_MS", 30000),
			ComplexityTimeoutMs:        getEnvAsInt("ROUTER_COMPLEXITY_TIMEOUT_MS", 2000),
			LocalAvailabilityTimeoutMs: getEnvAsInt("ROUTER_LOCAL_AVAILABILITY_TIMEOUT_MS", 3000),
			MaxRetries:                 getEnvAsInt("ROUTER_MAX_RETRIES", 3),
			ModelLimitsCacheTTLSeconds: getEnvAsInt("ROUTER_MODEL_LIMITS_CACHE_TTL_SECONDS", 3600),
		},
		Scheduler: SchedulerConfig{
			Enabled:              getEnvAsBool("SCHEDULER_ENABLED", true),
			TickIntervalSeconds:  getEnvAsInt("SCHEDULER_TICK_INTERVAL_SECONDS", 60),
			ShutdownGraceSeconds: getEnvAsInt("SCHEDULER_SHUTDOWN_GRACE_SECONDS", 30),
			LockTTLSeconds:       getEnvAsInt("SCHEDULER_LOCK_TTL_SECONDS", 120),
		},
		Components: ComponentsConfig{
			DefaultVersion: getEnv("COMPONENTS_DEFAULT_VERSION", "1.0.0"),
		},
		Providers: ProvidersConfig{
			Local: ProviderConfig{
				Name:    "local",
				BaseURL: getEnv("LOCAL_PROVIDER_BASE_URL", "http://localhost:11434"),
				Timeout: getEnvAsInt("LOCAL_PROVIDER_TIMEOUT", 30),
				Local:   true,
			},
			CloudPrimary: ProviderConfig{
				Name:    getEnv("CLOUD_PRIMARY_NAME", "cloud_primary"),
				BaseURL: getEnv("CLOUD_PRIMARY_BASE_URL", ""),
				APIKey:  getEnv("CLOUD_PRIMARY_API_KEY", ""),
				Timeout: getEnvAsInt("CLOUD_PRIMARY_TIMEOUT", 30),
			},
			CloudSecondary: ProviderConfig{
				Name:    getEnv("CLOUD_SECONDARY_NAME", "cloud_secondary"),
				BaseURL: getEnv("CLOUD_SECONDARY_BASE_URL", ""),
				APIKey:  getEnv("CLOUD_SECONDARY_API_KEY", ""),
				Timeout: getEnvAsInt("CLOUD_SECONDARY_TIMEOUT", 30),
			},
		},
		Delivery: DeliveryConfig{
			SMTPHost:         getEnv("SMTP_HOST", "localhost"),
			SMTPPort:         getEnvAsInt("SMTP_PORT", 587),
			SMTPUsername:     getEnv("SMTP_USERNAME", ""),
			SMTPPassword:     getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:         getEnv("SMTP_FROM", "digest@contentmind.local"),
			WhatsAppWebhook:  getEnv("WHATSAPP_WEBHOOK_URL", ""),
			WhatsAppAPIToken: getEnv("WHATSAPP_API_TOKEN", ""),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) GetRedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func validateConfig(config *Config) error {
	if config.Database.Password == "" {
		return fmt.Errorf("database password is required (DB_PASSWORD)")
	}

	if config.Auth.JWTSecret == "your-secret-key-change-in-production" {
		return fmt.Errorf("JWT secret must be changed from default value (JWT_SECRET)")
	}

	if config.RouterPolicy.ComplexityTimeoutMs >= config.RouterPolicy.GlobalTimeoutMs {
		return fmt.Errorf("router complexity timeout must be smaller than the global timeout")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
