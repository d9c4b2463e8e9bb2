package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/platinummonkey/larder/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	ObjectStore   ObjectStoreConfig
	Auth          AuthConfig
	AI            AIConfig
	Quota         QuotaConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string

	AllowedOrigins  []string
	MaxUploadBytes  int64
	DefaultPageSize int

	// RateLimitPerMinute caps requests per caller; 0 disables the limiter
	RateLimitPerMinute int
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL         string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
	AutoMigrate bool
}

// RedisConfig holds redis settings for sessions and OAuth state
type RedisConfig struct {
	URL        string
	Password   string
	DB         int
	MaxRetries int
	PoolSize   int
}

// ObjectStoreConfig selects and configures the image store
type ObjectStoreConfig struct {
	// Backend is one of s3, minio or memory
	Backend       string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	UsePathStyle  bool
	PublicBucket  string
	PrivateBucket string
	PublicBaseURL string
	PresignTTL    time.Duration
	PresignCache  int
}

// AuthConfig holds token and identity provider settings
type AuthConfig struct {
	JWTSecret       string
	AccessTTL       time.Duration
	RefreshTTL      time.Duration
	FrontendURL     string
	CallbackBaseURL string
	SecureCookies   bool

	GoogleClientID     string
	GoogleClientSecret string

	OAuth2ClientID     string
	OAuth2ClientSecret string
	OAuth2AuthURL      string
	OAuth2TokenURL     string
	OAuth2UserInfoURL  string

	SAMLIDPSSOURL      string
	SAMLIDPIssuer      string
	SAMLIDPCertificate string
	SAMLEntityID       string
}

// AIConfig holds generative model settings
type AIConfig struct {
	Enabled    bool
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	PromptFile string
}

// QuotaConfig holds default quota settings and the reset schedule
type QuotaConfig struct {
	DefaultLimit     int
	DefaultFrequency string
	ResetSchedule    string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel observability.LogLevel

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Redis:         loadRedisConfig(),
		ObjectStore:   loadObjectStoreConfig(),
		Auth:          loadAuthConfig(),
		AI:            loadAIConfig(),
		Quota:         loadQuotaConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LARDER_HOST", "0.0.0.0"),
		Port:            getEnv("LARDER_PORT", "8080"),
		ReadTimeout:     getEnvDuration("LARDER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LARDER_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:     getEnvDuration("LARDER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LARDER_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("LARDER_HEALTH_PORT", "9090"),
		AllowedOrigins:  getEnvList("LARDER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		MaxUploadBytes:  getEnvInt64("LARDER_MAX_UPLOAD_BYTES", 200<<20),
		DefaultPageSize: getEnvInt("LARDER_DEFAULT_PAGE_SIZE", 15),

		RateLimitPerMinute: getEnvInt("LARDER_RATE_LIMIT_PER_MINUTE", 600),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:         getEnv("LARDER_DATABASE_URL", ""),
		ReplicaURLs: getEnvList("LARDER_DATABASE_REPLICA_URLS", nil),
		MaxConns:    getEnvInt("LARDER_DATABASE_MAX_CONNS", 20),
		MinConns:    getEnvInt("LARDER_DATABASE_MIN_CONNS", 2),
		Timeout:     getEnvDuration("LARDER_DATABASE_TIMEOUT", 10*time.Second),
		MaxLifetime: getEnvDuration("LARDER_DATABASE_MAX_LIFETIME", 30*time.Minute),
		MaxIdleTime: getEnvDuration("LARDER_DATABASE_MAX_IDLE_TIME", 5*time.Minute),
		AutoMigrate: getEnvBool("LARDER_DATABASE_AUTO_MIGRATE", true),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:        getEnv("LARDER_REDIS_URL", "redis://localhost:6379/0"),
		Password:   getEnv("LARDER_REDIS_PASSWORD", ""),
		DB:         getEnvInt("LARDER_REDIS_DB", -1),
		MaxRetries: getEnvInt("LARDER_REDIS_MAX_RETRIES", 3),
		PoolSize:   getEnvInt("LARDER_REDIS_POOL_SIZE", 0),
	}
}

func loadObjectStoreConfig() ObjectStoreConfig {
	return ObjectStoreConfig{
		Backend:       strings.ToLower(getEnv("LARDER_OBJECTSTORE_BACKEND", "s3")),
		Endpoint:      getEnv("LARDER_OBJECTSTORE_ENDPOINT", ""),
		Region:        getEnv("LARDER_OBJECTSTORE_REGION", "us-east-1"),
		AccessKey:     getEnv("LARDER_OBJECTSTORE_ACCESS_KEY", ""),
		SecretKey:     getEnv("LARDER_OBJECTSTORE_SECRET_KEY", ""),
		UseSSL:        getEnvBool("LARDER_OBJECTSTORE_USE_SSL", true),
		UsePathStyle:  getEnvBool("LARDER_OBJECTSTORE_USE_PATH_STYLE", false),
		PublicBucket:  getEnv("LARDER_OBJECTSTORE_PUBLIC_BUCKET", "larder-public"),
		PrivateBucket: getEnv("LARDER_OBJECTSTORE_PRIVATE_BUCKET", "larder-private"),
		PublicBaseURL: getEnv("LARDER_OBJECTSTORE_PUBLIC_BASE_URL", ""),
		PresignTTL:    getEnvDuration("LARDER_OBJECTSTORE_PRESIGN_TTL", time.Hour),
		PresignCache:  getEnvInt("LARDER_OBJECTSTORE_PRESIGN_CACHE", 4096),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		JWTSecret:       getEnv("LARDER_JWT_SECRET", ""),
		AccessTTL:       getEnvDuration("LARDER_ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTTL:      getEnvDuration("LARDER_REFRESH_TOKEN_TTL", 7*24*time.Hour),
		FrontendURL:     getEnv("LARDER_FRONTEND_URL", "http://localhost:3000"),
		CallbackBaseURL: getEnv("LARDER_CALLBACK_BASE_URL", "http://localhost:8080"),
		SecureCookies:   getEnvBool("LARDER_SECURE_COOKIES", true),

		GoogleClientID:     getEnv("LARDER_GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("LARDER_GOOGLE_CLIENT_SECRET", ""),

		OAuth2ClientID:     getEnv("LARDER_OAUTH2_CLIENT_ID", ""),
		OAuth2ClientSecret: getEnv("LARDER_OAUTH2_CLIENT_SECRET", ""),
		OAuth2AuthURL:      getEnv("LARDER_OAUTH2_AUTH_URL", ""),
		OAuth2TokenURL:     getEnv("LARDER_OAUTH2_TOKEN_URL", ""),
		OAuth2UserInfoURL:  getEnv("LARDER_OAUTH2_USERINFO_URL", ""),

		SAMLIDPSSOURL:      getEnv("LARDER_SAML_IDP_SSO_URL", ""),
		SAMLIDPIssuer:      getEnv("LARDER_SAML_IDP_ISSUER", ""),
		SAMLIDPCertificate: getEnv("LARDER_SAML_IDP_CERTIFICATE", ""),
		SAMLEntityID:       getEnv("LARDER_SAML_ENTITY_ID", "larder"),
	}
}

func loadAIConfig() AIConfig {
	apiKey := getEnv("LARDER_GEMINI_API_KEY", "")
	return AIConfig{
		Enabled:    getEnvBool("LARDER_AI_ENABLED", apiKey != ""),
		APIKey:     apiKey,
		BaseURL:    getEnv("LARDER_GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		Model:      getEnv("LARDER_GEMINI_MODEL", "gemini-1.5-flash"),
		Timeout:    getEnvDuration("LARDER_AI_TIMEOUT", 45*time.Second),
		PromptFile: getEnv("LARDER_AI_PROMPT_FILE", ""),
	}
}

func loadQuotaConfig() QuotaConfig {
	return QuotaConfig{
		DefaultLimit:     getEnvInt("LARDER_QUOTA_AI_LIMIT", 3),
		DefaultFrequency: strings.ToUpper(getEnv("LARDER_QUOTA_AI_FREQUENCY", "DAILY")),
		ResetSchedule:    getEnv("LARDER_QUOTA_RESET_SCHEDULE", "5 0 * * *"),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LARDER_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LARDER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LARDER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LARDER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LARDER_OTEL_SERVICE_NAME", "larder"),
		OTelServiceVersion: getEnv("LARDER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LARDER_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("LARDER_OTEL_SAMPLE_RATIO", 1),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}
	if c.Server.DefaultPageSize <= 0 {
		return fmt.Errorf("default page size must be positive")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 bytes")
	}
	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= c.Auth.AccessTTL {
		return fmt.Errorf("refresh token TTL must exceed access token TTL")
	}

	switch c.ObjectStore.Backend {
	case "s3", "minio":
		if c.ObjectStore.PublicBucket == "" || c.ObjectStore.PrivateBucket == "" {
			return fmt.Errorf("public and private buckets are required for %s object store", c.ObjectStore.Backend)
		}
		if c.ObjectStore.PublicBucket == c.ObjectStore.PrivateBucket {
			return fmt.Errorf("public and private buckets must be different")
		}
		if c.ObjectStore.Backend == "minio" && c.ObjectStore.Endpoint == "" {
			return fmt.Errorf("endpoint is required for minio object store")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid object store backend: %s (must be s3, minio, or memory)", c.ObjectStore.Backend)
	}

	if c.AI.Enabled && c.AI.APIKey == "" {
		return fmt.Errorf("Gemini API key is required when AI is enabled")
	}

	switch c.Quota.DefaultFrequency {
	case "DAILY", "WEEKLY", "MONTHLY", "NONE":
	default:
		return fmt.Errorf("invalid quota frequency: %s", c.Quota.DefaultFrequency)
	}
	if c.Quota.DefaultLimit < 0 {
		return fmt.Errorf("quota limit must not be negative")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
