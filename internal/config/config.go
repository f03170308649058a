package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Server configuration
	Server ServerConfig

	// Security configuration
	Security SecurityConfig

	// CORS configuration
	CORS CORSConfig

	// Logging configuration
	Logging LoggingConfig

	// Catalog (Spotify) configuration
	Catalog CatalogConfig

	// Session tier configuration
	Session SessionConfig

	// Analytics event configuration
	Events EventsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL      string // Full PostgreSQL URL
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int
	Host string
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds security-related settings
type SecurityConfig struct {
	JWTSecret string
	JWTTTL    time.Duration
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
}

// CatalogConfig holds the credentials and limits for the external catalog.
type CatalogConfig struct {
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
	RateLimit    float64 // requests per second
}

// SessionConfig selects and configures the session ranking tier.
type SessionConfig struct {
	Backend       string // memory, redis
	CookieName    string
	TTL           time.Duration
	SecureCookie  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// EventsConfig configures the ranking event publisher. No brokers disables publishing.
type EventsConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables, after applying any .env file found.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	if err := cfg.loadDatabase(); err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}

	if err := cfg.loadServer(); err != nil {
		return nil, fmt.Errorf("load server config: %w", err)
	}

	if err := cfg.loadSecurity(); err != nil {
		return nil, fmt.Errorf("load security config: %w", err)
	}

	cfg.loadCORS()
	cfg.loadLogging()

	if err := cfg.loadCatalog(); err != nil {
		return nil, fmt.Errorf("load catalog config: %w", err)
	}

	if err := cfg.loadSession(); err != nil {
		return nil, fmt.Errorf("load session config: %w", err)
	}

	cfg.loadEvents()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// LoadDatabase reads only the database and logging settings. Tools that never
// serve HTTP, such as the migrator, use it instead of Load.
func LoadDatabase() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := cfg.loadDatabase(); err != nil {
		return nil, fmt.Errorf("load database config: %w", err)
	}
	cfg.loadLogging()

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("configuration validation failed:\n  - DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}

	return cfg, nil
}

func (c *Config) loadDatabase() error {
	c.Database.URL = os.Getenv("DATABASE_URL")

	// If not present, construct from individual parameters
	if c.Database.URL == "" {
		c.Database.Host = getEnvOrDefault("DB_HOST", "localhost")
		c.Database.User = os.Getenv("DB_USER")
		c.Database.Password = os.Getenv("DB_PASSWORD")
		c.Database.Name = os.Getenv("DB_NAME")
		c.Database.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")

		port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
		if err != nil {
			return fmt.Errorf("invalid DB_PORT: %w", err)
		}
		c.Database.Port = port

		if c.Database.Host != "" && c.Database.User != "" && c.Database.Name != "" {
			c.Database.URL = fmt.Sprintf(
				"postgresql://%s:%s@%s:%d/%s?sslmode=%s",
				c.Database.User,
				c.Database.Password,
				c.Database.Host,
				c.Database.Port,
				c.Database.Name,
				c.Database.SSLMode,
			)
		}
	}

	return nil
}

func (c *Config) loadServer() error {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	c.Server.Port = port
	c.Server.Host = getEnvOrDefault("HOST", "0.0.0.0")
	return nil
}

func (c *Config) loadSecurity() error {
	c.Security.JWTSecret = os.Getenv("JWT_SECRET")

	ttl, err := time.ParseDuration(getEnvOrDefault("JWT_TTL", "24h"))
	if err != nil {
		return fmt.Errorf("invalid JWT_TTL: %w", err)
	}
	c.Security.JWTTTL = ttl
	return nil
}

func (c *Config) loadCORS() {
	originsEnv := os.Getenv("CORS_ALLOWED_ORIGINS")
	if originsEnv != "" {
		c.CORS.AllowedOrigins = splitList(originsEnv)
	} else {
		// Default for local development
		c.CORS.AllowedOrigins = []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}
	}
}

func (c *Config) loadLogging() {
	c.Logging.Level = getEnvOrDefault("LOG_LEVEL", "info")
	c.Logging.Format = getEnvOrDefault("LOG_FORMAT", "json")
}

func (c *Config) loadCatalog() error {
	c.Catalog.ClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	c.Catalog.ClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")

	timeout, err := time.ParseDuration(getEnvOrDefault("CATALOG_TIMEOUT", "10s"))
	if err != nil {
		return fmt.Errorf("invalid CATALOG_TIMEOUT: %w", err)
	}
	c.Catalog.Timeout = timeout

	limit, err := strconv.ParseFloat(getEnvOrDefault("CATALOG_RATE_LIMIT", "10"), 64)
	if err != nil {
		return fmt.Errorf("invalid CATALOG_RATE_LIMIT: %w", err)
	}
	c.Catalog.RateLimit = limit
	return nil
}

func (c *Config) loadSession() error {
	c.Session.Backend = strings.ToLower(getEnvOrDefault("SESSION_BACKEND", "memory"))
	c.Session.CookieName = getEnvOrDefault("SESSION_COOKIE", "trackrank_session")
	c.Session.SecureCookie = c.IsProduction()
	c.Session.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	c.Session.RedisPassword = os.Getenv("REDIS_PASSWORD")

	ttl, err := time.ParseDuration(getEnvOrDefault("SESSION_TTL", "336h"))
	if err != nil {
		return fmt.Errorf("invalid SESSION_TTL: %w", err)
	}
	c.Session.TTL = ttl

	db, err := strconv.Atoi(getEnvOrDefault("REDIS_DB", "0"))
	if err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	c.Session.RedisDB = db
	return nil
}

func (c *Config) loadEvents() {
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		c.Events.Brokers = splitList(brokers)
	}
	c.Events.Topic = getEnvOrDefault("KAFKA_TOPIC", "ranking-events")
}

// Validate checks that all required configuration is present and valid
func (c *Config) Validate() error {
	var errors []string

	if c.Database.URL == "" {
		errors = append(errors, "DATABASE_URL is required (or DB_HOST, DB_USER, DB_NAME)")
	}

	if c.Security.JWTSecret == "" {
		errors = append(errors, "JWT_SECRET is required")
	}
	if len(c.Security.JWTSecret) < 16 {
		errors = append(errors, "JWT_SECRET must be at least 16 characters")
	}
	if c.Security.JWTTTL <= 0 {
		errors = append(errors, "JWT_TTL must be positive")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "PORT must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		errors = append(errors, "LOG_LEVEL must be one of: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		errors = append(errors, "LOG_FORMAT must be one of: json, text")
	}

	if c.Catalog.ClientID == "" || c.Catalog.ClientSecret == "" {
		errors = append(errors, "SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET are required")
	}
	if c.Catalog.Timeout <= 0 {
		errors = append(errors, "CATALOG_TIMEOUT must be positive")
	}
	if c.Catalog.RateLimit <= 0 {
		errors = append(errors, "CATALOG_RATE_LIMIT must be positive")
	}

	validBackends := map[string]bool{"memory": true, "redis": true}
	if !validBackends[c.Session.Backend] {
		errors = append(errors, "SESSION_BACKEND must be one of: memory, redis")
	}
	if c.Session.TTL <= 0 {
		errors = append(errors, "SESSION_TTL must be positive")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(os.Getenv("ENV"))
	return env == "production"
}

// getEnvOrDefault returns the environment variable value or a default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
