// Package config handles application configuration loading and management.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	DocDB   DocDBConfig   `yaml:"docdb"`
	Pool    PoolConfig    `yaml:"pool"`
	Query   QueryConfig   `yaml:"query"`
	CORS    CORSConfig    `yaml:"cors"`
	Metrics MetricsConfig `yaml:"metrics"`
	Docs    DocsConfig    `yaml:"docs"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	GinMode           string        `yaml:"gin_mode"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DocDBConfig holds document database configuration.
type DocDBConfig struct {
	Type                   string        `yaml:"type"`
	URI                    string        `yaml:"uri"`
	Database               string        `yaml:"database"`
	Username               string        `yaml:"username"`
	Password               string        `yaml:"password"`
	AuthSource             string        `yaml:"auth_source"`
	AppName                string        `yaml:"app_name"`
	ConnectTimeout         time.Duration `yaml:"connect_timeout"`
	ServerSelectionTimeout time.Duration `yaml:"server_selection_timeout"`
}

// PoolConfig holds connection pool configuration.
type PoolConfig struct {
	MinSize                  int           `yaml:"min_size"`
	MaxSize                  int           `yaml:"max_size"`
	WaitForLease             bool          `yaml:"wait_for_lease"`
	LeaseTimeout             time.Duration `yaml:"lease_timeout"`
	IdleTTL                  time.Duration `yaml:"idle_ttl"`
	DialTimeout              time.Duration `yaml:"dial_timeout"`
	PingTimeout              time.Duration `yaml:"ping_timeout"`
	MaintenanceInterval      time.Duration `yaml:"maintenance_interval"`
	ReconnectInitialInterval time.Duration `yaml:"reconnect_initial_interval"`
	ReconnectMaxInterval     time.Duration `yaml:"reconnect_max_interval"`
	UnavailableAfter         int           `yaml:"unavailable_after"`
}

// QueryConfig bounds what a single request may ask for.
type QueryConfig struct {
	DefaultLimit    int64         `yaml:"default_limit"`
	MaxLimit        int64         `yaml:"max_limit"`
	MaxFilterBytes  int           `yaml:"max_filter_bytes"`
	MaxFilterDepth  int           `yaml:"max_filter_depth"`
	Timeout         time.Duration `yaml:"timeout"`
	BatchSize       int32         `yaml:"batch_size"`
	DeniedOperators []string      `yaml:"denied_operators"`
}

// CORSConfig holds browser access configuration.
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
}

// MetricsConfig holds Prometheus configuration.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// DocsConfig toggles the Swagger UI.
type DocsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "127.0.0.1"),
			Port:              getEnvAsInt("SERVER_PORT", 8080),
			GinMode:           getEnv("GIN_MODE", "release"),
			ReadHeaderTimeout: getEnvAsDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
			ShutdownTimeout:   getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		DocDB: DocDBConfig{
			Type:                   getEnv("DOCDB_TYPE", "mongodb"),
			URI:                    getEnv("MONGODB_URI", ""),
			Database:               getEnv("MONGODB_DATABASE", ""),
			Username:               getEnv("MONGODB_USERNAME", ""),
			Password:               getEnv("MONGODB_PASSWORD", ""),
			AuthSource:             getEnv("MONGODB_AUTH_SOURCE", ""),
			AppName:                getEnv("MONGODB_APP_NAME", "docdb-gateway"),
			ConnectTimeout:         getEnvAsDuration("MONGODB_CONNECT_TIMEOUT", 10*time.Second),
			ServerSelectionTimeout: getEnvAsDuration("MONGODB_SERVER_SELECTION_TIMEOUT", 5*time.Second),
		},
		Pool: PoolConfig{
			MinSize:                  getEnvAsInt("POOL_MIN_SIZE", 1),
			MaxSize:                  getEnvAsInt("POOL_MAX_SIZE", 10),
			WaitForLease:             getEnvAsBool("POOL_WAIT_FOR_LEASE", true),
			LeaseTimeout:             getEnvAsDuration("POOL_LEASE_TIMEOUT", 5*time.Second),
			IdleTTL:                  getEnvAsDuration("POOL_IDLE_TTL", 5*time.Minute),
			DialTimeout:              getEnvAsDuration("POOL_DIAL_TIMEOUT", 10*time.Second),
			PingTimeout:              getEnvAsDuration("POOL_PING_TIMEOUT", 2*time.Second),
			MaintenanceInterval:      getEnvAsDuration("POOL_MAINTENANCE_INTERVAL", 30*time.Second),
			ReconnectInitialInterval: getEnvAsDuration("POOL_RECONNECT_INITIAL_INTERVAL", 500*time.Millisecond),
			ReconnectMaxInterval:     getEnvAsDuration("POOL_RECONNECT_MAX_INTERVAL", 30*time.Second),
			UnavailableAfter:         getEnvAsInt("POOL_UNAVAILABLE_AFTER", 3),
		},
		Query: QueryConfig{
			DefaultLimit:    int64(getEnvAsInt("QUERY_DEFAULT_LIMIT", 50)),
			MaxLimit:        int64(getEnvAsInt("QUERY_MAX_LIMIT", 1000)),
			MaxFilterBytes:  getEnvAsInt("QUERY_MAX_FILTER_BYTES", 16*1024),
			MaxFilterDepth:  getEnvAsInt("QUERY_MAX_FILTER_DEPTH", 32),
			Timeout:         getEnvAsDuration("QUERY_TIMEOUT", 30*time.Second),
			BatchSize:       int32(getEnvAsInt("QUERY_BATCH_SIZE", 101)),
			DeniedOperators: getEnvAsList("QUERY_DENIED_OPERATORS", []string{"$where", "$function", "$accumulator"}),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnvAsList("CORS_ALLOW_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
		},
		Metrics: MetricsConfig{
			Enabled:   getEnvAsBool("METRICS_ENABLED", true),
			Namespace: getEnv("METRICS_NAMESPACE", "docdb_gateway"),
		},
		Docs: DocsConfig{
			Enabled: getEnvAsBool("DOCS_ENABLED", true),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// getEnv gets an environment variable with a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as a boolean with a default value.
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration parses values like "5s" or "250ms".
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated variable.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// String renders the config for logs with the password masked.
func (c *Config) String() string {
	password := ""
	if c.DocDB.Password != "" {
		password = "****"
	}
	return fmt.Sprintf("listen=%s database=%s user=%q password=%q pool=%d..%d limit=%d/%d",
		c.Server.Address(), c.DocDB.Database, c.DocDB.Username, password,
		c.Pool.MinSize, c.Pool.MaxSize, c.Query.DefaultLimit, c.Query.MaxLimit)
}
