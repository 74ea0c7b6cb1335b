package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultGlueHomeHost is the base URL of the Glue Home user API.
const DefaultGlueHomeHost = "https://user-api.gluehome.com"

// Config is the root configuration structure for the Glue Home bridge.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	GlueHome  GlueHomeConfig  `yaml:"gluehome"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GlueHomeConfig contains the cloud API credentials and polling policy.
type GlueHomeConfig struct {
	// Host is the base URL of the Glue Home API.
	// Default: https://user-api.gluehome.com
	Host string `yaml:"host"`

	// APIKey authenticates every call except key issuance.
	// If empty, a key is issued once from Username/Password and stored.
	APIKey string `yaml:"api_key"`

	// Username and Password are only used to issue an API key.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// KeyName is the label the issued API key carries in the Glue Home account.
	// Default: libgluehome
	KeyName string `yaml:"key_name"`

	// PollInterval is how often the lock directory is refreshed (seconds).
	// Default: 30
	PollInterval int `yaml:"poll_interval"`

	// RefreshTimeout bounds a single directory refresh (seconds).
	// Default: 20
	RefreshTimeout int `yaml:"refresh_timeout"`

	// OperationPollDelay is the wait between operation status polls (seconds).
	// Default: 1
	OperationPollDelay int `yaml:"operation_poll_delay"`

	// OperationMaxAttempts is the operation poll budget.
	// Default: 30
	OperationMaxAttempts int `yaml:"operation_max_attempts"`

	// SetupTimeout bounds the retries of the first refresh at startup (seconds).
	// Default: 120
	SetupTimeout int `yaml:"setup_timeout"`
}

// String returns a string representation with secrets masked.
// Use this for logging to prevent credential exposure.
func (g GlueHomeConfig) String() string {
	return fmt.Sprintf("GlueHomeConfig{Host:%q, APIKey:%s, Username:%q, Password:%s, PollInterval:%d}",
		g.Host, redact(g.APIKey), g.Username, redact(g.Password), g.PollInterval)
}

// GetPollInterval returns the directory refresh interval as a Duration.
func (g GlueHomeConfig) GetPollInterval() time.Duration {
	return time.Duration(g.PollInterval) * time.Second
}

// GetRefreshTimeout returns the per-refresh timeout as a Duration.
func (g GlueHomeConfig) GetRefreshTimeout() time.Duration {
	return time.Duration(g.RefreshTimeout) * time.Second
}

// GetOperationPollDelay returns the delay between operation polls as a Duration.
func (g GlueHomeConfig) GetOperationPollDelay() time.Duration {
	return time.Duration(g.OperationPollDelay) * time.Second
}

// GetSetupTimeout returns the first-refresh retry budget as a Duration.
func (g GlueHomeConfig) GetSetupTimeout() time.Duration {
	return time.Duration(g.SetupTimeout) * time.Second
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// JWTSecret signs and verifies bearer tokens. When empty, authentication
	// is off and the API may only bind to a loopback address.
	JWTSecret string `yaml:"jwt_secret"`

	// TokenTTL is the lifetime of tokens minted by "gluehome token" (hours).
	// Default: 720
	TokenTTL int `yaml:"token_ttl"`
}

// String returns a string representation with secrets masked.
func (a APIConfig) String() string {
	return fmt.Sprintf("APIConfig{Enabled:%t, Host:%q, Port:%d, JWTSecret:%s}",
		a.Enabled, a.Host, a.Port, redact(a.JWTSecret))
}

// GetTokenTTL returns the token lifetime as a Duration.
func (a APIConfig) GetTokenTTL() time.Duration {
	return time.Duration(a.TokenTTL) * time.Hour
}

// AuthEnabled reports whether bearer tokens are required.
func (a APIConfig) AuthEnabled() bool {
	return a.JWTSecret != ""
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GLUEHOME_SECTION_KEY
// For example: GLUEHOME_API_KEY, GLUEHOME_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		GlueHome: GlueHomeConfig{
			Host:                 DefaultGlueHomeHost,
			KeyName:              "libgluehome",
			PollInterval:         30,
			RefreshTimeout:       20,
			OperationPollDelay:   1,
			OperationMaxAttempts: 30,
			SetupTimeout:         120,
		},
		Database: DatabaseConfig{
			Path:        "./data/gluehome.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gluehome-bridge",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Enabled:  true,
			Host:     "127.0.0.1",
			Port:     8095,
			TokenTTL: 720,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 60,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GLUEHOME_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Glue Home credentials
	if v := os.Getenv("GLUEHOME_API_KEY"); v != "" {
		cfg.GlueHome.APIKey = v
	}
	if v := os.Getenv("GLUEHOME_USERNAME"); v != "" {
		cfg.GlueHome.Username = v
	}
	if v := os.Getenv("GLUEHOME_PASSWORD"); v != "" {
		cfg.GlueHome.Password = v
	}

	// Database
	if v := os.Getenv("GLUEHOME_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("GLUEHOME_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GLUEHOME_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GLUEHOME_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("GLUEHOME_API_JWT_SECRET"); v != "" {
		cfg.API.JWTSecret = v
	}

	// InfluxDB
	if v := os.Getenv("GLUEHOME_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Glue Home validation
	if c.GlueHome.Host == "" {
		errs = append(errs, "gluehome.host is required")
	}
	if c.GlueHome.APIKey == "" && (c.GlueHome.Username == "" || c.GlueHome.Password == "") {
		errs = append(errs, "gluehome.api_key or gluehome.username and gluehome.password are required")
	}
	if c.GlueHome.PollInterval <= 0 {
		errs = append(errs, "gluehome.poll_interval must be positive")
	}
	if c.GlueHome.RefreshTimeout <= 0 {
		errs = append(errs, "gluehome.refresh_timeout must be positive")
	}
	if c.GlueHome.OperationPollDelay <= 0 {
		errs = append(errs, "gluehome.operation_poll_delay must be positive")
	}
	if c.GlueHome.OperationMaxAttempts <= 0 {
		errs = append(errs, "gluehome.operation_max_attempts must be positive")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	// The API can unlock doors; without a secret it stays on loopback.
	const minJWTSecretLength = 32
	if c.API.JWTSecret != "" && len(c.API.JWTSecret) < minJWTSecretLength {
		errs = append(errs, "api.jwt_secret must be at least 32 characters")
	}
	if c.API.Enabled && !c.API.AuthEnabled() && !isLoopback(c.API.Host) {
		errs = append(errs, "api.jwt_secret is required when api.host is not a loopback address (set GLUEHOME_API_JWT_SECRET)")
	}
	if c.API.AuthEnabled() && c.API.TokenTTL <= 0 {
		errs = append(errs, "api.token_ttl must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// isLoopback reports whether host only accepts local connections.
// An empty host listens on every interface.
func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// redact masks a secret for logging.
func redact(secret string) string {
	if secret == "" {
		return `""`
	}
	return "[REDACTED]"
}
