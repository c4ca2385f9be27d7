package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabasesConfig `mapstructure:"database"`
	Gateway  GatewayConfig   `mapstructure:"gateway"`
	Callback CallbackConfig  `mapstructure:"callback"`
	Consent  ConsentConfig   `mapstructure:"consent"`
	Fetch    FetchConfig     `mapstructure:"fetch"`
	Crypto   CryptoConfig    `mapstructure:"crypto"`
	Logging  LoggingConfig   `mapstructure:"logging"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Hostname     string        `mapstructure:"hostname"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabasesConfig holds all database configurations
type DatabasesConfig struct {
	ABDM DatabaseConfig `mapstructure:"abdm"`
}

// DatabaseConfig holds individual database configuration
type DatabaseConfig struct {
	Type            string        `mapstructure:"type"`
	Hostname        string        `mapstructure:"hostname"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// GatewayConfig holds the ABDM gateway client configuration
type GatewayConfig struct {
	BaseURL        string           `mapstructure:"base_url"`
	CMID           string           `mapstructure:"cm_id"`
	HIUID          string           `mapstructure:"hiu_id"`
	ClientID       string           `mapstructure:"client_id"`
	CredentialsRef string           `mapstructure:"credentials_ref"`
	Timeout        time.Duration    `mapstructure:"timeout"`
	Retry          RetryConfig      `mapstructure:"retry"`
	Endpoints      GatewayEndpoints `mapstructure:"endpoints"`
}

// RetryConfig holds bounded exponential backoff parameters for outbound calls
type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
}

// GatewayEndpoints holds the gateway endpoint paths
type GatewayEndpoints struct {
	Session            string `mapstructure:"session"`
	ConsentRequestInit string `mapstructure:"consent_request_init"`
	ConsentRevoke      string `mapstructure:"consent_revoke"`
	HealthInfoRequest  string `mapstructure:"health_info_request"`
}

// CallbackConfig holds callback receiver configuration
type CallbackConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Workers          int           `mapstructure:"workers"`
	QueueSize        int           `mapstructure:"queue_size"`
	DedupeCacheSize  int           `mapstructure:"dedupe_cache_size"`
	DedupeTTL        time.Duration `mapstructure:"dedupe_ttl"`
	RecoveryInterval time.Duration `mapstructure:"recovery_interval"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	// VerifySignatures requires X-Timestamp and X-Signature on inbound callbacks
	VerifySignatures bool `mapstructure:"verify_signatures"`
}

// ConsentConfig holds consent lifecycle configuration
type ConsentConfig struct {
	DefaultExpiry  time.Duration `mapstructure:"default_expiry"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size"`
}

// FetchConfig holds health record fetch configuration
type FetchConfig struct {
	// StallTimeout of zero disables stalled fetch reporting
	StallTimeout time.Duration `mapstructure:"stall_timeout"`
}

// CryptoConfig holds health information decryption configuration
type CryptoConfig struct {
	Scheme       string `mapstructure:"scheme"`
	MasterKeyRef string `mapstructure:"master_key_ref"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig holds prometheus exposition configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Crypto schemes
const (
	CryptoSchemeAESGCM    = "aes-gcm"
	CryptoSchemePlaintext = "plaintext"
)

var globalConfig *Config

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("../../configs")
		v.AddConfigPath(".")
	}

	setDefaults(v)

	// ABDM_GATEWAY_BASE_URL overrides gateway.base_url
	v.SetEnvPrefix("ABDM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	globalConfig = &config
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.hostname", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.abdm.type", "mysql")
	v.SetDefault("database.abdm.port", 3306)
	v.SetDefault("database.abdm.max_open_conns", 25)
	v.SetDefault("database.abdm.max_idle_conns", 5)
	v.SetDefault("database.abdm.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.abdm.connect_timeout", 30*time.Second)

	v.SetDefault("gateway.cm_id", "sbx")
	v.SetDefault("gateway.timeout", 30*time.Second)
	v.SetDefault("gateway.retry.max_attempts", 3)
	v.SetDefault("gateway.retry.initial_interval", 500*time.Millisecond)
	v.SetDefault("gateway.retry.max_interval", 10*time.Second)
	v.SetDefault("gateway.retry.multiplier", 2.0)
	v.SetDefault("gateway.endpoints.session", "/v0.5/sessions")
	v.SetDefault("gateway.endpoints.consent_request_init", "/v0.5/consent-requests/init")
	v.SetDefault("gateway.endpoints.consent_revoke", "/v0.5/consents/revoke")
	v.SetDefault("gateway.endpoints.health_info_request", "/v0.5/health-information/cm/request")

	v.SetDefault("callback.workers", 4)
	v.SetDefault("callback.queue_size", 256)
	v.SetDefault("callback.dedupe_cache_size", 10000)
	v.SetDefault("callback.dedupe_ttl", 15*time.Minute)
	v.SetDefault("callback.recovery_interval", time.Minute)
	v.SetDefault("callback.max_attempts", 5)
	v.SetDefault("callback.max_body_bytes", 32<<20)
	v.SetDefault("callback.verify_signatures", false)

	v.SetDefault("consent.default_expiry", 30*24*time.Hour)
	v.SetDefault("consent.sweep_interval", 5*time.Minute)
	v.SetDefault("consent.sweep_batch_size", 200)

	v.SetDefault("crypto.scheme", CryptoSchemeAESGCM)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.ABDM.Hostname == "" {
		return fmt.Errorf("database hostname is required")
	}

	if config.Database.ABDM.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if config.Gateway.BaseURL == "" {
		return fmt.Errorf("gateway base URL is required")
	}

	if config.Gateway.ClientID == "" {
		return fmt.Errorf("gateway client ID is required")
	}

	if config.Gateway.CredentialsRef == "" {
		return fmt.Errorf("gateway credentials reference is required")
	}

	if config.Gateway.Retry.MaxAttempts < 1 {
		return fmt.Errorf("gateway retry max attempts must be at least 1")
	}

	if config.Gateway.Retry.Multiplier < 1 {
		return fmt.Errorf("gateway retry multiplier must be at least 1")
	}

	if config.Callback.BaseURL == "" {
		return fmt.Errorf("callback base URL is required")
	}

	if config.Callback.Workers < 1 {
		return fmt.Errorf("callback workers must be at least 1")
	}

	if config.Callback.MaxBodyBytes <= 0 {
		return fmt.Errorf("callback max body bytes must be positive")
	}

	if config.Consent.SweepInterval <= 0 {
		return fmt.Errorf("consent sweep interval must be positive")
	}

	if config.Consent.DefaultExpiry <= 0 {
		return fmt.Errorf("consent default expiry must be positive")
	}

	switch config.Crypto.Scheme {
	case CryptoSchemeAESGCM:
		if config.Crypto.MasterKeyRef == "" {
			return fmt.Errorf("crypto master key reference is required for scheme %s", CryptoSchemeAESGCM)
		}
	case CryptoSchemePlaintext:
	default:
		return fmt.Errorf("unsupported crypto scheme: %s", config.Crypto.Scheme)
	}

	return nil
}

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// SetGlobal sets the global configuration (for testing purposes)
func SetGlobal(cfg *Config) {
	globalConfig = cfg
}

// GetDSN returns the database connection string
func (d *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true",
		d.User,
		d.Password,
		d.Hostname,
		d.Port,
		d.Database,
	)
}

// GetServerAddress returns the server address in host:port format
func (s *ServerConfig) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", s.Hostname, s.Port)
}

// GetGatewayURL returns the full URL for a gateway endpoint
func (g *GatewayConfig) GetGatewayURL(endpoint string) string {
	return strings.TrimRight(g.BaseURL, "/") + endpoint
}

// ConsentCallbackURL returns the consent notification URL advertised to the network
func (c *CallbackConfig) ConsentCallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/callbacks/consent"
}

// HealthInfoCallbackURL returns the data push URL advertised to the network
func (c *CallbackConfig) HealthInfoCallbackURL() string {
	return strings.TrimRight(c.BaseURL, "/") + "/callbacks/health-information"
}

// ResolveRef resolves a secret reference. Supported forms are env:NAME,
// file:/path and a literal value.
func ResolveRef(ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		name := strings.TrimPrefix(ref, "env:")
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			return "", fmt.Errorf("environment variable %s is not set", name)
		}
		return value, nil
	case strings.HasPrefix(ref, "file:"):
		data, err := os.ReadFile(strings.TrimPrefix(ref, "file:"))
		if err != nil {
			return "", fmt.Errorf("failed to read secret file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case ref == "":
		return "", fmt.Errorf("secret reference is empty")
	default:
		return ref, nil
	}
}
