// Package config provides configuration management for docsign.
// It handles loading configuration from YAML files, applying environment variable
// overrides and command line flags, and validating configuration values for the
// server, database, certificate authority, issuer, store, signing, crypto,
// logging, and security settings.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	JWT      JWTConfig      `yaml:"jwt"`
	CA       CAConfig       `yaml:"ca"`
	Issuer   IssuerConfig   `yaml:"issuer"`
	Store    StoreConfig    `yaml:"store"`
	Signing  SigningConfig  `yaml:"signing"`
	Crypto   CryptoConfig   `yaml:"crypto"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	TLSEnabled     bool          `yaml:"tls_enabled"`
	TLSCert        string        `yaml:"tls_cert"`
	TLSKey         string        `yaml:"tls_key"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Type     string         `yaml:"type"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Database     string `yaml:"database"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	SSLMode      string `yaml:"ssl_mode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// JWTConfig holds the settings used to validate bearer tokens. Tokens are
// minted by the identity collaborator, never by docsign itself.
type JWTConfig struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// CAConfig holds the private certificate authority settings
type CAConfig struct {
	Dir          string `yaml:"dir"`
	KeyBits      int    `yaml:"key_bits"`
	CommonName   string `yaml:"common_name"`
	Organization string `yaml:"organization"`
	Country      string `yaml:"country"`
	ValidityDays int    `yaml:"validity_days"`
}

// IssuerConfig holds end-entity issuance limits
type IssuerConfig struct {
	KeyBits             int `yaml:"key_bits"`
	DefaultValidityDays int `yaml:"default_validity_days"`
	MaxValidityDays     int `yaml:"max_validity_days"`
	MinPassphraseLength int `yaml:"min_passphrase_length"`
}

// StoreConfig holds certificate store settings. MasterKey is 64 hex
// characters; when empty a key is generated and kept in system_config.
type StoreConfig struct {
	MasterKey string `yaml:"master_key"`
}

// SigningConfig holds the document signing defaults
type SigningConfig struct {
	BoxWidth         float64 `yaml:"box_width"`
	BoxHeight        float64 `yaml:"box_height"`
	TrustedRootsFile string  `yaml:"trusted_roots_file"`
	Reason           string  `yaml:"reason"`
	Location         string  `yaml:"location"`
	ContactInfo      string  `yaml:"contact_info"`
}

// CryptoConfig holds cryptographic defaults
type CryptoConfig struct {
	PKCS12Encoding          string `yaml:"pkcs12_encoding"`
	MaxConcurrentOperations int    `yaml:"max_concurrent_operations"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	CORSEnabled bool     `yaml:"cors_enabled"`
	CORSOrigins []string `yaml:"cors_origins"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8000,
			Host:           "0.0.0.0",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 32 << 20,
		},
		Database: DatabaseConfig{
			Type:   "sqlite",
			SQLite: SQLiteConfig{Path: "./data/docsign.db"},
			Postgres: PostgresConfig{
				Port:         5432,
				SSLMode:      "disable",
				MaxOpenConns: 25,
				MaxIdleConns: 5,
			},
		},
		JWT: JWTConfig{
			Issuer: "docsign",
		},
		CA: CAConfig{
			Dir:          "./data/ca",
			KeyBits:      4096,
			CommonName:   "docsign Root CA",
			Organization: "docsign",
			ValidityDays: 3650,
		},
		Issuer: IssuerConfig{
			KeyBits:             2048,
			DefaultValidityDays: 365,
			MaxValidityDays:     3650,
			MinPassphraseLength: 6,
		},
		Signing: SigningConfig{
			BoxWidth:  200,
			BoxHeight: 70,
			Reason:    "Document signed electronically",
		},
		Crypto: CryptoConfig{
			PKCS12Encoding:          "modern",
			MaxConcurrentOperations: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			CORSEnabled: true,
			CORSOrigins: []string{"*"},
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path, DOCSIGN_*
// environment variables and finally flags, each overriding the previous one.
// A missing file is not an error. flags may be nil.
func Load(path string, flags *Flags) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if flags != nil {
		if err := cfg.applyFlagOverrides(flags); err != nil {
			return nil, err
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envString(name string, dst *string) {
	if v := os.Getenv(name); v != "" {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration
func (c *Config) applyEnvOverrides() {
	// Server overrides
	envInt("DOCSIGN_SERVER_PORT", &c.Server.Port)
	envString("DOCSIGN_SERVER_HOST", &c.Server.Host)

	// Database overrides
	envString("DOCSIGN_DB_TYPE", &c.Database.Type)
	envString("DOCSIGN_DB_SQLITE_PATH", &c.Database.SQLite.Path)
	envString("DOCSIGN_DB_POSTGRES_HOST", &c.Database.Postgres.Host)
	envInt("DOCSIGN_DB_POSTGRES_PORT", &c.Database.Postgres.Port)
	envString("DOCSIGN_DB_POSTGRES_DATABASE", &c.Database.Postgres.Database)
	envString("DOCSIGN_DB_POSTGRES_USER", &c.Database.Postgres.User)
	envString("DOCSIGN_DB_POSTGRES_PASSWORD", &c.Database.Postgres.Password)

	envString("DOCSIGN_JWT_SECRET", &c.JWT.Secret)

	envString("DOCSIGN_CA_DIR", &c.CA.Dir)
	envInt("DOCSIGN_CA_KEY_BITS", &c.CA.KeyBits)
	envString("DOCSIGN_CA_COMMON_NAME", &c.CA.CommonName)

	envInt("DOCSIGN_ISSUER_MAX_VALIDITY_DAYS", &c.Issuer.MaxValidityDays)
	envInt("DOCSIGN_ISSUER_MIN_PASSPHRASE_LENGTH", &c.Issuer.MinPassphraseLength)

	envString("DOCSIGN_STORE_MASTER_KEY", &c.Store.MasterKey)
	envString("DOCSIGN_SIGNING_TRUSTED_ROOTS_FILE", &c.Signing.TrustedRootsFile)

	envString("DOCSIGN_CRYPTO_PKCS12_ENCODING", &c.Crypto.PKCS12Encoding)
	envInt("DOCSIGN_CRYPTO_MAX_CONCURRENT_OPERATIONS", &c.Crypto.MaxConcurrentOperations)

	// Logging overrides
	envString("DOCSIGN_LOG_LEVEL", &c.Logging.Level)
}

// applyFlagOverrides copies every flag that was set explicitly on the
// command line.
func (c *Config) applyFlagOverrides(f *Flags) error {
	if v, ok := f.GetServerPort(); ok {
		c.Server.Port = v
	}
	if v, ok := f.GetServerHost(); ok {
		c.Server.Host = v
	}
	if v, ok := f.GetServerReadTimeout(); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid server.read-timeout: %w", err)
		}
		c.Server.ReadTimeout = d
	}
	if v, ok := f.GetServerWriteTimeout(); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid server.write-timeout: %w", err)
		}
		c.Server.WriteTimeout = d
	}
	if v, ok := f.GetServerTLSEnabled(); ok {
		c.Server.TLSEnabled = v
	}
	if v, ok := f.GetServerTLSCert(); ok {
		c.Server.TLSCert = v
	}
	if v, ok := f.GetServerTLSKey(); ok {
		c.Server.TLSKey = v
	}

	if v, ok := f.GetDBType(); ok {
		c.Database.Type = v
	}
	if v, ok := f.GetDBSQLitePath(); ok {
		c.Database.SQLite.Path = v
	}
	if v, ok := f.GetDBPostgresHost(); ok {
		c.Database.Postgres.Host = v
	}
	if v, ok := f.GetDBPostgresPort(); ok {
		c.Database.Postgres.Port = v
	}
	if v, ok := f.GetDBPostgresDatabase(); ok {
		c.Database.Postgres.Database = v
	}
	if v, ok := f.GetDBPostgresUser(); ok {
		c.Database.Postgres.User = v
	}
	if v, ok := f.GetDBPostgresSSLMode(); ok {
		c.Database.Postgres.SSLMode = v
	}

	if v, ok := f.GetJWTIssuer(); ok {
		c.JWT.Issuer = v
	}

	if v, ok := f.GetCADir(); ok {
		c.CA.Dir = v
	}
	if v, ok := f.GetCAKeyBits(); ok {
		c.CA.KeyBits = v
	}
	if v, ok := f.GetCACommonName(); ok {
		c.CA.CommonName = v
	}

	if v, ok := f.GetIssuerMaxValidityDays(); ok {
		c.Issuer.MaxValidityDays = v
	}
	if v, ok := f.GetIssuerMinPassphraseLength(); ok {
		c.Issuer.MinPassphraseLength = v
	}

	if v, ok := f.GetSigningTrustedRootsFile(); ok {
		c.Signing.TrustedRootsFile = v
	}

	if v, ok := f.GetCryptoPKCS12Encoding(); ok {
		c.Crypto.PKCS12Encoding = v
	}
	if v, ok := f.GetCryptoMaxConcurrentOperations(); ok {
		c.Crypto.MaxConcurrentOperations = v
	}

	if v, ok := f.GetLogLevel(); ok {
		c.Logging.Level = v
	}
	if v, ok := f.GetLogFormat(); ok {
		c.Logging.Format = v
	}

	if v, ok := f.GetSecurityCORSEnabled(); ok {
		c.Security.CORSEnabled = v
	}
	if v, ok := f.GetSecurityCORSOrigins(); ok {
		c.Security.CORSOrigins = v
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.TLSEnabled {
		if c.Server.TLSCert == "" || c.Server.TLSKey == "" {
			return fmt.Errorf("TLS enabled but cert or key not specified")
		}
	}

	// Validate database config
	if c.Database.Type != "sqlite" && c.Database.Type != "postgres" {
		return fmt.Errorf("invalid database type: %s (must be 'sqlite' or 'postgres')", c.Database.Type)
	}
	if c.Database.Type == "sqlite" && c.Database.SQLite.Path == "" {
		return fmt.Errorf("SQLite path not specified")
	}
	if c.Database.Type == "postgres" {
		if c.Database.Postgres.Host == "" || c.Database.Postgres.Database == "" {
			return fmt.Errorf("PostgreSQL host and database must be specified")
		}
	}

	// Certificate authority
	if c.CA.Dir == "" {
		return fmt.Errorf("CA directory not specified")
	}
	if c.CA.KeyBits < 2048 {
		return fmt.Errorf("CA key size must be at least 2048 bits")
	}
	if strings.TrimSpace(c.CA.CommonName) == "" {
		return fmt.Errorf("CA common name not specified")
	}
	if c.CA.ValidityDays < 1 {
		return fmt.Errorf("invalid CA validity: %d days", c.CA.ValidityDays)
	}

	// Issuer
	if c.Issuer.KeyBits < 2048 {
		return fmt.Errorf("issuer key size must be at least 2048 bits")
	}
	if c.Issuer.MaxValidityDays < 1 {
		return fmt.Errorf("invalid issuer max validity: %d days", c.Issuer.MaxValidityDays)
	}
	if c.Issuer.DefaultValidityDays < 1 || c.Issuer.DefaultValidityDays > c.Issuer.MaxValidityDays {
		return fmt.Errorf("issuer default validity must be between 1 and %d days", c.Issuer.MaxValidityDays)
	}
	if c.Issuer.MinPassphraseLength < 1 {
		return fmt.Errorf("issuer min passphrase length must be positive")
	}

	if c.Store.MasterKey != "" {
		key, err := hex.DecodeString(c.Store.MasterKey)
		if err != nil || len(key) != 32 {
			return fmt.Errorf("store master key must be 64 hex characters")
		}
	}

	if c.Signing.BoxWidth <= 0 || c.Signing.BoxHeight <= 0 {
		return fmt.Errorf("signing box dimensions must be positive")
	}

	// Validate crypto config
	if c.Crypto.PKCS12Encoding != "modern" && c.Crypto.PKCS12Encoding != "legacy" {
		return fmt.Errorf("invalid pkcs12 encoding: %s (must be 'modern' or 'legacy')", c.Crypto.PKCS12Encoding)
	}
	if c.Crypto.MaxConcurrentOperations < 1 {
		return fmt.Errorf("max concurrent operations must be at least 1")
	}

	// Validate logging config
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	return nil
}

// GetDSN returns the database connection string based on the configured type
func (c *Config) GetDSN() string {
	switch c.Database.Type {
	case "sqlite":
		return c.Database.SQLite.Path
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Database.Postgres.Host,
			c.Database.Postgres.Port,
			c.Database.Postgres.User,
			c.Database.Postgres.Password,
			c.Database.Postgres.Database,
			c.Database.Postgres.SSLMode,
		)
	default:
		return ""
	}
}
