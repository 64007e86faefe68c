package config

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
)

// Flags holds all command line flag values. Secrets (JWT secret, database
// password, store master key) have no flags; set them in the config file or
// DOCSIGN_* environment variables.
type Flags struct {
	fs *flag.FlagSet

	// General
	configFile     *string
	version        *bool
	sweepCorrupted *bool

	// Server
	serverPort         *int
	serverHost         *string
	serverReadTimeout  *string
	serverWriteTimeout *string
	serverTLSEnabled   *bool
	serverTLSCert      *string
	serverTLSKey       *string

	// Database
	dbType             *string
	dbSQLitePath       *string
	dbPostgresHost     *string
	dbPostgresPort     *int
	dbPostgresDatabase *string
	dbPostgresUser     *string
	dbPostgresSSLMode  *string

	jwtIssuer *string

	// Certificate authority
	caDir        *string
	caKeyBits    *int
	caCommonName *string

	// Issuer
	issuerMaxValidityDays     *int
	issuerMinPassphraseLength *int

	signingTrustedRootsFile *string

	// Crypto
	cryptoPKCS12Encoding          *string
	cryptoMaxConcurrentOperations *int

	// Logging
	logLevel  *string
	logFormat *string

	// Security
	securityCORSEnabled *bool
	securityCORSOrigins *[]string
}

// NewFlags defines every docsign flag on fs.
func NewFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}

	// General flags
	f.configFile = fs.StringP("config", "c", "config.yaml", "Path to configuration file")
	f.version = fs.BoolP("version", "v", false, "Print version and exit")
	f.sweepCorrupted = fs.Bool("sweep-corrupted", false, "Delete certificate records without owner or file name, then exit")

	// Server flags
	f.serverPort = fs.Int("server.port", 0, "HTTP server port")
	f.serverHost = fs.String("server.host", "", "HTTP server bind address")
	f.serverReadTimeout = fs.String("server.read-timeout", "", "Server read timeout (e.g., 30s)")
	f.serverWriteTimeout = fs.String("server.write-timeout", "", "Server write timeout (e.g., 30s)")
	f.serverTLSEnabled = fs.Bool("server.tls-enabled", false, "Enable HTTPS")
	f.serverTLSCert = fs.String("server.tls-cert", "", "Path to TLS certificate")
	f.serverTLSKey = fs.String("server.tls-key", "", "Path to TLS key")

	// Database flags
	f.dbType = fs.String("db.type", "", "Database type (sqlite or postgres)")
	f.dbSQLitePath = fs.String("db.sqlite.path", "", "SQLite database file path")
	f.dbPostgresHost = fs.String("db.postgres.host", "", "PostgreSQL host")
	f.dbPostgresPort = fs.Int("db.postgres.port", 0, "PostgreSQL port")
	f.dbPostgresDatabase = fs.String("db.postgres.database", "", "PostgreSQL database name")
	f.dbPostgresUser = fs.String("db.postgres.user", "", "PostgreSQL user")
	f.dbPostgresSSLMode = fs.String("db.postgres.ssl-mode", "", "PostgreSQL SSL mode")

	f.jwtIssuer = fs.String("jwt.issuer", "", "Expected JWT issuer")

	// CA flags
	f.caDir = fs.String("ca.dir", "", "Directory holding the CA key, certificate and serial file")
	f.caKeyBits = fs.Int("ca.key-bits", 0, "RSA key size for a newly generated CA root")
	f.caCommonName = fs.String("ca.common-name", "", "Common name of a newly generated CA root")

	// Issuer flags
	f.issuerMaxValidityDays = fs.Int("issuer.max-validity-days", 0, "Maximum certificate validity in days")
	f.issuerMinPassphraseLength = fs.Int("issuer.min-passphrase-length", 0, "Minimum PKCS#12 passphrase length")

	f.signingTrustedRootsFile = fs.String("signing.trusted-roots-file", "", "PEM file with extra roots accepted for signing certificates")

	// Crypto flags
	f.cryptoPKCS12Encoding = fs.String("crypto.pkcs12-encoding", "", "PKCS#12 encoding (modern or legacy)")
	f.cryptoMaxConcurrentOperations = fs.Int("crypto.max-concurrent-operations", 0, "Maximum concurrent issuance and signing operations")

	// Logging flags
	f.logLevel = fs.StringP("log.level", "l", "", "Log level (debug, info, warn, error)")
	f.logFormat = fs.String("log.format", "", "Log format (json or console)")

	// Security flags
	f.securityCORSEnabled = fs.Bool("security.cors-enabled", false, "Enable CORS")
	f.securityCORSOrigins = fs.StringSlice("security.cors-origins", nil, "CORS allowed origins (can be specified multiple times)")

	return f
}

// ParseFlags defines and parses all command line flags
func ParseFlags() (*Flags, string, bool) {
	f := NewFlags(flag.CommandLine)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "docsign - private CA, PKCS#12 issuance and PDF document signing\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration priority (highest to lowest):\n")
		fmt.Fprintf(os.Stderr, "  1. Command line flags\n")
		fmt.Fprintf(os.Stderr, "  2. Environment variables (DOCSIGN_*)\n")
		fmt.Fprintf(os.Stderr, "  3. Configuration file (default: config.yaml)\n\n")
		fmt.Fprintf(os.Stderr, "Examples:\n")
		fmt.Fprintf(os.Stderr, "  # Start with custom config file\n")
		fmt.Fprintf(os.Stderr, "  %s --config /etc/docsign/config.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  # Remove corrupted certificate records and exit\n")
		fmt.Fprintf(os.Stderr, "  %s --sweep-corrupted\n\n", os.Args[0])
	}

	flag.Parse()

	return f, *f.configFile, *f.version
}

func (f *Flags) changed(name string) bool {
	fl := f.fs.Lookup(name)
	return fl != nil && fl.Changed
}

// SweepCorrupted reports whether --sweep-corrupted was given
func (f *Flags) SweepCorrupted() bool {
	return *f.sweepCorrupted
}

// GetServerPort returns the server port flag value and whether it was set
func (f *Flags) GetServerPort() (int, bool) {
	return *f.serverPort, f.changed("server.port")
}

// GetServerHost returns the server host flag value and whether it was set
func (f *Flags) GetServerHost() (string, bool) {
	return *f.serverHost, f.changed("server.host")
}

// GetServerReadTimeout returns the server read timeout flag value and whether it was set
func (f *Flags) GetServerReadTimeout() (string, bool) {
	return *f.serverReadTimeout, f.changed("server.read-timeout")
}

// GetServerWriteTimeout returns the server write timeout flag value and whether it was set
func (f *Flags) GetServerWriteTimeout() (string, bool) {
	return *f.serverWriteTimeout, f.changed("server.write-timeout")
}

// GetServerTLSEnabled returns the server TLS enabled flag value and whether it was set
func (f *Flags) GetServerTLSEnabled() (bool, bool) {
	return *f.serverTLSEnabled, f.changed("server.tls-enabled")
}

// GetServerTLSCert returns the server TLS cert flag value and whether it was set
func (f *Flags) GetServerTLSCert() (string, bool) {
	return *f.serverTLSCert, f.changed("server.tls-cert")
}

// GetServerTLSKey returns the server TLS key flag value and whether it was set
func (f *Flags) GetServerTLSKey() (string, bool) {
	return *f.serverTLSKey, f.changed("server.tls-key")
}

// GetDBType returns the database type flag value and whether it was set
func (f *Flags) GetDBType() (string, bool) {
	return *f.dbType, f.changed("db.type")
}

// GetDBSQLitePath returns the SQLite path flag value and whether it was set
func (f *Flags) GetDBSQLitePath() (string, bool) {
	return *f.dbSQLitePath, f.changed("db.sqlite.path")
}

// GetDBPostgresHost returns the PostgreSQL host flag value and whether it was set
func (f *Flags) GetDBPostgresHost() (string, bool) {
	return *f.dbPostgresHost, f.changed("db.postgres.host")
}

// GetDBPostgresPort returns the PostgreSQL port flag value and whether it was set
func (f *Flags) GetDBPostgresPort() (int, bool) {
	return *f.dbPostgresPort, f.changed("db.postgres.port")
}

// GetDBPostgresDatabase returns the PostgreSQL database flag value and whether it was set
func (f *Flags) GetDBPostgresDatabase() (string, bool) {
	return *f.dbPostgresDatabase, f.changed("db.postgres.database")
}

// GetDBPostgresUser returns the PostgreSQL user flag value and whether it was set
func (f *Flags) GetDBPostgresUser() (string, bool) {
	return *f.dbPostgresUser, f.changed("db.postgres.user")
}

// GetDBPostgresSSLMode returns the PostgreSQL SSL mode flag value and whether it was set
func (f *Flags) GetDBPostgresSSLMode() (string, bool) {
	return *f.dbPostgresSSLMode, f.changed("db.postgres.ssl-mode")
}

// GetJWTIssuer returns the JWT issuer flag value and whether it was set
func (f *Flags) GetJWTIssuer() (string, bool) {
	return *f.jwtIssuer, f.changed("jwt.issuer")
}

// GetCADir returns the CA directory flag value and whether it was set
func (f *Flags) GetCADir() (string, bool) {
	return *f.caDir, f.changed("ca.dir")
}

// GetCAKeyBits returns the CA key size flag value and whether it was set
func (f *Flags) GetCAKeyBits() (int, bool) {
	return *f.caKeyBits, f.changed("ca.key-bits")
}

// GetCACommonName returns the CA common name flag value and whether it was set
func (f *Flags) GetCACommonName() (string, bool) {
	return *f.caCommonName, f.changed("ca.common-name")
}

// GetIssuerMaxValidityDays returns the max validity flag value and whether it was set
func (f *Flags) GetIssuerMaxValidityDays() (int, bool) {
	return *f.issuerMaxValidityDays, f.changed("issuer.max-validity-days")
}

// GetIssuerMinPassphraseLength returns the min passphrase length flag value and whether it was set
func (f *Flags) GetIssuerMinPassphraseLength() (int, bool) {
	return *f.issuerMinPassphraseLength, f.changed("issuer.min-passphrase-length")
}

// GetSigningTrustedRootsFile returns the trusted roots file flag value and whether it was set
func (f *Flags) GetSigningTrustedRootsFile() (string, bool) {
	return *f.signingTrustedRootsFile, f.changed("signing.trusted-roots-file")
}

// GetCryptoPKCS12Encoding returns the PKCS#12 encoding flag value and whether it was set
func (f *Flags) GetCryptoPKCS12Encoding() (string, bool) {
	return *f.cryptoPKCS12Encoding, f.changed("crypto.pkcs12-encoding")
}

// GetCryptoMaxConcurrentOperations returns the concurrency limit flag value and whether it was set
func (f *Flags) GetCryptoMaxConcurrentOperations() (int, bool) {
	return *f.cryptoMaxConcurrentOperations, f.changed("crypto.max-concurrent-operations")
}

// GetLogLevel returns the log level flag value and whether it was set
func (f *Flags) GetLogLevel() (string, bool) {
	return *f.logLevel, f.changed("log.level")
}

// GetLogFormat returns the log format flag value and whether it was set
func (f *Flags) GetLogFormat() (string, bool) {
	return *f.logFormat, f.changed("log.format")
}

// GetSecurityCORSEnabled returns the CORS enabled flag value and whether it was set
func (f *Flags) GetSecurityCORSEnabled() (bool, bool) {
	return *f.securityCORSEnabled, f.changed("security.cors-enabled")
}

// GetSecurityCORSOrigins returns the CORS origins flag value and whether it was set
func (f *Flags) GetSecurityCORSOrigins() ([]string, bool) {
	return *f.securityCORSOrigins, f.changed("security.cors-origins")
}
