// Package ca owns the private certificate authority: its long-lived RSA key,
// the self-signed root certificate and the serial counter shared by every
// issuance.
package ca

import (
	"crypto"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robcowart/docsign/internal/apperr"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"go.uber.org/zap"
)

const (
	keyFile    = "ca.key"
	certFile   = "ca.crt"
	serialFile = "serial"
)

// Config describes where the root lives and how a new one is generated.
type Config struct {
	Dir          string
	KeyBits      int
	CommonName   string
	Organization string
	Country      string
	ValidityDays int
}

// RootHandle gives the issuer access to the root certificate and key.
type RootHandle struct {
	Certificate *x509.Certificate
	Signer      crypto.Signer
}

// KeyMaker is the part of the crypto provider the root manager needs.
type KeyMaker interface {
	GenerateKey(bits int) (*rsa.PrivateKey, error)
	SelfSignRoot(key crypto.Signer, subject pkix.Name, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error)
}

// RootManager bootstraps or loads the CA root and hands out serials.
type RootManager struct {
	cfg      Config
	provider KeyMaker
	logger   *zap.Logger
	now      func() time.Time

	writeFile func(path string, data []byte, perm os.FileMode) error

	mu   sync.Mutex
	root *RootHandle

	serialMu   sync.Mutex
	lastSerial *big.Int
}

// NewRootManager creates a root manager. Nothing is read from disk until
// EnsureRoot is called.
func NewRootManager(cfg Config, provider KeyMaker, logger *zap.Logger) *RootManager {
	return &RootManager{
		cfg:      cfg,
		provider: provider,
		logger:   logger,
		now:      time.Now,

		writeFile: writeFileAtomic,
	}
}

// EnsureRoot loads the root from the CA directory, generating a new key,
// self-signed certificate and serial file when none exist. It is
// idempotent and fails with CAUnavailable when the files on disk cannot be
// used.
func (m *RootManager) EnsureRoot() (*RootHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root != nil {
		return m.root, nil
	}

	keyExists, err := fileExists(m.path(keyFile))
	if err != nil {
		return nil, unavailable("cannot access CA key", err)
	}
	certExists, err := fileExists(m.path(certFile))
	if err != nil {
		return nil, unavailable("cannot access CA certificate", err)
	}

	var root *RootHandle
	switch {
	case !keyExists && !certExists:
		root, err = m.bootstrap()
	case keyExists && certExists:
		root, err = m.load()
	default:
		err = unavailable("CA key and certificate must both exist", nil)
	}
	if err != nil {
		return nil, err
	}

	m.root = root
	return root, nil
}

// Root returns the loaded root, or CAUnavailable if EnsureRoot has not
// succeeded.
func (m *RootManager) Root() (*RootHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.root == nil {
		return nil, unavailable("CA root not loaded", nil)
	}
	return m.root, nil
}

// CertificatePEM returns the root certificate in PEM form.
func (m *RootManager) CertificatePEM() ([]byte, error) {
	root, err := m.Root()
	if err != nil {
		return nil, err
	}
	return dscrypto.EncodeCertificatePEM(root.Certificate), nil
}

func (m *RootManager) bootstrap() (*RootHandle, error) {
	if err := os.MkdirAll(m.cfg.Dir, 0o700); err != nil {
		return nil, unavailable("cannot create CA directory", err)
	}

	key, err := m.provider.GenerateKey(m.cfg.KeyBits)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindKeyGeneration, "ca.bootstrap", "failed to generate CA key", err)
	}

	subject := pkix.Name{CommonName: m.cfg.CommonName}
	if m.cfg.Organization != "" {
		subject.Organization = []string{m.cfg.Organization}
	}
	if m.cfg.Country != "" {
		subject.Country = []string{m.cfg.Country}
	}

	notBefore := m.now()
	cert, err := m.provider.SelfSignRoot(key, subject, big.NewInt(1), notBefore, notBefore.AddDate(0, 0, m.cfg.ValidityDays))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, "ca.bootstrap", "failed to self-sign CA root", err)
	}

	keyPEM, err := dscrypto.EncodePrivateKeyPEM(key)
	if err != nil {
		return nil, unavailable("cannot encode CA key", err)
	}
	defer dscrypto.Wipe(keyPEM)

	files := []struct {
		name string
		data []byte
		perm os.FileMode
		what string
	}{
		{serialFile, serialText(big.NewInt(2)), 0o644, "serial file"},
		{certFile, dscrypto.EncodeCertificatePEM(cert), 0o644, "CA certificate"},
		{keyFile, keyPEM, 0o600, "CA key"},
	}

	// A partial bootstrap is rolled back so the next EnsureRoot starts over
	// instead of finding a key without a certificate.
	var written []string
	for _, f := range files {
		if err := m.writeFile(m.path(f.name), f.data, f.perm); err != nil {
			for _, name := range written {
				if rmErr := os.Remove(name); rmErr != nil {
					m.logger.Error("Failed to remove partial CA file", zap.String("path", name), zap.Error(rmErr))
				}
			}
			return nil, unavailable("cannot write "+f.what, err)
		}
		written = append(written, m.path(f.name))
	}

	m.logger.Info("Generated new CA root",
		zap.String("subject", cert.Subject.String()),
		zap.Int("key_bits", m.cfg.KeyBits),
		zap.Time("not_after", cert.NotAfter),
		zap.String("dir", m.cfg.Dir),
	)

	return &RootHandle{Certificate: cert, Signer: key}, nil
}

func (m *RootManager) load() (*RootHandle, error) {
	keyPEM, err := os.ReadFile(m.path(keyFile))
	if err != nil {
		return nil, unavailable("cannot read CA key", err)
	}
	defer dscrypto.Wipe(keyPEM)

	key, err := dscrypto.ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, unavailable("cannot parse CA key", err)
	}

	certPEM, err := os.ReadFile(m.path(certFile))
	if err != nil {
		return nil, unavailable("cannot read CA certificate", err)
	}
	cert, err := dscrypto.ParseCertificatePEM(certPEM)
	if err != nil {
		return nil, unavailable("cannot parse CA certificate", err)
	}

	if !cert.IsCA {
		return nil, unavailable("CA certificate is not a CA", nil)
	}
	if !dscrypto.VerifyKeyPair(cert, key) {
		return nil, unavailable("CA key does not match CA certificate", nil)
	}
	if m.now().After(cert.NotAfter) {
		return nil, unavailable("CA certificate has expired", nil)
	}
	if _, err := readSerial(m.path(serialFile)); err != nil {
		return nil, unavailable("cannot read serial file", err)
	}

	m.logger.Info("Loaded CA root",
		zap.String("subject", cert.Subject.String()),
		zap.String("serial", cert.SerialNumber.Text(16)),
		zap.Time("not_after", cert.NotAfter),
	)

	return &RootHandle{Certificate: cert, Signer: key}, nil
}

func (m *RootManager) path(name string) string {
	return filepath.Join(m.cfg.Dir, name)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func unavailable(msg string, cause error) *apperr.Error {
	return apperr.Wrap(apperr.KindCAUnavailable, "ca", msg, cause)
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
