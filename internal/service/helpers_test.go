package service

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robcowart/docsign/internal/ca"
	"github.com/robcowart/docsign/internal/config"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/database"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var (
	keysOnce sync.Once
	keyPool  []*rsa.PrivateKey
)

// pooledKey returns a copy of one of two pre-generated keys so tests do not
// pay for RSA generation on every issuance. Copies can be wiped freely.
func pooledKey(t *testing.T, n int) *rsa.PrivateKey {
	t.Helper()
	keysOnce.Do(func() {
		for i := 0; i < 2; i++ {
			key, err := rsa.GenerateKey(rand.Reader, 2048)
			if err != nil {
				panic(err)
			}
			keyPool = append(keyPool, key)
		}
	})
	return cloneKey(keyPool[n%len(keyPool)])
}

func cloneKey(k *rsa.PrivateKey) *rsa.PrivateKey {
	c := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: new(big.Int).Set(k.N), E: k.E},
		D:         new(big.Int).Set(k.D),
	}
	for _, p := range k.Primes {
		c.Primes = append(c.Primes, new(big.Int).Set(p))
	}
	c.Precompute()
	return c
}

// testProvider wraps the software provider with pooled keys, call counting
// and optional failure injection.
type testProvider struct {
	*dscrypto.SoftwareProvider
	t       *testing.T
	keyIdx  int
	keyGens atomic.Int32
	failOn  string

	mu       sync.Mutex
	lastKeys []*rsa.PrivateKey
}

var errInjected = errors.New("injected failure")

func newTestProvider(t *testing.T, keyIdx int) *testProvider {
	sw, err := dscrypto.NewSoftwareProvider(dscrypto.EncodingModern)
	require.NoError(t, err)
	return &testProvider{SoftwareProvider: sw, t: t, keyIdx: keyIdx}
}

func (p *testProvider) GenerateKey(bits int) (*rsa.PrivateKey, error) {
	p.keyGens.Add(1)
	if p.failOn == "GenerateKey" {
		return nil, errInjected
	}
	key := pooledKey(p.t, p.keyIdx)
	p.mu.Lock()
	p.lastKeys = append(p.lastKeys, key)
	p.mu.Unlock()
	return key, nil
}

func (p *testProvider) CreateCSR(key crypto.Signer, tmpl *dscrypto.CSRTemplate) (*x509.CertificateRequest, error) {
	if p.failOn == "CreateCSR" {
		return nil, errInjected
	}
	return p.SoftwareProvider.CreateCSR(key, tmpl)
}

func (p *testProvider) SignCSR(csr *x509.CertificateRequest, issuer *x509.Certificate, issuerKey crypto.Signer, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error) {
	if p.failOn == "SignCSR" {
		return nil, errInjected
	}
	return p.SoftwareProvider.SignCSR(csr, issuer, issuerKey, serial, notBefore, notAfter)
}

func (p *testProvider) EncodePKCS12(key crypto.PrivateKey, leaf *x509.Certificate, chain []*x509.Certificate, passphrase string) ([]byte, error) {
	if p.failOn == "EncodePKCS12" {
		return nil, errInjected
	}
	return p.SoftwareProvider.EncodePKCS12(key, leaf, chain, passphrase)
}

func (p *testProvider) generatedKeys() []*rsa.PrivateKey {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*rsa.PrivateKey(nil), p.lastKeys...)
}

func testConfig() *config.Config {
	return &config.Config{
		Issuer: config.IssuerConfig{
			KeyBits:             2048,
			DefaultValidityDays: 365,
			MaxValidityDays:     3650,
			MinPassphraseLength: 6,
		},
		Crypto: config.CryptoConfig{
			PKCS12Encoding:          dscrypto.EncodingModern,
			MaxConcurrentOperations: 4,
		},
	}
}

// setupTestDB creates a migrated sqlite database in a temp dir
func setupTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(&config.Config{
		Database: config.DatabaseConfig{
			Type:   "sqlite",
			SQLite: config.SQLiteConfig{Path: t.TempDir() + "/test.db"},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return db
}

type testEnv struct {
	cfg       *config.Config
	db        *database.Database
	provider  *testProvider
	root      *ca.RootManager
	issuer    *Issuer
	validator *PassphraseValidator
	store     *CertificateStore
	logs      *observer.ObservedLogs
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	cfg := testConfig()

	root := ca.NewRootManager(ca.Config{
		Dir:          t.TempDir(),
		KeyBits:      2048,
		CommonName:   "Test Signing CA",
		Organization: "Test Org",
		Country:      "EC",
		ValidityDays: 365,
	}, newTestProvider(t, 0), logger)
	_, err := root.EnsureRoot()
	require.NoError(t, err)

	provider := newTestProvider(t, 1)
	db := setupTestDB(t)
	validator := NewPassphraseValidator(provider)

	masterKey, err := LoadMasterKey(context.Background(), cfg, db, logger)
	require.NoError(t, err)
	store, err := NewCertificateStore(db, validator, masterKey, logger)
	require.NoError(t, err)

	return &testEnv{
		cfg:       cfg,
		db:        db,
		provider:  provider,
		root:      root,
		issuer:    NewIssuer(cfg, provider, root, NewLimiter(cfg.Crypto.MaxConcurrentOperations), logger),
		validator: validator,
		store:     store,
		logs:      logs,
	}
}

func janeDoe() dscrypto.SubjectInfo {
	return dscrypto.SubjectInfo{
		CommonName:   "Jane Doe",
		Organization: "Acme",
		Country:      "ec",
		Email:        "jane@example.com",
	}
}
