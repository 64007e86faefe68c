// Package signing binds a certificate, its passphrase, a position and a
// visual block to a PDF. Each request runs its own Session; the Engine only
// holds the shared collaborators.
package signing

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/robcowart/docsign/internal/apperr"
	"github.com/robcowart/docsign/internal/ca"
	"github.com/robcowart/docsign/internal/config"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/document"
	"github.com/robcowart/docsign/internal/service"
	"go.uber.org/zap"
)

// BundleStore resolves stored certificates to their PKCS#12 bytes.
type BundleStore interface {
	Bundle(ctx context.Context, id, ownerID string) ([]byte, error)
}

// BundleOpener checks a passphrase and decodes the container.
type BundleOpener interface {
	Open(bundle []byte, passphrase string) (*dscrypto.Bundle, error)
}

// RootSource provides the CA root the signing certificate must chain to.
type RootSource interface {
	Root() (*ca.RootHandle, error)
}

// Visual is the caller supplied part of the signature block. Empty fields
// are filled from the signing certificate.
type Visual struct {
	QRImage      []byte
	DisplayName  string
	Email        string
	Organization string
}

// SigningRequest carries everything needed to sign in one call.
type SigningRequest struct {
	OwnerID     string
	Document    []byte
	Certificate CertificateRef
	Passphrase  string
	Position    document.Position
	Visual      Visual
}

// SignedDocument is the result of a successful session.
type SignedDocument struct {
	Data         []byte            `json:"-"`
	SignerName   string            `json:"signer_name"`
	SignedAt     time.Time         `json:"signed_at"`
	Position     document.Position `json:"position"`
	SerialNumber string            `json:"serial_number"`
	Rect         document.Rect     `json:"rect"`
}

// Engine creates signing sessions.
type Engine struct {
	cfg        config.SigningConfig
	store      BundleStore
	opener     BundleOpener
	authority  RootSource
	extraRoots []*x509.Certificate
	limiter    *service.Limiter
	logger     *zap.Logger
	now        func() time.Time
}

// NewEngine creates a signing engine. Certificates listed in
// signing.trusted_roots_file are accepted as roots next to the CA root.
func NewEngine(cfg *config.Config, store BundleStore, opener BundleOpener, authority RootSource, limiter *service.Limiter, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		cfg:       cfg.Signing,
		store:     store,
		opener:    opener,
		authority: authority,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}

	if path := cfg.Signing.TrustedRootsFile; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read trusted roots: %w", err)
		}
		roots, err := dscrypto.ParseCertificatesPEM(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse trusted roots: %w", err)
		}
		e.extraRoots = roots
		logger.Info("Loaded trusted roots", zap.String("path", path), zap.Int("count", len(roots)))
	}

	return e, nil
}

// NewSession starts a session for ownerID over doc. doc is never modified.
func (e *Engine) NewSession(ownerID string, doc []byte) *Session {
	return &Session{
		engine:  e,
		ownerID: ownerID,
		doc:     doc,
		state:   StateSelectPosition,
	}
}

// Sign runs a whole session for req.
func (e *Engine) Sign(ctx context.Context, req SigningRequest) (*SignedDocument, error) {
	s := e.NewSession(req.OwnerID, req.Document)
	defer s.Close()

	if err := s.SelectPosition(req.Position); err != nil {
		return nil, err
	}
	if err := s.SelectCertificate(ctx, req.Certificate); err != nil {
		return nil, err
	}
	if err := s.EnterPassword(req.Passphrase); err != nil {
		return nil, err
	}
	return s.Sign(ctx, req.Visual)
}

// Verify checks every signature in data against the CA root and the
// configured trusted roots.
func (e *Engine) Verify(data []byte) ([]document.VerifiedSignature, error) {
	pool, err := e.trustPool()
	if err != nil {
		return nil, err
	}
	return document.Verify(data, pool)
}

func (e *Engine) trustPool() (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	for _, c := range e.extraRoots {
		pool.AddCert(c)
	}

	root, err := e.authority.Root()
	if err != nil {
		if len(e.extraRoots) == 0 {
			return nil, err
		}
		e.logger.Warn("CA root unavailable, using trusted roots only", zap.Error(err))
		return pool, nil
	}
	pool.AddCert(root.Certificate)
	return pool, nil
}

// verifyChain checks that leaf chains to a trusted root at the given time.
func (e *Engine) verifyChain(leaf *x509.Certificate, intermediates []*x509.Certificate, at time.Time) error {
	const op = "signing.verifyChain"

	roots, err := e.trustPool()
	if err != nil {
		return err
	}

	inter := x509.NewCertPool()
	for _, c := range intermediates {
		if !c.Equal(leaf) {
			inter.AddCert(c)
		}
	}

	_, err = leaf.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: inter,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return apperr.Wrap(apperr.KindChainInvalid, op, "certificate does not chain to a trusted root", err)
	}
	return nil
}
