package service

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/robcowart/docsign/internal/apperr"
	"github.com/robcowart/docsign/internal/ca"
	"github.com/robcowart/docsign/internal/config"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"go.uber.org/zap"
)

// Authority is the part of the CA root manager the issuer depends on.
type Authority interface {
	Root() (*ca.RootHandle, error)
	NextSerial() (*big.Int, error)
}

// IssuedBundle is a freshly minted PKCS#12 container and what it holds.
type IssuedBundle struct {
	Data        []byte
	FileName    string
	Certificate *x509.Certificate
	Serial      *big.Int
	Subject     dscrypto.SubjectInfo
}

// Issuer mints end-entity signing certificates under the private CA.
type Issuer struct {
	cfg       *config.Config
	provider  dscrypto.Provider
	authority Authority
	limiter   *Limiter
	logger    *zap.Logger
	now       func() time.Time
}

// NewIssuer creates a new certificate issuer
func NewIssuer(cfg *config.Config, provider dscrypto.Provider, authority Authority, limiter *Limiter, logger *zap.Logger) *Issuer {
	return &Issuer{
		cfg:       cfg,
		provider:  provider,
		authority: authority,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}
}

// workspace owns the secret material of a single issuance.
type workspace struct {
	key *rsa.PrivateKey
	csr *x509.CertificateRequest
}

func (w *workspace) Destroy() {
	if w.key != nil {
		dscrypto.WipeRSAKey(w.key)
		w.key = nil
	}
	if w.csr != nil {
		dscrypto.Wipe(w.csr.Raw)
		w.csr = nil
	}
}

// Issue generates a key pair for subject, has the CA sign it for
// validityDays and returns the result packaged as PKCS#12 under
// passphrase. Input is validated before any key is generated.
func (s *Issuer) Issue(ctx context.Context, subject dscrypto.SubjectInfo, passphrase string, validityDays int) (*IssuedBundle, error) {
	const op = "issuer.Issue"

	clean, err := s.validate(subject, passphrase, validityDays)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	root, err := s.authority.Root()
	if err != nil {
		return nil, err
	}

	ws := &workspace{}
	defer ws.Destroy()

	ws.key, err = s.provider.GenerateKey(s.cfg.Issuer.KeyBits)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindKeyGeneration, op, "failed to generate key", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ws.csr, err = s.provider.CreateCSR(ws.key, dscrypto.LeafTemplate(clean))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCSR, op, "failed to create certificate request", err)
	}

	serial, err := s.authority.NextSerial()
	if err != nil {
		return nil, err
	}

	notBefore := s.now().UTC().Truncate(time.Second)
	notAfter := notBefore.Add(time.Duration(validityDays) * 24 * time.Hour)

	leaf, err := s.provider.SignCSR(ws.csr, root.Certificate, root.Signer, serial, notBefore, notAfter)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, op, "failed to sign certificate", err)
	}

	data, err := s.provider.EncodePKCS12(ws.key, leaf, []*x509.Certificate{root.Certificate}, passphrase)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindPackaging, op, "failed to package certificate", err)
	}

	s.logger.Info("Issued certificate",
		zap.String("serial", serial.Text(16)),
		zap.String("subject_cn", clean.CommonName),
		zap.Time("not_after", notAfter),
	)

	return &IssuedBundle{
		Data:        data,
		FileName:    BundleFileName(clean.CommonName),
		Certificate: leaf,
		Serial:      serial,
		Subject:     clean,
	}, nil
}

func (s *Issuer) validate(subject dscrypto.SubjectInfo, passphrase string, validityDays int) (dscrypto.SubjectInfo, error) {
	const op = "issuer.Issue"

	maxDays := s.cfg.Issuer.MaxValidityDays
	if validityDays <= 0 || validityDays > maxDays {
		return dscrypto.SubjectInfo{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("validity must be between 1 and %d days", maxDays))
	}

	minLen := s.cfg.Issuer.MinPassphraseLength
	if passphrase == "" || utf8.RuneCountInString(passphrase) < minLen {
		return dscrypto.SubjectInfo{}, apperr.New(apperr.KindValidation, op,
			fmt.Sprintf("passphrase must be at least %d characters", minLen))
	}

	clean := subject.Sanitize()
	if clean.CommonName == "" {
		return dscrypto.SubjectInfo{}, apperr.New(apperr.KindValidation, op, "common name is required")
	}

	return clean, nil
}

// BundleFileName is the suggested download name for a container issued to
// commonName.
func BundleFileName(commonName string) string {
	return "certificado_" + strings.ReplaceAll(commonName, " ", "_") + ".p12"
}
