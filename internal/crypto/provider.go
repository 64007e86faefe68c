// Package crypto provides the cryptographic building blocks for docsign.
// It includes RSA key generation, CSR construction with the leaf extension
// profile, X.509 signing for the private CA, PKCS#12 packaging and
// unpackaging, AES-256-GCM sealing for records at rest and sanitization of
// subject fields before they are embedded in a certificate.
package crypto

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// MinRSABits is the smallest RSA modulus the provider will generate.
const MinRSABits = 2048

var (
	// ErrIncorrectPassphrase is returned by DecodePKCS12 when the container
	// is well formed but the passphrase does not open it.
	ErrIncorrectPassphrase = errors.New("pkcs12: incorrect passphrase")

	// ErrMalformedContainer is returned by DecodePKCS12 when the input is
	// not a usable PKCS#12 container.
	ErrMalformedContainer = errors.New("pkcs12: malformed container")
)

// Provider is the set of primitives the CA, the issuer and the signing
// engine need. SoftwareProvider is the in-process implementation.
type Provider interface {
	GenerateKey(bits int) (*rsa.PrivateKey, error)
	CreateCSR(key crypto.Signer, tmpl *CSRTemplate) (*x509.CertificateRequest, error)
	SignCSR(csr *x509.CertificateRequest, issuer *x509.Certificate, issuerKey crypto.Signer, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error)
	SelfSignRoot(key crypto.Signer, subject pkix.Name, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error)
	EncodePKCS12(key crypto.PrivateKey, leaf *x509.Certificate, chain []*x509.Certificate, passphrase string) ([]byte, error)
	DecodePKCS12(data []byte, passphrase string) (*Bundle, error)
}

// Bundle is the decoded content of a PKCS#12 container.
type Bundle struct {
	PrivateKey     crypto.PrivateKey
	Certificate    *x509.Certificate
	CACertificates []*x509.Certificate
}

// Signer returns the bundle's private key as a crypto.Signer.
func (b *Bundle) Signer() (crypto.Signer, error) {
	signer, ok := b.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", b.PrivateKey)
	}
	return signer, nil
}

// Destroy wipes the private key held by the bundle.
func (b *Bundle) Destroy() {
	if b == nil {
		return
	}
	if key, ok := b.PrivateKey.(*rsa.PrivateKey); ok {
		WipeRSAKey(key)
	}
	b.PrivateKey = nil
}

// Encoding names accepted by NewSoftwareProvider.
const (
	EncodingModern = "modern"
	EncodingLegacy = "legacy"
)

// SoftwareProvider implements Provider with crypto/x509 and go-pkcs12.
type SoftwareProvider struct {
	encoder *pkcs12.Encoder
	rand    io.Reader
}

// NewSoftwareProvider creates a provider that writes PKCS#12 containers with
// the given encoding. Modern uses AES-256 and SHA-256; legacy uses 3DES for
// older readers.
func NewSoftwareProvider(encoding string) (*SoftwareProvider, error) {
	var enc *pkcs12.Encoder
	switch encoding {
	case "", EncodingModern:
		enc = pkcs12.Modern2023
	case EncodingLegacy:
		enc = pkcs12.LegacyDES
	default:
		return nil, fmt.Errorf("unsupported PKCS#12 encoding: %s", encoding)
	}

	return &SoftwareProvider{encoder: enc, rand: rand.Reader}, nil
}

// GenerateKey generates an RSA private key of at least MinRSABits.
func (p *SoftwareProvider) GenerateKey(bits int) (*rsa.PrivateKey, error) {
	if bits < MinRSABits {
		return nil, fmt.Errorf("RSA key size must be at least %d bits, got %d", MinRSABits, bits)
	}

	key, err := rsa.GenerateKey(p.rand, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return key, nil
}

// EncodePKCS12 packages the key, the leaf and its chain under passphrase.
func (p *SoftwareProvider) EncodePKCS12(key crypto.PrivateKey, leaf *x509.Certificate, chain []*x509.Certificate, passphrase string) ([]byte, error) {
	pfxData, err := p.encoder.Encode(key, leaf, chain, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to encode PKCS#12: %w", err)
	}
	return pfxData, nil
}

// DecodePKCS12 opens a container. A wrong passphrase yields
// ErrIncorrectPassphrase and anything else unusable yields
// ErrMalformedContainer, so callers can tell the two apart.
func (p *SoftwareProvider) DecodePKCS12(data []byte, passphrase string) (*Bundle, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrMalformedContainer)
	}

	key, leaf, caCerts, err := pkcs12.DecodeChain(data, passphrase)
	if err != nil {
		if errors.Is(err, pkcs12.ErrIncorrectPassword) || errors.Is(err, pkcs12.ErrDecryption) {
			return nil, ErrIncorrectPassphrase
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedContainer, err)
	}

	return &Bundle{
		PrivateKey:     key,
		Certificate:    leaf,
		CACertificates: caCerts,
	}, nil
}
