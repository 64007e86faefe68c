package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// SelfSignRoot creates the self-signed root certificate for key.
func (p *SoftwareProvider) SelfSignRoot(key crypto.Signer, subject pkix.Name, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error) {
	if serial == nil || serial.Sign() <= 0 {
		return nil, fmt.Errorf("serial number must be positive")
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}

	certDER, err := x509.CreateCertificate(p.rand, template, template, key.Public(), key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 PEM block.
func EncodePrivateKeyPEM(key crypto.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	defer Wipe(der)

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM parses a PKCS#8, PKCS#1 or SEC1 PEM private key.
func ParsePrivateKeyPEM(keyPEM []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return nil, fmt.Errorf("failed to decode private key PEM")
	}
	defer Wipe(block.Bytes)

	var privateKey interface{}
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		privateKey = key
	} else if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		privateKey = key
	} else if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		privateKey = key
	} else {
		return nil, fmt.Errorf("failed to parse private key")
	}

	signer, ok := privateKey.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("unsupported private key type %T", privateKey)
	}
	return signer, nil
}

// VerifyKeyPair reports whether cert carries the public half of key.
func VerifyKeyPair(cert *x509.Certificate, key crypto.Signer) bool {
	switch pub := key.Public().(type) {
	case *rsa.PublicKey:
		certPub, ok := cert.PublicKey.(*rsa.PublicKey)
		if !ok {
			return false
		}
		return pub.N.Cmp(certPub.N) == 0 && pub.E == certPub.E
	case *ecdsa.PublicKey:
		certPub, ok := cert.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return false
		}
		return pub.Equal(certPub)
	default:
		return false
	}
}
