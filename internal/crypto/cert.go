package crypto

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"
)

// SignCSR issues a leaf certificate for csr, signed by issuer. The CSR's
// signature is checked, a request for CA:TRUE is refused and the requested
// keyUsage, extendedKeyUsage and subjectAltName are carried over.
func (p *SoftwareProvider) SignCSR(csr *x509.CertificateRequest, issuer *x509.Certificate, issuerKey crypto.Signer, serial *big.Int, notBefore, notAfter time.Time) (*x509.Certificate, error) {
	if err := csr.CheckSignature(); err != nil {
		return nil, fmt.Errorf("invalid certificate request signature: %w", err)
	}
	if !issuer.IsCA {
		return nil, fmt.Errorf("issuer certificate is not a CA")
	}
	if serial == nil || serial.Sign() <= 0 {
		return nil, fmt.Errorf("serial number must be positive")
	}
	if !notAfter.After(notBefore) {
		return nil, fmt.Errorf("validity window is empty")
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               csr.Subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	if err := applyRequestedExtensions(template, csr.Extensions); err != nil {
		return nil, err
	}
	if template.KeyUsage == 0 {
		return nil, fmt.Errorf("certificate request does not carry a key usage")
	}

	certDER, err := x509.CreateCertificate(p.rand, template, issuer, csr.PublicKey, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return cert, nil
}

func applyRequestedExtensions(template *x509.Certificate, exts []pkix.Extension) error {
	for _, ext := range exts {
		switch {
		case ext.Id.Equal(oidExtensionBasicConstraints):
			var bc basicConstraints
			if _, err := asn1.Unmarshal(ext.Value, &bc); err != nil {
				return fmt.Errorf("invalid basic constraints in request: %w", err)
			}
			if bc.IsCA {
				return fmt.Errorf("certificate request asks for CA:TRUE")
			}
		case ext.Id.Equal(oidExtensionKeyUsage):
			ku, err := unmarshalKeyUsage(ext.Value)
			if err != nil {
				return err
			}
			if ku&(x509.KeyUsageCertSign|x509.KeyUsageCRLSign) != 0 {
				return fmt.Errorf("certificate request asks for CA key usage")
			}
			template.KeyUsage = ku
		case ext.Id.Equal(oidExtensionExtKeyUsage):
			var oids []asn1.ObjectIdentifier
			if _, err := asn1.Unmarshal(ext.Value, &oids); err != nil {
				return fmt.Errorf("invalid extended key usage in request: %w", err)
			}
			for _, oid := range oids {
				if u, ok := extKeyUsageFromOID(oid); ok {
					template.ExtKeyUsage = append(template.ExtKeyUsage, u)
				} else {
					template.UnknownExtKeyUsage = append(template.UnknownExtKeyUsage, oid)
				}
			}
		case ext.Id.Equal(oidExtensionSubjectAltName):
			template.ExtraExtensions = append(template.ExtraExtensions, pkix.Extension{
				Id:    ext.Id,
				Value: ext.Value,
			})
		}
	}
	return nil
}
