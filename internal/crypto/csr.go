package crypto

import (
	"crypto"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
)

var (
	oidExtensionBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
	oidExtensionKeyUsage         = asn1.ObjectIdentifier{2, 5, 29, 15}
	oidExtensionExtKeyUsage      = asn1.ObjectIdentifier{2, 5, 29, 37}
	oidExtensionSubjectAltName   = asn1.ObjectIdentifier{2, 5, 29, 17}

	// OIDExtKeyUsageDocumentSigning is id-kp-documentSigning (RFC 9336).
	OIDExtKeyUsageDocumentSigning = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 36}
)

var extKeyUsageOIDs = []struct {
	usage x509.ExtKeyUsage
	oid   asn1.ObjectIdentifier
}{
	{x509.ExtKeyUsageServerAuth, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 1}},
	{x509.ExtKeyUsageClientAuth, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 2}},
	{x509.ExtKeyUsageCodeSigning, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 3}},
	{x509.ExtKeyUsageEmailProtection, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 4}},
	{x509.ExtKeyUsageTimeStamping, asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 8}},
}

// CSRTemplate describes the leaf a CSR asks for.
type CSRTemplate struct {
	Subject            pkix.Name
	Email              string
	KeyUsage           x509.KeyUsage
	ExtKeyUsage        []x509.ExtKeyUsage
	UnknownExtKeyUsage []asn1.ObjectIdentifier
}

// LeafTemplate returns the profile used for signing certificates: client
// authentication, email protection and document signing.
func LeafTemplate(subject SubjectInfo) *CSRTemplate {
	return &CSRTemplate{
		Subject:            subject.Name(),
		Email:              subject.Email,
		KeyUsage:           x509.KeyUsageDigitalSignature | x509.KeyUsageContentCommitment | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:        []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageEmailProtection},
		UnknownExtKeyUsage: []asn1.ObjectIdentifier{OIDExtKeyUsageDocumentSigning},
	}
}

type basicConstraints struct {
	IsCA       bool `asn1:"optional"`
	MaxPathLen int  `asn1:"optional,default:-1"`
}

// CreateCSR builds a CSR signed by key whose extension request carries
// basicConstraints CA:FALSE, keyUsage, extendedKeyUsage and a
// subjectAltName naming the subject.
func (p *SoftwareProvider) CreateCSR(key crypto.Signer, tmpl *CSRTemplate) (*x509.CertificateRequest, error) {
	if tmpl.Subject.CommonName == "" {
		return nil, fmt.Errorf("common name is required")
	}

	exts, err := requestedExtensions(tmpl)
	if err != nil {
		return nil, err
	}

	der, err := x509.CreateCertificateRequest(p.rand, &x509.CertificateRequest{
		Subject:         tmpl.Subject,
		ExtraExtensions: exts,
	}, key)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate request: %w", err)
	}

	csr, err := x509.ParseCertificateRequest(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate request: %w", err)
	}

	return csr, nil
}

func requestedExtensions(tmpl *CSRTemplate) ([]pkix.Extension, error) {
	bc, err := asn1.Marshal(basicConstraints{IsCA: false, MaxPathLen: -1})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal basic constraints: %w", err)
	}

	ku, err := marshalKeyUsage(tmpl.KeyUsage)
	if err != nil {
		return nil, err
	}

	oids := make([]asn1.ObjectIdentifier, 0, len(tmpl.ExtKeyUsage)+len(tmpl.UnknownExtKeyUsage))
	for _, u := range tmpl.ExtKeyUsage {
		oid, ok := oidFromExtKeyUsage(u)
		if !ok {
			return nil, fmt.Errorf("unsupported extended key usage %d", u)
		}
		oids = append(oids, oid)
	}
	oids = append(oids, tmpl.UnknownExtKeyUsage...)
	eku, err := asn1.Marshal(oids)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal extended key usage: %w", err)
	}

	san, err := marshalSubjectAltName(tmpl.Subject.CommonName, tmpl.Email)
	if err != nil {
		return nil, err
	}

	return []pkix.Extension{
		{Id: oidExtensionBasicConstraints, Critical: true, Value: bc},
		{Id: oidExtensionKeyUsage, Critical: true, Value: ku},
		{Id: oidExtensionExtKeyUsage, Value: eku},
		{Id: oidExtensionSubjectAltName, Value: san},
	}, nil
}

// marshalKeyUsage encodes ku as the DER bit string of RFC 5280 4.2.1.3.
func marshalKeyUsage(ku x509.KeyUsage) ([]byte, error) {
	var a [2]byte
	bitLength := 0
	for i := 0; i < 9; i++ {
		if ku&(1<<uint(i)) != 0 {
			a[i/8] |= 0x80 >> uint(i%8)
			bitLength = i + 1
		}
	}
	if bitLength == 0 {
		return nil, fmt.Errorf("key usage must not be empty")
	}

	b, err := asn1.Marshal(asn1.BitString{Bytes: a[:(bitLength+7)/8], BitLength: bitLength})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal key usage: %w", err)
	}
	return b, nil
}

func unmarshalKeyUsage(der []byte) (x509.KeyUsage, error) {
	var bits asn1.BitString
	if rest, err := asn1.Unmarshal(der, &bits); err != nil || len(rest) != 0 {
		return 0, fmt.Errorf("invalid key usage extension")
	}

	var ku x509.KeyUsage
	for i := 0; i < 9; i++ {
		if bits.At(i) != 0 {
			ku |= 1 << uint(i)
		}
	}
	return ku, nil
}

// marshalSubjectAltName encodes a GeneralNames holding a directoryName with
// the common name and, when present, an rfc822Name.
func marshalSubjectAltName(commonName, email string) ([]byte, error) {
	dn, err := asn1.Marshal(pkix.Name{CommonName: commonName}.ToRDNSequence())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal directory name: %w", err)
	}

	names := []asn1.RawValue{
		{Class: asn1.ClassContextSpecific, Tag: 4, IsCompound: true, Bytes: dn},
	}
	if email != "" {
		names = append(names, asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 1, Bytes: []byte(email)})
	}

	b, err := asn1.Marshal(names)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subject alternative name: %w", err)
	}
	return b, nil
}

func oidFromExtKeyUsage(u x509.ExtKeyUsage) (asn1.ObjectIdentifier, bool) {
	for _, pair := range extKeyUsageOIDs {
		if pair.usage == u {
			return pair.oid, true
		}
	}
	return nil, false
}

func extKeyUsageFromOID(oid asn1.ObjectIdentifier) (x509.ExtKeyUsage, bool) {
	for _, pair := range extKeyUsageOIDs {
		if pair.oid.Equal(oid) {
			return pair.usage, true
		}
	}
	return 0, false
}
