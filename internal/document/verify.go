package document

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/digitorus/pkcs7"
)

// VerifiedSignature is the outcome of checking one embedded signature.
type VerifiedSignature struct {
	SignerName          string    `json:"signer_name"`
	SerialNumber        string    `json:"serial_number"`
	SigningTime         time.Time `json:"signing_time,omitempty"`
	ByteRange           [4]int64  `json:"byte_range"`
	CoversWholeDocument bool      `json:"covers_whole_document"`
	Valid               bool      `json:"valid"`
	Error               string    `json:"error,omitempty"`
}

var byteRangeToken = []byte("/ByteRange")

// Verify checks every signature embedded in data against roots. A PDF
// without signatures yields an empty result. Each signature reports its
// own failure; only an unusable document is an error.
func Verify(data []byte, roots *x509.CertPool) ([]VerifiedSignature, error) {
	if _, err := Open(data); err != nil {
		return nil, err
	}

	results := []VerifiedSignature{}
	seen := map[[4]int64]bool{}

	for offset := 0; ; {
		idx := bytes.Index(data[offset:], byteRangeToken)
		if idx < 0 {
			break
		}
		offset += idx + len(byteRangeToken)

		br, ok := parseByteRange(data[offset:])
		if !ok || seen[br] {
			continue
		}
		seen[br] = true

		results = append(results, verifyRange(data, br, roots))
	}

	return results, nil
}

func verifyRange(data []byte, br [4]int64, roots *x509.CertPool) VerifiedSignature {
	res := VerifiedSignature{
		ByteRange:           br,
		CoversWholeDocument: br[0] == 0 && br[2]+br[3] == int64(len(data)),
	}

	size := int64(len(data))
	if br[0] < 0 || br[1] < 0 || br[2] < br[0]+br[1] || br[3] < 0 || br[2]+br[3] > size {
		res.Error = "byte range is outside the document"
		return res
	}

	der, err := signatureContents(data[br[0]+br[1] : br[2]])
	if err != nil {
		res.Error = err.Error()
		return res
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		res.Error = fmt.Sprintf("invalid signature container: %v", err)
		return res
	}

	signed := make([]byte, 0, br[1]+br[3])
	signed = append(signed, data[br[0]:br[0]+br[1]]...)
	signed = append(signed, data[br[2]:br[2]+br[3]]...)
	p7.Content = signed

	if signer := p7.GetOnlySigner(); signer != nil {
		res.SignerName = signer.Subject.CommonName
		res.SerialNumber = signer.SerialNumber.Text(16)
	}

	var signingTime time.Time
	if err := p7.UnmarshalSignedAttribute(pkcs7.OIDAttributeSigningTime, &signingTime); err == nil {
		res.SigningTime = signingTime.UTC()
	}

	if err := p7.VerifyWithChain(roots); err != nil {
		res.Error = err.Error()
		return res
	}

	res.Valid = true
	return res
}

// signatureContents decodes the hex string written into /Contents and
// drops the zero padding after the DER value.
func signatureContents(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	raw = bytes.TrimPrefix(raw, []byte("<"))
	raw = bytes.TrimSuffix(raw, []byte(">"))

	der, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid signature contents: %w", err)
	}

	var value asn1.RawValue
	rest, err := asn1.Unmarshal(der, &value)
	if err != nil {
		return nil, fmt.Errorf("invalid signature contents: %w", err)
	}
	return der[:len(der)-len(rest)], nil
}

// parseByteRange reads "[a b c d]" at the start of b.
func parseByteRange(b []byte) ([4]int64, bool) {
	var br [4]int64

	b = bytes.TrimLeft(b, " \t\r\n")
	if len(b) == 0 || b[0] != '[' {
		return br, false
	}
	end := bytes.IndexByte(b, ']')
	if end < 0 {
		return br, false
	}

	fields := bytes.Fields(b[1:end])
	if len(fields) != 4 {
		return br, false
	}
	for i, f := range fields {
		n, err := strconv.ParseInt(string(f), 10, 64)
		if err != nil {
			return br, false
		}
		br[i] = n
	}
	return br, true
}
