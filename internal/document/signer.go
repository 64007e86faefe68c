package document

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/digitorus/pdfsign/sign"
	"github.com/robcowart/docsign/internal/apperr"
)

// SignParams describes one approval signature.
type SignParams struct {
	Signer      crypto.Signer
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	Page        int
	Rect        Rect
	Appearance  []byte
	Name        string
	Reason      string
	Location    string
	ContactInfo string
	Date        time.Time
}

// Sign appends an approval signature to doc as an incremental update and
// returns the new document. doc itself is not modified.
func Sign(doc *Document, p SignParams) (out []byte, err error) {
	const op = "document.Sign"

	if p.Signer == nil || p.Certificate == nil {
		return nil, apperr.New(apperr.KindSigning, op, "signer and certificate are required")
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, apperr.Wrap(apperr.KindSigning, op, "failed to sign document", fmt.Errorf("%v", r))
		}
	}()

	chain := append([]*x509.Certificate{p.Certificate}, p.Chain...)

	var buf bytes.Buffer
	err = sign.Sign(bytes.NewReader(doc.data), &buf, doc.reader, doc.Size(), sign.SignData{
		Signature: sign.SignDataSignature{
			CertType:   sign.ApprovalSignature,
			DocMDPPerm: sign.AllowFillingExistingFormFieldsAndSignaturesPerms,
			Info: sign.SignDataSignatureInfo{
				Name:        p.Name,
				Location:    p.Location,
				Reason:      p.Reason,
				ContactInfo: p.ContactInfo,
				Date:        p.Date,
			},
		},
		Signer:            p.Signer,
		DigestAlgorithm:   crypto.SHA256,
		Certificate:       p.Certificate,
		CertificateChains: [][]*x509.Certificate{chain},
		Appearance: sign.Appearance{
			Visible:     len(p.Appearance) > 0,
			Page:        uint32(p.Page),
			LowerLeftX:  p.Rect.LLX,
			LowerLeftY:  p.Rect.LLY,
			UpperRightX: p.Rect.URX,
			UpperRightY: p.Rect.URY,
			Image:       p.Appearance,
		},
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, op, "failed to sign document", err)
	}

	return buf.Bytes(), nil
}
