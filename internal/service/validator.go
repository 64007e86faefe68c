package service

import (
	"errors"

	"github.com/robcowart/docsign/internal/apperr"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
)

// BundleDecoder opens PKCS#12 containers.
type BundleDecoder interface {
	DecodePKCS12(data []byte, passphrase string) (*dscrypto.Bundle, error)
}

// PassphraseValidator checks passphrases against PKCS#12 containers. Every
// container is checked the same way, whatever its origin or name.
type PassphraseValidator struct {
	decoder BundleDecoder
}

// NewPassphraseValidator creates a new passphrase validator
func NewPassphraseValidator(decoder BundleDecoder) *PassphraseValidator {
	return &PassphraseValidator{decoder: decoder}
}

// Validate reports whether passphrase opens bundle. A wrong passphrase is
// (false, nil); input that is not a PKCS#12 container is an
// InvalidContainerFormat error. The decoded key never leaves this call.
func (v *PassphraseValidator) Validate(bundle []byte, passphrase string) (bool, error) {
	b, err := v.Open(bundle, passphrase)
	switch {
	case err == nil:
		b.Destroy()
		return true, nil
	case errors.Is(err, apperr.ErrInvalidPassphrase):
		return false, nil
	default:
		return false, err
	}
}

// Open decodes bundle. The caller owns the result and must Destroy it. A
// wrong passphrase is an InvalidPassphrase error.
func (v *PassphraseValidator) Open(bundle []byte, passphrase string) (*dscrypto.Bundle, error) {
	const op = "validator.Open"

	b, err := v.decoder.DecodePKCS12(bundle, passphrase)
	switch {
	case err == nil:
		return b, nil
	case errors.Is(err, dscrypto.ErrIncorrectPassphrase):
		return nil, apperr.New(apperr.KindInvalidPassphrase, op, "incorrect passphrase")
	default:
		return nil, apperr.Wrap(apperr.KindInvalidContainerFormat, op, "not a valid PKCS#12 container", err)
	}
}
