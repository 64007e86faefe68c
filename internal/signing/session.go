package signing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robcowart/docsign/internal/apperr"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/document"
	"go.uber.org/zap"
)

// Session is one signing request moving through the states
// SelectPosition, SelectCertificate, EnterPassword, Signing and then
// Success or Failed. It is safe for concurrent use, though callers
// normally drive it from a single goroutine.
type Session struct {
	engine  *Engine
	ownerID string
	doc     []byte

	mu       sync.Mutex
	state    State
	position document.Position
	bundle   []byte
	keys     *dscrypto.Bundle
	result   *SignedDocument
	failure  error
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the signed document once the session succeeded.
func (s *Session) Result() (*SignedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateSuccess:
		return s.result, nil
	case StateFailed:
		return nil, s.failure
	default:
		return nil, s.invalidTransition("signing.Result", "result")
	}
}

// SelectPosition records where the signature goes. Whether the page exists
// is checked when signing.
func (s *Session) SelectPosition(pos document.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("signing.SelectPosition", StateSelectPosition); err != nil {
		return err
	}
	if err := pos.Validate(); err != nil {
		return err
	}

	s.position = pos
	s.state = StateSelectCertificate
	return nil
}

// SelectCertificate resolves ref. A stored certificate that cannot be found
// leaves the session waiting for another reference.
func (s *Session) SelectCertificate(ctx context.Context, ref CertificateRef) error {
	const op = "signing.SelectCertificate"

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect(op, StateSelectCertificate); err != nil {
		return err
	}

	if ref.IsInline() {
		s.bundle = ref.Inline
		s.state = StateEnterPassword
		return nil
	}
	if ref.ID == "" {
		return apperr.New(apperr.KindValidation, op, "a certificate id or container is required")
	}

	bundle, err := s.engine.store.Bundle(ctx, ref.ID, s.ownerID)
	switch {
	case err == nil:
		s.bundle = bundle
		s.state = StateEnterPassword
		return nil
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrValidation):
		return err
	default:
		return s.fail(err)
	}
}

// EnterPassword opens the selected container. A wrong passphrase keeps the
// session in this state and may be retried; an unusable container ends it.
func (s *Session) EnterPassword(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("signing.EnterPassword", StateEnterPassword); err != nil {
		return err
	}

	keys, err := s.engine.opener.Open(s.bundle, passphrase)
	switch {
	case err == nil:
		s.keys = keys
		s.state = StateSigning
		return nil
	case errors.Is(err, apperr.ErrInvalidPassphrase):
		return err
	default:
		return s.fail(err)
	}
}

// Sign produces the signed document. Any failure ends the session without
// output. The private key is wiped before Sign returns.
func (s *Session) Sign(ctx context.Context, v Visual) (*SignedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.expect("signing.Sign", StateSigning); err != nil {
		return nil, err
	}
	defer s.destroyKeys()

	if err := s.engine.limiter.Acquire(ctx); err != nil {
		return nil, s.fail(err)
	}
	defer s.engine.limiter.Release()

	result, err := s.sign(ctx, v)
	if err != nil {
		return nil, s.fail(err)
	}

	s.result = result
	s.state = StateSuccess

	s.engine.logger.Info("Signed document",
		zap.String("owner_id", s.ownerID),
		zap.String("serial", result.SerialNumber),
		zap.String("signer", result.SignerName),
		zap.Int("page", result.Position.Page),
	)
	return result, nil
}

func (s *Session) sign(ctx context.Context, v Visual) (*SignedDocument, error) {
	const op = "signing.Sign"
	e := s.engine

	leaf := s.keys.Certificate
	if leaf == nil {
		return nil, apperr.New(apperr.KindChainInvalid, op, "container holds no certificate")
	}

	signedAt := e.now().UTC().Truncate(time.Second)
	if err := e.verifyChain(leaf, s.keys.CACertificates, signedAt); err != nil {
		return nil, err
	}

	signer, err := s.keys.Signer()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindSigning, op, "unsupported private key", err)
	}

	doc, err := document.Open(s.doc)
	if err != nil {
		return nil, err
	}
	page, err := doc.PageBox(s.position.Page)
	if err != nil {
		return nil, err
	}
	rect := document.Place(page, s.position, document.Size{W: e.cfg.BoxWidth, H: e.cfg.BoxHeight})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	subject := dscrypto.SubjectFromName(leaf.Subject, leaf.EmailAddresses)
	visual := document.Visual{
		QRImage:      v.QRImage,
		DisplayName:  firstNonEmpty(v.DisplayName, subject.CommonName),
		Email:        firstNonEmpty(v.Email, subject.Email),
		Organization: firstNonEmpty(v.Organization, subject.Organization),
		SignedAt:     signedAt,
	}
	appearance, err := document.ComposeVisual(visual, document.Size{W: rect.Width(), H: rect.Height()})
	if err != nil {
		return nil, err
	}

	out, err := document.Sign(doc, document.SignParams{
		Signer:      signer,
		Certificate: leaf,
		Chain:       s.keys.CACertificates,
		Page:        s.position.Page,
		Rect:        rect,
		Appearance:  appearance,
		Name:        subject.CommonName,
		Reason:      e.cfg.Reason,
		Location:    e.cfg.Location,
		ContactInfo: e.cfg.ContactInfo,
		Date:        signedAt,
	})
	if err != nil {
		return nil, err
	}

	return &SignedDocument{
		Data:         out,
		SignerName:   subject.CommonName,
		SignedAt:     signedAt,
		Position:     s.position,
		SerialNumber: leaf.SerialNumber.Text(16),
		Rect:         rect,
	}, nil
}

// Close wipes any key material still held. It is safe to call at any time.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.destroyKeys()
}

func (s *Session) destroyKeys() {
	s.keys.Destroy()
	s.keys = nil
}

func (s *Session) fail(err error) error {
	s.destroyKeys()
	s.bundle = nil
	s.failure = err
	s.state = StateFailed
	return err
}

func (s *Session) expect(op string, want State) error {
	if s.state == want {
		return nil
	}
	return s.invalidTransition(op, want.String())
}

func (s *Session) invalidTransition(op, action string) error {
	return apperr.New(apperr.KindInvalidTransition, op, fmt.Sprintf("cannot %s in state %s", action, s.state))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
