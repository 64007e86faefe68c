// Package apperr defines the typed error kinds shared by the CA, the
// certificate store and the signing engine. Callers branch on the kind with
// errors.Is against the sentinel values or with KindOf.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so adapters can choose a message and status.
type Kind string

const (
	KindInternal               Kind = "internal"
	KindValidation             Kind = "validation"
	KindCAUnavailable          Kind = "ca_unavailable"
	KindKeyGeneration          Kind = "key_generation_error"
	KindCSR                    Kind = "csr_error"
	KindSigning                Kind = "signing_error"
	KindPackaging              Kind = "packaging_error"
	KindInvalidPassphrase      Kind = "invalid_passphrase"
	KindInvalidContainerFormat Kind = "invalid_container_format"
	KindDuplicateName          Kind = "duplicate_certificate_name"
	KindNotFound               Kind = "not_found"
	KindCorruptedRecord        Kind = "corrupted_record"
	KindPageOutOfRange         Kind = "page_out_of_range"
	KindMalformedDocument      Kind = "malformed_document"
	KindChainInvalid           Kind = "chain_invalid"
	KindInvalidTransition      Kind = "invalid_transition"
)

// Sentinel errors, one per kind. errors.Is(err, ErrNotFound) matches any
// *Error carrying KindNotFound.
var (
	ErrInternal               = &Error{Kind: KindInternal}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrCAUnavailable          = &Error{Kind: KindCAUnavailable}
	ErrKeyGeneration          = &Error{Kind: KindKeyGeneration}
	ErrCSR                    = &Error{Kind: KindCSR}
	ErrSigning                = &Error{Kind: KindSigning}
	ErrPackaging              = &Error{Kind: KindPackaging}
	ErrInvalidPassphrase      = &Error{Kind: KindInvalidPassphrase}
	ErrInvalidContainerFormat = &Error{Kind: KindInvalidContainerFormat}
	ErrDuplicateName          = &Error{Kind: KindDuplicateName}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrCorruptedRecord        = &Error{Kind: KindCorruptedRecord}
	ErrPageOutOfRange         = &Error{Kind: KindPageOutOfRange}
	ErrMalformedDocument      = &Error{Kind: KindMalformedDocument}
	ErrChainInvalid           = &Error{Kind: KindChainInvalid}
	ErrInvalidTransition      = &Error{Kind: KindInvalidTransition}
)

// Error is a failure with a kind, the operation that failed, a message that
// is safe to show to a caller and an optional underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// New creates an error of the given kind.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates an error of the given kind around cause.
func Wrap(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	default:
		return msg
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the caller-safe message of the first *Error in err's
// chain, falling back to the kind name.
func Message(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Msg != "" {
		return e.Msg
	}
	return string(e.Kind)
}
