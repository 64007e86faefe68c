package signing

// State is a step of a signing session.
type State int

const (
	StateSelectPosition State = iota
	StateSelectCertificate
	StateEnterPassword
	StateSigning
	StateSuccess
	StateFailed
)

var stateNames = map[State]string{
	StateSelectPosition:    "select_position",
	StateSelectCertificate: "select_certificate",
	StateEnterPassword:     "enter_password",
	StateSigning:           "signing",
	StateSuccess:           "success",
	StateFailed:            "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// CertificateRef names the certificate a session signs with: a stored
// record by id, or container bytes supplied with the request. Inline bytes
// are never persisted.
type CertificateRef struct {
	ID     string
	Inline []byte
}

// ByID refers to a stored certificate.
func ByID(id string) CertificateRef {
	return CertificateRef{ID: id}
}

// Inline wraps a caller supplied PKCS#12 container.
func Inline(bundle []byte) CertificateRef {
	return CertificateRef{Inline: bundle}
}

// IsInline reports whether r carries its own container.
func (r CertificateRef) IsInline() bool {
	return len(r.Inline) > 0
}
