package crypto

import (
	"crypto/x509/pkix"
	"strings"
)

// MaxSubjectFieldLength bounds every subject field after sanitizing.
const MaxSubjectFieldLength = 64

// SubjectInfo is the identity requested for a leaf certificate.
type SubjectInfo struct {
	CommonName         string `json:"common_name"`
	Organization       string `json:"organization"`
	OrganizationalUnit string `json:"organizational_unit"`
	Locality           string `json:"locality"`
	State              string `json:"state"`
	Country            string `json:"country"`
	Email              string `json:"email"`
}

// Sanitize returns a copy of s restricted to printable ASCII. Name fields
// keep letters, digits, spaces and -.'_ characters, email keeps the
// characters of an address and country is cut to two uppercase letters.
func (s SubjectInfo) Sanitize() SubjectInfo {
	return SubjectInfo{
		CommonName:         sanitizeText(s.CommonName, isNameRune),
		Organization:       sanitizeText(s.Organization, isNameRune),
		OrganizationalUnit: sanitizeText(s.OrganizationalUnit, isNameRune),
		Locality:           sanitizeText(s.Locality, isNameRune),
		State:              sanitizeText(s.State, isNameRune),
		Country:            sanitizeCountry(s.Country),
		Email:              sanitizeText(s.Email, isEmailRune),
	}
}

// Name returns the distinguished name for s. Empty fields are omitted.
func (s SubjectInfo) Name() pkix.Name {
	name := pkix.Name{CommonName: s.CommonName}
	if s.Organization != "" {
		name.Organization = []string{s.Organization}
	}
	if s.OrganizationalUnit != "" {
		name.OrganizationalUnit = []string{s.OrganizationalUnit}
	}
	if s.Locality != "" {
		name.Locality = []string{s.Locality}
	}
	if s.State != "" {
		name.Province = []string{s.State}
	}
	if s.Country != "" {
		name.Country = []string{s.Country}
	}
	return name
}

// SubjectFromName is the inverse of Name, used to describe certificates
// that were not issued here.
func SubjectFromName(name pkix.Name, emails []string) SubjectInfo {
	s := SubjectInfo{
		CommonName:         name.CommonName,
		Organization:       first(name.Organization),
		OrganizationalUnit: first(name.OrganizationalUnit),
		Locality:           first(name.Locality),
		State:              first(name.Province),
		Country:            first(name.Country),
		Email:              first(emails),
	}
	return s
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func isNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == ' ', r == '-', r == '.', r == '\'', r == '_':
		return true
	}
	return false
}

func isEmailRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '@', r == '.', r == '-', r == '_', r == '+':
		return true
	}
	return false
}

func sanitizeText(value string, allowed func(rune) bool) string {
	var b strings.Builder
	for _, r := range value {
		if allowed(r) {
			b.WriteRune(r)
		}
	}

	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > MaxSubjectFieldLength {
		out = strings.TrimSpace(out[:MaxSubjectFieldLength])
	}
	return out
}

func sanitizeCountry(value string) string {
	var b strings.Builder
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			b.WriteRune(r)
			if b.Len() == 2 {
				break
			}
		}
	}
	out := strings.ToUpper(b.String())
	if len(out) != 2 {
		return ""
	}
	return out
}
