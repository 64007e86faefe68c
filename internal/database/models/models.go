// Package models defines the data structures persisted by docsign: the
// certificate records owned by users and the system configuration entries.
package models

import (
	"database/sql"
	"time"
)

// Provenance values for CertificateRecord.
const (
	ProvenanceUploaded  = "uploaded"
	ProvenanceGenerated = "generated"
)

// CertificateRecord describes a stored PKCS#12 container. The encrypted
// container itself lives in certificate_blobs.
type CertificateRecord struct {
	ID                 string         `db:"id" json:"id"`
	OwnerID            sql.NullString `db:"owner_id" json:"-"`
	FileName           sql.NullString `db:"file_name" json:"-"`
	Alias              string         `db:"alias" json:"alias"`
	IssuerCN           string         `db:"issuer_cn" json:"issuer_cn"`
	SubjectCN          string         `db:"subject_cn" json:"subject_cn"`
	Organization       string         `db:"organization" json:"organization,omitempty"`
	OrganizationalUnit string         `db:"organizational_unit" json:"organizational_unit,omitempty"`
	Locality           string         `db:"locality" json:"locality,omitempty"`
	State              string         `db:"state" json:"state,omitempty"`
	Country            string         `db:"country" json:"country,omitempty"`
	Email              string         `db:"email" json:"email,omitempty"`
	SerialNumber       string         `db:"serial_number" json:"serial_number"`
	NotBefore          time.Time      `db:"not_before" json:"not_before"`
	NotAfter           time.Time      `db:"not_after" json:"not_after"`
	Provenance         string         `db:"provenance" json:"provenance"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// SystemConfig represents system-wide configuration stored in the database
type SystemConfig struct {
	Key       string    `db:"key"`
	Value     string    `db:"value"`
	UpdatedAt time.Time `db:"updated_at"`
}
