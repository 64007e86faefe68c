package service

import (
	"context"
	"crypto/x509"
	"database/sql"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robcowart/docsign/internal/apperr"
	dscrypto "github.com/robcowart/docsign/internal/crypto"
	"github.com/robcowart/docsign/internal/database"
	"github.com/robcowart/docsign/internal/database/models"
	"go.uber.org/zap"
)

const storeKeyPurpose = "docsign certificate store v1"

// CertificateRepository is the persistence the store needs. It is
// implemented by *database.Database.
type CertificateRepository interface {
	CreateCertificateRecord(ctx context.Context, rec *models.CertificateRecord, bundleEnc []byte) error
	CertificateNameExists(ctx context.Context, ownerID, fileName string) (bool, error)
	GetCertificateRecord(ctx context.Context, id, ownerID string) (*models.CertificateRecord, error)
	ListCertificateRecords(ctx context.Context, ownerID string) ([]*models.CertificateRecord, error)
	GetCertificateBlob(ctx context.Context, id, ownerID string) ([]byte, error)
	DeleteCertificateRecord(ctx context.Context, id, ownerID string) error
	DeleteCorruptedCertificates(ctx context.Context) (int64, error)
}

// Metadata describes a container being stored.
type Metadata struct {
	FileName     string
	Alias        string
	IssuerCN     string
	Subject      dscrypto.SubjectInfo
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
	Provenance   string
}

// MetadataFromCertificate fills Metadata from the leaf of a container.
func MetadataFromCertificate(cert *x509.Certificate, fileName, provenance string) Metadata {
	return Metadata{
		FileName:     fileName,
		Alias:        cert.Subject.CommonName,
		IssuerCN:     cert.Issuer.CommonName,
		Subject:      dscrypto.SubjectFromName(cert.Subject, cert.EmailAddresses),
		SerialNumber: cert.SerialNumber.Text(16),
		NotBefore:    cert.NotBefore,
		NotAfter:     cert.NotAfter,
		Provenance:   provenance,
	}
}

// CertificateStore keeps PKCS#12 containers encrypted at rest, indexed by
// owner. Containers are sealed with a key derived from the master key and
// bound to their record id; passphrases are never stored.
type CertificateStore struct {
	repo      CertificateRepository
	validator *PassphraseValidator
	key       []byte
	logger    *zap.Logger
	now       func() time.Time
}

// NewCertificateStore creates a store sealing containers with a key derived
// from masterKey.
func NewCertificateStore(repo CertificateRepository, validator *PassphraseValidator, masterKey []byte, logger *zap.Logger) (*CertificateStore, error) {
	key, err := dscrypto.DeriveKey(masterKey, storeKeyPurpose)
	if err != nil {
		return nil, fmt.Errorf("failed to derive store key: %w", err)
	}

	return &CertificateStore{
		repo:      repo,
		validator: validator,
		key:       key,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Put stores bundle for ownerID and returns the new record id.
func (s *CertificateStore) Put(ctx context.Context, ownerID string, bundle []byte, meta Metadata) (string, error) {
	rec, err := s.put(ctx, ownerID, bundle, meta)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

func (s *CertificateStore) put(ctx context.Context, ownerID string, bundle []byte, meta Metadata) (*models.CertificateRecord, error) {
	const op = "store.Put"

	ownerID = normalizeOwner(ownerID)
	fileName := strings.TrimSpace(meta.FileName)
	if ownerID == "" {
		return nil, apperr.New(apperr.KindValidation, op, "owner is required")
	}
	if fileName == "" {
		return nil, apperr.New(apperr.KindValidation, op, "file name is required")
	}
	if len(bundle) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "certificate data is empty")
	}

	exists, err := s.repo.CertificateNameExists(ctx, ownerID, fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to check certificate name: %w", err)
	}
	if exists {
		return nil, duplicateName(op, fileName)
	}

	rec := &models.CertificateRecord{
		ID:                 uuid.New().String(),
		OwnerID:            sql.NullString{String: ownerID, Valid: true},
		FileName:           sql.NullString{String: fileName, Valid: true},
		Alias:              meta.Alias,
		IssuerCN:           meta.IssuerCN,
		SubjectCN:          meta.Subject.CommonName,
		Organization:       meta.Subject.Organization,
		OrganizationalUnit: meta.Subject.OrganizationalUnit,
		Locality:           meta.Subject.Locality,
		State:              meta.Subject.State,
		Country:            meta.Subject.Country,
		Email:              meta.Subject.Email,
		SerialNumber:       meta.SerialNumber,
		NotBefore:          meta.NotBefore.UTC(),
		NotAfter:           meta.NotAfter.UTC(),
		Provenance:         meta.Provenance,
		CreatedAt:          s.now().UTC(),
	}
	if rec.Alias == "" {
		rec.Alias = fileName
	}

	sealed, err := dscrypto.Seal(bundle, s.key, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt certificate: %w", err)
	}

	if err := s.repo.CreateCertificateRecord(ctx, rec, sealed); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return nil, duplicateName(op, fileName)
		}
		return nil, fmt.Errorf("failed to store certificate: %w", err)
	}

	s.logger.Info("Stored certificate",
		zap.String("id", rec.ID),
		zap.String("owner_id", ownerID),
		zap.String("provenance", rec.Provenance),
	)

	return rec, nil
}

func duplicateName(op, fileName string) *apperr.Error {
	return apperr.New(apperr.KindDuplicateName, op, fmt.Sprintf("a certificate named %q already exists", fileName))
}

// List returns the records owned by ownerID, newest first.
func (s *CertificateStore) List(ctx context.Context, ownerID string) ([]*models.CertificateRecord, error) {
	records, err := s.repo.ListCertificateRecords(ctx, normalizeOwner(ownerID))
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}
	if records == nil {
		records = []*models.CertificateRecord{}
	}
	return records, nil
}

// Get returns a record owned by ownerID. Records of other owners are
// reported as not found.
func (s *CertificateStore) Get(ctx context.Context, id, ownerID string) (*models.CertificateRecord, error) {
	rec, err := s.repo.GetCertificateRecord(ctx, id, normalizeOwner(ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("store.Get")
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return rec, nil
}

// Delete removes a record owned by ownerID and its container.
func (s *CertificateStore) Delete(ctx context.Context, id, ownerID string) error {
	ownerID = normalizeOwner(ownerID)
	if err := s.repo.DeleteCertificateRecord(ctx, id, ownerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFound("store.Delete")
		}
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	s.logger.Info("Deleted certificate", zap.String("id", id), zap.String("owner_id", ownerID))
	return nil
}

// Bundle returns the decrypted PKCS#12 container of a record owned by
// ownerID. A record whose container is missing or cannot be decrypted is
// reported as CorruptedRecord.
func (s *CertificateStore) Bundle(ctx context.Context, id, ownerID string) ([]byte, error) {
	const op = "store.Bundle"

	ownerID = normalizeOwner(ownerID)
	sealed, err := s.repo.GetCertificateBlob(ctx, id, ownerID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get certificate data: %w", err)
		}
		if _, getErr := s.Get(ctx, id, ownerID); getErr != nil {
			return nil, getErr
		}
		return nil, apperr.New(apperr.KindCorruptedRecord, op, "certificate data is missing")
	}

	bundle, err := dscrypto.Open(sealed, s.key, id)
	if err != nil {
		s.logger.Error("Failed to decrypt stored certificate", zap.String("id", id), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindCorruptedRecord, op, "certificate data cannot be decrypted", err)
	}
	return bundle, nil
}

// SweepCorrupted removes records without an owner or file name, together
// with their containers and any container left without a record. It
// returns the number of records removed.
func (s *CertificateStore) SweepCorrupted(ctx context.Context) (int64, error) {
	removed, err := s.repo.DeleteCorruptedCertificates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep corrupted certificates: %w", err)
	}

	if removed > 0 {
		s.logger.Warn("Removed corrupted certificate records", zap.Int64("count", removed))
	}
	return removed, nil
}

// Upload stores a user supplied .p12 or .pfx container after checking that
// passphrase opens it.
func (s *CertificateStore) Upload(ctx context.Context, ownerID, fileName string, data []byte, passphrase string) (*models.CertificateRecord, error) {
	const op = "store.Upload"

	fileName = path.Base(strings.ReplaceAll(strings.TrimSpace(fileName), `\`, "/"))
	switch strings.ToLower(path.Ext(fileName)) {
	case ".p12", ".pfx":
	default:
		return nil, apperr.New(apperr.KindValidation, op, "only .p12 and .pfx files are accepted")
	}
	if len(data) == 0 {
		return nil, apperr.New(apperr.KindValidation, op, "certificate file is empty")
	}

	bundle, err := s.validator.Open(data, passphrase)
	if err != nil {
		return nil, err
	}
	defer bundle.Destroy()

	meta := MetadataFromCertificate(bundle.Certificate, fileName, models.ProvenanceUploaded)
	meta.Alias = strings.TrimSuffix(fileName, path.Ext(fileName))

	return s.put(ctx, ownerID, data, meta)
}

// SaveIssued stores a container produced by the issuer.
func (s *CertificateStore) SaveIssued(ctx context.Context, ownerID string, issued *IssuedBundle) (*models.CertificateRecord, error) {
	meta := MetadataFromCertificate(issued.Certificate, issued.FileName, models.ProvenanceGenerated)
	meta.Subject = issued.Subject
	return s.put(ctx, ownerID, issued.Data, meta)
}

// normalizeOwner gives every store operation the same view of an owner id.
func normalizeOwner(ownerID string) string {
	return strings.TrimSpace(ownerID)
}

func notFound(op string) *apperr.Error {
	return apperr.New(apperr.KindNotFound, op, "certificate not found")
}
