// Package database provides database connection management, migrations, and data access methods for docsign.
package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/robcowart/docsign/internal/config"
	"github.com/robcowart/docsign/internal/database/models"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("duplicate record")

// Database represents the database connection and operations
type Database struct {
	db     *sql.DB
	dbType string
}

// New creates a new database connection
func New(cfg *config.Config) (*Database, error) {
	var db *sql.DB
	var err error

	switch cfg.Database.Type {
	case "sqlite":
		db, err = sql.Open("sqlite3", cfg.Database.SQLite.Path+"?_foreign_keys=on&_busy_timeout=5000")
		if err != nil {
			return nil, fmt.Errorf("failed to open SQLite database: %w", err)
		}
		// SQLite specific settings
		db.SetMaxOpenConns(1) // SQLite only allows one writer at a time
	case "postgres":
		db, err = sql.Open("postgres", cfg.GetDSN())
		if err != nil {
			return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		db.SetMaxOpenConns(cfg.Database.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(cfg.Database.Postgres.MaxIdleConns)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		db:     db,
		dbType: cfg.Database.Type,
	}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Migrate runs database migrations
func (d *Database) Migrate() error {
	var migrationFiles []string
	if d.dbType == "postgres" {
		migrationFiles = []string{
			"migrations/000001_init_schema.postgres.up.sql",
		}
	} else {
		migrationFiles = []string{
			"migrations/000001_init_schema.up.sql",
		}
	}

	for _, migrationFile := range migrationFiles {
		content, err := migrationsFS.ReadFile(migrationFile)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", migrationFile, err)
		}

		for _, stmt := range splitStatements(string(content)) {
			if _, err := d.db.Exec(stmt); err != nil {
				// Ignore "duplicate column" errors for idempotent migrations
				if !strings.Contains(err.Error(), "duplicate column") && !strings.Contains(err.Error(), "already exists") {
					return fmt.Errorf("migration %s failed: %w\nStatement: %s", migrationFile, err, stmt)
				}
			}
		}
	}

	return nil
}

// splitStatements drops comment lines and splits content on trailing
// semicolons.
func splitStatements(content string) []string {
	var statements []string
	var current strings.Builder

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "--") || line == "" {
			continue
		}

		current.WriteString(line)
		current.WriteString("\n")

		if strings.HasSuffix(line, ";") {
			if stmt := strings.TrimSpace(current.String()); stmt != "" {
				statements = append(statements, stmt)
			}
			current.Reset()
		}
	}

	return statements
}

// DB returns the underlying database connection for direct queries
func (d *Database) DB() *sql.DB {
	return d.db
}

// Type returns the configured database type.
func (d *Database) Type() string {
	return d.dbType
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (d *Database) rebind(query string) string {
	if d.dbType != "postgres" {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation reports whether err is a unique constraint failure from
// either driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}

	return false
}

// Certificate record operations

const certificateColumns = `id, owner_id, file_name, alias, issuer_cn, subject_cn, organization,
	organizational_unit, locality, state, country, email, serial_number, not_before, not_after,
	provenance, created_at`

// CreateCertificateRecord inserts a record and its encrypted container in
// one transaction. It returns ErrDuplicate when the owner already has a
// record with the same file name.
func (d *Database) CreateCertificateRecord(ctx context.Context, rec *models.CertificateRecord, bundleEnc []byte) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := d.rebind(`INSERT INTO certificates (` + certificateColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err = tx.ExecContext(ctx, query,
		rec.ID, rec.OwnerID, rec.FileName, rec.Alias, rec.IssuerCN, rec.SubjectCN, rec.Organization,
		rec.OrganizationalUnit, rec.Locality, rec.State, rec.Country, rec.Email, rec.SerialNumber,
		rec.NotBefore, rec.NotAfter, rec.Provenance, rec.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert certificate: %w", err)
	}

	if _, err := tx.ExecContext(ctx, d.rebind(`INSERT INTO certificate_blobs (certificate_id, bundle_enc) VALUES (?, ?)`), rec.ID, bundleEnc); err != nil {
		return fmt.Errorf("failed to insert certificate blob: %w", err)
	}

	return tx.Commit()
}

// CertificateNameExists reports whether ownerID already has a record named
// fileName.
func (d *Database) CertificateNameExists(ctx context.Context, ownerID, fileName string) (bool, error) {
	query := d.rebind(`SELECT COUNT(*) FROM certificates WHERE owner_id = ? AND file_name = ?`)

	var count int
	if err := d.db.QueryRowContext(ctx, query, ownerID, fileName).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetCertificateRecord returns the record with id owned by ownerID, or
// sql.ErrNoRows.
func (d *Database) GetCertificateRecord(ctx context.Context, id, ownerID string) (*models.CertificateRecord, error) {
	query := d.rebind(`SELECT ` + certificateColumns + ` FROM certificates WHERE id = ? AND owner_id = ?`)

	rec, err := scanCertificate(d.db.QueryRowContext(ctx, query, id, ownerID))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListCertificateRecords returns the records owned by ownerID, newest first.
func (d *Database) ListCertificateRecords(ctx context.Context, ownerID string) ([]*models.CertificateRecord, error) {
	query := d.rebind(`SELECT ` + certificateColumns + ` FROM certificates WHERE owner_id = ? ORDER BY created_at DESC, id`)

	rows, err := d.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*models.CertificateRecord
	for rows.Next() {
		rec, err := scanCertificate(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// GetCertificateBlob returns the encrypted container for a record owned by
// ownerID, or sql.ErrNoRows when either the record or its blob is missing.
func (d *Database) GetCertificateBlob(ctx context.Context, id, ownerID string) ([]byte, error) {
	query := d.rebind(`SELECT b.bundle_enc FROM certificate_blobs b
		JOIN certificates c ON c.id = b.certificate_id
		WHERE c.id = ? AND c.owner_id = ?`)

	var blob []byte
	if err := d.db.QueryRowContext(ctx, query, id, ownerID).Scan(&blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// DeleteCertificateRecord removes a record owned by ownerID together with
// its encrypted container. It returns sql.ErrNoRows when nothing matched.
func (d *Database) DeleteCertificateRecord(ctx context.Context, id, ownerID string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var found string
	err = tx.QueryRowContext(ctx, d.rebind(`SELECT id FROM certificates WHERE id = ? AND owner_id = ?`), id, ownerID).Scan(&found)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM certificate_blobs WHERE certificate_id = ?`), id); err != nil {
		return fmt.Errorf("failed to delete certificate blob: %w", err)
	}

	res, err := tx.ExecContext(ctx, d.rebind(`DELETE FROM certificates WHERE id = ? AND owner_id = ?`), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

const corruptedPredicate = `owner_id IS NULL OR owner_id = '' OR file_name IS NULL OR file_name = ''`

// DeleteCorruptedCertificates removes records without an owner or file
// name, their blobs and any blob whose record no longer exists. It returns
// the number of records removed.
func (d *Database) DeleteCorruptedCertificates(ctx context.Context) (int64, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM certificate_blobs WHERE certificate_id IN
		(SELECT id FROM certificates WHERE `+corruptedPredicate+`)`); err != nil {
		return 0, fmt.Errorf("failed to delete corrupted blobs: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM certificates WHERE `+corruptedPredicate)
	if err != nil {
		return 0, fmt.Errorf("failed to delete corrupted certificates: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM certificate_blobs WHERE certificate_id NOT IN (SELECT id FROM certificates)`); err != nil {
		return 0, fmt.Errorf("failed to delete orphan blobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return removed, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCertificate(row rowScanner) (*models.CertificateRecord, error) {
	rec := &models.CertificateRecord{}
	err := row.Scan(
		&rec.ID, &rec.OwnerID, &rec.FileName, &rec.Alias, &rec.IssuerCN, &rec.SubjectCN, &rec.Organization,
		&rec.OrganizationalUnit, &rec.Locality, &rec.State, &rec.Country, &rec.Email, &rec.SerialNumber,
		&rec.NotBefore, &rec.NotAfter, &rec.Provenance, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// System config operations

// SetSystemConfig sets a system configuration value
func (d *Database) SetSystemConfig(ctx context.Context, key, value string) error {
	query := `INSERT OR REPLACE INTO system_config (key, value, updated_at) VALUES (?, ?, ?)`
	if d.dbType == "postgres" {
		query = `INSERT INTO system_config (key, value, updated_at)
		         VALUES ($1, $2, $3)
		         ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = $3`
	}

	_, err := d.db.ExecContext(ctx, query, key, value, time.Now().UTC())
	return err
}

// GetSystemConfig retrieves a system configuration value. It returns
// sql.ErrNoRows when the key is not set.
func (d *Database) GetSystemConfig(ctx context.Context, key string) (string, error) {
	query := d.rebind(`SELECT value FROM system_config WHERE key = ?`)

	var value string
	if err := d.db.QueryRowContext(ctx, query, key).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}
