package database

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robcowart/docsign/internal/config"
	"github.com/robcowart/docsign/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates a test database with migrations
func setupTestDB(t *testing.T) *Database {
	dbPath := t.TempDir() + "/test.db"

	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Type: "sqlite",
			SQLite: config.SQLiteConfig{
				Path: dbPath,
			},
		},
	}

	db, err := New(cfg)
	require.NoError(t, err, "Failed to create test database")
	t.Cleanup(func() { _ = db.Close() })

	err = db.Migrate()
	require.NoError(t, err, "Failed to run migrations")

	return db
}

func newRecord(owner, fileName string) *models.CertificateRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.CertificateRecord{
		ID:           uuid.New().String(),
		OwnerID:      sql.NullString{String: owner, Valid: owner != ""},
		FileName:     sql.NullString{String: fileName, Valid: fileName != ""},
		Alias:        fileName,
		IssuerCN:     "Test CA",
		SubjectCN:    "Jane Doe",
		SerialNumber: "0a",
		NotBefore:    now,
		NotAfter:     now.AddDate(1, 0, 0),
		Provenance:   models.ProvenanceGenerated,
		CreatedAt:    now,
	}
}

func TestNew(t *testing.T) {
	t.Run("Create SQLite database successfully", func(t *testing.T) {
		cfg := &config.Config{
			Database: config.DatabaseConfig{
				Type:   "sqlite",
				SQLite: config.SQLiteConfig{Path: t.TempDir() + "/test.db"},
			},
		}

		db, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, db)
		assert.Equal(t, "sqlite", db.Type())
		defer db.Close()
	})

	t.Run("Create with unsupported database type fails", func(t *testing.T) {
		cfg := &config.Config{
			Database: config.DatabaseConfig{Type: "unsupported"},
		}

		_, err := New(cfg)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported database type")
	})
}

func TestMigrate(t *testing.T) {
	t.Run("Migrations are idempotent", func(t *testing.T) {
		db := setupTestDB(t)
		assert.NoError(t, db.Migrate())
	})
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- comment\nCREATE TABLE a (\n  id TEXT\n);\n\nCREATE INDEX i ON a(id);\n")
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (\nid TEXT\n);", stmts[0])
	assert.Equal(t, "CREATE INDEX i ON a(id);", stmts[1])
}

func TestRebind(t *testing.T) {
	sqlite := &Database{dbType: "sqlite"}
	pg := &Database{dbType: "postgres"}

	q := `SELECT * FROM t WHERE a = ? AND b = ?`
	assert.Equal(t, q, sqlite.rebind(q))
	assert.Equal(t, `SELECT * FROM t WHERE a = $1 AND b = $2`, pg.rebind(q))
}

func TestCertificateRecords(t *testing.T) {
	ctx := context.Background()

	t.Run("Create and get record", func(t *testing.T) {
		db := setupTestDB(t)
		rec := newRecord("u1", "jane.p12")

		require.NoError(t, db.CreateCertificateRecord(ctx, rec, []byte("sealed")))

		got, err := db.GetCertificateRecord(ctx, rec.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, rec.ID, got.ID)
		assert.Equal(t, "jane.p12", got.FileName.String)
		assert.Equal(t, "Jane Doe", got.SubjectCN)
		assert.Equal(t, models.ProvenanceGenerated, got.Provenance)
		assert.True(t, rec.NotAfter.Equal(got.NotAfter))

		blob, err := db.GetCertificateBlob(ctx, rec.ID, "u1")
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), blob)
	})

	t.Run("Other owner sees no rows", func(t *testing.T) {
		db := setupTestDB(t)
		rec := newRecord("u1", "jane.p12")
		require.NoError(t, db.CreateCertificateRecord(ctx, rec, []byte("sealed")))

		_, err := db.GetCertificateRecord(ctx, rec.ID, "u2")
		assert.ErrorIs(t, err, sql.ErrNoRows)

		_, err = db.GetCertificateBlob(ctx, rec.ID, "u2")
		assert.ErrorIs(t, err, sql.ErrNoRows)

		assert.ErrorIs(t, db.DeleteCertificateRecord(ctx, rec.ID, "u2"), sql.ErrNoRows)
	})

	t.Run("Duplicate name for same owner fails", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u1", "jane.p12"), []byte("a")))

		err := db.CreateCertificateRecord(ctx, newRecord("u1", "jane.p12"), []byte("b"))
		assert.ErrorIs(t, err, ErrDuplicate)

		exists, err := db.CertificateNameExists(ctx, "u1", "jane.p12")
		require.NoError(t, err)
		assert.True(t, exists)

		assert.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u1", "other.p12"), []byte("c")))
		assert.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u2", "jane.p12"), []byte("d")))
	})

	t.Run("List returns only the owner's records", func(t *testing.T) {
		db := setupTestDB(t)
		require.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u1", "a.p12"), []byte("a")))
		require.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u1", "b.p12"), []byte("b")))
		require.NoError(t, db.CreateCertificateRecord(ctx, newRecord("u2", "c.p12"), []byte("c")))

		records, err := db.ListCertificateRecords(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, records, 2)

		records, err = db.ListCertificateRecords(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("Delete removes record and blob", func(t *testing.T) {
		db := setupTestDB(t)
		rec := newRecord("u1", "jane.p12")
		require.NoError(t, db.CreateCertificateRecord(ctx, rec, []byte("sealed")))

		require.NoError(t, db.DeleteCertificateRecord(ctx, rec.ID, "u1"))

		_, err := db.GetCertificateRecord(ctx, rec.ID, "u1")
		assert.ErrorIs(t, err, sql.ErrNoRows)

		var blobs int
		require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM certificate_blobs`).Scan(&blobs))
		assert.Equal(t, 0, blobs)

		assert.ErrorIs(t, db.DeleteCertificateRecord(ctx, rec.ID, "u1"), sql.ErrNoRows)
	})
}

func TestDeleteCorruptedCertificates(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	good := newRecord("u1", "good.p12")
	require.NoError(t, db.CreateCertificateRecord(ctx, good, []byte("a")))

	noOwner := newRecord("", "orphan.p12")
	noFile := newRecord("u1", "")
	require.NoError(t, db.CreateCertificateRecord(ctx, noOwner, []byte("b")))
	require.NoError(t, db.CreateCertificateRecord(ctx, noFile, []byte("c")))

	emptyOwner := newRecord("u3", "empty.p12")
	emptyOwner.OwnerID = sql.NullString{String: "", Valid: true}
	require.NoError(t, db.CreateCertificateRecord(ctx, emptyOwner, []byte("d")))

	// A well-formed record whose blob was never written.
	partial := newRecord("u2", "partial.p12")
	_, err := db.DB().Exec(`INSERT INTO certificates (`+certificateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		partial.ID, partial.OwnerID, partial.FileName, partial.Alias, partial.IssuerCN, partial.SubjectCN, "", "", "", "", "", "",
		partial.SerialNumber, partial.NotBefore, partial.NotAfter, partial.Provenance, partial.CreatedAt)
	require.NoError(t, err)

	removed, err := db.DeleteCorruptedCertificates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	_, err = db.GetCertificateRecord(ctx, good.ID, "u1")
	assert.NoError(t, err)
	_, err = db.GetCertificateRecord(ctx, partial.ID, "u2")
	assert.NoError(t, err)

	var total, blobs int
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM certificates`).Scan(&total))
	require.NoError(t, db.DB().QueryRow(`SELECT COUNT(*) FROM certificate_blobs`).Scan(&blobs))
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, blobs)

	removed, err = db.DeleteCorruptedCertificates(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed)
}

func TestSystemConfig(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)

	_, err := db.GetSystemConfig(ctx, "master_key")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, db.SetSystemConfig(ctx, "master_key", "abc"))
	value, err := db.GetSystemConfig(ctx, "master_key")
	require.NoError(t, err)
	assert.Equal(t, "abc", value)

	require.NoError(t, db.SetSystemConfig(ctx, "master_key", "def"))
	value, err = db.GetSystemConfig(ctx, "master_key")
	require.NoError(t, err)
	assert.Equal(t, "def", value)
}
