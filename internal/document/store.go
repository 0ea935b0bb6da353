package document

import (
	"context"
	"encoding/hex"
	"errors"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Store owns DocumentRecord and VerificationLog persistence. The gorm
// handle is injected so tests can run against an in-memory database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the two tables.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&DocumentRecord{}, &VerificationLog{})
}

// CreateInput is the upload-time payload for a new record. FileHash must
// already be computed from the stored bytes.
type CreateInput struct {
	OriginalFileName string
	FileSize         int64
	MimeType         string
	StoredFilePath   string
	FileHash         string
	IssuedFor        string
	IssuerID         string
	IssuedAt         time.Time
	Status           Status
	Metadata         datatypes.JSON
}

// Code collisions are rare (36^10 space) but possible; retried with a
// fresh code before surfacing anything to the caller.
const maxCodeRetries = 5

// Create persists a new record with a freshly generated verification
// code. A FileHash collision yields a ConflictError: the content already
// exists under another record.
func (s *Store) Create(ctx context.Context, in CreateInput) (*DocumentRecord, error) {
	if err := validateCreate(&in); err != nil {
		return nil, err
	}

	rec := &DocumentRecord{
		ID:               uuid.New().String(),
		OriginalFileName: in.OriginalFileName,
		FileSize:         in.FileSize,
		MimeType:         in.MimeType,
		StoredFilePath:   in.StoredFilePath,
		FileHash:         strings.ToLower(in.FileHash),
		HashAlgorithm:    "sha256",
		IssuedFor:        in.IssuedFor,
		IssuedAt:         in.IssuedAt,
		IssuerID:         in.IssuerID,
		Status:           in.Status,
		Metadata:         in.Metadata,
	}

	for attempt := 0; attempt < maxCodeRetries; attempt++ {
		code, err := NewVerificationCode()
		if err != nil {
			return nil, err
		}
		rec.VerificationCode = code
		rec.BarcodeValue = code

		err = s.db.WithContext(ctx).Create(rec).Error
		if err == nil {
			return rec, nil
		}
		if !isDuplicate(err) {
			return nil, err
		}

		// The unique violation is either the hash or the code. A hash
		// conflict is a domain error; a code conflict gets a new code.
		var existing DocumentRecord
		lookupErr := s.db.WithContext(ctx).
			Where("file_hash = ?", rec.FileHash).First(&existing).Error
		if lookupErr == nil {
			return nil, &ConflictError{Field: "fileHash", Value: rec.FileHash}
		}
		if !errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			return nil, lookupErr
		}
	}
	return nil, &ConflictError{Field: "verificationCode", Value: rec.VerificationCode}
}

func validateCreate(in *CreateInput) error {
	if in.OriginalFileName == "" {
		return &ValidationError{Field: "originalFileName", Reason: "required"}
	}
	if in.StoredFilePath == "" {
		return &ValidationError{Field: "storedFilePath", Reason: "required"}
	}
	if in.FileSize < 0 {
		return &ValidationError{Field: "fileSize", Reason: "must not be negative"}
	}
	if len(in.FileHash) != 64 {
		return &ValidationError{Field: "fileHash", Reason: "must be 64 hex characters"}
	}
	if _, err := hex.DecodeString(in.FileHash); err != nil {
		return &ValidationError{Field: "fileHash", Reason: "must be hex encoded"}
	}
	if in.Status == "" {
		in.Status = StatusActive
	}
	if !ValidStatus(in.Status) {
		return &ValidationError{Field: "status", Reason: "unknown status " + string(in.Status)}
	}
	if in.IssuedAt.IsZero() {
		in.IssuedAt = time.Now()
	}
	return nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListForActor returns records visible to the given role: a teacher sees
// only documents they issued, a student (or any unrecognized role) sees
// only active documents, an admin sees everything.
func (s *Store) ListForActor(ctx context.Context, role, actorID string) ([]DocumentRecord, error) {
	q := s.db.WithContext(ctx).Order("issued_at DESC, created_at DESC")
	switch role {
	case RoleAdmin:
	case RoleTeacher:
		q = q.Where("issuer_id = ?", actorID)
	default:
		q = q.Where("status = ?", StatusActive)
	}
	var recs []DocumentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return recs, nil
}

// UpdateStatus moves a record to a new lifecycle status. Any status may
// move to any other; only the enum itself is validated.
func (s *Store) UpdateStatus(ctx context.Context, id string, status Status) (*DocumentRecord, error) {
	if !ValidStatus(status) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + string(status)}
	}
	res := s.db.WithContext(ctx).Model(&DocumentRecord{}).
		Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

// Delete removes the record and its verification log entries, then makes
// a best-effort attempt to remove the stored file. The database removal
// is authoritative; a leftover file is logged, not raised.
func (s *Store) Delete(ctx context.Context, id string) error {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).Delete(&VerificationLog{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&DocumentRecord{}).Error
	})
	if err != nil {
		return err
	}
	if err := os.Remove(rec.StoredFilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("document %s deleted but stored file %s remains: %v", id, rec.StoredFilePath, err)
	}
	return nil
}

// RecordDownload increments the download counter and appends the audit
// entry as a single atomic unit. The increment is a SQL expression, not
// a read-modify-write, so concurrent downloads never lose updates.
func (s *Store) RecordDownload(ctx context.Context, id string, entry *VerificationLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&DocumentRecord{}).Where("id = ?", id).
			UpdateColumn("downloads", gorm.Expr("downloads + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		entry.DocumentID = &id
		return tx.Create(entry).Error
	})
}

// AppendLog writes a single audit entry.
func (s *Store) AppendLog(ctx context.Context, entry *VerificationLog) error {
	return s.db.WithContext(ctx).Create(entry).Error
}

// ListLogs returns a document's audit trail, newest first. ErrNotFound
// if the document itself does not exist.
func (s *Store) ListLogs(ctx context.Context, id string) (*DocumentRecord, []VerificationLog, error) {
	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	var logs []VerificationLog
	err = s.db.WithContext(ctx).Where("document_id = ?", id).
		Order("created_at DESC, id DESC").Find(&logs).Error
	if err != nil {
		return nil, nil, err
	}
	return rec, logs, nil
}

// FindByCode returns the record holding the given verification code, or
// nil when no record matches. Absence is an expected outcome here, not
// an error.
func (s *Store) FindByCode(ctx context.Context, code string) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := s.db.WithContext(ctx).Where("verification_code = ?", code).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindByHash returns the record whose canonical hash matches, or nil.
func (s *Store) FindByHash(ctx context.Context, hash string) (*DocumentRecord, error) {
	var rec DocumentRecord
	err := s.db.WithContext(ctx).Where("file_hash = ?", hash).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// LatestMatchedVariant returns the most recent successful log entry for
// this document carrying the given submitted hash, or nil. "Most recent
// wins" when several exist; id breaks created-at ties.
func (s *Store) LatestMatchedVariant(ctx context.Context, documentID, hash string) (*VerificationLog, error) {
	return s.latestMatched(s.db.WithContext(ctx).Where("document_id = ?", documentID), hash)
}

// LatestMatchedVariantAny searches the whole log, unscoped to any one
// document, for the most recent successful entry with this hash.
func (s *Store) LatestMatchedVariantAny(ctx context.Context, hash string) (*VerificationLog, error) {
	return s.latestMatched(s.db.WithContext(ctx), hash)
}

func (s *Store) latestMatched(q *gorm.DB, hash string) (*VerificationLog, error) {
	var entry VerificationLog
	err := q.Where("submitted_hash = ? AND matched = ?", hash, true).
		Order("created_at DESC, id DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	// sqlite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
