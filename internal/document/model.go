package document

import (
	"time"

	"gorm.io/datatypes"
)

// Status governs whether verification and download are permitted.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusRevoked  Status = "revoked"
	StatusArchived Status = "archived"
)

// ValidStatus reports whether s is a known lifecycle status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusActive, StatusInactive, StatusRevoked, StatusArchived:
		return true
	}
	return false
}

// Roles understood by the store and the download pipeline. Session
// handling lives in the surrounding portal; only the resolved role
// string reaches this package.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// DocumentRecord is a canonical issued artifact. FileHash is computed
// once from the uploaded bytes and never recomputed; the stored file is
// assumed immutable.
type DocumentRecord struct {
	ID               string         `gorm:"type:varchar(36);primaryKey" json:"id"`
	OriginalFileName string         `gorm:"not null" json:"originalFileName"`
	FileSize         int64          `gorm:"not null" json:"fileSize"`
	MimeType         string         `gorm:"size:128" json:"mimeType"`
	StoredFilePath   string         `gorm:"not null" json:"-"`
	FileHash         string         `gorm:"size:64;not null;uniqueIndex" json:"fileHash"`
	HashAlgorithm    string         `gorm:"size:16;not null;default:sha256" json:"hashAlgorithm"`
	VerificationCode string         `gorm:"size:16;not null;uniqueIndex" json:"verificationCode"`
	BarcodeValue     string         `gorm:"size:64" json:"barcodeValue"`
	IssuedFor        string         `json:"issuedFor,omitempty"`
	IssuedAt         time.Time      `gorm:"index" json:"issuedAt"`
	IssuerID         string         `gorm:"size:36;index" json:"issuerId,omitempty"`
	Status           Status         `gorm:"size:16;not null;default:active;index" json:"status"`
	Downloads        int64          `gorm:"not null;default:0" json:"downloads"`
	Metadata         datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// VerificationLog is an append-only audit event. Rows are never updated;
// they are deleted only in bulk when the parent document is deleted.
//
// Besides the audit trail, matched rows double as a secondary index:
// a hash that matches no canonical FileHash may still match the
// SubmittedHash of a prior successful event, identifying the document a
// watermark-derived copy came from.
type VerificationLog struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	DocumentID    *string        `gorm:"type:varchar(36);index" json:"documentId,omitempty"`
	VerifierName  string         `json:"verifierName,omitempty"`
	VerifierEmail string         `json:"verifierEmail,omitempty"`
	VerifierRole  string         `gorm:"size:32" json:"verifierRole,omitempty"`
	VerifierID    string         `gorm:"size:36" json:"verifierId,omitempty"`
	SubmittedHash string         `gorm:"size:64;index" json:"submittedHash,omitempty"`
	Matched       bool           `gorm:"not null" json:"matched"`
	VerifiedVia   string         `gorm:"size:32" json:"verifiedVia"`
	Metadata      datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"createdAt"`
}

// DocumentSummary is the sanitized payload returned when a record was
// located but verification failed. Nothing beyond id and status leaks.
type DocumentSummary struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Summary returns the sanitized view of a record.
func (d *DocumentRecord) Summary() DocumentSummary {
	return DocumentSummary{ID: d.ID, Status: d.Status}
}
