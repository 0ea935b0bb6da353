package document

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/datatypes"

	"github.com/schoolworks/docvault/internal/hashing"
)

// MatchType records which branch of the matching algorithm identified
// the document.
type MatchType string

const (
	MatchNone MatchType = ""
	MatchCode MatchType = "code"
	MatchHash MatchType = "hash"
	// MatchVariant means the presented hash differs from the canonical
	// one but a prior successful log entry carries it, identifying the
	// bytes as a known derivative (a watermarked copy).
	MatchVariant MatchType = "variant"
)

// VerifierIdentity is the optional identity of whoever triggered a
// verification. All fields may be empty for anonymous checks.
type VerifierIdentity struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	ID    string `json:"id,omitempty"`
}

// VerificationResult is the caller-facing outcome. It is always
// well-formed: an unknown document is an expected business outcome, not
// an error. Document holds the full record when verification succeeded,
// a DocumentSummary when a record was located but failed verification,
// and nil when nothing matched.
type VerificationResult struct {
	Matched   bool      `json:"matched"`
	MatchType MatchType `json:"matchType,omitempty"`
	Status    string    `json:"status"`
	Hash      string    `json:"hash,omitempty"`
	Document  any       `json:"document"`
	Message   string    `json:"message,omitempty"`
}

// Resolver decides which document a caller-supplied code and/or hash
// refers to, and logs every attempt.
type Resolver struct {
	store *Store
}

func NewResolver(store *Store) *Resolver {
	return &Resolver{store: store}
}

// VerifyByReference resolves a code and/or hash. At least one must be
// present.
func (r *Resolver) VerifyByReference(ctx context.Context, code, hash string, verifier VerifierIdentity) (VerificationResult, error) {
	code = NormalizeCode(code)
	hash = strings.ToLower(strings.TrimSpace(hash))
	if code == "" && hash == "" {
		return VerificationResult{}, &ValidationError{Field: "code/hash", Reason: "at least one of code or hash is required"}
	}
	via := "code"
	switch {
	case code != "" && hash != "":
		via = "code+hash"
	case hash != "":
		via = "hash"
	}
	return r.verify(ctx, code, hash, via, verifier)
}

// VerifyByUpload hashes a raw file buffer and runs the identical
// algorithm with the computed hash.
func (r *Resolver) VerifyByUpload(ctx context.Context, content []byte, code string, verifier VerifierIdentity) (VerificationResult, error) {
	code = NormalizeCode(code)
	via := "upload"
	if code != "" {
		via = "upload+code"
	}
	return r.verify(ctx, code, hashing.Sum(content), via, verifier)
}

type resolution struct {
	record    *DocumentRecord
	matchType MatchType
	variant   *VerificationLog
}

// resolve implements the matching order: code lookup first, with a
// scoped variant check when the presented hash disagrees with the
// record's canonical hash; then direct canonical-hash lookup; then a
// global variant search over the whole log.
func (r *Resolver) resolve(ctx context.Context, code, hash string) (resolution, error) {
	if code != "" {
		rec, err := r.store.FindByCode(ctx, code)
		if err != nil {
			return resolution{}, err
		}
		if rec != nil {
			if hash != "" && hash != rec.FileHash {
				entry, err := r.store.LatestMatchedVariant(ctx, rec.ID, hash)
				if err != nil {
					return resolution{}, err
				}
				if entry != nil {
					return resolution{record: rec, matchType: MatchVariant, variant: entry}, nil
				}
				// Located by code, but the hash neither matches the
				// canonical digest nor any known variant.
				return resolution{record: rec, matchType: MatchCode}, nil
			}
			return resolution{record: rec, matchType: MatchCode}, nil
		}
		// No record owns the code; the hash may still identify one.
	}
	if hash != "" {
		rec, err := r.store.FindByHash(ctx, hash)
		if err != nil {
			return resolution{}, err
		}
		if rec != nil {
			return resolution{record: rec, matchType: MatchHash}, nil
		}
		entry, err := r.store.LatestMatchedVariantAny(ctx, hash)
		if err != nil {
			return resolution{}, err
		}
		if entry != nil && entry.DocumentID != nil {
			parent, err := r.store.Get(ctx, *entry.DocumentID)
			if err == nil {
				return resolution{record: parent, matchType: MatchVariant, variant: entry}, nil
			}
			if !errors.Is(err, ErrNotFound) {
				return resolution{}, err
			}
		}
	}
	return resolution{}, nil
}

func (r *Resolver) verify(ctx context.Context, code, hash, via string, verifier VerifierIdentity) (VerificationResult, error) {
	reso, err := r.resolve(ctx, code, hash)
	if err != nil {
		return VerificationResult{}, err
	}

	result := VerificationResult{Status: "unknown", MatchType: reso.matchType}
	if rec := reso.record; rec != nil {
		hashOK := hash == "" || hash == rec.FileHash || reso.matchType == MatchVariant
		result.Matched = rec.Status == StatusActive && hashOK
		result.Status = string(rec.Status)
		if result.Matched {
			result.Hash = rec.FileHash
			result.Document = rec
		} else {
			// Located but failed: leak nothing beyond id and status.
			result.Document = rec.Summary()
			switch {
			case rec.Status != StatusActive:
				result.Message = "document is " + string(rec.Status)
			default:
				result.Message = "hash does not match the issued document"
			}
		}
	} else {
		result.Message = "no document matches the supplied reference"
	}

	entry := &VerificationLog{
		VerifierName:  verifier.Name,
		VerifierEmail: verifier.Email,
		VerifierRole:  verifier.Role,
		VerifierID:    verifier.ID,
		SubmittedHash: hash,
		Matched:       result.Matched,
		VerifiedVia:   via,
	}
	if reso.record != nil {
		id := reso.record.ID
		entry.DocumentID = &id
	}
	if reso.variant != nil {
		meta, _ := json.Marshal(map[string]any{
			"matchType":    string(MatchVariant),
			"variantLogId": reso.variant.ID,
		})
		entry.Metadata = datatypes.JSON(meta)
	}
	if err := r.store.AppendLog(ctx, entry); err != nil {
		return VerificationResult{}, err
	}
	return result, nil
}
