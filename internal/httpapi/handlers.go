// Package httpapi exposes the document subsystem over HTTP.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/schoolworks/docvault/internal/document"
	"github.com/schoolworks/docvault/internal/hashing"
)

const maxUploadBytes = 32 << 20

// Handler holds the injected document subsystem dependencies.
type Handler struct {
	store      *document.Store
	resolver   *document.Resolver
	downloads  *document.DownloadPipeline
	storageDir string
}

func NewHandler(store *document.Store, resolver *document.Resolver, downloads *document.DownloadPipeline, storageDir string) *Handler {
	return &Handler{store: store, resolver: resolver, downloads: downloads, storageDir: storageDir}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) uploadDocument(c *gin.Context) {
	id := identityFrom(c)
	if id.Role != document.RoleAdmin && id.Role != document.RoleTeacher {
		c.JSON(http.StatusForbidden, gin.H{"error": "only teachers and admins may issue documents"})
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload failed", "details": err.Error()})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload", "details": err.Error()})
		return
	}

	storedName := uuid.New().String() + filepath.Ext(header.Filename)
	storedPath := filepath.Join(h.storageDir, storedName)
	if err := os.WriteFile(storedPath, content, 0o644); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save file", "details": err.Error()})
		return
	}

	in := document.CreateInput{
		OriginalFileName: header.Filename,
		FileSize:         int64(len(content)),
		MimeType:         hashing.DetectMime(content[:min(len(content), 512)], header.Filename),
		StoredFilePath:   storedPath,
		FileHash:         hashing.Sum(content),
		IssuedFor:        c.PostForm("issued_for"),
		IssuerID:         id.ID,
		Status:           document.Status(c.PostForm("status")),
	}
	if v := c.PostForm("issued_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			os.Remove(storedPath)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid issued_at", "details": "must be RFC 3339"})
			return
		}
		in.IssuedAt = t
	}
	if v := c.PostForm("metadata"); v != "" {
		if !json.Valid([]byte(v)) {
			os.Remove(storedPath)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid metadata", "details": "must be valid JSON"})
			return
		}
		in.Metadata = datatypes.JSON(v)
	}

	rec, err := h.store.Create(c.Request.Context(), in)
	if err != nil {
		os.Remove(storedPath)
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) listDocuments(c *gin.Context) {
	id := identityFrom(c)
	recs, err := h.store.ListForActor(c.Request.Context(), id.Role, id.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": recs})
}

func (h *Handler) getDocument(c *gin.Context) {
	id := identityFrom(c)
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := document.Authorize(rec, id.actor()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) downloadDocument(c *gin.Context) {
	id := identityFrom(c)
	res, err := h.downloads.Download(c.Request.Context(), c.Param("id"), id.actor(), id.viewer())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", res.FileName))
	c.Header("X-Document-Hash", res.OutputHash)
	c.Data(http.StatusOK, res.ContentType, res.Content)
}

func (h *Handler) updateDocumentStatus(c *gin.Context) {
	id := identityFrom(c)
	var body struct {
		Status document.Status `json:"status"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := authorizeManage(rec, id); err != nil {
		h.writeError(c, err)
		return
	}
	rec, err = h.store.UpdateStatus(c.Request.Context(), rec.ID, body.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) deleteDocument(c *gin.Context) {
	id := identityFrom(c)
	rec, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := authorizeManage(rec, id); err != nil {
		h.writeError(c, err)
		return
	}
	if err := h.store.Delete(c.Request.Context(), rec.ID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "document deleted"})
}

func (h *Handler) listVerificationLog(c *gin.Context) {
	id := identityFrom(c)
	rec, logs, err := h.store.ListLogs(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if err := authorizeManage(rec, id); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": rec, "logs": logs})
}

func (h *Handler) verifyByReference(c *gin.Context) {
	var body struct {
		Code     string                    `json:"code"`
		Hash     string                    `json:"hash"`
		Verifier document.VerifierIdentity `json:"verifier"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}
	if body.Verifier == (document.VerifierIdentity{}) {
		body.Verifier = identityFrom(c).verifier()
	}
	result, err := h.resolver.VerifyByReference(c.Request.Context(), body.Code, body.Hash, body.Verifier)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) verifyByUpload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload failed", "details": err.Error()})
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read upload", "details": err.Error()})
		return
	}
	result, err := h.resolver.VerifyByUpload(c.Request.Context(), content, c.PostForm("code"), identityFrom(c).verifier())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// authorizeManage guards mutating operations and the audit trail: the
// issuing teacher or an admin only.
func authorizeManage(rec *document.DocumentRecord, id identity) error {
	switch id.Role {
	case document.RoleAdmin:
		return nil
	case document.RoleTeacher:
		if rec.IssuerID == id.ID {
			return nil
		}
	}
	return document.ErrForbidden
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var vErr *document.ValidationError
	var cErr *document.ConflictError
	switch {
	case errors.As(err, &vErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": vErr.Error(), "field": vErr.Field})
	case errors.As(err, &cErr):
		c.JSON(http.StatusConflict, gin.H{"error": cErr.Error(), "field": cErr.Field})
	case errors.Is(err, document.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, document.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "not permitted"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
	}
}
