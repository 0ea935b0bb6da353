package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/schoolworks/docvault/internal/document"
	"github.com/schoolworks/docvault/internal/watermark"
)

type testEnv struct {
	router *gin.Engine
	store  *document.Store
}

// passthroughStamper keeps transport tests independent of pdf parsing.
type passthroughStamper struct{}

func (passthroughStamper) Stamp(pdf []byte, _ watermark.Annotation) ([]byte, error) {
	return append(append([]byte{}, pdf...), []byte(" marked")...), nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	store := document.NewStore(db)
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	resolver := document.NewResolver(store)
	downloads := document.NewDownloadPipeline(store, passthroughStamper{})
	handler := NewHandler(store, resolver, downloads, t.TempDir())

	router := gin.New()
	RegisterRoutes(router, handler)
	return &testEnv{router: router, store: store}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func asTeacher(req *http.Request, id string) *http.Request {
	req.Header.Set(headerActorRole, document.RoleTeacher)
	req.Header.Set(headerActorID, id)
	req.Header.Set(headerViewerName, "Teach Er")
	req.Header.Set(headerViewerEmail, "teacher@example.edu")
	return req
}

func multipartUpload(t *testing.T, content []byte, filename string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	fw, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write(content); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &body, w.FormDataContentType()
}

func uploadDocument(t *testing.T, env *testEnv, content []byte, filename, issuerID string) document.DocumentRecord {
	t.Helper()
	body, contentType := multipartUpload(t, content, filename, map[string]string{
		"issued_for": "Student Example",
		"metadata":   `{"class":"XII-A"}`,
	})
	req := asTeacher(httptest.NewRequest(http.MethodPost, "/api/documents", body), issuerID)
	req.Header.Set("Content-Type", contentType)
	w := env.do(t, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body %s", w.Code, w.Body.String())
	}
	var rec document.DocumentRecord
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatalf("decode upload response: %v", err)
	}
	return rec
}

func TestUploadAndFetchDocument(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("issued transcript body")
	rec := uploadDocument(t, env, content, "transcript.txt", "teacher-1")

	if rec.Status != document.StatusActive {
		t.Errorf("Status = %v, want active", rec.Status)
	}
	if rec.IssuerID != "teacher-1" {
		t.Errorf("IssuerID = %q, want teacher-1", rec.IssuerID)
	}
	if len(rec.VerificationCode) != 10 {
		t.Errorf("VerificationCode = %q, want 10 characters", rec.VerificationCode)
	}

	req := asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID, nil), "teacher-1")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", w.Code)
	}

	// Another teacher must not see it.
	req = asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID, nil), "teacher-2")
	if w := env.do(t, req); w.Code != http.StatusForbidden {
		t.Errorf("foreign get status = %d, want 403", w.Code)
	}
}

func TestUploadForbiddenForStudents(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartUpload(t, []byte("x"), "x.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(headerActorRole, document.RoleStudent)
	req.Header.Set(headerActorID, "student-1")
	if w := env.do(t, req); w.Code != http.StatusForbidden {
		t.Errorf("upload status = %d, want 403", w.Code)
	}
}

func TestDuplicateUploadConflicts(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("same bytes twice")
	uploadDocument(t, env, content, "one.txt", "teacher-1")

	body, contentType := multipartUpload(t, content, "two.txt", nil)
	req := asTeacher(httptest.NewRequest(http.MethodPost, "/api/documents", body), "teacher-1")
	req.Header.Set("Content-Type", contentType)
	if w := env.do(t, req); w.Code != http.StatusConflict {
		t.Errorf("duplicate upload status = %d, want 409", w.Code)
	}
}

func TestDownloadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("downloadable body")
	rec := uploadDocument(t, env, content, "cert.txt", "teacher-1")

	req := asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID+"/download", nil), "teacher-1")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("download status = %d, body %s", w.Code, w.Body.String())
	}
	if !bytes.Equal(w.Body.Bytes(), content) {
		t.Error("non-PDF download altered the bytes")
	}
	if got := w.Header().Get("Content-Disposition"); got != fmt.Sprintf("attachment; filename=%q", "cert.txt") {
		t.Errorf("Content-Disposition = %q", got)
	}
	if w.Header().Get("X-Document-Hash") != rec.FileHash {
		t.Error("X-Document-Hash does not match canonical hash for unwatermarked bytes")
	}
}

func TestVerifyEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := uploadDocument(t, env, []byte("verify me"), "verify.txt", "teacher-1")

	t.Run("KnownCode", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]any{"code": rec.VerificationCode})
		req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(t, req)
		if w.Code != http.StatusOK {
			t.Fatalf("verify status = %d", w.Code)
		}
		var result struct {
			Matched  bool           `json:"matched"`
			Status   string         `json:"status"`
			Document map[string]any `json:"document"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if !result.Matched || result.Status != "active" {
			t.Errorf("result = %+v, want matched active", result)
		}
	})

	t.Run("UnknownCodeStillOK", func(t *testing.T) {
		payload, _ := json.Marshal(map[string]any{"code": "NOSUCHCODE"})
		req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w := env.do(t, req)
		if w.Code != http.StatusOK {
			t.Fatalf("verify status = %d, unknown document is not an error", w.Code)
		}
		var result struct {
			Matched  bool `json:"matched"`
			Document any  `json:"document"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
			t.Fatal(err)
		}
		if result.Matched || result.Document != nil {
			t.Errorf("result = %+v, want unmatched with null document", result)
		}
	})

	t.Run("NoInputs", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("Content-Type", "application/json")
		if w := env.do(t, req); w.Code != http.StatusBadRequest {
			t.Errorf("verify status = %d, want 400", w.Code)
		}
	})
}

func TestVerifyUploadEndpoint(t *testing.T) {
	env := newTestEnv(t)
	content := []byte("upload verification bytes")
	uploadDocument(t, env, content, "orig.txt", "teacher-1")

	body, contentType := multipartUpload(t, content, "candidate.txt", nil)
	req := httptest.NewRequest(http.MethodPost, "/api/verify/upload", body)
	req.Header.Set("Content-Type", contentType)
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("verify upload status = %d", w.Code)
	}
	var result struct {
		Matched   bool   `json:"matched"`
		MatchType string `json:"matchType"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if !result.Matched || result.MatchType != "hash" {
		t.Errorf("result = %+v, want matched via hash", result)
	}
}

func TestStatusUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	rec := uploadDocument(t, env, []byte("lifecycle doc"), "life.txt", "teacher-1")

	payload := bytes.NewReader([]byte(`{"status":"revoked"}`))
	req := asTeacher(httptest.NewRequest(http.MethodPatch, "/api/documents/"+rec.ID+"/status", payload), "teacher-1")
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status update = %d, body %s", w.Code, w.Body.String())
	}

	// Revoked documents fail verification with a sanitized payload.
	vp, _ := json.Marshal(map[string]any{"code": rec.VerificationCode})
	vreq := httptest.NewRequest(http.MethodPost, "/api/verify", bytes.NewReader(vp))
	vreq.Header.Set("Content-Type", "application/json")
	vw := env.do(t, vreq)
	var result struct {
		Matched  bool           `json:"matched"`
		Status   string         `json:"status"`
		Document map[string]any `json:"document"`
	}
	if err := json.Unmarshal(vw.Body.Bytes(), &result); err != nil {
		t.Fatal(err)
	}
	if result.Matched || result.Status != "revoked" {
		t.Errorf("result = %+v, want unmatched revoked", result)
	}
	if len(result.Document) != 2 {
		t.Errorf("sanitized document = %v, want only id and status", result.Document)
	}

	req = asTeacher(httptest.NewRequest(http.MethodDelete, "/api/documents/"+rec.ID, nil), "teacher-1")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	req = asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID, nil), "teacher-1")
	if w := env.do(t, req); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	req = asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID+"/logs", nil), "teacher-1")
	if w := env.do(t, req); w.Code != http.StatusNotFound {
		t.Errorf("logs after delete = %d, want 404", w.Code)
	}
}

func TestListVerificationLogEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec := uploadDocument(t, env, []byte("audited"), "audit.txt", "teacher-1")

	// One download, then inspect the trail.
	req := asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID+"/download", nil), "teacher-1")
	if w := env.do(t, req); w.Code != http.StatusOK {
		t.Fatalf("download status = %d", w.Code)
	}

	req = asTeacher(httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID+"/logs", nil), "teacher-1")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("logs status = %d", w.Code)
	}
	var payload struct {
		Logs []document.VerificationLog `json:"logs"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatal(err)
	}
	if len(payload.Logs) != 1 || payload.Logs[0].VerifiedVia != "download" {
		t.Errorf("logs = %+v, want single download entry", payload.Logs)
	}

	// Students get no audit trail.
	sreq := httptest.NewRequest(http.MethodGet, "/api/documents/"+rec.ID+"/logs", nil)
	sreq.Header.Set(headerActorRole, document.RoleStudent)
	sreq.Header.Set(headerActorID, "student-1")
	if w := env.do(t, sreq); w.Code != http.StatusForbidden {
		t.Errorf("student logs status = %d, want 403", w.Code)
	}
}
