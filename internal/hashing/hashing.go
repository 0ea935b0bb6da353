// Package hashing computes content digests for issued documents.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// Algorithm identifies the digest algorithm recorded on every document.
const Algorithm = "sha256"

// Sum returns the hex-encoded SHA-256 digest of b.
func Sum(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SumFile streams the file at path through SHA-256 and returns the
// hex-encoded digest together with the file size.
func SumFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("hashing: open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hashing: read file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

// DetectMime sniffs the content type from the first bytes of a file,
// falling back to the filename extension when sniffing yields nothing
// more specific than an octet stream.
func DetectMime(head []byte, filename string) string {
	mime := http.DetectContentType(head)
	if mime != "application/octet-stream" {
		return mime
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".xls":
		return "application/vnd.ms-excel"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return mime
}
