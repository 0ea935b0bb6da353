package document

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const (
	codeLength  = 10
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewVerificationCode returns a fresh random code: fixed length,
// uppercase letters and digits. Codes are compared case-insensitively,
// so inputs are uppercased before lookup (see NormalizeCode).
func NewVerificationCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeCharset[int(b)%len(codeCharset)]
	}
	return string(buf), nil
}

// NormalizeCode uppercases and trims a caller-supplied code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
