package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer mints and verifies the HMAC tokens that authorize report
// downloads. A token binds one report ID to one stored file path with an
// expiry; downloads need no session, so the signature is the whole
// access control.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a signer with the given secret and token TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{secret: []byte(secret), ttl: ttl}
}

// Sign returns a download token for the report and file path.
func (s *Signer) Sign(reportID, relPath string) (string, time.Time, error) {
	if reportID == "" || relPath == "" {
		return "", time.Time{}, fmt.Errorf("reportID and relPath required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := time.Now().Add(s.ttl)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	exp := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(reportID, exp, encodedPath)
	token := strings.Join([]string{reportID, exp, encodedPath, signature}, ".")
	return token, expiresAt, nil
}

// Verify validates a token and returns the embedded report ID, file path
// and expiry. Cleanup passes allowExpired to resolve paths of tokens
// past their window.
func (s *Signer) Verify(token string, allowExpired bool) (reportID, relPath string, expiresAt time.Time, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", time.Time{}, fmt.Errorf("malformed token")
	}
	reportID, exp, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(reportID, exp, encodedPath)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return "", "", time.Time{}, fmt.Errorf("token signature mismatch")
	}

	expUnix, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed token expiry")
	}
	expiresAt = time.Unix(expUnix, 0)
	if !allowExpired && time.Now().After(expiresAt) {
		return "", "", time.Time{}, fmt.Errorf("token expired")
	}

	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("decode token path: %w", err)
	}
	return reportID, string(rawPath), expiresAt, nil
}

func (s *Signer) sign(reportID, exp, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s", reportID, exp, encodedPath)
	return hex.EncodeToString(mac.Sum(nil))
}
