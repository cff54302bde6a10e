package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	token, expiresAt, err := signer.Sign("report-1", "transcripts/report-1.pdf")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	reportID, relPath, parsedExpiry, err := signer.Verify(token, false)
	require.NoError(t, err)
	assert.Equal(t, "report-1", reportID)
	assert.Equal(t, "transcripts/report-1.pdf", relPath)
	assert.Equal(t, expiresAt.Unix(), parsedExpiry.Unix())
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	token, _, err := signer.Sign("report-1", "transcripts/report-1.pdf")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	parts[0] = "report-2"
	_, _, _, err = signer.Verify(strings.Join(parts, "."), false)
	assert.Error(t, err)
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	token, _, err := NewSigner("secret-a", time.Hour).Sign("report-1", "file.csv")
	require.NoError(t, err)

	_, _, _, err = NewSigner("secret-b", time.Hour).Verify(token, false)
	assert.Error(t, err)
}

func TestVerifyExpiry(t *testing.T) {
	signer := NewSigner("test-secret", time.Millisecond)

	token, _, err := signer.Sign("report-1", "file.csv")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	_, _, _, err = signer.Verify(token, false)
	assert.Error(t, err)

	reportID, relPath, _, err := signer.Verify(token, true)
	require.NoError(t, err)
	assert.Equal(t, "report-1", reportID)
	assert.Equal(t, "file.csv", relPath)
}

func TestVerifyMalformedToken(t *testing.T) {
	signer := NewSigner("test-secret", time.Hour)

	_, _, _, err := signer.Verify("not-a-token", false)
	assert.Error(t, err)
}

func TestSignRequiresSecret(t *testing.T) {
	signer := NewSigner("", time.Hour)

	_, _, err := signer.Sign("report-1", "file.csv")
	assert.Error(t, err)
}
