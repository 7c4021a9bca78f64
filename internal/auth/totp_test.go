package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/config"
)

func testEngine() *TOTPEngine {
	return NewTOTPEngine(config.TOTPConfig{Issuer: "CRM-Test"})
}

func TestGenerateSecret(t *testing.T) {
	e := testEngine()

	enrollment, err := e.GenerateSecret("jane@example.com")
	require.NoError(t, err)

	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")
	assert.Contains(t, enrollment.URL, "CRM-Test")
	assert.NotEmpty(t, enrollment.QRCode)
}

func TestVerifyCodeWithinSkew(t *testing.T) {
	e := testEngine()
	enrollment, err := e.GenerateSecret("jane@example.com")
	require.NoError(t, err)

	now := time.Now()
	code, err := e.GenerateCode(enrollment.Secret, now)
	require.NoError(t, err)

	// one step of drift in either direction is tolerated
	assert.True(t, e.VerifyCode(enrollment.Secret, code, now))
	assert.True(t, e.VerifyCode(enrollment.Secret, code, now.Add(30*time.Second)))
	assert.True(t, e.VerifyCode(enrollment.Secret, code, now.Add(-30*time.Second)))

	// two steps away is out of the window
	assert.False(t, e.VerifyCode(enrollment.Secret, code, now.Add(90*time.Second)))
	assert.False(t, e.VerifyCode(enrollment.Secret, code, now.Add(-90*time.Second)))
}

func TestVerifyCodeRejectsBadInput(t *testing.T) {
	e := testEngine()
	enrollment, err := e.GenerateSecret("jane@example.com")
	require.NoError(t, err)

	now := time.Now()
	assert.False(t, e.VerifyCode(enrollment.Secret, "", now))
	assert.False(t, e.VerifyCode(enrollment.Secret, "abcdef", now))
	assert.False(t, e.VerifyCode(enrollment.Secret, "12345", now))
}

func TestVerifyCodeTrimsWhitespace(t *testing.T) {
	e := testEngine()
	enrollment, err := e.GenerateSecret("jane@example.com")
	require.NoError(t, err)

	now := time.Now()
	code, err := e.GenerateCode(enrollment.Secret, now)
	require.NoError(t, err)

	assert.True(t, e.VerifyCode(enrollment.Secret, "  "+code+" ", now))
}

func TestGenerateBackupCodes(t *testing.T) {
	codes := GenerateBackupCodes()
	require.Len(t, codes, BackupCodeCount)

	seen := make(map[string]bool)
	for _, code := range codes {
		assert.Len(t, code, 9) // xxxx-xxxx
		assert.Equal(t, "-", string(code[4]))
		assert.False(t, strings.ContainsAny(code, "ilo"), "code %q uses a confusable character", code)
		seen[code] = true
	}
	assert.Len(t, seen, BackupCodeCount, "codes must be unique")
}

func TestNormalizeBackupCode(t *testing.T) {
	assert.Equal(t, "abcd1234", NormalizeBackupCode("ABCD-1234"))
	assert.Equal(t, "abcd1234", NormalizeBackupCode("  abcd-1234  "))
	assert.Equal(t, "abcd1234", NormalizeBackupCode("abcd1234"))
}
