package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/MustafaBasol/crm-sub006/internal/config"
)

const (
	// BackupCodeCount is the fixed size of a backup-code set
	BackupCodeCount  = 10
	backupCodeLength = 8
)

// TOTPEngine generates and validates time-based one-time codes
type TOTPEngine struct {
	cfg config.TOTPConfig
}

// NewTOTPEngine creates a new TOTPEngine
func NewTOTPEngine(cfg config.TOTPConfig) *TOTPEngine {
	if cfg.Digits == 0 {
		cfg.Digits = 6
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	return &TOTPEngine{cfg: cfg}
}

// Enrollment holds the artifacts of a fresh TOTP enrollment
type Enrollment struct {
	Secret string // base32-encoded shared secret
	URL    string // otpauth:// provisioning URI
	QRCode string // base64-encoded PNG of the provisioning URI
}

// GenerateSecret creates a new TOTP secret for the given account and
// renders the provisioning QR code for authenticator apps
func (e *TOTPEngine) GenerateSecret(accountName string) (*Enrollment, error) {
	issuer := e.cfg.Issuer
	if issuer == "" {
		issuer = "CRM"
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		Period:      uint(e.cfg.Period),
		Digits:      otp.Digits(e.cfg.Digits),
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qrPNG, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR code: %w", err)
	}

	return &Enrollment{
		Secret: key.Secret(),
		URL:    key.URL(),
		QRCode: base64.StdEncoding.EncodeToString(qrPNG),
	}, nil
}

// VerifyCode validates a TOTP code against the secret at the given time.
// The configured skew tolerates one adjacent 30-second step in either
// direction for clock drift.
func (e *TOTPEngine) VerifyCode(secret, code string, at time.Time) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, at, totp.ValidateOpts{
		Period:    uint(e.cfg.Period),
		Skew:      uint(e.cfg.Skew),
		Digits:    otp.Digits(e.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false
	}
	return valid
}

// GenerateCode produces the code for the secret at the given time.
// Used by enrollment confirmation screens and tests.
func (e *TOTPEngine) GenerateCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    uint(e.cfg.Period),
		Skew:      uint(e.cfg.Skew),
		Digits:    otp.Digits(e.cfg.Digits),
		Algorithm: otp.AlgorithmSHA1,
	})
}

// GenerateBackupCodes creates a fresh set of single-use backup codes.
// Each code is short random alphanumeric, formatted xxxx-xxxx with a
// confusion-free alphabet.
func GenerateBackupCodes() []string {
	codes := make([]string, BackupCodeCount)
	for i := range codes {
		codes[i] = generateBackupCode()
	}
	return codes
}

func generateBackupCode() string {
	const charset = "0123456789abcdefghjkmnpqrstuvwxyz" // no i, l, o to avoid confusion
	b := make([]byte, backupCodeLength)
	if _, err := rand.Read(b); err != nil {
		panic("failed to generate random bytes for backup code")
	}
	code := make([]byte, backupCodeLength)
	for i := range code {
		code[i] = charset[int(b[i])%len(charset)]
	}
	return string(code[:4]) + "-" + string(code[4:])
}

// NormalizeBackupCode canonicalizes user input before hashing or comparing
func NormalizeBackupCode(code string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(code), "-", ""))
}
