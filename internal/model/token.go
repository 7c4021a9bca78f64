package model

import (
	"time"
)

// TokenPurpose distinguishes the two single-use token flows
type TokenPurpose string

const (
	TokenPurposeVerification TokenPurpose = "verification"
	TokenPurposeReset        TokenPurpose = "reset"
)

// SingleUseToken is the stored form of an email verification or password
// reset token. Only the SHA-256 hash of the raw value is persisted; the raw
// token exists outside the recipient's inbox exactly once, at issuance.
type SingleUseToken struct {
	ID        string       `json:"id"`
	UserID    string       `json:"userId"`
	Purpose   TokenPurpose `json:"purpose"`
	TokenHash string       `json:"-"`
	ExpiresAt time.Time    `json:"expiresAt"`
	UsedAt    *time.Time   `json:"usedAt,omitempty"`
	RequestIP string       `json:"requestIp"`
	UserAgent string       `json:"userAgent"`
	CreatedAt time.Time    `json:"createdAt"`
}

// IsExpired checks if the token has expired
func (t *SingleUseToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}

// IsUsed checks if the token has been consumed
func (t *SingleUseToken) IsUsed() bool {
	return t.UsedAt != nil
}

// BackupCode is a one-time-use substitute for a TOTP code
type BackupCode struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	CodeHash  string     `json:"-"`
	UsedAt    *time.Time `json:"usedAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// IsUsed checks if the backup code has already been used
func (b *BackupCode) IsUsed() bool {
	return b.UsedAt != nil
}
