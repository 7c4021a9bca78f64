package model

import "time"

// AuditAction represents the kind of mutation recorded in an audit entry
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
)

// AuditLogEntry is an immutable, append-only record of a mutation.
// The diff map holds changed fields with PII already masked; the unmasked
// diff never reaches storage.
type AuditLogEntry struct {
	ID         string                 `json:"id"`
	TenantID   string                 `json:"tenantId"`
	ActorID    *string                `json:"actorId,omitempty"` // nil for system actions
	EntityName string                 `json:"entityName"`
	EntityID   string                 `json:"entityId"`
	Action     AuditAction            `json:"action"`
	Diff       map[string]interface{} `json:"diff,omitempty"`
	RequestIP  string                 `json:"requestIp"`
	UserAgent  string                 `json:"userAgent"`
	CreatedAt  time.Time              `json:"createdAt"`
}

// Audit operation identifiers, consulted through the recorder's
// registration table
const (
	AuditOpUserRegister     = "user.register"
	AuditOpUserLogin        = "user.login"
	AuditOpUserLoginFailed  = "user.login_failed"
	AuditOpUserVerifyEmail  = "user.verify_email"
	AuditOpPasswordForgot   = "user.password_forgot"
	AuditOpPasswordReset    = "user.password_reset"
	AuditOpPasswordChange   = "user.password_change"
	AuditOpSessionRefresh   = "session.refresh"
	AuditOpTOTPEnroll       = "mfa.totp_enroll"
	AuditOpTOTPConfirm      = "mfa.totp_confirm"
	AuditOpTOTPDisable      = "mfa.totp_disable"
	AuditOpBackupCodesReset = "mfa.backup_codes_reset"
	AuditOpAdminRotate      = "admin.credentials_rotate"
)
