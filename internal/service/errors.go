package service

import "errors"

// Service-level errors returned to callers. Transport layers map these to
// response codes via ErrorCode; anything unmatched is an internal error.
var (
	ErrConflict                  = errors.New("resource already exists")
	ErrNotFound                  = errors.New("resource not found")
	ErrInvalidInput              = errors.New("invalid input")
	ErrInvalidCredentials        = errors.New("invalid credentials")
	ErrHumanVerificationRequired = errors.New("human verification required")
	ErrMfaRequired               = errors.New("second factor required")
	ErrInvalidOrExpiredToken     = errors.New("invalid or expired token")
	ErrWeakPassword              = errors.New("password does not meet the strength policy")
	ErrAccountDeactivated        = errors.New("account is deactivated")
	ErrEmailNotVerified          = errors.New("email address not verified")
	ErrResendCooldown            = errors.New("a message was sent recently, try again later")
	ErrUnauthorized              = errors.New("unauthorized")
)

// ErrorCode maps a service error to a stable machine-readable code
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, ErrHumanVerificationRequired):
		return "human_verification_required"
	case errors.Is(err, ErrMfaRequired):
		return "mfa_required"
	case errors.Is(err, ErrInvalidOrExpiredToken):
		return "invalid_or_expired_token"
	case errors.Is(err, ErrWeakPassword):
		return "weak_password"
	case errors.Is(err, ErrAccountDeactivated):
		return "account_deactivated"
	case errors.Is(err, ErrEmailNotVerified):
		return "email_not_verified"
	case errors.Is(err, ErrResendCooldown):
		return "resend_cooldown"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal_error"
	}
}
