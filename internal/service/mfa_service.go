package service

import (
	"context"
	"errors"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/audit"
	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
)

// pendingEnrollmentTTL bounds the window between generating a TOTP secret
// and confirming it with a valid code
const pendingEnrollmentTTL = 10 * time.Minute

// MFAUserStore is the slice of user persistence the MFA service needs
type MFAUserStore interface {
	GetByID(ctx context.Context, id string) (*model.User, error)
	SetTOTPSecret(ctx context.Context, id string, secret string) error
	ClearTOTPSecret(ctx context.Context, id string) error
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}

// BackupCodeStore persists hashed backup codes. Implemented by
// repository.BackupCodeRepository.
type BackupCodeStore interface {
	ReplaceAll(ctx context.Context, userID string, codes []*model.BackupCode) error
	DeleteAll(ctx context.Context, userID string) error
	GetUnused(ctx context.Context, userID string) ([]*model.BackupCode, error)
	MarkUsed(ctx context.Context, id string) error
	CountUnused(ctx context.Context, userID string) (int, error)
}

// PendingStore holds not-yet-confirmed TOTP secrets. Implemented by
// database.Redis.
type PendingStore interface {
	SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetString(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
}

// MFAService manages TOTP enrollment and backup codes. A generated secret
// stays in the pending store until the user proves possession with a valid
// code; only confirmation persists it on the user record and activates 2FA.
type MFAService struct {
	users    MFAUserStore
	codes    BackupCodeStore
	pending  PendingStore
	totp     *auth.TOTPEngine
	hashcfg  *auth.Argon2Params
	recorder *audit.Recorder
	log      *logger.Logger
}

// NewMFAService creates a new MFAService
func NewMFAService(
	users MFAUserStore,
	codes BackupCodeStore,
	pending PendingStore,
	totp *auth.TOTPEngine,
	hashcfg *auth.Argon2Params,
	recorder *audit.Recorder,
	log *logger.Logger,
) *MFAService {
	return &MFAService{
		users:    users,
		codes:    codes,
		pending:  pending,
		totp:     totp,
		hashcfg:  hashcfg,
		recorder: recorder,
		log:      log.WithComponent("mfa_service"),
	}
}

// SetupTOTP generates a fresh secret and provisioning QR for the user and
// parks it in the pending store. Enrollment with 2FA already active is a
// conflict; disable first, then re-enroll.
func (s *MFAService) SetupTOTP(ctx context.Context, userID, requestIP, userAgent string) (*auth.Enrollment, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if user.HasTOTP() {
		return nil, ErrConflict
	}

	enrollment, err := s.totp.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}

	if err := s.pending.SetWithTTL(ctx, pendingKey(userID), enrollment.Secret, pendingEnrollmentTTL); err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpTOTPEnroll, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   userID,
		EntityID:  userID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"totp_enrollment": "pending"},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", userID).Msg("totp enrollment started")
	return enrollment, nil
}

// ConfirmTOTP verifies a code against the pending secret, activates 2FA,
// and returns the one-time-visible set of backup codes. An expired or
// missing pending enrollment yields ErrInvalidOrExpiredToken; a wrong code
// yields ErrInvalidCredentials and leaves the enrollment pending.
func (s *MFAService) ConfirmTOTP(ctx context.Context, userID, code, requestIP, userAgent string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	secret, err := s.pending.GetString(ctx, pendingKey(userID))
	if err != nil || secret == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	if !s.totp.VerifyCode(secret, code, time.Now()) {
		return nil, ErrInvalidCredentials
	}

	if err := s.users.SetTOTPSecret(ctx, userID, secret); err != nil {
		return nil, err
	}
	if err := s.pending.Delete(ctx, pendingKey(userID)); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("failed to delete pending enrollment key")
	}

	plaintext, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpTOTPConfirm, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   userID,
		EntityID:  userID,
		Before:    map[string]interface{}{"totp_enabled": false},
		After:     map[string]interface{}{"totp_enabled": true},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", userID).Msg("totp enrollment confirmed")
	return plaintext, nil
}

// VerifyForLogin checks the user's second factor during login. Exactly one
// of totpCode or backupCode is expected; with neither present the caller
// learns that a second factor is required.
func (s *MFAService) VerifyForLogin(ctx context.Context, user *model.User, totpCode, backupCode string) error {
	switch {
	case totpCode != "":
		if !s.totp.VerifyCode(*user.TOTPSecret, totpCode, time.Now()) {
			return ErrInvalidCredentials
		}
		return nil
	case backupCode != "":
		return s.consumeBackupCode(ctx, user.ID, backupCode)
	default:
		return ErrMfaRequired
	}
}

// DisableTOTP turns off 2FA after re-verifying the account password. The
// TOTP secret and every backup code are removed, and outstanding sessions
// are revoked so a hijacked session cannot quietly strip the second factor
// and keep working.
func (s *MFAService) DisableTOTP(ctx context.Context, userID, password, requestIP, userAgent string) error {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !user.HasTOTP() {
		return ErrNotFound
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return ErrInvalidCredentials
	}

	if err := s.users.ClearTOTPSecret(ctx, userID); err != nil {
		return err
	}
	if err := s.codes.DeleteAll(ctx, userID); err != nil {
		return err
	}
	if _, err := s.users.IncrementTokenVersion(ctx, userID); err != nil {
		return err
	}

	s.recorder.Write(ctx, model.AuditOpTOTPDisable, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   userID,
		EntityID:  userID,
		Before:    map[string]interface{}{"totp_enabled": true},
		After:     map[string]interface{}{"totp_enabled": false},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", userID).Msg("totp disabled")
	return nil
}

// RegenerateBackupCodes replaces the user's backup-code set after
// re-verifying the account password. The previous set is void immediately.
func (s *MFAService) RegenerateBackupCodes(ctx context.Context, userID, password, requestIP, userAgent string) ([]string, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !user.HasTOTP() {
		return nil, ErrNotFound
	}

	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	plaintext, err := s.issueBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpBackupCodesReset, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   userID,
		EntityID:  userID,
		After:     map[string]interface{}{"backup_codes": len(plaintext)},
		Before:    map[string]interface{}{},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	return plaintext, nil
}

// RemainingBackupCodes reports how many codes the user has left
func (s *MFAService) RemainingBackupCodes(ctx context.Context, userID string) (int, error) {
	return s.codes.CountUnused(ctx, userID)
}

// issueBackupCodes generates, hashes, and stores a fresh set, returning the
// plaintext codes for one-time display
func (s *MFAService) issueBackupCodes(ctx context.Context, userID string) ([]string, error) {
	plaintext := auth.GenerateBackupCodes()
	now := time.Now()
	stored := make([]*model.BackupCode, 0, len(plaintext))
	for _, code := range plaintext {
		hash, err := auth.HashPassword(auth.NormalizeBackupCode(code), s.hashcfg)
		if err != nil {
			return nil, err
		}
		stored = append(stored, &model.BackupCode{
			ID:        newID("bc"),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	if err := s.codes.ReplaceAll(ctx, userID, stored); err != nil {
		return nil, err
	}
	return plaintext, nil
}

// consumeBackupCode matches the submitted code against the user's unused
// set and burns the match. MarkUsed's used_at guard makes the burn
// single-winner; losing a concurrent race counts as an invalid code.
func (s *MFAService) consumeBackupCode(ctx context.Context, userID, code string) error {
	normalized := auth.NormalizeBackupCode(code)
	candidates, err := s.codes.GetUnused(ctx, userID)
	if err != nil {
		return err
	}
	for _, candidate := range candidates {
		ok, err := auth.VerifyPassword(normalized, candidate.CodeHash)
		if err != nil || !ok {
			continue
		}
		if err := s.codes.MarkUsed(ctx, candidate.ID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrInvalidCredentials
			}
			return err
		}
		remaining, err := s.codes.CountUnused(ctx, userID)
		if err == nil && remaining <= 2 {
			s.log.Warn().Str("user_id", userID).Int("remaining", remaining).
				Msg("backup codes running low")
		}
		return nil
	}
	return ErrInvalidCredentials
}

func pendingKey(userID string) string {
	return "totp_pending:" + userID
}
