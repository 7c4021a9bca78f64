package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/audit"
	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
)

// AdminStore persists the singleton admin security config. Implemented by
// repository.AdminRepository.
type AdminStore interface {
	Get(ctx context.Context) (*model.AdminSecurityConfig, error)
	Upsert(ctx context.Context, cfg *model.AdminSecurityConfig) error
}

// AdminService manages the out-of-band administrative identity: a single
// username/password/TOTP triple stored outside the tenant user tables,
// with recovery codes sharing the backup-code storage under a reserved
// owner id. Password-only admin login is never possible: the second
// factor is mandatory from bootstrap on.
type AdminService struct {
	admins   AdminStore
	codes    BackupCodeStore
	totp     *auth.TOTPEngine
	hashcfg  *auth.Argon2Params
	recorder *audit.Recorder
	log      *logger.Logger
}

// NewAdminService creates a new AdminService
func NewAdminService(
	admins AdminStore,
	codes BackupCodeStore,
	totp *auth.TOTPEngine,
	hashcfg *auth.Argon2Params,
	recorder *audit.Recorder,
	log *logger.Logger,
) *AdminService {
	return &AdminService{
		admins:   admins,
		codes:    codes,
		totp:     totp,
		hashcfg:  hashcfg,
		recorder: recorder,
		log:      log.WithComponent("admin_service"),
	}
}

// AdminCredentials is the one-time-visible result of bootstrap or rotation
type AdminCredentials struct {
	Enrollment    *auth.Enrollment
	RecoveryCodes []string
}

// Bootstrapped reports whether the admin identity has been initialized
func (s *AdminService) Bootstrapped(ctx context.Context) (bool, error) {
	_, err := s.admins.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Bootstrap initializes the admin identity. It fails with ErrConflict once
// a config exists; rotation is the only way to change live credentials.
func (s *AdminService) Bootstrap(ctx context.Context, username, password string) (*AdminCredentials, error) {
	if _, err := s.admins.Get(ctx); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	creds, err := s.install(ctx, username, password)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("username", username).Msg("admin identity bootstrapped")
	return creds, nil
}

// Verify checks the full admin credential triple. The second factor is
// either a current TOTP code or an unused recovery code; recovery codes
// burn on use.
func (s *AdminService) Verify(ctx context.Context, username, password, code string) error {
	cfg, err := s.admins.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(username), []byte(cfg.Username)) == 1

	passwordOK, err := auth.VerifyPassword(password, cfg.PasswordHash)
	if err != nil {
		passwordOK = false
	}
	if !usernameOK || !passwordOK {
		return ErrInvalidCredentials
	}

	if code == "" {
		return ErrMfaRequired
	}
	if s.totp.VerifyCode(cfg.TOTPSecret, code, time.Now()) {
		return nil
	}
	return s.consumeRecoveryCode(ctx, code)
}

// Rotate replaces the full admin credential triple after re-verifying the
// current password and second factor. The previous TOTP secret and every
// recovery code are void immediately.
func (s *AdminService) Rotate(ctx context.Context, currentPassword, currentCode, newUsername, newPassword string) (*AdminCredentials, error) {
	cfg, err := s.admins.Get(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.Verify(ctx, cfg.Username, currentPassword, currentCode); err != nil {
		return nil, err
	}

	creds, err := s.install(ctx, newUsername, newPassword)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpAdminRotate, audit.Record{
		TenantID:  "",
		ActorID:   model.AdminOwnerID,
		EntityID:  model.AdminOwnerID,
		Before:    map[string]interface{}{"username": cfg.Username},
		After:     map[string]interface{}{"username": newUsername},
		RequestIP: "",
		UserAgent: "",
	})
	s.log.Info().Msg("admin credentials rotated")
	return creds, nil
}

// The admin master password guards every tenant at once, so beyond the
// baseline policy it must also clear a strength-score floor.
const adminMinPasswordScore = 2

func (s *AdminService) install(ctx context.Context, username, password string) (*AdminCredentials, error) {
	if username == "" {
		return nil, ErrInvalidInput
	}
	if err := auth.ValidatePassword(password, 0); err != nil {
		return nil, ErrWeakPassword
	}
	if auth.EstimatePasswordStrength(password) < adminMinPasswordScore {
		return nil, fmt.Errorf("%w: admin password is too predictable", ErrWeakPassword)
	}

	hash, err := auth.HashPassword(password, s.hashcfg)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.totp.GenerateSecret(username)
	if err != nil {
		return nil, err
	}

	if err := s.admins.Upsert(ctx, &model.AdminSecurityConfig{
		Username:     username,
		PasswordHash: hash,
		TOTPSecret:   enrollment.Secret,
		UpdatedAt:    time.Now(),
	}); err != nil {
		return nil, err
	}

	plaintext := auth.GenerateBackupCodes()
	now := time.Now()
	stored := make([]*model.BackupCode, 0, len(plaintext))
	for _, code := range plaintext {
		codeHash, err := auth.HashPassword(auth.NormalizeBackupCode(code), s.hashcfg)
		if err != nil {
			return nil, err
		}
		stored = append(stored, &model.BackupCode{
			ID:        newID("bc"),
			UserID:    model.AdminOwnerID,
			CodeHash:  codeHash,
			CreatedAt: now,
		})
	}
	if err := s.codes.ReplaceAll(ctx, model.AdminOwnerID, stored); err != nil {
		return nil, err
	}

	return &AdminCredentials{
		Enrollment:    enrollment,
		RecoveryCodes: plaintext,
	}, nil
}

func (s *AdminService) consumeRecoveryCode(ctx context.Context, code string) error {
	normalized := auth.NormalizeBackupCode(code)
	candidates, err := s.codes.GetUnused(ctx, model.AdminOwnerID)
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
		s.log.Warn().Msg("admin recovery code consumed")
		return nil
	}
	return ErrInvalidCredentials
}
