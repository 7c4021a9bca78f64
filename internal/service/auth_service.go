package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MustafaBasol/crm-sub006/internal/attempt"
	"github.com/MustafaBasol/crm-sub006/internal/audit"
	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/captcha"
	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/email"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
)

// UserStore is the slice of user persistence the auth service needs
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	UpdatePasswordHash(ctx context.Context, id string, hash string) error
	VerifyEmail(ctx context.Context, id string) error
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
}

// TenantStore persists organization accounts
type TenantStore interface {
	Create(ctx context.Context, tenant *model.Tenant) error
}

// SecondFactor verifies a user's second factor during login.
// Implemented by MFAService.
type SecondFactor interface {
	VerifyForLogin(ctx context.Context, user *model.User, totpCode, backupCode string) error
}

// AuthService orchestrates registration, login, email verification,
// password reset, and session lifecycle.
type AuthService struct {
	users        UserStore
	tenants      TenantStore
	tokens       *auth.TokenService
	ledger       *TokenLedger
	tracker      *attempt.Tracker
	captcha      captcha.Verifier
	secondFactor SecondFactor
	mailer       email.Sender
	recorder     *audit.Recorder
	hashcfg      *auth.Argon2Params
	passwordCfg  config.PasswordConfig
	emailCfg     config.EmailConfig
	tokenCfg     config.TokenConfig
	verifyGate   bool
	log          *logger.Logger
}

// AuthServiceDeps bundles the dependencies of AuthService
type AuthServiceDeps struct {
	Users        UserStore
	Tenants      TenantStore
	Tokens       *auth.TokenService
	Ledger       *TokenLedger
	Tracker      *attempt.Tracker
	Captcha      captcha.Verifier
	SecondFactor SecondFactor
	Mailer       email.Sender
	Recorder     *audit.Recorder
	Config       *config.Config
	Log          *logger.Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(deps AuthServiceDeps) *AuthService {
	cfg := deps.Config
	return &AuthService{
		users:        deps.Users,
		tenants:      deps.Tenants,
		tokens:       deps.Tokens,
		ledger:       deps.Ledger,
		tracker:      deps.Tracker,
		captcha:      deps.Captcha,
		secondFactor: deps.SecondFactor,
		mailer:       deps.Mailer,
		recorder:     deps.Recorder,
		hashcfg: auth.NewParams(
			cfg.Security.Password.Argon2Memory,
			cfg.Security.Password.Argon2Iterations,
			cfg.Security.Password.Argon2Parallelism,
		),
		passwordCfg: cfg.Security.Password,
		emailCfg:    cfg.Email,
		tokenCfg:    cfg.Security.Tokens,
		verifyGate:  cfg.Verification.Required,
		log:         deps.Log.WithComponent("auth_service"),
	}
}

// RegisterInput carries a self-service signup request
type RegisterInput struct {
	TenantName string
	Email      string
	Name       string
	Password   string
	RequestIP  string
	UserAgent  string
}

// LoginInput carries a credential verification request
type LoginInput struct {
	Email        string
	Password     string
	CaptchaToken string
	TOTPCode     string
	BackupCode   string
	RequestIP    string
	UserAgent    string
}

// Session is the result of a successful authentication
type Session struct {
	Token     string        `json:"token"`
	ExpiresIn time.Duration `json:"expiresIn"`
	User      *model.User   `json:"user"`
}

// RegisterResult is returned by Register: the created account pair plus a
// session for the signup client, so the user lands signed in.
type RegisterResult struct {
	User    *model.User   `json:"user"`
	Tenant  *model.Tenant `json:"tenant"`
	Session *Session      `json:"session"`
}

// Register creates a tenant and its first (admin) user, issues the email
// verification link, and signs the new user in. The account starts
// unverified; whether an unverified account may log in again later is
// controlled by verification.required.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	emailAddr := NormalizeEmail(in.Email)
	if emailAddr == "" || !strings.Contains(emailAddr, "@") {
		return nil, fmt.Errorf("%w: invalid email address", ErrInvalidInput)
	}

	if err := auth.ValidatePassword(in.Password, s.passwordCfg.MinLength); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	exists, err := s.users.ExistsByEmail(ctx, emailAddr)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	hash, err := auth.HashPassword(in.Password, s.hashcfg)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tenant := &model.Tenant{
		ID:        newID("tnt"),
		Name:      in.TenantName,
		CreatedAt: now,
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}

	user := &model.User{
		ID:            newID("usr"),
		TenantID:      tenant.ID,
		Email:         emailAddr,
		Name:          in.Name,
		Role:          model.RoleAdmin,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: false,
		TokenVersion:  0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if err := s.sendVerificationEmail(ctx, user, in.RequestIP, in.UserAgent); err != nil {
		// Registration already succeeded; the user can request a resend
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send verification email")
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpUserRegister, audit.Record{
		TenantID: user.TenantID,
		ActorID:  user.ID,
		EntityID: user.ID,
		After: map[string]interface{}{
			"email": user.Email,
			"name":  user.Name,
			"role":  string(user.Role),
		},
		RequestIP: in.RequestIP,
		UserAgent: in.UserAgent,
	})

	s.log.Info().Str("user_id", user.ID).Str("tenant_id", tenant.ID).Msg("user registered")
	return &RegisterResult{User: user, Tenant: tenant, Session: session}, nil
}

// Login verifies credentials and, when enrolled, the second factor, and
// issues a session token. Once the failure counter for the (email, origin)
// pair reaches the threshold, a human-verification challenge must pass
// before any password comparison happens, so an attacker cannot keep
// probing passwords behind the challenge.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	emailAddr := NormalizeEmail(in.Email)
	key := attempt.Key(emailAddr, in.RequestIP)

	if s.tracker.State(ctx, key) == attempt.StateCaptchaRequired {
		ok, err := s.captcha.Verify(ctx, in.CaptchaToken, in.RequestIP)
		if err != nil {
			s.log.Warn().Err(err).Msg("captcha verification failed")
			return nil, ErrHumanVerificationRequired
		}
		if !ok {
			return nil, ErrHumanVerificationRequired
		}
	}

	user, err := s.users.GetByEmail(ctx, emailAddr)
	if errors.Is(err, repository.ErrNotFound) {
		// Unknown accounts feed the same counter as wrong passwords, so the
		// error and the escalation behavior cannot be used as an oracle
		s.tracker.RecordFailure(ctx, key)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.VerifyPassword(in.Password, user.PasswordHash)
	if err != nil || !ok {
		state := s.tracker.RecordFailure(ctx, key)
		s.recorder.Write(ctx, model.AuditOpUserLoginFailed, audit.Record{
			TenantID:  user.TenantID,
			EntityID:  user.ID,
			Before:    map[string]interface{}{},
			After:     map[string]interface{}{"escalation": string(state)},
			RequestIP: in.RequestIP,
			UserAgent: in.UserAgent,
		})
		return nil, ErrInvalidCredentials
	}

	if !user.Active {
		return nil, ErrAccountDeactivated
	}
	if s.verifyGate && !user.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	if user.HasTOTP() {
		if err := s.secondFactor.VerifyForLogin(ctx, user, in.TOTPCode, in.BackupCode); err != nil {
			if !errors.Is(err, ErrMfaRequired) {
				s.tracker.RecordFailure(ctx, key)
			}
			return nil, err
		}
	}

	s.tracker.Clear(ctx, key)

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpUserLogin, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   user.ID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"login": true},
		RequestIP: in.RequestIP,
		UserAgent: in.UserAgent,
	})

	s.log.Info().Str("user_id", user.ID).Msg("login succeeded")
	return session, nil
}

// VerifyEmail redeems a verification token and marks the account verified
func (s *AuthService) VerifyEmail(ctx context.Context, rawToken, requestIP, userAgent string) error {
	token, err := s.ledger.Consume(ctx, rawToken, model.TokenPurposeVerification)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		s.ledger.Release(ctx, token.ID)
		return err
	}

	if err := s.users.VerifyEmail(ctx, user.ID); err != nil {
		// The flag flip did not land; return the token to circulation so the
		// emailed link still works on retry
		s.ledger.Release(ctx, token.ID)
		return err
	}

	s.recorder.Write(ctx, model.AuditOpUserVerifyEmail, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   user.ID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{"email_verified": false},
		After:     map[string]interface{}{"email_verified": true},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", user.ID).Msg("email verified")
	return nil
}

// ResendVerification reissues the verification link. Unknown and
// already-verified addresses return success without sending anything, so
// the endpoint cannot confirm account existence. The per-user cooldown is
// surfaced, since reaching it already implies a prior successful request.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr, requestIP, userAgent string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(emailAddr))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return nil
	}

	return s.sendVerificationEmail(ctx, user, requestIP, userAgent)
}

// ForgotPassword issues a reset link. The response is identical whether or
// not the address has an account.
func (s *AuthService) ForgotPassword(ctx context.Context, emailAddr, requestIP, userAgent string) error {
	user, err := s.users.GetByEmail(ctx, NormalizeEmail(emailAddr))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	raw, _, err := s.ledger.Issue(ctx, user.ID, model.TokenPurposeReset, requestIP, userAgent)
	if errors.Is(err, ErrResendCooldown) {
		// Swallowed: a distinct cooldown response would confirm the account
		return nil
	}
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.emailCfg.BaseURL, raw)
	ttlMinutes := int(s.tokenCfg.ResetTTL.Minutes())
	msg := email.Message{
		To:       user.Email,
		Subject:  "Reset your password",
		HTMLBody: email.ResetEmailHTML(link, s.emailCfg.AppName, ttlMinutes),
		TextBody: email.ResetEmailText(link, s.emailCfg.AppName, ttlMinutes),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send reset email")
		return nil
	}

	s.recorder.Write(ctx, model.AuditOpPasswordForgot, audit.Record{
		TenantID:  user.TenantID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"reset_requested": true},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	return nil
}

// ResetPassword redeems a reset token, installs the new password, and
// revokes every outstanding session by bumping the token version.
func (s *AuthService) ResetPassword(ctx context.Context, rawToken, newPassword, requestIP, userAgent string) error {
	if err := auth.ValidatePassword(newPassword, s.passwordCfg.MinLength); err != nil {
		return fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	token, err := s.ledger.Consume(ctx, rawToken, model.TokenPurposeReset)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(ctx, token.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		s.ledger.Release(ctx, token.ID)
		return err
	}

	hash, err := auth.HashPassword(newPassword, s.hashcfg)
	if err != nil {
		s.ledger.Release(ctx, token.ID)
		return err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		// The password did not change; return the token to circulation so the
		// emailed link still works on retry
		s.ledger.Release(ctx, token.ID)
		return err
	}
	if _, err := s.users.IncrementTokenVersion(ctx, user.ID); err != nil {
		// The new password is already installed, so the token stays consumed
		return err
	}

	s.sendPasswordChangedNotice(ctx, user)

	s.recorder.Write(ctx, model.AuditOpPasswordReset, audit.Record{
		TenantID:  user.TenantID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"password": "changed"},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", user.ID).Msg("password reset completed")
	return nil
}

// ChangePassword updates the password for an authenticated user. Every
// existing session is revoked; a fresh session for the caller is returned
// so the current client stays signed in.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword, requestIP, userAgent string) (*Session, error) {
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	ok, err := auth.VerifyPassword(currentPassword, user.PasswordHash)
	if err != nil || !ok {
		return nil, ErrInvalidCredentials
	}

	if newPassword == currentPassword {
		return nil, fmt.Errorf("%w: new password must differ from the current one", ErrInvalidInput)
	}
	if err := auth.ValidatePassword(newPassword, s.passwordCfg.MinLength); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWeakPassword, err)
	}

	hash, err := auth.HashPassword(newPassword, s.hashcfg)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return nil, err
	}

	version, err := s.users.IncrementTokenVersion(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.TokenVersion = version

	s.sendPasswordChangedNotice(ctx, user)

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpPasswordChange, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   user.ID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"password": "changed"},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	s.log.Info().Str("user_id", user.ID).Msg("password changed")
	return session, nil
}

// ValidateSession checks a session token's signature, expiry, and token
// version against the current user record. A version mismatch means the
// token was revoked after issuance.
func (s *AuthService) ValidateSession(ctx context.Context, tokenString string) (*model.User, *auth.SessionClaims, error) {
	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, nil, ErrUnauthorized
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrUnauthorized
	}
	if err != nil {
		return nil, nil, err
	}

	if claims.TokenVersion != user.TokenVersion {
		return nil, nil, ErrUnauthorized
	}
	if !user.Active {
		return nil, nil, ErrAccountDeactivated
	}

	return user, claims, nil
}

// Refresh exchanges a still-valid session token for a fresh one
func (s *AuthService) Refresh(ctx context.Context, tokenString, requestIP, userAgent string) (*Session, error) {
	user, _, err := s.ValidateSession(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}

	s.recorder.Write(ctx, model.AuditOpSessionRefresh, audit.Record{
		TenantID:  user.TenantID,
		ActorID:   user.ID,
		EntityID:  user.ID,
		Before:    map[string]interface{}{},
		After:     map[string]interface{}{"refreshed": true},
		RequestIP: requestIP,
		UserAgent: userAgent,
	})
	return session, nil
}

// Logout revokes every session the user holds by bumping the token version
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	_, err := s.users.IncrementTokenVersion(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *AuthService) issueSession(user *model.User) (*Session, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}
	return &Session{
		Token:     token,
		ExpiresIn: s.tokens.SessionTTL(),
		User:      user,
	}, nil
}

func (s *AuthService) sendVerificationEmail(ctx context.Context, user *model.User, requestIP, userAgent string) error {
	raw, _, err := s.ledger.Issue(ctx, user.ID, model.TokenPurposeVerification, requestIP, userAgent)
	if err != nil {
		return err
	}

	link := fmt.Sprintf("%s/verify-email?token=%s", s.emailCfg.BaseURL, raw)
	ttlHours := int(s.tokenCfg.VerifyTTL.Hours())
	msg := email.Message{
		To:       user.Email,
		Subject:  "Verify your email",
		HTMLBody: email.VerificationEmailHTML(link, s.emailCfg.AppName, ttlHours),
		TextBody: email.VerificationEmailText(link, s.emailCfg.AppName, ttlHours),
	}
	return s.mailer.Send(ctx, msg)
}

func (s *AuthService) sendPasswordChangedNotice(ctx context.Context, user *model.User) {
	msg := email.Message{
		To:       user.Email,
		Subject:  "Your password was changed",
		HTMLBody: email.PasswordChangedHTML(s.emailCfg.AppName),
		TextBody: email.PasswordChangedText(s.emailCfg.AppName),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("failed to send password-changed notice")
	}
}

// NormalizeEmail canonicalizes an email address for storage and lookup
func NormalizeEmail(emailAddr string) string {
	return strings.ToLower(strings.TrimSpace(emailAddr))
}
