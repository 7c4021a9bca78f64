package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/attempt"
	"github.com/MustafaBasol/crm-sub006/internal/audit"
	"github.com/MustafaBasol/crm-sub006/internal/auth"
	"github.com/MustafaBasol/crm-sub006/internal/config"
	"github.com/MustafaBasol/crm-sub006/internal/email"
	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
	"github.com/MustafaBasol/crm-sub006/internal/repository"
)

// ---- fake stores ----

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User

	// injectable failures
	verifyEmailErr    error
	updatePasswordErr error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User)}
}

func cloneUser(u *model.User) *model.User {
	c := *u
	if u.TOTPSecret != nil {
		secret := *u.TOTPSecret
		c.TOTPSecret = &secret
	}
	return &c
}

func (s *fakeUserStore) Create(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = cloneUser(user)
	return nil
}

func (s *fakeUserStore) GetByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(user), nil
}

func (s *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *fakeUserStore) ExistsByEmail(_ context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, user := range s.users {
		if user.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeUserStore) UpdatePasswordHash(_ context.Context, id string, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updatePasswordErr != nil {
		return s.updatePasswordErr
	}
	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.PasswordHash = hash
	return nil
}

func (s *fakeUserStore) VerifyEmail(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.verifyEmailErr != nil {
		return s.verifyEmailErr
	}
	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.EmailVerified = true
	return nil
}

func (s *fakeUserStore) IncrementTokenVersion(_ context.Context, id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	user.TokenVersion++
	return user.TokenVersion, nil
}

func (s *fakeUserStore) SetTOTPSecret(_ context.Context, id string, secret string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TOTPSecret = &secret
	return nil
}

func (s *fakeUserStore) ClearTOTPSecret(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	user.TOTPSecret = nil
	return nil
}

func (s *fakeUserStore) setActive(id string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[id]; ok {
		user.Active = active
	}
}

type fakeTenantStore struct {
	mu      sync.Mutex
	tenants map[string]*model.Tenant
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: make(map[string]*model.Tenant)}
}

func (s *fakeTenantStore) Create(_ context.Context, tenant *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[tenant.ID] = tenant
	return nil
}

type fakeTokenStore struct {
	mu     sync.Mutex
	tokens map[string]*model.SingleUseToken
}

func newFakeTokenStore() *fakeTokenStore {
	return &fakeTokenStore{tokens: make(map[string]*model.SingleUseToken)}
}

func (s *fakeTokenStore) Create(_ context.Context, token *model.SingleUseToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *token
	s.tokens[token.ID] = &c
	return nil
}

func (s *fakeTokenStore) ConsumeByHash(_ context.Context, tokenHash string, purpose model.TokenPurpose) (*model.SingleUseToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, token := range s.tokens {
		if token.TokenHash != tokenHash || token.Purpose != purpose {
			continue
		}
		if token.UsedAt != nil || now.After(token.ExpiresAt) {
			return nil, repository.ErrNotFound
		}
		used := now
		token.UsedAt = &used
		c := *token
		return &c, nil
	}
	return nil, repository.ErrNotFound
}

func (s *fakeTokenStore) InvalidateAllForUser(_ context.Context, userID string, purpose model.TokenPurpose, exceptID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for _, token := range s.tokens {
		if token.UserID == userID && token.Purpose == purpose && token.UsedAt == nil && token.ID != exceptID {
			used := now
			token.UsedAt = &used
		}
	}
	return nil
}

func (s *fakeTokenStore) Release(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token, ok := s.tokens[id]
	if !ok {
		return repository.ErrNotFound
	}
	token.UsedAt = nil
	return nil
}

func (s *fakeTokenStore) CountRecentByUser(_ context.Context, userID string, purpose model.TokenPurpose, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.Purpose == purpose && token.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

func (s *fakeTokenStore) CleanupExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	now := time.Now()
	for id, token := range s.tokens {
		if now.After(token.ExpiresAt) {
			delete(s.tokens, id)
			removed++
		}
	}
	return removed, nil
}

func (s *fakeTokenStore) unusedCount(userID string, purpose model.TokenPurpose) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.Purpose == purpose && token.UsedAt == nil {
			count++
		}
	}
	return count
}

func (s *fakeTokenStore) expire(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.tokens[id]; ok {
		token.ExpiresAt = time.Now().Add(-time.Minute)
	}
}

type fakeBackupCodeStore struct {
	mu    sync.Mutex
	codes map[string]*model.BackupCode
}

func newFakeBackupCodeStore() *fakeBackupCodeStore {
	return &fakeBackupCodeStore{codes: make(map[string]*model.BackupCode)}
}

func (s *fakeBackupCodeStore) ReplaceAll(_ context.Context, userID string, codes []*model.BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, code := range s.codes {
		if code.UserID == userID {
			delete(s.codes, id)
		}
	}
	for _, code := range codes {
		c := *code
		s.codes[code.ID] = &c
	}
	return nil
}

func (s *fakeBackupCodeStore) DeleteAll(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, code := range s.codes {
		if code.UserID == userID {
			delete(s.codes, id)
		}
	}
	return nil
}

func (s *fakeBackupCodeStore) GetUnused(_ context.Context, userID string) ([]*model.BackupCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.BackupCode
	for _, code := range s.codes {
		if code.UserID == userID && code.UsedAt == nil {
			c := *code
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *fakeBackupCodeStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[id]
	if !ok || code.UsedAt != nil {
		return repository.ErrNotFound
	}
	now := time.Now()
	code.UsedAt = &now
	return nil
}

func (s *fakeBackupCodeStore) CountUnused(_ context.Context, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, code := range s.codes {
		if code.UserID == userID && code.UsedAt == nil {
			count++
		}
	}
	return count, nil
}

type fakeAdminStore struct {
	mu  sync.Mutex
	cfg *model.AdminSecurityConfig
}

func (s *fakeAdminStore) Get(context.Context) (*model.AdminSecurityConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg == nil {
		return nil, repository.ErrNotFound
	}
	c := *s.cfg
	return &c, nil
}

func (s *fakeAdminStore) Upsert(_ context.Context, cfg *model.AdminSecurityConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *cfg
	s.cfg = &c
	return nil
}

type memEntryStore struct {
	mu      sync.Mutex
	entries []*model.AuditLogEntry
}

func (s *memEntryStore) Create(_ context.Context, entry *model.AuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memEntryStore) byAction(action model.AuditAction) []*model.AuditLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.AuditLogEntry
	for _, entry := range s.entries {
		if entry.Action == action {
			out = append(out, entry)
		}
	}
	return out
}

// ---- fake collaborators ----

type captureMailer struct {
	mu       sync.Mutex
	sent     []email.Message
	failWith error
}

func (m *captureMailer) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last(t *testing.T) email.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no email was sent")
	return m.sent[len(m.sent)-1]
}

// lastToken extracts the raw token from the most recent emailed link
func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	body := m.last(t).TextBody
	idx := strings.LastIndex(body, "token=")
	require.GreaterOrEqual(t, idx, 0, "no token link in email body")
	rest := body[idx+len("token="):]
	if end := strings.IndexAny(rest, " \n"); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

type stubCaptcha struct {
	result bool
	err    error
}

func (c *stubCaptcha) Verify(context.Context, string, string) (bool, error) {
	return c.result, c.err
}

type stubSecondFactor struct {
	err   error
	calls int
}

func (s *stubSecondFactor) VerifyForLogin(context.Context, *model.User, string, string) error {
	s.calls++
	return s.err
}

type memPending struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemPending() *memPending {
	return &memPending{m: make(map[string]string)}
}

func (p *memPending) SetWithTTL(_ context.Context, key string, value interface{}, _ time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[key] = value.(string)
	return nil
}

func (p *memPending) GetString(_ context.Context, key string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.m[key]
	if !ok {
		return "", errors.New("key not found")
	}
	return v, nil
}

func (p *memPending) Delete(_ context.Context, keys ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, key := range keys {
		delete(p.m, key)
	}
	return nil
}

// ---- fixtures ----

func testConfig() *config.Config {
	return &config.Config{
		Security: config.SecurityConfig{
			Password: config.PasswordConfig{
				MinLength:         12,
				Argon2Memory:      8 * 1024,
				Argon2Iterations:  1,
				Argon2Parallelism: 1,
			},
			Tokens: config.TokenConfig{
				SigningSecret:  "unit-test-signing-secret",
				SessionTTL:     15 * time.Minute,
				Issuer:         "crmauth-test",
				ResetTTL:       time.Hour,
				VerifyTTL:      24 * time.Hour,
				ResendCooldown: time.Minute,
			},
			LoginThrottle: config.LoginThrottleConfig{
				CaptchaThreshold: 3,
				AttemptTTL:       time.Hour,
			},
		},
		MFA:          config.MFAConfig{TOTP: config.TOTPConfig{Issuer: "CRM-Test"}},
		Email:        config.EmailConfig{AppName: "CRM", BaseURL: "https://app.example.com"},
		Verification: config.VerificationConfig{Required: true},
	}
}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func testHashParams(cfg *config.Config) *auth.Argon2Params {
	return auth.NewParams(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	)
}

type authFixture struct {
	svc     *AuthService
	users   *fakeUserStore
	tenants *fakeTenantStore
	tokens  *fakeTokenStore
	mailer  *captureMailer
	entries *memEntryStore
	captcha *stubCaptcha
	second  *stubSecondFactor
	tracker *attempt.Tracker
	cfg     *config.Config
}

func newAuthFixture(t *testing.T, cfg *config.Config) *authFixture {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	log := testLogger()

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	require.NoError(t, err)

	f := &authFixture{
		users:   newFakeUserStore(),
		tenants: newFakeTenantStore(),
		tokens:  newFakeTokenStore(),
		mailer:  &captureMailer{},
		entries: &memEntryStore{},
		captcha: &stubCaptcha{result: true},
		second:  &stubSecondFactor{},
		tracker: attempt.NewTracker(attempt.NewMemoryStore(), cfg.Security.LoginThrottle, log),
		cfg:     cfg,
	}

	recorder := audit.NewRecorder(f.entries, audit.NewMasker(nil), audit.DefaultRegistrations(), log)
	ledger := NewTokenLedger(f.tokens, nil, cfg.Security.Tokens, log)

	f.svc = NewAuthService(AuthServiceDeps{
		Users:        f.users,
		Tenants:      f.tenants,
		Tokens:       tokenSvc,
		Ledger:       ledger,
		Tracker:      f.tracker,
		Captcha:      f.captcha,
		SecondFactor: f.second,
		Mailer:       f.mailer,
		Recorder:     recorder,
		Config:       cfg,
		Log:          log,
	})
	return f
}

// seedUser inserts a ready-made user, bypassing registration
func (f *authFixture) seedUser(t *testing.T, emailAddr, password string, verified bool) *model.User {
	t.Helper()
	hash, err := auth.HashPassword(password, testHashParams(f.cfg))
	require.NoError(t, err)

	now := time.Now()
	user := &model.User{
		ID:            newID("usr"),
		TenantID:      newID("tnt"),
		Email:         NormalizeEmail(emailAddr),
		Name:          "Seeded User",
		Role:          model.RoleMember,
		PasswordHash:  hash,
		Active:        true,
		EmailVerified: verified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}
