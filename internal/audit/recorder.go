package audit

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

// EntryStore persists audit log entries. Implemented by
// repository.AuditRepository.
type EntryStore interface {
	Create(ctx context.Context, entry *model.AuditLogEntry) error
}

// Registration maps an operation identifier to the entity it mutates and
// the action kind it records. The table replaces annotation-driven
// metadata: the mapping is explicit, visible, and testable.
type Registration struct {
	Entity string
	Action model.AuditAction
}

// DefaultRegistrations covers the auth core's operations
func DefaultRegistrations() map[string]Registration {
	return map[string]Registration{
		model.AuditOpUserRegister:     {Entity: "user", Action: model.AuditActionCreate},
		model.AuditOpUserLogin:        {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpUserLoginFailed:  {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpUserVerifyEmail:  {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpPasswordForgot:   {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpPasswordReset:    {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpPasswordChange:   {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpSessionRefresh:   {Entity: "session", Action: model.AuditActionCreate},
		model.AuditOpTOTPEnroll:       {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpTOTPConfirm:      {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpTOTPDisable:      {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpBackupCodesReset: {Entity: "user", Action: model.AuditActionUpdate},
		model.AuditOpAdminRotate:      {Entity: "admin", Action: model.AuditActionUpdate},
	}
}

// Recorder computes masked diffs and persists immutable audit entries.
// Recording is fire-and-forget: a failed write never fails the operation
// being audited, it is only surfaced to the operational log.
type Recorder struct {
	store         EntryStore
	masker        *Masker
	registrations map[string]Registration
	log           *logger.Logger
}

// NewRecorder creates a new Recorder
func NewRecorder(store EntryStore, masker *Masker, registrations map[string]Registration, log *logger.Logger) *Recorder {
	if registrations == nil {
		registrations = DefaultRegistrations()
	}
	return &Recorder{
		store:         store,
		masker:        masker,
		registrations: registrations,
		log:           log.WithComponent("audit_recorder"),
	}
}

// Record describes one audited mutation
type Record struct {
	TenantID  string
	ActorID   string // empty for system actions
	EntityID  string
	Before    map[string]interface{}
	After     map[string]interface{}
	RequestIP string
	UserAgent string
}

// Write computes the masked diff for the operation and persists the entry
func (r *Recorder) Write(ctx context.Context, operation string, rec Record) {
	reg, ok := r.registrations[operation]
	if !ok {
		r.log.Error().Str("operation", operation).Msg("audit operation not registered")
		return
	}

	diff := r.masker.Mask(Diff(rec.Before, rec.After))

	entry := &model.AuditLogEntry{
		ID:         generateEntryID(),
		TenantID:   rec.TenantID,
		EntityName: reg.Entity,
		EntityID:   rec.EntityID,
		Action:     reg.Action,
		Diff:       diff,
		RequestIP:  rec.RequestIP,
		UserAgent:  rec.UserAgent,
		CreatedAt:  time.Now(),
	}
	if rec.ActorID != "" {
		actor := rec.ActorID
		entry.ActorID = &actor
	}

	if err := r.store.Create(ctx, entry); err != nil {
		r.log.Error().Err(err).Str("operation", operation).Str("entity_id", rec.EntityID).Msg("failed to write audit entry")
	}
}

func generateEntryID() string {
	return "aud_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:26]
}
