package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MustafaBasol/crm-sub006/internal/logger"
	"github.com/MustafaBasol/crm-sub006/internal/model"
)

type memEntryStore struct {
	entries  []*model.AuditLogEntry
	failWith error
}

func (s *memEntryStore) Create(_ context.Context, entry *model.AuditLogEntry) error {
	if s.failWith != nil {
		return s.failWith
	}
	s.entries = append(s.entries, entry)
	return nil
}

func newTestRecorder(store *memEntryStore) *Recorder {
	log := logger.New("error", "json")
	return NewRecorder(store, NewMasker(nil), nil, log)
}

func TestRecorderWritesMaskedEntry(t *testing.T) {
	store := &memEntryStore{}
	r := newTestRecorder(store)

	r.Write(context.Background(), model.AuditOpUserRegister, Record{
		TenantID: "tnt_1",
		ActorID:  "usr_1",
		EntityID: "usr_1",
		After: map[string]interface{}{
			"email": "janedoe@example.com",
			"name":  "Jane Doe",
		},
		RequestIP: "203.0.113.7",
		UserAgent: "test-agent",
	})

	require.Len(t, store.entries, 1)
	entry := store.entries[0]

	assert.True(t, strings.HasPrefix(entry.ID, "aud_"))
	assert.Equal(t, "tnt_1", entry.TenantID)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "usr_1", *entry.ActorID)
	assert.Equal(t, "user", entry.EntityName)
	assert.Equal(t, model.AuditActionCreate, entry.Action)
	assert.Equal(t, "203.0.113.7", entry.RequestIP)
	assert.False(t, entry.CreatedAt.IsZero())

	created := entry.Diff[KeyCreated].(map[string]interface{})
	assert.Equal(t, "ja****@example.com", created["email"])
	assert.Equal(t, "Jane Doe", created["name"])
}

func TestRecorderSystemActionHasNilActor(t *testing.T) {
	store := &memEntryStore{}
	r := newTestRecorder(store)

	r.Write(context.Background(), model.AuditOpPasswordForgot, Record{
		TenantID: "tnt_1",
		EntityID: "usr_1",
		Before:   map[string]interface{}{},
		After:    map[string]interface{}{"reset_requested": true},
	})

	require.Len(t, store.entries, 1)
	assert.Nil(t, store.entries[0].ActorID)
}

func TestRecorderSkipsUnregisteredOperation(t *testing.T) {
	store := &memEntryStore{}
	r := newTestRecorder(store)

	r.Write(context.Background(), "invoice.paid", Record{EntityID: "inv_1"})

	assert.Empty(t, store.entries)
}

func TestRecorderStoreFailureDoesNotPropagate(t *testing.T) {
	store := &memEntryStore{failWith: errors.New("connection refused")}
	r := newTestRecorder(store)

	// must not panic or surface the error
	r.Write(context.Background(), model.AuditOpUserLogin, Record{
		TenantID: "tnt_1",
		ActorID:  "usr_1",
		EntityID: "usr_1",
		Before:   map[string]interface{}{},
		After:    map[string]interface{}{"login": true},
	})

	assert.Empty(t, store.entries)
}

func TestDefaultRegistrationsCoverAllOperations(t *testing.T) {
	regs := DefaultRegistrations()

	for _, op := range []string{
		model.AuditOpUserRegister,
		model.AuditOpUserLogin,
		model.AuditOpUserLoginFailed,
		model.AuditOpUserVerifyEmail,
		model.AuditOpPasswordForgot,
		model.AuditOpPasswordReset,
		model.AuditOpPasswordChange,
		model.AuditOpSessionRefresh,
		model.AuditOpTOTPEnroll,
		model.AuditOpTOTPConfirm,
		model.AuditOpTOTPDisable,
		model.AuditOpBackupCodesReset,
		model.AuditOpAdminRotate,
	} {
		reg, ok := regs[op]
		assert.True(t, ok, "operation %q not registered", op)
		assert.NotEmpty(t, reg.Entity, "operation %q has no entity", op)
	}
}
