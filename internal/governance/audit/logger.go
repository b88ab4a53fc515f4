// Package audit implements the audit trail for role mutations.
//
// Audit records are append-only structured log entries. There is no local
// store; the directory keeps the authoritative request history.
//
// Import Path: elevate.dev/elevate/internal/governance/audit
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
)

// Record is one audit entry.
type Record struct {
	ID           string
	Action       string
	ResourceType string
	ResourceID   string
	Actor        string
	OccurredAt   time.Time
	Details      map[string]interface{}
}

// Logger writes audit records to a dedicated zap logger.
type Logger struct {
	log *zap.Logger
}

// NewLogger creates a new audit Logger writing through log.
func NewLogger(log *zap.Logger) *Logger {
	return &Logger{log: log.Named("audit")}
}

// LogAction records an auditable action.
func (l *Logger) LogAction(_ context.Context, action, resourceType, resourceID, actor string, details map[string]interface{}) Record {
	rec := Record{
		ID:           generateAuditID(),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Actor:        actor,
		OccurredAt:   time.Now().UTC(),
		Details:      details,
	}
	l.write(rec)
	return rec
}

func (l *Logger) write(rec Record) {
	l.log.Info("audit",
		zap.String("audit_id", rec.ID),
		zap.String("action", rec.Action),
		zap.String("resource_type", rec.ResourceType),
		zap.String("resource_id", rec.ResourceID),
		zap.String("actor", rec.Actor),
		zap.Time("occurred_at", rec.OccurredAt),
		zap.Any("details", rec.Details),
	)
}

// actions maps role events to audit action names.
var actions = map[domain.EventType]string{
	domain.EventRoleActivationRequested:   "role.activate.requested",
	domain.EventRoleActivated:             "role.activate.succeeded",
	domain.EventRoleActivationFailed:      "role.activate.failed",
	domain.EventRoleDeactivationRequested: "role.deactivate.requested",
	domain.EventRoleDeactivated:           "role.deactivate.succeeded",
	domain.EventRoleDeactivationFailed:    "role.deactivate.failed",
	domain.EventRoleExpired:               "role.expired",
}

// Register subscribes the audit trail to every auditable role event.
func (l *Logger) Register(d *domain.EventDispatcher) {
	types := make([]domain.EventType, 0, len(actions))
	for t := range actions {
		types = append(types, t)
	}
	d.Register(l.HandleEvent, types...)
}

// HandleEvent is a domain.EventHandler writing one record per event.
func (l *Logger) HandleEvent(_ context.Context, ev *domain.RoleEvent) error {
	action, ok := actions[ev.EventType]
	if !ok {
		return fmt.Errorf("no audit action for event type %s", ev.EventType)
	}

	var details map[string]interface{}
	if len(ev.Payload) > 0 {
		if err := json.Unmarshal(ev.Payload, &details); err != nil {
			return fmt.Errorf("decode %s payload: %w", ev.EventType, err)
		}
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	details["event_id"] = ev.EventID

	l.write(Record{
		ID:           generateAuditID(),
		Action:       action,
		ResourceType: "role",
		ResourceID:   ev.Key.String(),
		Actor:        ev.PrincipalID,
		OccurredAt:   ev.OccurredAt,
		Details:      details,
	})
	return nil
}

func generateAuditID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return fmt.Sprintf("audit-%s", id.String())
}
