// Package pim is the role activation state manager. It reconciles the
// eligible and active role schedules of the signed-in principal with the
// directory and issues self-activation and self-deactivation requests.
//
// Two implementations share one contract: LiveManager talks to the
// directory, SimulatedManager keeps everything in memory. The composition
// root picks one.
//
// Import Path: elevate.dev/elevate/internal/pim
package pim

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Manager is the role activation state manager contract.
type Manager interface {
	// Refresh refetches both schedules. Without a signed-in account it
	// clears the state and returns nil.
	Refresh(ctx context.Context) error
	// Activate requests a time-bounded activation and refreshes on success.
	Activate(ctx context.Context, in ActivateInput) error
	// Deactivate ends an activation early and refreshes on success.
	Deactivate(ctx context.Context, roleDefinitionID, directoryScopeID string) error
	// State returns a snapshot; callers may keep and modify it.
	State() State
	// Subscribe registers fn for every state change. Callbacks run
	// synchronously and must not call Activate, Deactivate or Refresh.
	Subscribe(fn func(State)) (unsubscribe func())
}

// ActivateInput is a self-activation request as entered by the user.
type ActivateInput struct {
	RoleDefinitionID string `json:"roleDefinitionId"`
	DirectoryScopeID string `json:"directoryScopeId"`
	Justification    string `json:"justification"`
	Duration         string `json:"duration"`
	TicketNumber     string `json:"ticketNumber,omitempty"`
	TicketSystem     string `json:"ticketSystem,omitempty"`
}

// Key returns the role key the input addresses.
func (in ActivateInput) Key() domain.RoleKey {
	return domain.RoleKey{RoleDefinitionID: in.RoleDefinitionID, DirectoryScopeID: in.DirectoryScopeID}
}

// validateActivate rejects malformed input before any state change or remote call.
func validateActivate(in ActivateInput) error {
	if strings.TrimSpace(in.Justification) == "" {
		return apperrors.ErrJustificationRequiredf()
	}
	if !duration.Valid(in.Duration) {
		return apperrors.ErrInvalidDurationf(in.Duration)
	}
	if in.Key().IsZero() {
		return apperrors.ErrRoleKeyRequiredf()
	}
	return nil
}

func validateKey(key domain.RoleKey) error {
	if key.IsZero() {
		return apperrors.ErrRoleKeyRequiredf()
	}
	return nil
}

// mutationError wraps a failed remote mutation, keeping the HTTP status of
// the underlying application error when there is one.
func mutationError(err error, code, message string) error {
	status := http.StatusBadGateway
	if appErr, ok := apperrors.IsAppError(err); ok && appErr.HTTPStatus != 0 {
		status = appErr.HTTPStatus
	}
	return apperrors.Wrap(err, code, message, status)
}

// refreshError wraps a failed refresh unless it already carries a code.
func refreshError(err error) error {
	if _, ok := apperrors.IsAppError(err); ok {
		return err
	}
	return apperrors.BadGateway(err, apperrors.CodeDirectoryUnavailable, "refresh role schedules")
}

// emitter publishes role lifecycle events.
type emitter struct {
	events *domain.EventDispatcher
	now    func() time.Time
}

func (e emitter) emit(ctx context.Context, eventType domain.EventType, key domain.RoleKey, principalID string, payload interface{ ToJSON() ([]byte, error) }) {
	if e.events == nil {
		return
	}
	ev := &domain.RoleEvent{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		Key:         key,
		PrincipalID: principalID,
		OccurredAt:  e.now().UTC(),
	}
	if payload != nil {
		raw, err := payload.ToJSON()
		if err == nil {
			ev.Payload = raw
		}
	}
	if err := e.events.Dispatch(ctx, ev); err != nil {
		logger.Warn("Role event delivery incomplete",
			zap.String("event_type", string(eventType)),
			zap.String("event_id", ev.EventID),
			zap.Error(err),
		)
	}
}

func activationPayload(in ActivateInput, err error) domain.ActivationPayload {
	p := domain.ActivationPayload{
		Justification: in.Justification,
		Duration:      in.Duration,
	}
	if in.TicketNumber != "" && in.TicketSystem != "" {
		p.TicketInfo = &domain.TicketInfo{TicketNumber: in.TicketNumber, TicketSystem: in.TicketSystem}
	}
	if err != nil {
		p.Error = apperrors.Message(err)
	}
	return p
}

func keyFields(key domain.RoleKey) []zap.Field {
	return []zap.Field{
		zap.String("role_definition_id", key.RoleDefinitionID),
		zap.String("directory_scope_id", key.DirectoryScopeID),
	}
}
