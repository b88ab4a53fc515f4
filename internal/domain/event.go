package domain

import (
	"encoding/json"
	"time"
)

// EventType defines the type of role lifecycle event.
type EventType string

const (
	// Activation
	EventRoleActivationRequested EventType = "ROLE_ACTIVATION_REQUESTED"
	EventRoleActivated           EventType = "ROLE_ACTIVATED"
	EventRoleActivationFailed    EventType = "ROLE_ACTIVATION_FAILED"

	// Deactivation
	EventRoleDeactivationRequested EventType = "ROLE_DEACTIVATION_REQUESTED"
	EventRoleDeactivated           EventType = "ROLE_DEACTIVATED"
	EventRoleDeactivationFailed    EventType = "ROLE_DEACTIVATION_FAILED"

	// Expiry watch
	EventRoleExpiring EventType = "ROLE_EXPIRING"
	EventRoleExpired  EventType = "ROLE_EXPIRED"
)

// RoleEvent is emitted by managers and the expiry watch. It carries no state
// of its own; consumers that need the current view read the manager.
type RoleEvent struct {
	EventID     string          `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	Key         RoleKey         `json:"key"`
	PrincipalID string          `json:"principal_id,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// ActivationPayload is attached to activation events.
type ActivationPayload struct {
	Justification string      `json:"justification"`
	Duration      string      `json:"duration"`
	TicketInfo    *TicketInfo `json:"ticket_info,omitempty"`
	Error         string      `json:"error,omitempty"`
}

// ExpiryPayload is attached to expiry watch events.
type ExpiryPayload struct {
	RoleName    string    `json:"role_name"`
	EndDateTime time.Time `json:"end_date_time"`
}

// ToJSON serializes the payload.
func (p ActivationPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}

// ToJSON serializes the payload.
func (p ExpiryPayload) ToJSON() ([]byte, error) {
	return json.Marshal(p)
}
