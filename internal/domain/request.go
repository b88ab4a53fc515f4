package domain

import "time"

// Self-service actions understood by the directory's schedule request endpoint.
const (
	ActionSelfActivate   = "selfActivate"
	ActionSelfDeactivate = "selfDeactivate"
)

// ISO8601Millis matches the timestamp layout the directory emits and accepts.
const ISO8601Millis = "2006-01-02T15:04:05.000Z"

// TicketInfo is optional correlation metadata for an activation.
type TicketInfo struct {
	TicketNumber string `json:"ticketNumber"`
	TicketSystem string `json:"ticketSystem"`
}

// RequestExpiration is the end condition sent with an activation.
type RequestExpiration struct {
	Type     ExpirationType `json:"type"`
	Duration string         `json:"duration"`
}

// RequestSchedule is the schedule sent with an activation.
type RequestSchedule struct {
	StartDateTime string            `json:"startDateTime"`
	Expiration    RequestExpiration `json:"expiration"`
}

// ActivationRequest is the body of a selfActivate schedule request.
type ActivationRequest struct {
	Action           string          `json:"action"`
	RoleDefinitionID string          `json:"roleDefinitionId"`
	PrincipalID      string          `json:"principalId"`
	DirectoryScopeID string          `json:"directoryScopeId"`
	Justification    string          `json:"justification"`
	ScheduleInfo     RequestSchedule `json:"scheduleInfo"`
	TicketInfo       *TicketInfo     `json:"ticketInfo,omitempty"`
}

// NewActivationRequest builds a selfActivate request starting at now.
// Ticket info is attached only when both number and system are present.
func NewActivationRequest(key RoleKey, principalID, justification, duration, ticketNumber, ticketSystem string, now time.Time) *ActivationRequest {
	req := &ActivationRequest{
		Action:           ActionSelfActivate,
		RoleDefinitionID: key.RoleDefinitionID,
		PrincipalID:      principalID,
		DirectoryScopeID: key.DirectoryScopeID,
		Justification:    justification,
		ScheduleInfo: RequestSchedule{
			StartDateTime: now.UTC().Format(ISO8601Millis),
			Expiration: RequestExpiration{
				Type:     ExpirationAfterDuration,
				Duration: duration,
			},
		},
	}
	if ticketNumber != "" && ticketSystem != "" {
		req.TicketInfo = &TicketInfo{TicketNumber: ticketNumber, TicketSystem: ticketSystem}
	}
	return req
}

// DeactivationRequest is the body of a selfDeactivate schedule request.
type DeactivationRequest struct {
	Action           string `json:"action"`
	RoleDefinitionID string `json:"roleDefinitionId"`
	PrincipalID      string `json:"principalId"`
	DirectoryScopeID string `json:"directoryScopeId"`
}

// NewDeactivationRequest builds a selfDeactivate request.
func NewDeactivationRequest(key RoleKey, principalID string) *DeactivationRequest {
	return &DeactivationRequest{
		Action:           ActionSelfDeactivate,
		RoleDefinitionID: key.RoleDefinitionID,
		PrincipalID:      principalID,
		DirectoryScopeID: key.DirectoryScopeID,
	}
}
