package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/domain"
	"elevate.dev/elevate/internal/duration"
	"elevate.dev/elevate/internal/pkg/logger"
)

// Triggers turns role events into notifications:
//  1. ROLE_EXPIRING: an activation ends within the warning window
//  2. ROLE_EXPIRED: an activation has ended
//  3. ROLE_ACTIVATED / ROLE_ACTIVATION_FAILED: outcome of a request
type Triggers struct {
	sender Sender
	now    func() time.Time
}

// NewTriggers creates a new notification trigger service.
func NewTriggers(sender Sender) *Triggers {
	return &Triggers{sender: sender, now: time.Now}
}

// Register subscribes the triggers to the dispatcher.
func (t *Triggers) Register(d *domain.EventDispatcher) {
	d.Register(t.HandleEvent,
		domain.EventRoleExpiring,
		domain.EventRoleExpired,
		domain.EventRoleActivated,
		domain.EventRoleActivationFailed,
	)
}

// HandleEvent is a domain.EventHandler.
func (t *Triggers) HandleEvent(ctx context.Context, ev *domain.RoleEvent) error {
	if ev.PrincipalID == "" {
		logger.Debug("Role event without principal, no notification",
			zap.String("event_type", string(ev.EventType)),
			zap.String("event_id", ev.EventID),
		)
		return nil
	}

	params := Params{
		RecipientID:  ev.PrincipalID,
		ResourceType: "role",
		ResourceID:   ev.Key.String(),
	}

	switch ev.EventType {
	case domain.EventRoleExpiring, domain.EventRoleExpired:
		var p domain.ExpiryPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return fmt.Errorf("decode expiry payload: %w", err)
		}
		name := roleName(p.RoleName, ev.Key)
		if ev.EventType == domain.EventRoleExpiring {
			params.Type = TypeRoleExpiring
			params.Title = name + " expires soon"
			params.Message = fmt.Sprintf("Your activation of %s ends %s.", name, duration.FormatRelative(p.EndDateTime, t.now()))
		} else {
			params.Type = TypeRoleExpired
			params.Title = name + " expired"
			params.Message = fmt.Sprintf("Your activation of %s has ended.", name)
		}

	case domain.EventRoleActivated, domain.EventRoleActivationFailed:
		var p domain.ActivationPayload
		if len(ev.Payload) > 0 {
			if err := json.Unmarshal(ev.Payload, &p); err != nil {
				return fmt.Errorf("decode activation payload: %w", err)
			}
		}
		name := roleName("", ev.Key)
		if ev.EventType == domain.EventRoleActivated {
			params.Type = TypeRoleActivated
			params.Title = name + " activated"
			params.Message = fmt.Sprintf("Activated for %s.", duration.Format(p.Duration))
		} else {
			params.Type = TypeRoleActivationFailed
			params.Title = name + " activation failed"
			params.Message = p.Error
			if params.Message == "" {
				params.Message = "The directory rejected the activation request."
			}
		}

	default:
		return nil
	}

	if err := t.sender.Send(ctx, params); err != nil {
		return fmt.Errorf("send %s notification: %w", params.Type, err)
	}
	return nil
}

func roleName(name string, key domain.RoleKey) string {
	if name != "" {
		return name
	}
	return "Role " + key.RoleDefinitionID
}
