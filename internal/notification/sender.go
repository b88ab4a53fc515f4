// Package notification delivers role lifecycle notices to the signed-in user.
//
// Delivery is in-process only: a log sink plus a bounded in-memory inbox the
// HTTP API exposes. Nothing survives a restart.
//
// Import Path: elevate.dev/elevate/internal/notification
package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/pkg/logger"
)

// Notification types.
const (
	TypeRoleExpiring         = "ROLE_EXPIRING"
	TypeRoleExpired          = "ROLE_EXPIRED"
	TypeRoleActivated        = "ROLE_ACTIVATED"
	TypeRoleActivationFailed = "ROLE_ACTIVATION_FAILED"
)

// Params holds the required fields for creating a notification.
type Params struct {
	RecipientID  string // principal id of the recipient
	Type         string // One of Type* constants above
	Title        string
	Message      string
	ResourceType string // "role"
	ResourceID   string // role key, "roleDefinitionId@scope"
}

// Notification is a delivered notice.
type Notification struct {
	ID           string    `json:"id"`
	RecipientID  string    `json:"recipientId"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Message      string    `json:"message"`
	ResourceType string    `json:"resourceType"`
	ResourceID   string    `json:"resourceId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Sender defines the interface for sending notifications.
type Sender interface {
	Send(ctx context.Context, params Params) error
}

// LogSender writes notifications to the application log.
type LogSender struct{}

// Send implements Sender.
func (LogSender) Send(_ context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	logger.Info("notification",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
		zap.String("message", params.Message),
		zap.String("resource_id", params.ResourceID),
	)
	return nil
}

// DefaultInboxSize bounds the in-memory inbox.
const DefaultInboxSize = 100

// Inbox keeps the most recent notifications in memory, newest last.
type Inbox struct {
	mu    sync.RWMutex
	items []Notification
	max   int
	now   func() time.Time
}

// NewInbox creates an inbox keeping at most max notifications.
func NewInbox(max int) *Inbox {
	if max <= 0 {
		max = DefaultInboxSize
	}
	return &Inbox{max: max, now: time.Now}
}

// Send implements Sender.
func (b *Inbox) Send(_ context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}
	n := Notification{
		ID:           uuid.NewString(),
		RecipientID:  params.RecipientID,
		Type:         params.Type,
		Title:        params.Title,
		Message:      params.Message,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		CreatedAt:    b.now().UTC(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if over := len(b.items) - b.max; over > 0 {
		b.items = append([]Notification(nil), b.items[over:]...)
	}
	return nil
}

// List returns the notifications for recipient, newest first. An empty
// recipient lists everything.
func (b *Inbox) List(recipient string) []Notification {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Notification, 0, len(b.items))
	for i := len(b.items) - 1; i >= 0; i-- {
		if recipient == "" || b.items[i].RecipientID == recipient {
			out = append(out, b.items[i])
		}
	}
	return out
}

// Fanout delivers to every sender, best-effort.
type Fanout []Sender

// Send implements Sender. The first failure is returned after all senders ran.
func (f Fanout) Send(ctx context.Context, params Params) error {
	var firstErr error
	for _, s := range f {
		if err := s.Send(ctx, params); err != nil {
			logger.Error("notification delivery failed",
				zap.String("recipient", params.RecipientID),
				zap.String("type", params.Type),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// compile-time checks
var (
	_ Sender = LogSender{}
	_ Sender = (*Inbox)(nil)
	_ Sender = Fanout(nil)
)

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}
