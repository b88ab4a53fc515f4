package modules

import (
	"context"

	"elevate.dev/elevate/internal/api/handlers"
	"elevate.dev/elevate/internal/governance/audit"
	"elevate.dev/elevate/internal/notification"
	"elevate.dev/elevate/internal/pkg/logger"
)

// GovernanceModule records the audit trail and delivers notifications for
// role events. It only reacts to the dispatcher and owns no background work.
type GovernanceModule struct {
	Audit    *audit.Logger
	Inbox    *notification.Inbox
	Triggers *notification.Triggers
}

// NewGovernanceModule subscribes the audit logger and notification triggers
// to the shared event dispatcher.
func NewGovernanceModule(infra *Infrastructure) *GovernanceModule {
	inbox := notification.NewInbox(notification.DefaultInboxSize)
	m := &GovernanceModule{
		Audit:    audit.NewLogger(logger.L()),
		Inbox:    inbox,
		Triggers: notification.NewTriggers(notification.Fanout{notification.LogSender{}, inbox}),
	}
	m.Audit.Register(infra.Events)
	m.Triggers.Register(infra.Events)
	return m
}

func (m *GovernanceModule) Name() string { return "governance" }

func (m *GovernanceModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Inbox = m.Inbox
}

func (m *GovernanceModule) Start(context.Context) error { return nil }

func (m *GovernanceModule) Shutdown(context.Context) error { return nil }
