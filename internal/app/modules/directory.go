package modules

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"elevate.dev/elevate/internal/api/handlers"
	"elevate.dev/elevate/internal/config"
	"elevate.dev/elevate/internal/directory"
	"elevate.dev/elevate/internal/pim"
	"elevate.dev/elevate/internal/pkg/logger"
)

// DirectoryModule owns the role state manager: the live manager over the
// Graph client in live mode, the in-memory simulation in demo mode.
type DirectoryModule struct {
	Manager  pim.Manager
	Accounts directory.AccountSource

	infra *Infrastructure
	// signIn acquires a token interactively when no account is cached.
	// Nil in demo mode.
	signIn directory.TokenSource
}

// NewDirectoryModule builds the manager variant selected by directory.mode.
func NewDirectoryModule(infra *Infrastructure) (*DirectoryModule, error) {
	cfg := infra.Config
	if cfg.IsDemo() {
		return newDemoDirectory(infra)
	}
	return newLiveDirectory(infra), nil
}

func newDemoDirectory(infra *Infrastructure) (*DirectoryModule, error) {
	cfg := infra.Config
	var (
		fixtures *pim.Fixtures
		err      error
	)
	if cfg.Demo.FixturesFile != "" {
		fixtures, err = pim.LoadFixtures(cfg.Demo.FixturesFile)
	} else {
		fixtures, err = pim.DefaultFixtures()
	}
	if err != nil {
		return nil, fmt.Errorf("load demo fixtures: %w", err)
	}

	m, err := pim.NewSimulatedManager(pim.SimulatedOptions{
		Fixtures: fixtures,
		Latencies: pim.Latencies{
			Refresh:    cfg.Demo.RefreshLatency,
			Activate:   cfg.Demo.ActivateLatency,
			Deactivate: cfg.Demo.DeactivateLatency,
		},
		Events: infra.Events,
	})
	if err != nil {
		return nil, fmt.Errorf("init simulated manager: %w", err)
	}
	logger.Info("Directory running in demo mode", zap.String("principal", fixtures.Principal.ID))
	return &DirectoryModule{Manager: m, Accounts: m, infra: infra}, nil
}

func newLiveDirectory(infra *Infrastructure) *DirectoryModule {
	cfg := infra.Config
	authOpts := authOptions(cfg.Auth)

	silent := directory.NewSilentSource(authOpts, cfg.Auth.AccessToken, cfg.Auth.RefreshToken)
	tokens := &directory.FallbackSource{Silent: silent}
	if cfg.Auth.Interactive {
		tokens.Interactive = directory.NewDeviceCodeSource(authOpts, silent, nil)
	}

	client := directory.NewGraphClient(directory.GraphConfig{
		BaseURL: cfg.Directory.GraphBaseURL,
		Timeout: cfg.Directory.RequestTimeout,
	}, tokens)

	m := pim.NewLiveManager(pim.LiveOptions{
		Client:   client,
		Accounts: silent,
		Pool:     infra.Pools.Directory,
		Events:   infra.Events,
	})
	logger.Info("Directory running in live mode",
		zap.String("graph_base_url", cfg.Directory.GraphBaseURL),
		zap.String("tenant_id", cfg.Auth.TenantID),
		zap.Bool("interactive", cfg.Auth.Interactive),
	)
	return &DirectoryModule{Manager: m, Accounts: silent, infra: infra, signIn: tokens}
}

func authOptions(cfg config.AuthConfig) directory.AuthOptions {
	return directory.AuthOptions{
		AuthorityHost: cfg.AuthorityHost,
		TenantID:      cfg.TenantID,
		ClientID:      cfg.ClientID,
		Scopes:        cfg.Scopes,
		ExpirySkew:    cfg.ExpirySkew,
	}
}

func (m *DirectoryModule) Name() string { return "directory" }

func (m *DirectoryModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Manager = m.Manager
	deps.Accounts = m.Accounts
}

// Start runs the initial refresh in the background. In live mode without a
// cached account, sign-in comes first; its prompt goes to the log.
func (m *DirectoryModule) Start(context.Context) error {
	return m.infra.Pools.SubmitDetached("general", func(ctx context.Context) {
		if _, ok := m.Accounts.Account(); !ok && m.signIn != nil {
			if _, err := m.signIn.Token(ctx); err != nil {
				logger.Warn("Directory sign-in failed, staying signed out", zap.Error(err))
				return
			}
		}
		if err := m.Manager.Refresh(ctx); err != nil {
			logger.Warn("Initial role refresh failed", zap.Error(err))
		}
	})
}

func (m *DirectoryModule) Shutdown(context.Context) error { return nil }
