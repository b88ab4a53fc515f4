package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"elevate.dev/elevate/internal/config"
	"elevate.dev/elevate/internal/pim"
	"elevate.dev/elevate/internal/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
	_ = logger.Init("error", "json")
}

func demoConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: 8080, AllowedOrigins: []string{"http://localhost:5173"}},
		Log:       config.LogConfig{Level: "error", Format: "json"},
		Directory: config.DirectoryConfig{Mode: config.ModeDemo, RequestTimeout: time.Second},
		Refresh:   config.RefreshConfig{Enabled: false},
		Worker:    config.WorkerConfig{GeneralPoolSize: 4, DirectoryPoolSize: 2, StreamPoolSize: 4},
	}
}

func liveConfig() *config.Config {
	cfg := demoConfig()
	cfg.Directory.Mode = config.ModeLive
	cfg.Directory.GraphBaseURL = "http://127.0.0.1:1/v1.0"
	cfg.Auth = config.AuthConfig{
		AuthorityHost: "http://127.0.0.1:1",
		TenantID:      "common",
		ClientID:      "client-1",
		Scopes:        []string{"User.Read"},
	}
	return cfg
}

func bootstrap(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	a, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Shutdown(context.Background()) })
	return a
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestBootstrap_Demo(t *testing.T) {
	a := bootstrap(t, demoConfig())
	require.Len(t, a.Modules, 2, "scheduler is disabled")

	w := get(t, a.Router, "/api/v1/state")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st pim.State
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Len(t, st.EligibleRoles, 4)
	assert.Len(t, st.ActiveRoles, 1)

	w = get(t, a.Router, "/api/v1/session")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"mode":"demo"`)
	assert.Contains(t, w.Body.String(), `"authenticated":true`)
}

func TestBootstrap_DemoFixturesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte("principal:\n  id: u-1\n  displayName: U\nroles:\n  - id: r-1\n    displayName: Reader\n"), 0o600))

	cfg := demoConfig()
	cfg.Demo.FixturesFile = path
	a := bootstrap(t, cfg)

	st := a.Manager.State()
	require.Len(t, st.EligibleRoles, 1)
	assert.Equal(t, "r-1", st.EligibleRoles[0].RoleDefinitionID)
}

func TestBootstrap_Errors(t *testing.T) {
	t.Run("missing fixtures file", func(t *testing.T) {
		cfg := demoConfig()
		cfg.Demo.FixturesFile = filepath.Join(t.TempDir(), "missing.yaml")
		a, err := Bootstrap(context.Background(), cfg)
		require.Error(t, err)
		assert.Nil(t, a)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		cfg := demoConfig()
		cfg.Refresh = config.RefreshConfig{Enabled: true, Schedule: "every now and then"}
		a, err := Bootstrap(context.Background(), cfg)
		require.Error(t, err)
		assert.Nil(t, a)
	})
}

func TestBootstrap_LiveSignedOut(t *testing.T) {
	a := bootstrap(t, liveConfig())

	w := get(t, a.Router, "/api/v1/session")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"mode":"live"`)
	assert.Contains(t, w.Body.String(), `"authenticated":false`)

	// Signed out, a refresh is a no-op that leaves empty collections.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/roles/refresh", nil)
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, a.Manager.State().EligibleRoles)
}

func TestApplication_StartAndShutdown(t *testing.T) {
	cfg := demoConfig()
	cfg.Refresh = config.RefreshConfig{Enabled: true, Schedule: "@every 1h", ExpirySchedule: "@every 1h", ExpiryWarning: 15 * time.Minute}

	a, err := Bootstrap(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, a.Modules, 3)
	require.NoError(t, a.Start(context.Background()))

	// The initial refresh runs on the general pool.
	require.Eventually(t, func() bool {
		return a.Manager.State().RefreshedAt != nil
	}, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.Shutdown(ctx)
}

func TestApplication_Shutdown_Empty(t *testing.T) {
	a := &Application{}
	a.Shutdown(context.Background())
}
