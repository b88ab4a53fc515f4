// Package handlers implements the Elevate HTTP API on top of a pim.Manager.
//
// Handlers translate between HTTP and the manager; they hold no role state
// of their own. Errors are attached with c.Error and rendered by
// middleware.ErrorHandler.
package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"elevate.dev/elevate/internal/directory"
	"elevate.dev/elevate/internal/notification"
	"elevate.dev/elevate/internal/pim"
	"elevate.dev/elevate/internal/pkg/logger"
	"elevate.dev/elevate/internal/pkg/worker"
)

// Server serves the API operations.
type Server struct {
	manager  pim.Manager
	accounts directory.AccountSource
	inbox    *notification.Inbox
	mode     string
	now      func() time.Time
	upgrader websocket.Upgrader

	streamPool   *worker.Pool
	streamCtx    context.Context
	closeStreams context.CancelFunc
	streams      sync.WaitGroup
}

// ServerDeps holds all dependencies for creating a Server.
type ServerDeps struct {
	Manager pim.Manager
	// Accounts reports the signed-in account. Optional; without it the
	// session is reported as signed out.
	Accounts directory.AccountSource
	// Inbox backs GET /notifications. Optional.
	Inbox *notification.Inbox
	// Mode is "live" or "demo".
	Mode string
	// AllowedOrigins gates cross-origin WebSocket upgrades.
	AllowedOrigins  []string
	AllowAllOrigins bool
	// Streams runs the reader and writer loop of every state stream.
	Streams *worker.Pool
	Now     func() time.Time
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		manager:  deps.Manager,
		accounts: deps.Accounts,
		inbox:    deps.Inbox,
		mode:     deps.Mode,
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(deps.AllowedOrigins, deps.AllowAllOrigins),
		},
		streamPool:   deps.Streams,
		streamCtx:    ctx,
		closeStreams: cancel,
	}
}

// RegisterRoutes binds every API operation to r, which is expected to be
// the /api/v1 group.
func RegisterRoutes(r gin.IRouter, s *Server) {
	r.GET("/health/live", s.GetLiveness)
	r.GET("/health/ready", s.GetReadiness)
	r.GET("/session", s.GetSession)

	r.GET("/state", s.GetState)
	r.GET("/state/stream", s.StreamState)

	r.GET("/roles/eligible", s.ListEligibleRoles)
	r.GET("/roles/active", s.ListActiveRoles)
	r.POST("/roles/refresh", s.RefreshRoles)
	r.POST("/roles/activate", s.ActivateRole)
	r.POST("/roles/deactivate", s.DeactivateRole)
	r.GET("/durations", s.ListDurations)

	r.GET("/notifications", s.ListNotifications)

	level := gin.WrapH(logger.HTTPHandler())
	r.GET("/log/level", level)
	r.PUT("/log/level", level)
}

// Close ends open state streams and waits for their writers to exit.
func (s *Server) Close() {
	s.closeStreams()
	s.streams.Wait()
}

func (s *Server) account() (principalID string, ok bool) {
	if s.accounts == nil {
		return "", false
	}
	acct, ok := s.accounts.Account()
	if !ok {
		return "", false
	}
	return acct.ObjectID, true
}

// originChecker accepts same-origin requests, requests without an Origin
// header and the configured origins.
func originChecker(allowed []string, allowAll bool) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if allowAll {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[origin]; ok {
			return true
		}
		return origin == "http://"+r.Host || origin == "https://"+r.Host
	}
}
