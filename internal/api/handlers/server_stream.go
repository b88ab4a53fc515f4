package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"elevate.dev/elevate/internal/pim"
	apperrors "elevate.dev/elevate/internal/pkg/errors"
	"elevate.dev/elevate/internal/pkg/logger"
	"elevate.dev/elevate/internal/pkg/worker"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize int64 = 512
)

// StreamState handles GET /state/stream. The current state is sent on
// connect, then every change. A slow client only ever sees the latest state.
func (s *Server) StreamState(c *gin.Context) {
	if !websocket.IsWebSocketUpgrade(c.Request) {
		_ = c.Error(apperrors.BadRequest(apperrors.CodeValidationFailed, "websocket upgrade required"))
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied.
		logger.Warn("State stream upgrade failed", zap.Error(err))
		return
	}

	updates := make(chan pim.State, 1)
	unsubscribe := s.manager.Subscribe(func(st pim.State) {
		for {
			select {
			case updates <- st:
				return
			default:
			}
			// Drop the stale snapshot still waiting to be written.
			select {
			case <-updates:
			default:
			}
		}
	})

	// The loops must not be skipped once accepted, so they get a
	// context that is never cancelled; writeStream watches streamCtx.
	closed := make(chan struct{})
	s.streams.Add(2)
	if err := s.streamPool.Submit(context.Background(), func(context.Context) {
		defer s.streams.Done()
		readStream(conn, closed)
	}); err != nil {
		s.streams.Add(-2)
		s.rejectStream(conn, unsubscribe, err)
		return
	}
	if err := s.streamPool.Submit(context.Background(), func(context.Context) {
		defer s.streams.Done()
		defer unsubscribe()
		s.writeStream(conn, updates, closed)
	}); err != nil {
		s.streams.Done()
		s.rejectStream(conn, unsubscribe, err)
	}
}

// rejectStream closes an upgraded connection that no worker could serve.
func (s *Server) rejectStream(conn *websocket.Conn, unsubscribe func(), err error) {
	unsubscribe()
	logger.Warn("State stream rejected", zap.Error(err))
	reason := "stream capacity exhausted"
	if !errors.Is(err, worker.ErrPoolFull) {
		reason = "server shutting down"
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseTryAgainLater, reason),
		time.Now().Add(writeWait))
	_ = conn.Close()
}

func (s *Server) writeStream(conn *websocket.Conn, updates <-chan pim.State, closed <-chan struct{}) {
	log := logger.With(zap.String("remote", conn.RemoteAddr().String()))
	log.Debug("State stream opened")
	defer log.Debug("State stream closed")
	defer conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeState(conn, s.manager.State()); err != nil {
		return
	}
	for {
		select {
		case st := <-updates:
			if err := writeState(conn, st); err != nil {
				log.Debug("State stream write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			return
		case <-s.streamCtx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			return
		}
	}
}

func writeState(conn *websocket.Conn, st pim.State) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(st)
}

// readStream drains control frames until the peer goes away.
func readStream(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("State stream read failed", zap.Error(err))
			}
			return
		}
	}
}
