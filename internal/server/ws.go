package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/wardenhq/warden/internal/stream"
)

const wsWriteTimeout = 5 * time.Second

// handleWebSocket authenticates and serves the event-stream upgrade.
// Browser WebSocket clients cannot set arbitrary headers, so the token
// arrives as a query parameter. Authentication and origin checks both
// happen before the upgrade: a failed connection never completes a partial
// handshake. The token value itself must never appear in a response, a
// close reason, or a log line.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	md, err := s.authSvc.Validate(token)
	if err != nil {
		s.logger.Warn("websocket upgrade refused",
			"reason", "invalid token",
			"remote_addr", r.RemoteAddr)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !md.Role.IsHierarchical() {
		// The webhook role has no business on the event stream.
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	origin := r.Header.Get("Origin")
	if !s.originAllowed(origin) {
		s.logger.Warn("websocket upgrade refused",
			"reason", "origin not allowed",
			"origin", stream.RedactToken(origin, token),
			"remote_addr", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	// Origin is validated above against the exact allowlist.
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed",
			"error", stream.RedactToken(err.Error(), token),
			"remote_addr", r.RemoteAddr)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := s.events.Subscribe(64)
	defer s.events.Unsubscribe(sub)

	s.logger.Info("websocket connected", "subject", md.Subject, "role", string(md.Role))
	_ = wsjson.Write(ctx, conn, stream.NewEvent("ready", nil))

	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "closed")
				return
			}
			writeCtx, cancelWrite := context.WithTimeout(ctx, wsWriteTimeout)
			err := wsjson.Write(writeCtx, conn, evt)
			cancelWrite()
			if err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write failed")
				return
			}
		}
	}
}
