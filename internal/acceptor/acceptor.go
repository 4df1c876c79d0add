// Package acceptor listens for inbound WebSocket connections and binds each
// one to a new recording Session (§4.8).
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/flowpbx-labs/ingestd/internal/session"
)

// upgrader has no origin check: deployment is assumed to be a trusted local
// bot/client, not a public browser-facing endpoint (§4.8: "no
// authentication is performed").
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Acceptor upgrades inbound HTTP connections to WebSocket and spawns one
// Session task per accepted connection, as §5 requires.
type Acceptor struct {
	srv           *http.Server
	sessionConfig session.Config
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
	wg       sync.WaitGroup
}

// New builds an Acceptor listening on addr. sessionConfig is cloned per
// connection (only RecordingsRoot/flags/timeout/logger are shared;
// Session.New assigns each one its own directory).
func New(addr string, sessionConfig session.Config, archiver session.Archiver, logger *slog.Logger) *Acceptor {
	if logger == nil {
		logger = slog.Default()
	}
	sessionConfig.Archiver = archiver
	a := &Acceptor{
		sessionConfig: sessionConfig,
		logger:        logger.With("subsystem", "acceptor"),
		sessions:      make(map[string]*session.Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleConnect)

	a.srv = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  0, // long-lived streaming connections
		WriteTimeout: 0,
		IdleTimeout:  2 * time.Minute,
	}

	return a
}

// ListenAndServe starts the HTTP/WebSocket listener. It blocks until the
// listener stops, returning nil on a clean Shutdown.
func (a *Acceptor) ListenAndServe() error {
	a.logger.Info("listening", "addr", a.srv.Addr)
	err := a.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting new connections, requests close on every active
// Session (reason "shutdown"), and waits (bounded by ctx) for their
// finalisation to complete — §4.8, §5: "stop accepting, allow in-flight
// sessions to finalise."
func (a *Acceptor) Shutdown(ctx context.Context) error {
	if err := a.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down listener: %w", err)
	}

	a.mu.Lock()
	sessions := make([]*session.Session, 0, len(a.sessions))
	for _, s := range a.sessions {
		sessions = append(sessions, s)
	}
	a.mu.Unlock()

	for _, s := range sessions {
		go s.Close("shutdown", nil)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		a.logger.Warn("shutdown grace period elapsed with sessions still finalising")
		return ctx.Err()
	}
}

func (a *Acceptor) handleConnect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	s, err := session.New(uuid.New().String(), a.sessionConfig)
	if err != nil {
		a.logger.Error("failed to create session", "error", err)
		conn.Close()
		return
	}

	a.mu.Lock()
	a.sessions[s.ID()] = s
	a.mu.Unlock()
	a.wg.Add(1)

	a.logger.Info("session connected", "session_id", s.ID(), "remote_addr", r.RemoteAddr)

	go a.serve(conn, s)
}

// serve reads frames off the socket until it errs or closes, then
// finalises the session. One goroutine per connection; this is the
// "single logical task" §5 describes.
func (a *Acceptor) serve(conn *websocket.Conn, s *session.Session) {
	defer a.wg.Done()
	defer func() {
		a.mu.Lock()
		delete(a.sessions, s.ID())
		a.mu.Unlock()
	}()
	defer conn.Close()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.Close("client_close", nil)
			} else {
				s.Close("socket_error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.HandleMessage(data)
	}
}

