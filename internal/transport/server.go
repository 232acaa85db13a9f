// Package transport carries control sessions over WebSocket. One session is
// served at a time; each runs an inbound demux and an outbound sender around
// the orchestrator.
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rjboer/radarcore/internal/logging"
	"github.com/rjboer/radarcore/internal/message"
)

// ControlPath is the WebSocket endpoint for control sessions.
const ControlPath = "/control"

const writeTimeout = 5 * time.Second

// SessionRunner serves one session from inbox to outbox. RunSession must
// close outbox before returning.
type SessionRunner interface {
	RunSession(ctx context.Context, inbox <-chan message.Message, outbox chan<- message.Ack) error
	MailboxSize() int
}

// Server accepts control connections and hands them to a SessionRunner.
type Server struct {
	runner   SessionRunner
	upgrader websocket.Upgrader
	logger   logging.Logger
	busy     atomic.Bool
	base     context.Context
}

// NewServer builds a server for runner.
func NewServer(runner SessionRunner, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	return &Server{
		runner: runner,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4096,
			WriteBufferSize: 65536,
		},
		logger: logger.With(logging.F("subsystem", "transport")),
		base:   context.Background(),
	}
}

// Handler returns the control route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(ControlPath, s)
	return mux
}

// Serve accepts connections on ln until ctx is canceled. Active sessions
// are torn down on cancellation.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.base = ctx
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("control server shutdown", logging.F("error", err))
		}
	}()
	s.logger.Info("control server listening", logging.F("addr", ln.Addr().String()))
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !s.busy.CompareAndSwap(false, true) {
		s.logger.Warn("connection refused, session active", logging.F("remote", r.RemoteAddr))
		http.Error(w, "session already active", http.StatusServiceUnavailable)
		return
	}
	defer s.busy.Store(false)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrade failed", logging.F("error", err))
		return
	}
	log := s.logger.With(logging.F("remote", conn.RemoteAddr().String()))
	log.Info("session connected")

	ctx, cancel := context.WithCancel(s.base)
	defer cancel()

	size := s.runner.MailboxSize()
	inbox := make(chan message.Message, size)
	outbox := make(chan message.Ack, size)
	direct := make(chan message.Ack, size)
	ended := make(chan struct{})
	sent := make(chan struct{})
	read := make(chan struct{})

	go func() {
		defer close(sent)
		sender{conn: conn, logger: log}.run(outbox, direct)
	}()
	go func() {
		defer close(read)
		demux{conn: conn, logger: log}.run(inbox, direct, ended)
	}()
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-ended:
		}
	}()

	if err := s.runner.RunSession(ctx, inbox, outbox); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("session ended with error", logging.F("error", err))
	}
	close(ended)
	<-sent
	conn.Close()
	<-read
	log.Info("session disconnected")
}
