package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/rjboer/radarcore/internal/logging"
)

// WebServer exposes session status, history and live events over HTTP.
type WebServer struct {
	srv    *http.Server
	hub    *Hub
	logger logging.Logger
}

// Handler returns the hub's HTTP routes.
func (h *Hub) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/api/history", h.handleHistory)
	mux.HandleFunc("/api/events", h.handleEvents)
	mux.HandleFunc("/api/capture/latest", h.handleLatestCapture)
	mux.HandleFunc("/api/config", h.handleGetConfig)
	mux.HandleFunc("/api/config/update", h.handleSetConfig)
	return mux
}

// NewWebServer builds an HTTP server for the hub on addr.
func NewWebServer(addr string, hub *Hub, logger logging.Logger) *WebServer {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebServer{
		hub:    hub,
		srv:    &http.Server{Addr: addr, Handler: hub.Handler(), ReadHeaderTimeout: 5 * time.Second},
		logger: logger.With(logging.F("subsystem", "telemetry")),
	}
}

// Start begins listening and shuts down when the context is canceled.
func (w *WebServer) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.srv.Addr)
	if err != nil {
		return err
	}
	return w.Serve(ctx, ln)
}

// Serve runs the server on an existing listener until ctx is canceled.
func (w *WebServer) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := w.srv.Shutdown(shutdownCtx); err != nil {
			w.logger.Warn("web telemetry shutdown", logging.F("error", err))
		}
	}()

	w.logger.Info("web telemetry listening", logging.F("addr", ln.Addr().String()))
	if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
