package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/silent-mammoth/whistle/internal/report"
)

// Server wraps the HTTP server and mux for the whistle service.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new server wired with all routes. app is the
// middleware-wrapped application handler mounted at the root; it serves both
// the instrumented pages and the client-event endpoint. The dashboard API and
// the embedded UI live beside it.
func NewServer(listenAddress string, port int, adminToken string, engine *report.Engine, app http.Handler) *Server {
	mux := http.NewServeMux()

	// Public (no auth)
	mux.Handle("GET /healthz", HandleHealthz())

	// Authenticated dashboard routes
	authed := http.NewServeMux()
	authed.Handle("GET /api/v1/dashboard/day", HandleDayView(engine))
	authed.Handle("GET /api/v1/dashboard/sessions/{subject_id}", HandleSessionView(engine))

	mux.Handle("/api/", AuthMiddleware(adminToken, authed))
	registerEmbeddedWebUI(mux)

	if app != nil {
		mux.Handle("/", app)
	}

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
