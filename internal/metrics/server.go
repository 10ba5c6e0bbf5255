package metrics

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthFunc reports a non-nil error when the process is unhealthy.
type HealthFunc func() error

// Server serves /metrics and /healthz.
type Server struct {
	Addr    string
	Metrics *Metrics
	Health  HealthFunc
}

// NewServer creates a new metrics server instance.
func NewServer(addr string, m *Metrics, health HealthFunc) *Server {
	return &Server{Addr: addr, Metrics: m, Health: health}
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if reg := s.Metrics.Registry(); reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	mux.HandleFunc("/healthz", s.handleHealth)
	return mux
}

// Listen binds the server address without serving yet.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %s", s.Addr)
	}
	return ln, nil
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "serve metrics")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	status, code, detail := "ok", http.StatusOK, ""
	if s.Health != nil {
		if err := s.Health(); err != nil {
			status, code, detail = "unhealthy", http.StatusServiceUnavailable, err.Error()
		}
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status, "detail": detail})
}
