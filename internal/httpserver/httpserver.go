// Package httpserver assembles the admin HTTP surface: health probes,
// Prometheus metrics, the live transcript WebSocket, and a read-only call
// listing.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arivox/arivox/internal/events"
	"github.com/arivox/arivox/internal/health"
	"github.com/arivox/arivox/internal/observe"
	"github.com/arivox/arivox/internal/store"
	"github.com/arivox/arivox/pkg/types"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 10 * time.Second

// ActiveCalls lists the calls currently attached to the pipeline.
type ActiveCalls interface {
	Calls() []types.CallInfo
}

// CallLog is the subset of the call log the admin surface reads. Nil when
// persistence is not configured.
type CallLog interface {
	RecentCalls(ctx context.Context, limit int) ([]store.CallRecord, error)
}

// Server serves the admin endpoints on a single listener.
type Server struct {
	addr string
	log  *slog.Logger

	mux *http.ServeMux
	srv *http.Server

	mu      sync.Mutex
	lisAddr string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// New builds the admin server. hub and healthHandler are required; calls and
// callLog may be nil, in which case the corresponding endpoints return 404
// or an empty listing.
func New(addr string, hub *events.Hub, healthHandler *health.Handler, calls ActiveCalls, callLog CallLog, opts ...Option) *Server {
	s := &Server{
		addr: addr,
		log:  slog.Default(),
		mux:  http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}

	healthHandler.Register(s.mux)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.Handle("GET /ws", hub)
	if calls != nil {
		s.mux.HandleFunc("GET /calls", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, calls.Calls())
		})
	}
	if callLog != nil {
		s.mux.HandleFunc("GET /calls/recent", func(w http.ResponseWriter, r *http.Request) {
			limit := 0
			if q := r.URL.Query().Get("limit"); q != "" {
				n, err := strconv.Atoi(q)
				if err != nil || n < 1 {
					http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
					return
				}
				limit = n
			}
			records, err := callLog.RecentCalls(r.Context(), limit)
			if err != nil {
				s.log.Error("recent calls query failed", "error", err)
				http.Error(w, "call log unavailable", http.StatusInternalServerError)
				return
			}
			writeJSON(w, records)
		})
	}

	s.srv = &http.Server{
		Handler:           observe.Middleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Serve listens on the configured address and blocks until ctx is cancelled
// or the listener fails. On cancellation the server drains gracefully and
// Serve returns nil.
func (s *Server) Serve(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lisAddr = lis.Addr().String()
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.Serve(lis)
	}()

	s.log.Info("admin http server listening", "addr", lis.Addr().String())

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Addr returns the bound listener address, or "" before Serve has bound it.
// Lets tests start the server on ":0".
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lisAddr
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode"}`, http.StatusInternalServerError)
	}
}
