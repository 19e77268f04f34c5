// Package api serves the coordinator's HTTP front door.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"ChainFL/internal/coordinator"
	"ChainFL/internal/events"
	"ChainFL/internal/journal"
	"ChainFL/internal/ledger"
	"ChainFL/internal/logger"
)

const (
	// maxBodySize bounds request bodies.
	maxBodySize = 64 << 10
)

// Coordinator is the round loop the front door admits updates into.
type Coordinator interface {
	Submit(ctx context.Context, sub coordinator.Submission) coordinator.Outcome
	CloseNow() bool
	Status() coordinator.Status
}

// RoundReader reads round state from the ledger.
type RoundReader interface {
	CurrentRound(ctx context.Context) (ledger.RoundID, error)
	GetRound(ctx context.Context, id ledger.RoundID) (ledger.RoundInfo, error)
}

// ReportReader reads aggregation reports.
type ReportReader interface {
	Report(ctx context.Context, round uint64) (journal.Report, error)
	Reports(ctx context.Context, limit int) ([]journal.Report, error)
}

// Config holds the server's collaborators.
type Config struct {
	Addr        string       // Addr is the HTTP listen address
	AdminToken  string       // AdminToken guards operator routes; empty limits them to loopback callers
	Coordinator Coordinator  // Coordinator admits submissions
	Ledger      RoundReader  // Ledger answers /current-round
	Reports     ReportReader // Reports is optional; without it /rounds answers 404
	Events      *events.Bus  // Events is optional; without it /ws/rounds answers 503
	Metrics     http.Handler // Metrics is optional
	Logger      *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg    Config
	log    *slog.Logger
	router *mux.Router

	server   *http.Server  // server is the underlying HTTP server
	listener net.Listener  // listener is set by Start
	done     chan struct{} // done is closed by Stop to end event streams
	stopOnce sync.Once
}

// New creates a server. Start must be called to listen.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.Component("api")
	}

	s := &Server{
		cfg:  cfg,
		log:  cfg.Logger,
		done: make(chan struct{}),
	}
	s.router = s.routes()

	return s
}

// routes builds the router.
func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/submit-update", s.handleSubmit).Methods(http.MethodPost)
	r.HandleFunc("/current-round", s.handleCurrentRound).Methods(http.MethodGet)
	r.Handle("/close-round", s.operatorOnly(http.HandlerFunc(s.handleCloseRound))).Methods(http.MethodPost)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/rounds", s.handleReports).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{round:[0-9]+}", s.handleReport).Methods(http.MethodGet)
	r.HandleFunc("/ws/rounds", s.handleEvents).Methods(http.MethodGet)

	if s.cfg.Metrics != nil {
		r.Handle("/metrics", s.cfg.Metrics).Methods(http.MethodGet)
	}

	return r
}

// Handler returns the router, for embedding and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in a goroutine.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s:\n%w", s.cfg.Addr, err)
	}

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.Info("http api started", "addr", ln.Addr().String())

		if err := s.server.Serve(ln); err != http.ErrServerClosed {
			s.log.Error("http server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

// Stop ends event streams and gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { close(s.done) })

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// operatorOnly admits requests carrying the admin bearer token.
// Without a configured token only loopback callers are admitted.
func (s *Server) operatorOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken != "" {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
				writeError(w, http.StatusUnauthorized, "admin token required")
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !isLoopback(r.RemoteAddr) {
			s.log.Warn("operator route refused", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, "operator routes are limited to loopback callers")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isLoopback reports whether addr is a loopback host:port.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	ip := net.ParseIP(host)

	return ip != nil && ip.IsLoopback()
}
