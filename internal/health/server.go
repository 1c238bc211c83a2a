// Package health serves the ops endpoints: liveness, store-backed
// readiness, the scheduler status snapshot, and Prometheus metrics.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/antonkoetzler/arbihawk/internal/metrics"
)

// Pinger checks store connectivity for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StatusFunc returns the scheduler snapshot served on /status.
type StatusFunc func() interface{}

// Config holds the ops server wiring.
type Config struct {
	Service string
	Version string
	Port    int
	DB      Pinger
	Status  StatusFunc
	Logger  *logrus.Logger
}

// Server is the ops HTTP listener. It reports ready only after the
// daemons are up and the store answers a ping.
type Server struct {
	service string
	version string
	addr    string
	db      Pinger
	status  StatusFunc
	log     *logrus.Logger

	mu    sync.RWMutex
	ready bool
	srv   *http.Server
}

// NewServer creates an ops server listening on cfg.Port.
func NewServer(cfg Config) *Server {
	port := cfg.Port
	if port == 0 {
		port = 8080
	}
	return &Server{
		service: cfg.Service,
		version: cfg.Version,
		addr:    fmt.Sprintf(":%d", port),
		db:      cfg.DB,
		status:  cfg.Status,
		log:     cfg.Logger,
	}
}

// SetReady flips the readiness flag.
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

func (s *Server) isReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Start serves in the background until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", metrics.Handler())

	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		if s.log != nil {
			s.log.WithField("addr", s.addr).Info("Ops server listening")
		}
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if s.log != nil {
				s.log.WithError(err).Error("Ops server error")
			}
		}
	}()
	go func() {
		<-ctx.Done()
		s.Shutdown()
	}()
	return nil
}

// Shutdown drains the listener.
func (s *Server) Shutdown() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"service":   s.service,
		"version":   s.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"service": "ok"}
	code := http.StatusOK

	if !s.isReady() {
		checks["service"] = "not_ready"
		code = http.StatusServiceUnavailable
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			checks["store"] = fmt.Sprintf("error: %v", err)
			code = http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	status := "ok"
	if code != http.StatusOK {
		status = "not_ready"
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": s.service,
		"checks":  checks,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.status == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "no scheduler attached"})
		return
	}
	writeJSON(w, http.StatusOK, s.status())
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
