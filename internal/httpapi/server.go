// Package httpapi exposes the operator-facing HTTP surface: health,
// metrics, adapter status, and the release/renewal command endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/adapters"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/logging"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/orchestrator"
	"github.com/cyberpunk042/continuity-orchestrator-sub000/internal/release"
)

// Server wires the Orchestrator and Adapter Registry into an HTTP
// mux.Router, matching the gateway's router choice elsewhere in the
// stack over a framework like gin.
type Server struct {
	orch     *orchestrator.Orchestrator
	registry *adapters.Registry
	log      *logging.Logger
	limiter  *rate.Limiter
	router   *mux.Router
}

// New builds a Server. commandsPerMinute bounds the release/renew
// endpoints, reinforcing the lockout rule against brute-force secret
// guessing.
func New(orch *orchestrator.Orchestrator, registry *adapters.Registry, log *logging.Logger, commandsPerMinute int) *Server {
	if commandsPerMinute <= 0 {
		commandsPerMinute = 10
	}
	s := &Server{
		orch:     orch,
		registry: registry,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(float64(commandsPerMinute)/60.0), commandsPerMinute),
		router:   mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/tick", s.handleTick).Methods(http.MethodPost)
	s.router.HandleFunc("/release", s.rateLimited(s.handleRelease)).Methods(http.MethodPost)
	s.router.HandleFunc("/renew", s.rateLimited(s.handleRenew)).Methods(http.MethodPost)
}

func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate_limited"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.StatusReport(r.Context()))
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	stage, err := s.orch.Tick(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"stage": stage})
}

type releaseRequest struct {
	Secret       string `json:"secret"`
	TargetStage  string `json:"target_stage"`
	DelayMinutes int    `json:"delay_minutes"`
	Scope        string `json:"scope"`
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_argument"})
		return
	}
	err := s.orch.TriggerRelease(r.Context(), release.Command{
		Secret:       req.Secret,
		TargetStage:  req.TargetStage,
		DelayMinutes: req.DelayMinutes,
		Scope:        req.Scope,
	})
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "armed"})
}

type renewRequest struct {
	Secret string `json:"secret"`
}

func (s *Server) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid_argument"})
		return
	}
	if err := s.orch.TriggerRenewal(r.Context(), req.Secret); err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "renewed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
