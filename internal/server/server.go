package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/paraid/paraid/internal/config"
	"github.com/paraid/paraid/internal/engine"
	"github.com/paraid/paraid/internal/refdata"
)

// Server is the read-mostly JSON API over the scorer and the reference
// store. All scoring state is taken as an explicit table snapshot per
// request; the server itself holds no mutable scoring state.
type Server struct {
	cfg     config.ServerConfig
	router  *mux.Router
	server  *http.Server
	store   *refdata.Store
	scorer  *engine.Scorer
	cache   *ResultCache
	metrics *Metrics
	hub     *updateHub
}

// New wires the router, middleware and reload notifications. cache may
// be nil to disable result caching.
func New(cfg config.Config, store *refdata.Store, scorer *engine.Scorer, cache *ResultCache) *Server {
	s := &Server{
		cfg:     cfg.Server,
		router:  mux.NewRouter(),
		store:   store,
		scorer:  scorer,
		cache:   cache,
		metrics: NewMetrics(),
		hub:     newUpdateHub(),
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RPS), cfg.RateLimit.Burst)
	}
	s.setupRoutes(limiter)

	store.OnReload(func(table *refdata.Table) {
		s.metrics.ReferenceReloads.Inc()
		s.metrics.ReferenceRecords.Set(float64(len(table.Records)))
		s.hub.broadcast(reloadEvent{
			Event:       "reference_reloaded",
			Records:     len(table.Records),
			Fingerprint: table.Fingerprint,
			LoadedAt:    table.LoadedAt,
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes(limiter *rate.Limiter) {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(rateLimitMiddleware(limiter))

	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/v1/updates", s.hub.handle).Methods("GET")

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)
	api.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	api.HandleFunc("/v1/score", s.handleScore).Methods("POST")
	api.HandleFunc("/v1/reference", s.handleReference).Methods("GET")
	api.HandleFunc("/v1/options", s.handleOptions).Methods("GET")

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

// candidatePayload is one ranked candidate plus its reasoning notes.
type candidatePayload struct {
	engine.ScoredCandidate
	Reasons []string `json:"reasons,omitempty"`
}

// scoreResponse is the full answer to one findings submission.
type scoreResponse struct {
	GeneratedAt     time.Time              `json:"generated_at"`
	RuleVersion     string                 `json:"rule_version"`
	ReferenceRows   int                    `json:"reference_rows"`
	PopulatedFields int                    `json:"populated_fields"`
	Candidates      []candidatePayload     `json:"candidates"`
	Groups          []engine.GroupSummary  `json:"groups"`
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var findings engine.FindingsRecord
	if err := json.NewDecoder(r.Body).Decode(&findings); err != nil {
		s.metrics.ScoreRequests.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid findings payload: %v", err))
		return
	}

	// Pick up an edited reference table before scoring; keep serving
	// the current snapshot when the staleness check itself fails.
	if _, err := s.store.RefreshIfStale(r.Context()); err != nil {
		log.Warn().Err(err).Msg("Reference staleness check failed, serving current table")
	}

	table := s.store.Snapshot()
	if table == nil {
		s.metrics.ScoreRequests.WithLabelValues("unavailable").Inc()
		writeError(w, http.StatusServiceUnavailable, "reference table not loaded")
		return
	}

	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.Key(table.Fingerprint, findings)
		if body, ok := s.cache.Get(r.Context(), cacheKey); ok {
			s.metrics.CacheHits.Inc()
			s.metrics.ScoreRequests.WithLabelValues("ok").Inc()
			w.Write(body)
			return
		}
		s.metrics.CacheMisses.Inc()
	}

	start := time.Now()
	candidates := s.scorer.Score(table.Records, findings)
	s.metrics.ScoreDuration.Observe(time.Since(start).Seconds())
	s.metrics.ScoredRecords.Observe(float64(len(candidates)))

	payload := make([]candidatePayload, 0, len(candidates))
	for _, c := range candidates {
		payload = append(payload, candidatePayload{
			ScoredCandidate: c,
			Reasons:         engine.Reasons(table.Records[c.Row], findings),
		})
	}

	resp := scoreResponse{
		GeneratedAt:     time.Now().UTC(),
		RuleVersion:     s.scorer.Rules().Version,
		ReferenceRows:   len(table.Records),
		PopulatedFields: findings.Populated(s.scorer.Rules()),
		Candidates:      payload,
		Groups:          engine.GroupCandidates(candidates),
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.metrics.ScoreRequests.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	if s.cache != nil {
		s.cache.Set(r.Context(), cacheKey, body)
	}

	s.metrics.ScoreRequests.WithLabelValues("ok").Inc()
	w.Write(body)
}

func (s *Server) handleReference(w http.ResponseWriter, r *http.Request) {
	table := s.store.Snapshot()
	if table == nil {
		writeError(w, http.StatusServiceUnavailable, "reference table not loaded")
		return
	}

	writeJSON(w, map[string]interface{}{
		"source":      table.Source,
		"fingerprint": table.Fingerprint,
		"loaded_at":   table.LoadedAt,
		"records":     len(table.Records),
		"fields":      s.scorer.Rules().MatchableFields(),
	})
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	table := s.store.Snapshot()
	if table == nil {
		writeError(w, http.StatusServiceUnavailable, "reference table not loaded")
		return
	}

	writeJSON(w, table.Options(s.scorer.Rules().MatchableFields()))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	table := s.store.Snapshot()
	status := map[string]interface{}{
		"status":       "ok",
		"table_loaded": table != nil,
		"subscribers":  s.hub.subscriberCount(),
	}
	if table != nil {
		status["records"] = len(table.Records)
		status["loaded_at"] = table.LoadedAt
	}
	writeJSON(w, status)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start runs the server until it fails or is shut down.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("Starting ParAI-D API server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("Shutting down API server")
	return s.server.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
