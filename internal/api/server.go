// Package api provides the HTTP API over stored simulation runs.
// GET endpoints are public (read-only).
// POST and DELETE endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/talgya/seihrd/internal/config"
	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/persistence"
	"github.com/talgya/seihrd/internal/report"
	"github.com/talgya/seihrd/internal/simerr"
)

const (
	maxConcurrentRuns = 2
	maxRunSteps       = 5000
)

// Server serves stored runs over HTTP and accepts new runs from admins.
type Server struct {
	DB       *persistence.DB
	Base     config.Config // Defaults for runs submitted over the API
	Port     int
	AdminKey string // Bearer token for POST/DELETE endpoints. Empty = admin disabled.

	// In-flight API runs (atomic).
	running int32

	started time.Time
	srv     *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	if s.started.IsZero() {
		s.started = time.Now()
	}
	runLimiter := NewRateLimiter(20, time.Hour)

	mux := http.NewServeMux()

	// Public endpoints.
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/presets", s.handlePresets)
	mux.HandleFunc("GET /api/v1/runs", s.handleRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.handleRunDetail)
	mux.HandleFunc("GET /api/v1/runs/{id}/series", s.handleSeries)
	mux.HandleFunc("GET /api/v1/runs/{id}/outcomes", s.handleOutcomes)

	// Admin endpoints (require bearer token).
	mux.HandleFunc("POST /api/v1/runs", s.adminOnly(RateLimitMiddleware(runLimiter, s.handleCreateRun)))
	mux.HandleFunc("DELETE /api/v1/runs/{id}", s.adminOnly(s.handleDeleteRun))

	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops a server started with Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of extra allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on mutating requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no SEIHRD_ADMIN_KEY set)", http.StatusForbidden)
				return
			}

			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"name":          "seihrd",
		"uptime":        time.Since(s.started).Round(time.Second).String(),
		"running":       atomic.LoadInt32(&s.running),
		"database":      s.DB != nil,
		"admin_auth":    s.AdminKey != "",
		"default_steps": s.Base.Steps,
	}
	if s.DB != nil {
		last, err := s.DB.LastRun()
		switch {
		case err == nil:
			status["last_run"] = last
		case !errors.Is(err, persistence.ErrNotFound):
			slog.Error("status: last run lookup failed", "error", err)
		}
	}
	writeJSON(w, status)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	type presetInfo struct {
		Name               string  `json:"name"`
		ContactCount       int     `json:"contact_count"`
		ContactProbability float64 `json:"contact_probability"`
		Steps              int     `json:"steps,omitempty"`
	}
	var out []presetInfo
	for _, p := range config.Presets() {
		out = append(out, presetInfo{p.Name, p.ContactCount, p.ContactProbability, p.Steps})
	}
	writeJSON(w, out)
}

func (s *Server) requireDB(w http.ResponseWriter) bool {
	if s.DB == nil {
		http.Error(w, "database not available", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// storeError maps a persistence error onto an HTTP response.
func storeError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	slog.Error(op+" failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	runs, err := s.DB.ListRuns(limit)
	if err != nil {
		storeError(w, "list runs", err)
		return
	}
	if runs == nil {
		runs = []persistence.Run{}
	}
	writeJSON(w, runs)
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	id := r.PathValue("id")
	run, err := s.DB.LoadRun(id)
	if err != nil {
		storeError(w, "load run", err)
		return
	}
	series, err := s.DB.LoadSeries(id, 0, 0)
	if err != nil {
		storeError(w, "load series", err)
		return
	}

	var summary report.Summary
	if len(series) > 0 {
		summary = report.Summarize(series[0], series[1:], hospitalCapacity(run.Config))
	}
	writeJSON(w, map[string]any{
		"run":     run,
		"summary": summary,
	})
}

// hospitalCapacity reads the capacity back out of stored scenario settings.
func hospitalCapacity(settings json.RawMessage) int {
	var sc config.Scenario
	if err := json.Unmarshal(settings, &sc); err != nil {
		return 0
	}
	return sc.Engine.Progression.HospitalCapacity
}

func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	from, to := 0, 0
	if f := r.URL.Query().Get("from"); f != "" {
		if v, err := strconv.Atoi(f); err == nil && v >= 0 {
			from = v
		}
	}
	if t := r.URL.Query().Get("to"); t != "" {
		if v, err := strconv.Atoi(t); err == nil && v >= 0 {
			to = v
		}
	}

	series, err := s.DB.LoadSeries(r.PathValue("id"), from, to)
	if err != nil {
		storeError(w, "load series", err)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		if err := report.WriteCSV(w, series); err != nil {
			slog.Error("write csv failed", "error", err)
		}
		return
	}
	writeJSON(w, series)
}

func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	q := r.URL.Query()
	f := persistence.OutcomeFilter{Limit: 100}
	if st := q.Get("state"); st != "" {
		state, err := disease.ParseState(st)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.State = &state
	}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 10000 {
			f.Limit = n
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			f.Offset = n
		}
	}

	outcomes, err := s.DB.LoadOutcomes(r.PathValue("id"), f)
	if err != nil {
		storeError(w, "load outcomes", err)
		return
	}
	writeJSON(w, outcomes)
}

// runRequest is the body of POST /api/v1/runs. Unset fields inherit from
// the server's base configuration.
type runRequest struct {
	Name                    string   `json:"name"`
	Preset                  string   `json:"preset,omitempty"`
	Seed                    *int64   `json:"seed,omitempty"`
	Steps                   *int     `json:"steps,omitempty"`
	ContactCount            *int     `json:"contact_count,omitempty"`
	ContactProbability      *float64 `json:"contact_probability,omitempty"`
	TransmissionProbability *float64 `json:"transmission_probability,omitempty"`
}

func (req runRequest) scenario(base config.Config) (config.Scenario, error) {
	cfg := base
	cfg.LogEvery = 0
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.TransmissionProbability != nil {
		cfg.Transmission.Probability = *req.TransmissionProbability
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(req.Preset)
	}
	if name == "" {
		name = "api"
	}
	if req.Preset != "" {
		if _, ok := config.LookupPreset(req.Preset); !ok {
			return config.Scenario{}, simerr.Invalid("preset", req.Preset, "unknown preset")
		}
	}
	cfg.ScenarioOverrides = []config.ScenarioOverride{{
		Name:               name,
		Preset:             req.Preset,
		ContactCount:       req.ContactCount,
		ContactProbability: req.ContactProbability,
		Steps:              req.Steps,
	}}

	scenarios, err := cfg.Scenarios()
	if err != nil {
		return config.Scenario{}, err
	}
	sc := scenarios[0]
	if sc.Engine.Steps > maxRunSteps {
		return config.Scenario{}, simerr.Invalid("steps", sc.Engine.Steps, fmt.Sprintf("at most %d steps over the API", maxRunSteps))
	}
	return sc, nil
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}

	var req runRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	sc, err := req.scenario(s.Base)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if atomic.AddInt32(&s.running, 1) > maxConcurrentRuns {
		atomic.AddInt32(&s.running, -1)
		http.Error(w, "too many runs in progress", http.StatusServiceUnavailable)
		return
	}
	defer atomic.AddInt32(&s.running, -1)

	res, err := sc.Run()
	if err != nil {
		if errors.Is(err, simerr.ErrInvalidParameter) || errors.Is(err, simerr.ErrInconsistentPopulation) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Error("api run failed", "name", sc.Name, "error", err)
		http.Error(w, "run failed", http.StatusInternalServerError)
		return
	}

	run, err := s.DB.SaveRun(sc.Name, sc, res)
	if err != nil {
		storeError(w, "save run", err)
		return
	}

	w.Header().Set("Location", "/api/v1/runs/"+run.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, map[string]any{
		"run":     run,
		"summary": report.Summarize(res.Initial, res.Series, sc.Engine.Progression.HospitalCapacity),
	})
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireDB(w) {
		return
	}
	if err := s.DB.DeleteRun(r.PathValue("id")); err != nil {
		storeError(w, "delete run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
