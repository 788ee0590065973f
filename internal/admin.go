// Package internal hosts the operational side surface: a small HTTP
// server on its own port exposing router statistics, health, and the
// idle-connection sweep. It is never exposed to session clients.
package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"voicehub/observability"
	"voicehub/repositories"
	"voicehub/runtime"
)

const defaultMaxIdle = 5 * time.Minute

type AdminServer struct {
	log      *slog.Logger
	stats    *observability.StatsManager
	registry *runtime.Registry
	audit    *repositories.AuditRepository
	maxIdle  time.Duration
	srv      *http.Server
}

func NewAdminServer(log *slog.Logger, addr string, stats *observability.StatsManager, registry *runtime.Registry, audit *repositories.AuditRepository, maxIdle time.Duration) *AdminServer {
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdle
	}
	a := &AdminServer{
		log:      log,
		stats:    stats,
		registry: registry,
		audit:    audit,
		maxIdle:  maxIdle,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", a.handleHealth)
	mux.HandleFunc("GET /stats", a.handleStats)
	mux.HandleFunc("GET /audit", a.handleAudit)
	mux.HandleFunc("POST /cleanup", a.handleCleanup)

	a.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return a
}

// Start serves until the listener fails; run it in a goroutine.
func (a *AdminServer) Start() error {
	a.log.Info("Starting admin server", "addr", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("admin server error: %w", err)
	}
	return nil
}

func (a *AdminServer) Shutdown(ctx context.Context) error {
	return a.srv.Shutdown(ctx)
}

func (a *AdminServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *AdminServer) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"router":      a.stats.Snapshot(),
		"connections": a.registry.Stats(),
	})
}

// handleAudit returns the newest audit entries for one session.
// GET /audit?session_id=...&limit=50
func (a *AdminServer) handleAudit(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := a.audit.History(sessionID, limit)
	if err != nil {
		a.log.Error("Audit lookup failed", "session", sessionID, "err", err)
		http.Error(w, "audit lookup failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleCleanup sweeps connections idle past max_idle (configured default
// when the parameter is absent). POST /cleanup?max_idle=2m
func (a *AdminServer) handleCleanup(w http.ResponseWriter, r *http.Request) {
	maxIdle := a.maxIdle
	if raw := r.URL.Query().Get("max_idle"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid max_idle", http.StatusBadRequest)
			return
		}
		maxIdle = parsed
	}

	removed := a.registry.CleanupInactive(maxIdle)
	a.log.Info("Idle sweep done", "removed", removed, "max_idle", maxIdle)
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
