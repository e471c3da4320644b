// Package server exposes the engine over HTTP and hosts the snapshot
// scheduler.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yairfalse/restitch/internal/engine"
	apperrors "github.com/yairfalse/restitch/internal/errors"
	"github.com/yairfalse/restitch/internal/logger"
	"github.com/yairfalse/restitch/pkg/types"
)

// Server is the HTTP surface over the engine.
type Server struct {
	engine *engine.Engine
	log    logger.Logger
	http   *http.Server
}

// New creates the HTTP server on addr.
func New(addr string, eng *engine.Engine, log logger.Logger) *Server {
	s := &Server{
		engine: eng,
		log:    log.WithField("component", "server"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", s.handleList)
			r.Post("/", s.handleStart)
			r.Get("/{id}", s.handleStatus)
			r.Delete("/{id}", s.handleDelete)
			r.Get("/{id}/download", s.handleDownload)
			r.Post("/{id}/restore", s.handleRestore)
		})
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, used by tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// ListenAndServe blocks serving HTTP until Shutdown.
func (s *Server) ListenAndServe() error {
	s.log.WithField("addr", s.http.Addr).Info("http server listening")
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func credential(r *http.Request) string {
	return r.Header.Get("Authorization")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.engine.ListSnapshots(r.Context(), credential(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Listings omit payloads; download is the payload surface.
	out := make([]types.Snapshot, len(snaps))
	for i, snap := range snaps {
		c := snap
		c.Payload = nil
		out[i] = c
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": out})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), credential(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type startRequest struct {
	Kind    string `json:"kind"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperrors.New(apperrors.ErrorTypeValidation, apperrors.ServiceNone, "invalid request body"))
		return
	}

	kind := types.SnapshotKind(req.Kind)
	var (
		snap *types.Snapshot
		err  error
	)
	if req.Confirm {
		snap, err = s.engine.ConfirmAndStartSnapshot(r.Context(), credential(r), kind)
	} else {
		snap, err = s.engine.StartSnapshot(r.Context(), credential(r), kind)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.GetSnapshotStatus(r.Context(), credential(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	snap = snap.Clone()
	snap.Payload = nil
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteSnapshot(r.Context(), credential(r), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "snapshot deleted"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.DownloadSnapshot(r.Context(), credential(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type restoreRequest struct {
	SolverKey string   `json:"solver_key"`
	Proxies   []string `json:"proxies"`
}

func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	report, err := s.engine.Restore(r.Context(), credential(r), chi.URLParam(r, "id"), req.SolverKey, req.Proxies)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// errorBody is the wire shape of every error response.
type errorBody struct {
	Error  string                       `json:"error"`
	Type   string                       `json:"type"`
	Oldest *apperrors.EvictionCandidate `json:"oldest_snapshot,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error(), Type: string(apperrors.TypeOf(err))}

	status := http.StatusInternalServerError
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeUnauthenticated:
		status = http.StatusUnauthorized
	case apperrors.ErrorTypeNotFound:
		status = http.StatusNotFound
	case apperrors.ErrorTypeValidation, apperrors.ErrorTypeSolverMisconfigured, apperrors.ErrorTypeNoProxies:
		status = http.StatusBadRequest
	case apperrors.ErrorTypeLimitReached:
		status = http.StatusConflict
		var ee *apperrors.EngineError
		if errors.As(err, &ee) {
			body.Oldest = ee.Oldest
		}
	case apperrors.ErrorTypeExternalService, apperrors.ErrorTypeStore:
		status = http.StatusBadGateway
	case apperrors.ErrorTypeTimeout:
		status = http.StatusGatewayTimeout
	}

	if status >= 500 {
		s.log.Error("request failed", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
