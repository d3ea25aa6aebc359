// Package httpapi exposes the HTTP surface: multipart job submission, job
// snapshots, the SSE progress stream, incremental sync, batch hydration and
// offline-mutation replay.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/cjbpq/ai-note-app/internal/common"
	"github.com/cjbpq/ai-note-app/internal/logging"
	"github.com/cjbpq/ai-note-app/internal/server/auth"
	"github.com/cjbpq/ai-note-app/internal/server/models"
	"github.com/cjbpq/ai-note-app/internal/server/notesvc"
	"github.com/cjbpq/ai-note-app/internal/server/pipeline"
	"github.com/cjbpq/ai-note-app/internal/server/prompts"
)

// ServerConfig carries the settings the HTTP layer needs.
type ServerConfig struct {
	JWTSecret    []byte
	PollInterval time.Duration
	MaxBodyBytes int64
}

// Server wires handlers to the pipeline gateway and the note service.
type Server struct {
	gateway  *pipeline.Gateway
	notes    *notesvc.Service
	registry prompts.Registry
	cfg      ServerConfig
	logger   logging.Logger
}

func NewServer(gateway *pipeline.Gateway, notes *notesvc.Service, registry prompts.Registry, cfg ServerConfig, logger logging.Logger) *Server {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxBodyBytes <= 0 {
		// 10 files x 10MB plus multipart overhead.
		cfg.MaxBodyBytes = 110 << 20
	}
	return &Server{
		gateway:  gateway,
		notes:    notes,
		registry: registry,
		cfg:      cfg,
		logger:   logger.With("module", "httpapi"),
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("POST /api/v1/jobs", s.auth(s.handleCreateJob))
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.auth(s.handleGetJob))
	mux.HandleFunc("GET /api/v1/jobs/{id}/stream", s.auth(s.handleStreamJob))

	mux.HandleFunc("GET /api/v1/notes/sync", s.auth(s.handleSync))
	mux.HandleFunc("POST /api/v1/notes/batch", s.auth(s.handleBatchGet))
	mux.HandleFunc("POST /api/v1/notes/mutations", s.auth(s.handleMutations))

	mux.HandleFunc("GET /api/v1/notes", s.auth(s.handleListNotes))
	mux.HandleFunc("POST /api/v1/notes", s.auth(s.handleCreateNote))
	mux.HandleFunc("GET /api/v1/notes/search", s.auth(s.handleSearchNotes))
	mux.HandleFunc("GET /api/v1/notes/{id}", s.auth(s.handleGetNote))
	mux.HandleFunc("PUT /api/v1/notes/{id}", s.auth(s.handleUpdateNote))
	mux.HandleFunc("DELETE /api/v1/notes/{id}", s.auth(s.handleDeleteNote))
	mux.HandleFunc("POST /api/v1/notes/{id}/favorite", s.auth(s.handleToggleFavorite))

	mux.HandleFunc("POST /api/v1/prompts/reload", s.auth(s.handleReloadPrompts))

	return mux
}

type ownerKeyType struct{}

var ownerKey ownerKeyType

// auth resolves the caller identity: a Bearer token maps to a user owner,
// a bare X-Device-ID header to a device-only owner. Requests with neither
// are rejected.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, err := s.resolveOwner(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	}
}

func (s *Server) resolveOwner(r *http.Request) (models.Owner, error) {
	deviceID := r.Header.Get(common.DeviceIDHeaderName)

	header := r.Header.Get(common.AuthorizationHeaderName)
	if header == "" {
		if deviceID == "" {
			return models.Owner{}, errors.New("missing credentials")
		}
		return models.Owner{DeviceID: deviceID}, nil
	}

	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return models.Owner{}, errors.New("invalid authorization header format")
	}
	userID, err := auth.GetUserIDFromToken(token, s.cfg.JWTSecret)
	if err != nil {
		return models.Owner{}, common.ErrInvalidToken
	}
	if deviceID == "" {
		deviceID = userID
	}
	return models.Owner{UserID: userID, DeviceID: deviceID}, nil
}

func callerOwner(r *http.Request) models.Owner {
	owner, _ := r.Context().Value(ownerKey).(models.Owner)
	return owner
}

// authorizeJob distinguishes authorization failures from not-found: jobs are
// addressed by id, so leaking existence is acceptable and explicit errors
// make the client's life easier.
func authorizeJob(job *models.Job, owner models.Owner) error {
	if job.UserID != nil {
		if *job.UserID != owner.UserID {
			return common.ErrorUnauthorized
		}
		return nil
	}
	if job.DeviceID != owner.DeviceID {
		return common.ErrorUnauthorized
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// mapError translates service errors to HTTP status codes.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, common.ErrQuotaExceeded):
		writeError(w, http.StatusTooManyRequests, "quota_exceeded", err.Error())
	case errors.Is(err, common.ErrQueueBusy):
		writeError(w, http.StatusServiceUnavailable, "queue_busy", err.Error())
	case errors.Is(err, common.ErrorNotFound):
		writeError(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, common.ErrorUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", "access denied")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}
