/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package api exposes the editing session over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/friendsincode/looplearn/internal/editor"
	"github.com/friendsincode/looplearn/internal/events"
	"github.com/friendsincode/looplearn/internal/library"
	"github.com/friendsincode/looplearn/internal/logbuffer"
	"github.com/friendsincode/looplearn/internal/models"
	"github.com/friendsincode/looplearn/internal/playback"
	"github.com/friendsincode/looplearn/internal/player"
	"github.com/friendsincode/looplearn/internal/version"
)

// API handles control requests for one editing session.
type API struct {
	session *editor.Session
	bus     *events.Bus
	checker library.Checker
	logger  zerolog.Logger

	logBuffer *logbuffer.Buffer
}

// New constructs the API. checker may be nil.
func New(session *editor.Session, bus *events.Bus, checker library.Checker, logger zerolog.Logger) *API {
	return &API{
		session: session,
		bus:     bus,
		checker: checker,
		logger:  logger.With().Str("component", "api").Logger(),
	}
}

// Routes mounts the API under /api/v1.
func (a *API) Routes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", a.handleHealth)

		r.Route("/list", func(r chi.Router) {
			r.Get("/", a.handleListGet)
			r.Put("/", a.handleListReplace)
			r.Post("/new", a.handleListNew)
			r.Post("/video", a.handleListVideo)
		})

		r.Route("/loops", func(r chi.Router) {
			r.Post("/", a.handleLoopsAdd)
			r.Post("/commit", a.handleLoopsCommit)
			r.Post("/mark/start", a.handleMarkStart)
			r.Post("/mark/end", a.handleMarkEnd)
			r.Post("/reorder", a.handleLoopsReorder)
			r.Patch("/{index}", a.handleLoopsUpdate)
			r.Delete("/{index}", a.handleLoopsDelete)
		})

		r.Route("/selection", func(r chi.Router) {
			r.Get("/", a.handleSelectionGet)
			r.Delete("/", a.handleSelectionClear)
			r.Post("/{index}/toggle", a.handleSelectionToggle)
		})

		r.Route("/playback", func(r chi.Router) {
			r.Get("/", a.handlePlaybackGet)
			r.Post("/single", a.handlePlaySingle)
			r.Post("/sequence", a.handlePlaySequence)
			r.Post("/stop", a.handlePlaybackStop)
			r.Post("/adjust", a.handlePlaybackAdjust)
			r.Post("/skip", a.handlePlaybackSkip)
			r.Put("/rate", a.handlePlaybackRate)
			r.Put("/skip-step", a.handleSkipStep)
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/", a.handleLibraryList)
			r.Post("/load", a.handleLibraryLoad)
			r.Post("/save", a.handleLibrarySave)
		})

		r.Get("/events", a.handleEvents)
		r.Get("/logs", a.handleLogs)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": version.Version,
		"mode":    a.session.Scheduler().State().Mode,
	}
	if a.checker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.checker.CheckAccess(ctx); err != nil {
			resp["status"] = "degraded"
			resp["library"] = errorCode(err)
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["library"] = "ok"
	}
	writeJSON(w, http.StatusOK, resp)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}

func indexParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_index")
		return 0, false
	}
	return idx, true
}

// errorStatus maps domain errors onto HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidRange):
		return http.StatusUnprocessableEntity, "invalid_range"
	case errors.Is(err, models.ErrIndexOutOfRange):
		return http.StatusNotFound, "index_out_of_range"
	case errors.Is(err, models.ErrInvalidVideo):
		return http.StatusUnprocessableEntity, "invalid_video"
	case errors.Is(err, playback.ErrEmptyQueue):
		return http.StatusConflict, "empty_queue"
	case errors.Is(err, playback.ErrInvalidRate), errors.Is(err, playback.ErrInvalidSkipStep):
		return http.StatusUnprocessableEntity, "invalid_rate"
	case errors.Is(err, library.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, library.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, library.ErrCorrupt):
		return http.StatusUnprocessableEntity, "corrupt"
	case errors.Is(err, player.ErrNotReady):
		return http.StatusServiceUnavailable, "player_not_ready"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func errorCode(err error) string {
	_, code := errorStatus(err)
	return code
}

func (a *API) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Str("code", code).Msg("request failed")
	} else {
		a.logger.Debug().Err(err).Str("path", r.URL.Path).Str("code", code).Msg("request rejected")
	}
	writeError(w, status, code)
}

func parseEventTypes(raw string) []events.EventType {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]events.EventType, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, events.EventType(part))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
