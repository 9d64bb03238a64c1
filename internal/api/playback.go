/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
)

func (a *API) handlePlaybackGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}

func (a *API) handlePlaySingle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Index  int  `json:"index"`
		Repeat bool `json:"repeat"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.PlaySingle(r.Context(), req.Index, req.Repeat); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}

func (a *API) handlePlaySequence(w http.ResponseWriter, r *http.Request) {
	if err := a.session.PlaySequence(r.Context()); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}

func (a *API) handlePlaybackStop(w http.ResponseWriter, r *http.Request) {
	a.session.Stop(r.Context())
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}

func (a *API) handlePlaybackAdjust(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta float64 `json:"delta"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.Scheduler().AdjustTime(r.Context(), req.Delta); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaybackSkip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Forward bool `json:"forward"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.Scheduler().Skip(r.Context(), req.Forward); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handlePlaybackRate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.Scheduler().SetPlaybackRate(r.Context(), req.Rate); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}

func (a *API) handleSkipStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.Scheduler().SetSkipStep(req.Seconds); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.Scheduler().State())
}
