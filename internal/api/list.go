/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/looplearn/internal/models"
)

func (a *API) handleListGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.session.View())
}

func (a *API) handleListReplace(w http.ResponseWriter, r *http.Request) {
	var list models.LoopList
	if !decodeJSON(w, r, &list) {
		return
	}
	if err := a.session.Replace(r.Context(), &list); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.View())
}

func (a *API) handleListNew(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title string `json:"title"`
	}
	// Body is optional.
	if r.ContentLength > 0 && !decodeJSON(w, r, &req) {
		return
	}
	list := a.session.NewList(r.Context(), req.Title)
	writeJSON(w, http.StatusCreated, list)
}

func (a *API) handleListVideo(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Video string `json:"video"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	id, err := a.session.LoadVideo(r.Context(), req.Video)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"videoId":  id,
		"videoUrl": models.VideoURL(id),
	})
}

func (a *API) handleLoopsAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StartTime float64 `json:"startTime"`
		EndTime   float64 `json:"endTime"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	loop, err := a.session.AddSegment(r.Context(), req.StartTime, req.EndTime)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loop)
}

func (a *API) handleLoopsCommit(w http.ResponseWriter, r *http.Request) {
	loop, err := a.session.CommitSegment(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, loop)
}

func (a *API) handleMarkStart(w http.ResponseWriter, r *http.Request) {
	marks, err := a.session.MarkStart(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marks)
}

func (a *API) handleMarkEnd(w http.ResponseWriter, r *http.Request) {
	marks, err := a.session.MarkEnd(r.Context())
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, marks)
}

func (a *API) handleLoopsUpdate(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	var patch models.LoopPatch
	if !decodeJSON(w, r, &patch) {
		return
	}
	loop, err := a.session.UpdateSegment(r.Context(), index, patch)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loop)
}

func (a *API) handleLoopsDelete(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	if _, err := a.session.DeleteSegment(r.Context(), index); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleLoopsReorder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From int `json:"from"`
		To   int `json:"to"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.session.Reorder(r.Context(), req.From, req.To); err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.session.List())
}

func (a *API) handleSelectionGet(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]int{"selected": a.session.Selection()})
}

func (a *API) handleSelectionToggle(w http.ResponseWriter, r *http.Request) {
	index, ok := indexParam(w, r)
	if !ok {
		return
	}
	selected, err := a.session.ToggleSelection(r.Context(), index)
	if err != nil {
		a.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"index":    index,
		"selected": selected,
	})
}

func (a *API) handleSelectionClear(w http.ResponseWriter, r *http.Request) {
	a.session.ClearSelection(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
