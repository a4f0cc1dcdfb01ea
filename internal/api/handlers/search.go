// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/scour/internal/domain"
	"github.com/autobrr/scour/internal/orchestrator"
)

// SearchHandler runs search rounds. Instances arrive in the request body:
// this service does not own instance configuration.
type SearchHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewSearchHandler(o *orchestrator.Orchestrator) *SearchHandler {
	return &SearchHandler{orchestrator: o}
}

func (h *SearchHandler) Routes(r chi.Router) {
	r.Post("/search", h.Search)
	r.Post("/instances/test", h.TestInstance)
}

type searchRequest struct {
	domain.SearchCriteria
	Instances []*domain.SourceInstance `json:"instances"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Instances) == 0 {
		respondError(w, http.StatusBadRequest, "at least one instance is required")
		return
	}

	resp, err := h.orchestrator.Search(r.Context(), req.SearchCriteria, req.Instances)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

type testInstanceRequest struct {
	Instance *domain.SourceInstance `json:"instance"`
}

func (h *SearchHandler) TestInstance(w http.ResponseWriter, r *http.Request) {
	var req testInstanceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Instance == nil {
		respondError(w, http.StatusBadRequest, "instance is required")
		return
	}

	if err := h.orchestrator.TestInstance(r.Context(), req.Instance); err != nil {
		log.Debug().Err(err).Str("definition", req.Instance.DefinitionID).Msg("Instance test failed")
		respondJSON(w, http.StatusOK, map[string]any{"ok": false, "error": err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}
