// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/scour/internal/definitions"
	"github.com/autobrr/scour/internal/domain"
)

// DefinitionsHandler exposes the registry for "add source" pickers.
type DefinitionsHandler struct {
	registry *definitions.Registry
}

func NewDefinitionsHandler(registry *definitions.Registry) *DefinitionsHandler {
	return &DefinitionsHandler{registry: registry}
}

func (h *DefinitionsHandler) Routes(r chi.Router) {
	r.Get("/definitions", h.List)
	r.Get("/definitions/{id}", h.Get)
}

func (h *DefinitionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := definitions.Filter{
		Protocol:   domain.Protocol(q.Get("protocol")),
		Access:     domain.AccessTier(q.Get("access")),
		AuthMethod: domain.AuthMethod(q.Get("auth")),
		Provenance: domain.Provenance(q.Get("provenance")),
		Search:     q.Get("search"),
	}
	if v := q.Get("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}
	if q.Get("validOnly") == "true" {
		filter.ValidOnly = true
	}

	respondJSON(w, http.StatusOK, h.registry.Query(filter))
}

func (h *DefinitionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	record, ok := h.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		respondError(w, http.StatusNotFound, "definition not found")
		return
	}
	respondJSON(w, http.StatusOK, record)
}
