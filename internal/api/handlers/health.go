// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/autobrr/scour/internal/orchestrator"
)

// HealthHandler serves liveness plus per-instance health state.
type HealthHandler struct {
	orchestrator *orchestrator.Orchestrator
}

func NewHealthHandler(o *orchestrator.Orchestrator) *HealthHandler {
	return &HealthHandler{orchestrator: o}
}

func (h *HealthHandler) Routes(r chi.Router) {
	r.Get("/health", h.Instances)
	r.Post("/health/{instanceID}/reset", h.Reset)
}

func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HealthHandler) Instances(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.orchestrator.Health())
}

func (h *HealthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "instanceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid instance id")
		return
	}
	h.orchestrator.ResetHealth(id)
	respondJSON(w, http.StatusNoContent, nil)
}
