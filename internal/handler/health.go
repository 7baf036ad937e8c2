package handler

import (
	"net/http"
	"time"

	"transitrisk/internal/knowledge"
)

// HealthHandler reports readiness once the history has been opened.
type HealthHandler struct {
	kb    *knowledge.KnowledgeBase
	ready func() bool
}

func NewHealthHandler(kb *knowledge.KnowledgeBase, ready func() bool) *HealthHandler {
	return &HealthHandler{kb: kb, ready: ready}
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready          bool      `json:"ready"`
	IncidentCount  int       `json:"incidentCount"`
	LearningActive bool      `json:"learningActive"`
	ServerTime     time.Time `json:"serverTime"`
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ready := h.ready()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	d := h.kb.Diagnostics()
	respondJSON(w, status, ReadyResponse{
		Ready:          ready,
		IncidentCount:  d.IncidentCount,
		LearningActive: d.LearningActive,
		ServerTime:     time.Now(),
	})
}
