package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"transitrisk/internal/domain"
	"transitrisk/internal/knowledge"
	"transitrisk/internal/learner"
	"transitrisk/internal/predict"
	"transitrisk/internal/store"
)

const (
	defaultIncidentLimit = 50
	maxIncidentLimit     = 500
)

type Broadcaster interface {
	BroadcastIncident(inc domain.HistoricalIncident)
}

type HTTPHandler struct {
	kb          *knowledge.KnowledgeBase
	broadcaster Broadcaster
	logger      *slog.Logger
}

func NewHTTPHandler(kb *knowledge.KnowledgeBase, broadcaster Broadcaster, logger *slog.Logger) *HTTPHandler {
	return &HTTPHandler{kb: kb, broadcaster: broadcaster, logger: logger.With("component", "http")}
}

type PredictResponse struct {
	TransportType domain.TransportType `json:"transportType"`
	Route         string               `json:"route"`
	Location      string               `json:"location,omitempty"`
	At            time.Time            `json:"at"`
	domain.DelayPrediction
}

func (h *HTTPHandler) Predict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tt, err := parseTransport(q.Get("transport"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	route := strings.TrimSpace(q.Get("route"))
	location := strings.TrimSpace(q.Get("location"))
	if route == "" && location == "" {
		respondError(w, http.StatusBadRequest, "route or location is required")
		return
	}
	at, err := parseAt(q.Get("at"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	p := h.kb.Predict(r.Context(), tt, route, location, at)
	respondJSON(w, http.StatusOK, PredictResponse{
		TransportType:   tt,
		Route:           route,
		Location:        location,
		At:              p.Context.Timestamp,
		DelayPrediction: p,
	})
}

type RoutePredictResponse struct {
	TransportType domain.TransportType       `json:"transportType"`
	Line          string                     `json:"line"`
	Stations      []domain.StationPrediction `json:"stations"`
}

func (h *HTTPHandler) PredictRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tt, err := parseTransport(q.Get("transport"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	route := q.Get("route")
	if len(knowledge.SplitStations(route)) == 0 {
		respondError(w, http.StatusBadRequest, "route must list stations separated by \""+domain.StationSeparator+"\"")
		return
	}
	at, err := parseAt(q.Get("at"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	svc := domain.RouteService{TransportType: tt, Line: strings.TrimSpace(q.Get("line")), Route: route}
	stations := h.kb.PredictRouteDelays(r.Context(), svc, at)
	line := svc.Line
	if line == "" {
		line = route
	}
	respondJSON(w, http.StatusOK, RoutePredictResponse{TransportType: tt, Line: line, Stations: stations})
}

type IncidentsResponse struct {
	Incidents []domain.HistoricalIncident `json:"incidents"`
	Count     int                         `json:"count"`
	Total     int                         `json:"total"`
}

// ListIncidents returns incidents of one transport type, newest first, optionally narrowed with the
// same route and location containment rules the matcher uses.
func (h *HTTPHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tt, err := parseTransport(q.Get("transport"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit := defaultIncidentLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = min(n, maxIncidentLimit)
	}
	route := strings.TrimSpace(q.Get("route"))
	location := strings.TrimSpace(q.Get("location"))

	all := h.kb.Incidents(tt, 0)
	result := make([]domain.HistoricalIncident, 0, min(limit, len(all)))
	for _, inc := range all {
		if route != "" && !predict.RouteMatches(inc.Route, route) {
			continue
		}
		if location != "" && !predict.LocationMatches(inc.Location, location) {
			continue
		}
		result = append(result, inc)
		if len(result) == limit {
			break
		}
	}

	respondJSON(w, http.StatusOK, IncidentsResponse{Incidents: result, Count: len(result), Total: len(all)})
}

// ReportRequest is a delay signal whose severity may be left out.
type ReportRequest struct {
	domain.DelaySignal
	Severity *domain.Severity `json:"severity,omitempty"`
}

// ReportIncident records an operator supplied delay signal the same way the learner records feed
// signals. A missing severity is derived from the duration.
func (h *HTTPHandler) ReportIncident(w http.ResponseWriter, r *http.Request) {
	var req ReportRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid delay signal: "+err.Error())
		return
	}
	sig := req.DelaySignal
	if req.Severity != nil {
		sig.Severity = *req.Severity
	} else {
		sig.Severity = domain.SeverityForDuration(sig.Duration.Duration())
	}
	if strings.TrimSpace(sig.Route) == "" {
		respondError(w, http.StatusBadRequest, "route is required")
		return
	}

	inc := learner.Materialize(r.Context(), h.kb, sig, time.Now())
	if err := h.kb.Record(r.Context(), inc); err != nil {
		if errors.Is(err, store.ErrInvalidIncident) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("reported incident not persisted", "incident_id", inc.ID, "error", err)
	}
	if h.broadcaster != nil {
		h.broadcaster.BroadcastIncident(inc)
	}
	respondJSON(w, http.StatusCreated, inc)
}

func (h *HTTPHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.kb.Reset(r.Context()); err != nil {
		h.logger.Error("reset not persisted", "error", err)
		respondError(w, http.StatusInternalServerError, "history cleared in memory but not persisted")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"reset": true})
}

func parseTransport(v string) (domain.TransportType, error) {
	if v == "" {
		return 0, errors.New("missing transport parameter: must be road, train or bus")
	}
	tt, err := domain.ParseTransportType(v)
	if err != nil {
		return 0, errors.New("invalid transport parameter: must be road, train or bus")
	}
	return tt, nil
}

// parseAt accepts RFC 3339. Empty means now.
func parseAt(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.New("invalid at parameter: expected RFC 3339 time")
	}
	return t, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
