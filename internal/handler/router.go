package handler

import (
	"net/http"
)

type Routes struct {
	HTTP        *HTTPHandler
	WS          *WSHandler
	Health      *HealthHandler
	Diagnostics *DiagnosticsHandler
	Stats       *ServerStats
	// Metrics is mounted at /metrics when set.
	Metrics     http.Handler
	RateLimit   func(http.Handler) http.Handler
	CORSOrigins []string
}

// NewRouter mounts the API. Rate limiting and compression apply to /v1 JSON endpoints only; the
// websocket, probes and metrics bypass them.
func NewRouter(rt Routes) http.Handler {
	api := func(fn http.HandlerFunc) http.Handler {
		var h http.Handler = GzipMiddleware(fn)
		if rt.RateLimit != nil {
			h = rt.RateLimit(h)
		}
		return h
	}

	mux := http.NewServeMux()

	mux.Handle("GET /v1/predict", api(rt.HTTP.Predict))
	mux.Handle("GET /v1/routes/predict", api(rt.HTTP.PredictRoute))
	mux.Handle("GET /v1/incidents", api(rt.HTTP.ListIncidents))
	mux.Handle("POST /v1/incidents", api(rt.HTTP.ReportIncident))
	mux.Handle("GET /v1/diagnostics", api(rt.Diagnostics.GetDiagnostics))
	mux.Handle("POST /v1/admin/reset", api(rt.HTTP.Reset))
	if rt.WS != nil {
		mux.HandleFunc("/v1/ws", rt.WS.ServeWS)
	}

	mux.HandleFunc("GET /healthz", rt.Health.Healthz)
	mux.HandleFunc("GET /readyz", rt.Health.Readyz)
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}

	origins := rt.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return rt.Stats.CountRequests(CORSMiddleware(origins)(mux))
}
