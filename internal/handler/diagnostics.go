package handler

import (
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"transitrisk/internal/knowledge"
)

// ServerStats tracks process wide request counters.
type ServerStats struct {
	startTime        time.Time
	requestCount     atomic.Int64
	wsConnections    atomic.Int64
	wsMessagesIn     atomic.Int64
	wsMessagesOut    atomic.Int64
	rateLimitBlocked atomic.Int64
}

func NewServerStats() *ServerStats {
	return &ServerStats{startTime: time.Now()}
}

func (s *ServerStats) IncRequests()         { s.requestCount.Add(1) }
func (s *ServerStats) IncWSConnections()    { s.wsConnections.Add(1) }
func (s *ServerStats) DecWSConnections()    { s.wsConnections.Add(-1) }
func (s *ServerStats) IncWSMessagesIn()     { s.wsMessagesIn.Add(1) }
func (s *ServerStats) IncWSMessagesOut()    { s.wsMessagesOut.Add(1) }
func (s *ServerStats) IncRateLimitBlocked() { s.rateLimitBlocked.Add(1) }

// CountRequests is middleware feeding the request counter.
func (s *ServerStats) CountRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.IncRequests()
		next.ServeHTTP(w, r)
	})
}

type DiagnosticsHandler struct {
	kb    *knowledge.KnowledgeBase
	stats *ServerStats
}

func NewDiagnosticsHandler(kb *knowledge.KnowledgeBase, stats *ServerStats) *DiagnosticsHandler {
	return &DiagnosticsHandler{kb: kb, stats: stats}
}

type DiagnosticsResponse struct {
	knowledge.Diagnostics
	CacheHitRatio float64                `json:"cacheHitRatio"`
	Server        ServerStatsResponse    `json:"server"`
	WebSocket     WebSocketStatsResponse `json:"websocket"`
	Go            GoStatsResponse        `json:"go"`
}

type ServerStatsResponse struct {
	Uptime        string    `json:"uptime"`
	UptimeSeconds float64   `json:"uptimeSeconds"`
	StartTime     time.Time `json:"startTime"`
	RequestCount  int64     `json:"requestCount"`
	RateLimited   int64     `json:"rateLimited"`
}

type WebSocketStatsResponse struct {
	Connections int64 `json:"connections"`
	MessagesIn  int64 `json:"messagesIn"`
	MessagesOut int64 `json:"messagesOut"`
}

type GoStatsResponse struct {
	Goroutines  int     `json:"goroutines"`
	HeapAlloc   uint64  `json:"heapAllocBytes"`
	HeapAllocMB float64 `json:"heapAllocMb"`
	NumGC       uint32  `json:"numGc"`
	GoVersion   string  `json:"goVersion"`
}

func (h *DiagnosticsHandler) GetDiagnostics(w http.ResponseWriter, r *http.Request) {
	d := h.kb.Diagnostics()
	uptime := time.Since(h.stats.startTime)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	var ratio float64
	if total := d.Cache.Hits + d.Cache.Misses; total > 0 {
		ratio = float64(d.Cache.Hits) / float64(total)
	}

	w.Header().Set("Cache-Control", "no-cache")
	respondJSON(w, http.StatusOK, DiagnosticsResponse{
		Diagnostics:   d,
		CacheHitRatio: ratio,
		Server: ServerStatsResponse{
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			StartTime:     h.stats.startTime,
			RequestCount:  h.stats.requestCount.Load(),
			RateLimited:   h.stats.rateLimitBlocked.Load(),
		},
		WebSocket: WebSocketStatsResponse{
			Connections: h.stats.wsConnections.Load(),
			MessagesIn:  h.stats.wsMessagesIn.Load(),
			MessagesOut: h.stats.wsMessagesOut.Load(),
		},
		Go: GoStatsResponse{
			Goroutines:  runtime.NumGoroutine(),
			HeapAlloc:   mem.HeapAlloc,
			HeapAllocMB: float64(mem.HeapAlloc) / 1024 / 1024,
			NumGC:       mem.NumGC,
			GoVersion:   runtime.Version(),
		},
	})
}
