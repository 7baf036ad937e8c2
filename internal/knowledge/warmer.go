package knowledge

import (
	"context"
	"log/slog"
	"time"

	"transitrisk/internal/domain"
)

// Warmer fills the pattern cache for every station of a network ahead of the first queries.
type Warmer struct {
	kb     *KnowledgeBase
	lines  []domain.Line
	logger *slog.Logger
}

func NewWarmer(kb *KnowledgeBase, lines []domain.Line, logger *slog.Logger) *Warmer {
	return &Warmer{
		kb:     kb,
		lines:  lines,
		logger: logger.With("component", "cache_warmer"),
	}
}

func (w *Warmer) WarmAll(ctx context.Context, at time.Time) int {
	start := time.Now()
	w.logger.Info("starting cache warming", "lines", len(w.lines))

	warmed := 0
	for _, line := range w.lines {
		if ctx.Err() != nil {
			break
		}
		results := w.kb.PredictRouteDelays(ctx, domain.RouteService{
			TransportType: line.TransportType,
			Line:          line.Name,
			Route:         line.Route(),
		}, at)
		warmed += len(results)
	}

	w.logger.Info("cache warming completed",
		"stations_warmed", warmed,
		"cache_entries", w.kb.cache.Len(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return warmed
}
