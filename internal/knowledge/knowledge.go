package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"transitrisk/internal/cache"
	"transitrisk/internal/domain"
	"transitrisk/internal/predict"
	"transitrisk/internal/stats"
	"transitrisk/internal/store"
)

// Observer receives prediction and ingestion events, typically a metrics collector.
type Observer interface {
	ObservePrediction(tt domain.TransportType, probability float64, elapsed time.Duration)
	ObserveIncident(inc domain.HistoricalIncident, invalidated int)
	ObservePersist(op string, err error)
}

type Options struct {
	Store    *store.IncidentStore
	Cache    *cache.PatternCache
	Gatherer *predict.Gatherer
	Matcher  predict.Matcher
	Model    predict.Model
	Observer Observer
	Now      func() time.Time
}

// KnowledgeBase answers delay predictions from the incident history. Writes to the store and the
// pattern cache happen together under one lock so readers never see a half invalidated cache.
type KnowledgeBase struct {
	mu       sync.RWMutex
	store    *store.IncidentStore
	cache    *cache.PatternCache
	gatherer *predict.Gatherer
	matcher  predict.Matcher
	model    predict.Model
	observer Observer
	now      func() time.Time

	diagMu         sync.RWMutex
	learningActive bool
	lastUpdate     time.Time
	lastPrediction time.Time
	statistics     *stats.Statistics

	logger *slog.Logger
}

type Diagnostics struct {
	IncidentCount  int               `json:"incidentCount"`
	LearningActive bool              `json:"learningActive"`
	LastUpdate     time.Time         `json:"lastUpdate"`
	LastPrediction *time.Time        `json:"lastPrediction,omitempty"`
	Cache          cache.Stats       `json:"cache"`
	Statistics     *stats.Statistics `json:"statistics,omitempty"`
}

func New(opts Options, logger *slog.Logger) *KnowledgeBase {
	if opts.Matcher.Threshold == 0 {
		opts.Matcher = predict.NewMatcher()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &KnowledgeBase{
		store:    opts.Store,
		cache:    opts.Cache,
		gatherer: opts.Gatherer,
		matcher:  opts.Matcher,
		model:    opts.Model,
		observer: opts.Observer,
		now:      opts.Now,
		logger:   logger.With("component", "knowledge_base"),
	}
}

// Open loads the incident history, seeding a synthetic corpus when nothing usable is persisted.
// The returned error is informational: the knowledge base is ready either way.
func (kb *KnowledgeBase) Open(ctx context.Context) error {
	kb.mu.Lock()
	seeded, err := kb.store.Load(ctx)
	kb.cache.Clear()
	kb.mu.Unlock()

	kb.observePersist("load", err)
	kb.touch()
	kb.logger.Info("knowledge base opened", "incidents", kb.store.Count(), "seeded", seeded)
	if err != nil {
		return fmt.Errorf("load incidents: %w", err)
	}
	return nil
}

// Predict never fails: lookup problems degrade the context and an empty history yields the
// baseline probability.
func (kb *KnowledgeBase) Predict(ctx context.Context, tt domain.TransportType, route, location string, at time.Time) domain.DelayPrediction {
	start := time.Now()
	if at.IsZero() {
		at = kb.now()
	}

	pc := kb.gatherer.Gather(ctx, location, at)

	kb.mu.RLock()
	key := cache.NewPatternKey(tt, route, location, pc)
	filtered := kb.cache.GetOrCompute(key, func() []domain.HistoricalIncident {
		return kb.matcher.Filter(kb.store.Query(tt), tt, route, location, pc)
	})
	kb.mu.RUnlock()

	p := kb.model.Score(filtered, tt, pc)

	kb.diagMu.Lock()
	kb.lastPrediction = kb.now()
	kb.diagMu.Unlock()

	if kb.observer != nil {
		kb.observer.ObservePrediction(tt, p.Probability, time.Since(start))
	}
	kb.logger.Debug("prediction",
		"transport", tt.String(),
		"route", route,
		"location", location,
		"matched", len(filtered),
		"probability", p.Probability,
		"confidence", p.Confidence,
	)
	return p
}

// SplitStations breaks a route string on the station separator, trimming names and dropping
// blanks and repeats.
func SplitStations(route string) []string {
	seen := make(map[string]struct{})
	var stations []string
	for _, part := range strings.Split(route, domain.StationSeparator) {
		name := strings.TrimSpace(part)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		stations = append(stations, name)
	}
	return stations
}

// PredictRouteDelays predicts every station of the service concurrently and returns the results
// in route order.
func (kb *KnowledgeBase) PredictRouteDelays(ctx context.Context, svc domain.RouteService, at time.Time) []domain.StationPrediction {
	stations := SplitStations(svc.Route)
	line := svc.Line
	if line == "" {
		line = svc.Route
	}
	if at.IsZero() {
		at = kb.now()
	}

	results := make([]domain.StationPrediction, len(stations))
	var wg sync.WaitGroup
	for i, station := range stations {
		wg.Add(1)
		go func(i int, station string) {
			defer wg.Done()
			results[i] = domain.StationPrediction{
				Station:    station,
				Prediction: kb.Predict(ctx, svc.TransportType, line, station, at),
			}
		}(i, station)
	}
	wg.Wait()
	return results
}

// Record appends one incident and drops the cache entries it affects, then persists the history.
// A failed save keeps the incident in memory and is returned.
func (kb *KnowledgeBase) Record(ctx context.Context, inc domain.HistoricalIncident) error {
	kb.mu.Lock()
	if err := kb.store.Append(inc); err != nil {
		kb.mu.Unlock()
		return err
	}
	invalidated := kb.cache.InvalidateFor(inc)
	kb.mu.Unlock()

	kb.touch()
	if kb.observer != nil {
		kb.observer.ObserveIncident(inc, invalidated)
	}

	err := kb.store.Save(ctx)
	kb.observePersist("save", err)
	return err
}

// Reset clears the history and the cache and persists the empty set.
func (kb *KnowledgeBase) Reset(ctx context.Context) error {
	kb.mu.Lock()
	kb.store.Reset()
	kb.cache.Clear()
	kb.mu.Unlock()

	kb.diagMu.Lock()
	kb.statistics = nil
	kb.diagMu.Unlock()
	kb.touch()

	err := kb.store.Save(ctx)
	kb.observePersist("save", err)
	kb.logger.Info("knowledge base reset")
	return err
}

// Context gathers a prediction context without scoring, for materializing incoming signals.
func (kb *KnowledgeBase) Context(ctx context.Context, location string, at time.Time) domain.PredictionContext {
	return kb.gatherer.Gather(ctx, location, at)
}

func (kb *KnowledgeBase) Incidents(tt domain.TransportType, limit int) []domain.HistoricalIncident {
	return kb.store.Recent(tt, limit)
}

func (kb *KnowledgeBase) AllIncidents() []domain.HistoricalIncident {
	return kb.store.All()
}

func (kb *KnowledgeBase) SetLearningActive(active bool) {
	kb.diagMu.Lock()
	defer kb.diagMu.Unlock()
	kb.learningActive = active
}

func (kb *KnowledgeBase) SetStatistics(s *stats.Statistics) {
	kb.diagMu.Lock()
	defer kb.diagMu.Unlock()
	kb.statistics = s
}

func (kb *KnowledgeBase) Diagnostics() Diagnostics {
	kb.diagMu.RLock()
	defer kb.diagMu.RUnlock()

	d := Diagnostics{
		IncidentCount:  kb.store.Count(),
		LearningActive: kb.learningActive,
		LastUpdate:     kb.lastUpdate,
		Cache:          kb.cache.Stats(),
		Statistics:     kb.statistics,
	}
	if !kb.lastPrediction.IsZero() {
		lp := kb.lastPrediction
		d.LastPrediction = &lp
	}
	return d
}

func (kb *KnowledgeBase) CacheStats() cache.Stats {
	return kb.cache.Stats()
}

func (kb *KnowledgeBase) touch() {
	kb.diagMu.Lock()
	kb.lastUpdate = kb.now()
	kb.diagMu.Unlock()
}

func (kb *KnowledgeBase) observePersist(op string, err error) {
	if kb.observer != nil {
		kb.observer.ObservePersist(op, err)
	}
}
