package learner

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"transitrisk/internal/domain"
	"transitrisk/internal/feed"
	"transitrisk/internal/knowledge"
	"transitrisk/internal/stats"
	"transitrisk/internal/store"
)

type Broadcaster interface {
	BroadcastIncident(inc domain.HistoricalIncident)
}

type Observer interface {
	ObserveStep(result StepResult)
	ObserveStatistics(s *stats.Statistics)
}

type Options struct {
	Interval               time.Duration
	MaterializeProbability float64
	Rand                   *rand.Rand
	Now                    func() time.Time
}

type StepResult struct {
	Fetched      int
	Recorded     int
	Materialized bool
	FetchErr     error
}

// Scheduler periodically pulls delay signals, records some of them as incidents and refreshes
// the diagnostic statistics.
type Scheduler struct {
	kb          *knowledge.KnowledgeBase
	source      feed.Source
	broadcaster Broadcaster
	observer    Observer
	opts        Options
	logger      *slog.Logger

	rngMu sync.Mutex

	ready   bool
	readyMu sync.RWMutex
}

func New(kb *knowledge.KnowledgeBase, source feed.Source, broadcaster Broadcaster, observer Observer, opts Options, logger *slog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = time.Hour
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>3))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Scheduler{
		kb:          kb,
		source:      source,
		broadcaster: broadcaster,
		observer:    observer,
		opts:        opts,
		logger:      logger.With("component", "learner", "source", source.Name()),
	}
}

// Run refreshes statistics immediately and then steps once per interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.kb.SetLearningActive(true)
	defer s.kb.SetLearningActive(false)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	s.RefreshStatistics(s.opts.Now())
	s.setReady(true)
	s.logger.Info("learner started", "interval", s.opts.Interval, "materialize_probability", s.opts.MaterializeProbability)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("learner stopped")
			return
		case <-ticker.C:
			s.Step(ctx, s.opts.Now())
		}
	}
}

// Step runs one learning tick synchronously.
func (s *Scheduler) Step(ctx context.Context, now time.Time) StepResult {
	var result StepResult

	signals, err := s.source.Fetch(ctx)
	result.Fetched = len(signals)
	if err != nil {
		result.FetchErr = err
		s.logger.Error("failed to fetch delay signals", "error", err)
	}

	if len(signals) > 0 && s.roll() < s.opts.MaterializeProbability {
		result.Materialized = true
		for _, sig := range signals {
			inc := Materialize(ctx, s.kb, sig, now)
			if err := s.kb.Record(ctx, inc); err != nil {
				s.logger.Warn("failed to record incident", "route", inc.Route, "error", err)
				if errors.Is(err, store.ErrInvalidIncident) {
					continue
				}
			}
			result.Recorded++
			if s.broadcaster != nil {
				s.broadcaster.BroadcastIncident(inc)
			}
		}
	}

	s.RefreshStatistics(now)
	if s.observer != nil {
		s.observer.ObserveStep(result)
	}

	s.logger.Debug("learning step completed",
		"fetched", result.Fetched,
		"materialized", result.Materialized,
		"recorded", result.Recorded,
	)
	return result
}

func (s *Scheduler) RefreshStatistics(now time.Time) *stats.Statistics {
	st := stats.Compute(s.kb.AllIncidents(), now)
	s.kb.SetStatistics(st)
	if s.observer != nil {
		s.observer.ObserveStatistics(st)
	}
	return st
}

// Materialize turns a signal into an incident stamped with the conditions at its location. The
// signal's own observation time wins over now.
func Materialize(ctx context.Context, kb *knowledge.KnowledgeBase, sig domain.DelaySignal, now time.Time) domain.HistoricalIncident {
	at := now
	if !sig.ObservedAt.IsZero() {
		at = sig.ObservedAt
	}
	pc := kb.Context(ctx, sig.Location, at)

	desc := sig.Description
	if desc == "" {
		desc = sig.Reason.Label() + " on " + sig.Route
	}

	return domain.NewIncident(at, domain.HistoricalIncident{
		TransportType: sig.TransportType,
		Route:         sig.Route,
		Location:      sig.Location,
		Duration:      sig.Duration,
		Reason:        sig.Reason,
		Severity:      sig.Severity,
		Weather:       pc.Weather,
		PassengerLoad: pc.PassengerLoad,
		IsHoliday:     pc.IsHoliday,
		Description:   desc,
	})
}

func (s *Scheduler) roll() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.opts.Rand.Float64()
}

func (s *Scheduler) IsReady() bool {
	s.readyMu.RLock()
	defer s.readyMu.RUnlock()
	return s.ready
}

func (s *Scheduler) setReady(ready bool) {
	s.readyMu.Lock()
	defer s.readyMu.Unlock()
	s.ready = ready
}
