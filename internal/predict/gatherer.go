package predict

import (
	"context"
	"log/slog"
	"time"

	"transitrisk/internal/domain"
)

type WeatherLookup interface {
	Weather(ctx context.Context, location string) (domain.WeatherCondition, error)
}

type EventLookup interface {
	HasEvents(ctx context.Context, location string, date time.Time) (bool, error)
}

type WeatherFunc func(ctx context.Context, location string) (domain.WeatherCondition, error)

func (f WeatherFunc) Weather(ctx context.Context, location string) (domain.WeatherCondition, error) {
	return f(ctx, location)
}

type EventFunc func(ctx context.Context, location string, date time.Time) (bool, error)

func (f EventFunc) HasEvents(ctx context.Context, location string, date time.Time) (bool, error) {
	return f(ctx, location, date)
}

// LookupObserver is told the outcome of every external lookup. kind is "weather" or "events",
// outcome is "ok", "error" or "timeout".
type LookupObserver interface {
	ObserveLookup(kind, outcome string)
}

type GathererOptions struct {
	Weather  WeatherLookup
	Events   EventLookup
	Timeout  time.Duration
	Observer LookupObserver
}

// Gatherer builds a PredictionContext. Lookups run concurrently under one deadline; a lookup that
// fails or misses the deadline leaves its neutral value in place.
type Gatherer struct {
	weather  WeatherLookup
	events   EventLookup
	timeout  time.Duration
	observer LookupObserver
	logger   *slog.Logger
}

func NewGatherer(opts GathererOptions, logger *slog.Logger) *Gatherer {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &Gatherer{
		weather:  opts.Weather,
		events:   opts.Events,
		timeout:  opts.Timeout,
		observer: opts.Observer,
		logger:   logger.With("component", "context_gatherer"),
	}
}

func (g *Gatherer) Gather(ctx context.Context, location string, t time.Time) domain.PredictionContext {
	pc := domain.CalendarContext(location, t)
	pc.PassengerLoad = domain.EstimatePassengerLoad(pc.DayOfWeek, pc.HourOfDay)
	pc.IsHoliday = domain.IsHoliday(pc.DayOfWeek)

	lookupCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type weatherResult struct {
		w   domain.WeatherCondition
		err error
	}
	type eventsResult struct {
		has bool
		err error
	}

	var weatherCh chan weatherResult
	var eventsCh chan eventsResult

	if g.weather != nil {
		weatherCh = make(chan weatherResult, 1)
		go func() {
			w, err := g.weather.Weather(lookupCtx, location)
			weatherCh <- weatherResult{w, err}
		}()
	}
	if g.events != nil {
		eventsCh = make(chan eventsResult, 1)
		go func() {
			has, err := g.events.HasEvents(lookupCtx, location, t)
			eventsCh <- eventsResult{has, err}
		}()
	}

	for weatherCh != nil || eventsCh != nil {
		select {
		case res := <-weatherCh:
			weatherCh = nil
			if res.err != nil || !res.w.Valid() {
				g.logger.Debug("weather lookup failed", "location", location, "error", res.err)
				g.observe("weather", g.failure(lookupCtx))
				continue
			}
			g.observe("weather", "ok")
			pc.Weather = res.w
		case res := <-eventsCh:
			eventsCh = nil
			if res.err != nil {
				g.logger.Debug("event lookup failed", "location", location, "error", res.err)
				g.observe("events", g.failure(lookupCtx))
				continue
			}
			g.observe("events", "ok")
			pc.HasLocalEvents = res.has
		case <-lookupCtx.Done():
			if weatherCh != nil {
				g.observe("weather", "timeout")
			}
			if eventsCh != nil {
				g.observe("events", "timeout")
			}
			g.logger.Debug("context lookups timed out", "location", location, "timeout", g.timeout)
			return pc
		}
	}
	return pc
}

// failure classifies a failed lookup as a timeout when the shared deadline has passed.
func (g *Gatherer) failure(lookupCtx context.Context) string {
	if lookupCtx.Err() != nil {
		return "timeout"
	}
	return "error"
}

func (g *Gatherer) observe(kind, outcome string) {
	if g.observer != nil {
		g.observer.ObserveLookup(kind, outcome)
	}
}
