package predict

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"transitrisk/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingObserver struct {
	mu       sync.Mutex
	outcomes map[string]string
}

func (r *recordingObserver) ObserveLookup(kind, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]string)
	}
	r.outcomes[kind] = outcome
}

func TestGatherCalendarFields(t *testing.T) {
	g := NewGatherer(GathererOptions{}, testLogger)
	at := time.Date(2025, time.January, 6, 8, 30, 0, 0, time.UTC) // Monday

	pc := g.Gather(context.Background(), "Plac Bankowy", at)
	if pc.DayOfWeek != 2 || pc.HourOfDay != 8 || pc.MonthOfYear != 1 {
		t.Errorf("calendar fields = day %d hour %d month %d", pc.DayOfWeek, pc.HourOfDay, pc.MonthOfYear)
	}
	if pc.Weather != domain.WeatherUnknown {
		t.Errorf("Weather = %s without lookup, expected unknown", pc.Weather)
	}
	if pc.PassengerLoad != domain.LoadExtreme {
		t.Errorf("PassengerLoad = %s, expected extreme", pc.PassengerLoad)
	}
	if pc.IsHoliday || pc.HasLocalEvents {
		t.Error("weekday without events flagged")
	}
	if pc.Location != "Plac Bankowy" {
		t.Errorf("Location = %q", pc.Location)
	}
}

func TestGatherUsesLookups(t *testing.T) {
	obs := &recordingObserver{}
	g := NewGatherer(GathererOptions{
		Weather: WeatherFunc(func(context.Context, string) (domain.WeatherCondition, error) {
			return domain.WeatherSnow, nil
		}),
		Events: EventFunc(func(_ context.Context, location string, _ time.Time) (bool, error) {
			return location == "Stadion Narodowy", nil
		}),
		Observer: obs,
	}, testLogger)

	pc := g.Gather(context.Background(), "Stadion Narodowy", time.Date(2025, time.May, 3, 19, 0, 0, 0, time.UTC))
	if pc.Weather != domain.WeatherSnow {
		t.Errorf("Weather = %s, expected snow", pc.Weather)
	}
	if !pc.HasLocalEvents {
		t.Error("expected local events")
	}
	if !pc.IsHoliday {
		t.Error("saturday should count as holiday")
	}
	if obs.outcomes["weather"] != "ok" || obs.outcomes["events"] != "ok" {
		t.Errorf("observer outcomes = %v", obs.outcomes)
	}
}

func TestGatherDegradesOnFailure(t *testing.T) {
	g := NewGatherer(GathererOptions{
		Weather: WeatherFunc(func(context.Context, string) (domain.WeatherCondition, error) {
			return domain.WeatherStorm, errors.New("upstream 503")
		}),
		Events: EventFunc(func(context.Context, string, time.Time) (bool, error) {
			return true, errors.New("calendar unavailable")
		}),
	}, testLogger)

	pc := g.Gather(context.Background(), "Plac Bankowy", time.Now())
	if pc.Weather != domain.WeatherUnknown {
		t.Errorf("Weather = %s after failure, expected unknown", pc.Weather)
	}
	if pc.HasLocalEvents {
		t.Error("HasLocalEvents = true after failure")
	}
}

func TestGatherTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	obs := &recordingObserver{}

	g := NewGatherer(GathererOptions{
		Weather: WeatherFunc(func(context.Context, string) (domain.WeatherCondition, error) {
			<-release
			return domain.WeatherRain, nil
		}),
		Events: EventFunc(func(context.Context, string, time.Time) (bool, error) {
			return true, nil
		}),
		Timeout:  20 * time.Millisecond,
		Observer: obs,
	}, testLogger)

	start := time.Now()
	pc := g.Gather(context.Background(), "Plac Bankowy", time.Now())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Gather took %s despite 20ms timeout", elapsed)
	}
	if pc.Weather != domain.WeatherUnknown {
		t.Errorf("Weather = %s after timeout, expected unknown", pc.Weather)
	}
	if obs.outcomes["weather"] != "timeout" || obs.outcomes["events"] != "ok" {
		t.Errorf("observer outcomes = %v", obs.outcomes)
	}
	if _, ok := obs.outcomes["context"]; ok {
		t.Error("timeout reported under an unknown lookup kind")
	}
}
