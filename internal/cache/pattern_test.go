package cache

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"transitrisk/internal/domain"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func incident(tt domain.TransportType, route, location string, day, hour int) domain.HistoricalIncident {
	return domain.HistoricalIncident{
		TransportType: tt,
		Route:         route,
		Location:      location,
		DayOfWeek:     day,
		HourOfDay:     hour,
		Timestamp:     time.Date(2025, time.March, 4+day, hour, 0, 0, 0, time.UTC),
	}
}

func TestGetOrComputeReturnsSameSlice(t *testing.T) {
	c := NewPatternCache(PolicyStructured, testLogger)
	key := PatternKey{TransportType: domain.TransportBus, Route: "175", Location: "Plac Bankowy", DayOfWeek: 3, HourOfDay: 8}

	calls := 0
	compute := func() []domain.HistoricalIncident {
		calls++
		return []domain.HistoricalIncident{incident(domain.TransportBus, "175", "Plac Bankowy", 3, 8)}
	}

	first := c.GetOrCompute(key, compute)
	second := c.GetOrCompute(key, compute)
	if calls != 1 {
		t.Errorf("compute called %d times, expected 1", calls)
	}
	if &first[0] != &second[0] {
		t.Error("second lookup did not return the cached slice")
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Entries != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGetOrComputeStoresEmptyResult(t *testing.T) {
	c := NewPatternCache(PolicyStructured, testLogger)
	key := PatternKey{TransportType: domain.TransportRoad, Route: "S8"}

	calls := 0
	compute := func() []domain.HistoricalIncident {
		calls++
		return nil
	}
	if got := c.GetOrCompute(key, compute); got == nil || len(got) != 0 {
		t.Errorf("GetOrCompute = %v, expected empty non-nil slice", got)
	}
	c.GetOrCompute(key, compute)
	if calls != 1 {
		t.Errorf("empty result recomputed: %d calls", calls)
	}
}

func fill(c *PatternCache, keys ...PatternKey) {
	for _, k := range keys {
		c.GetOrCompute(k, func() []domain.HistoricalIncident { return nil })
	}
}

func TestInvalidateForStructured(t *testing.T) {
	c := NewPatternCache(PolicyStructured, testLogger)

	busRoute := PatternKey{TransportType: domain.TransportBus, Route: "175", Location: "Dworzec Centralny", DayOfWeek: 5, HourOfDay: 14}
	busStation := PatternKey{TransportType: domain.TransportBus, Route: "523", Location: "Plac Bankowy", DayOfWeek: 1, HourOfDay: 23}
	busOther := PatternKey{TransportType: domain.TransportBus, Route: "180", Location: "Wilanów", DayOfWeek: 3, HourOfDay: 8}
	train := PatternKey{TransportType: domain.TransportTrain, Route: "175", Location: "Plac Bankowy", DayOfWeek: 3, HourOfDay: 8}
	fill(c, busRoute, busStation, busOther, train)

	dropped := c.InvalidateFor(incident(domain.TransportBus, "175", "Plac Bankowy", 3, 8))
	if dropped != 2 {
		t.Errorf("dropped %d entries, expected 2", dropped)
	}

	calls := 0
	probe := func(k PatternKey) bool {
		before := calls
		c.GetOrCompute(k, func() []domain.HistoricalIncident { calls++; return nil })
		return calls > before
	}
	if !probe(busRoute) {
		t.Error("entry on the incident's route survived")
	}
	if !probe(busStation) {
		t.Error("entry at the incident's location survived")
	}
	if probe(busOther) {
		t.Error("unrelated bus entry was dropped")
	}
	if probe(train) {
		t.Error("entry of another transport type was dropped")
	}
}

func TestInvalidateForSubstring(t *testing.T) {
	c := NewPatternCache(PolicySubstring, testLogger)

	bus := PatternKey{TransportType: domain.TransportBus, Route: "523", Location: "Rondo Dmowskiego", DayOfWeek: 6, HourOfDay: 12}
	day := PatternKey{TransportType: domain.TransportTrain, Route: "S1", Location: "Otwock", DayOfWeek: 3, HourOfDay: 12}
	hour := PatternKey{TransportType: domain.TransportRoad, Route: "S2", Location: "Marki", DayOfWeek: 5, HourOfDay: 8}
	untouched := PatternKey{TransportType: domain.TransportRoad, Route: "S2", Location: "Marki", DayOfWeek: 5, HourOfDay: 12}
	fill(c, bus, day, hour, untouched)

	dropped := c.InvalidateFor(incident(domain.TransportBus, "175", "Plac Bankowy", 3, 8))
	if dropped != 3 {
		t.Errorf("dropped %d entries, expected 3", dropped)
	}
	if c.Len() != 1 {
		t.Errorf("Len = %d, expected 1", c.Len())
	}
}

func TestConcurrentAccess(t *testing.T) {
	c := NewPatternCache(PolicyStructured, testLogger)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for h := 0; h < 24; h++ {
				key := PatternKey{TransportType: domain.TransportBus, Route: "175", HourOfDay: h, DayOfWeek: i%7 + 1}
				c.GetOrCompute(key, func() []domain.HistoricalIncident { return nil })
				if h%6 == 0 {
					c.InvalidateFor(incident(domain.TransportBus, "175", "", i%7+1, h))
				}
			}
		}(i)
	}
	wg.Wait()
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
}

func TestParsePolicy(t *testing.T) {
	if p, err := ParsePolicy("Substring"); err != nil || p != PolicySubstring {
		t.Errorf("ParsePolicy(Substring) = %v, %v", p, err)
	}
	if p, err := ParsePolicy(""); err != nil || p != PolicyStructured {
		t.Errorf("ParsePolicy(\"\") = %v, %v", p, err)
	}
	if _, err := ParsePolicy("exact"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestPatternKeyString(t *testing.T) {
	k := PatternKey{TransportType: domain.TransportTrain, Route: "S1", Location: "Otwock", DayOfWeek: 2, HourOfDay: 7}
	if got := k.String(); got != "train_S1_Otwock_2_7" {
		t.Errorf("String() = %q", got)
	}
}
