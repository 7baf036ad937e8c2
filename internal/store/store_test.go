package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/uuid"

	"transitrisk/internal/domain"
	"transitrisk/internal/persist"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var fixedNow = time.Date(2025, time.March, 12, 10, 0, 0, 0, time.UTC)

func newTestStore(blobs persist.BlobStore) *IncidentStore {
	return New(blobs, Options{
		Key:  "test_incidents",
		Rand: rand.New(rand.NewPCG(1, 2)),
		Now:  func() time.Time { return fixedNow },
	}, testLogger)
}

func sampleIncident(tt domain.TransportType, route string, ts time.Time) domain.HistoricalIncident {
	return domain.NewIncident(ts, domain.HistoricalIncident{
		TransportType: tt,
		Route:         route,
		Location:      "Plac Bankowy",
		Duration:      domain.SecondsOf(10 * time.Minute),
		Reason:        domain.ReasonSignal,
		Severity:      domain.SeverityModerate,
		Weather:       domain.WeatherRain,
		PassengerLoad: domain.LoadHigh,
	})
}

type failingBlobs struct{ *persist.MemoryStore }

func (f *failingBlobs) Save(context.Context, string, []byte) error { return errors.New("disk full") }

func TestSaveLoadRoundTrip(t *testing.T) {
	blobs := persist.NewMemoryStore()
	a := newTestStore(blobs)

	want := []domain.HistoricalIncident{
		sampleIncident(domain.TransportBus, "175", fixedNow.Add(-time.Hour)),
		sampleIncident(domain.TransportTrain, "S1", fixedNow.Add(-48*time.Hour)),
		sampleIncident(domain.TransportRoad, "S8", fixedNow.Add(-72*time.Hour)),
	}
	for _, inc := range want {
		if err := a.Add(context.Background(), inc); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	b := newTestStore(blobs)
	seeded, err := b.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if seeded {
		t.Fatal("Load seeded although data was persisted")
	}

	got := make(map[uuid.UUID]domain.HistoricalIncident)
	for _, inc := range b.All() {
		got[inc.ID] = inc
	}
	if len(got) != len(want) {
		t.Fatalf("loaded %d incidents, expected %d", len(got), len(want))
	}
	for _, inc := range want {
		g, ok := got[inc.ID]
		if !ok {
			t.Errorf("incident %s missing after load", inc.ID)
			continue
		}
		if !g.Timestamp.Equal(inc.Timestamp) {
			t.Errorf("timestamp = %s, expected %s", g.Timestamp, inc.Timestamp)
		}
		g.Timestamp = inc.Timestamp
		if g != inc {
			t.Errorf("loaded %+v, expected %+v", g, inc)
		}
	}
}

func TestLoadSeedsEmptyStore(t *testing.T) {
	blobs := persist.NewMemoryStore()
	s := newTestStore(blobs)

	seeded, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !seeded {
		t.Fatal("expected seeding on empty backend")
	}
	if s.Count() == 0 {
		t.Fatal("seeded store is empty")
	}
	if _, err := blobs.Load(context.Background(), "test_incidents"); err != nil {
		t.Errorf("seeded corpus was not persisted: %v", err)
	}
}

func TestLoadSeedsCorruptBlob(t *testing.T) {
	blobs := persist.NewMemoryStore()
	_ = blobs.Save(context.Background(), "test_incidents", []byte(`[{"transportType":"hovercraft"}]`))

	s := newTestStore(blobs)
	seeded, err := s.Load(context.Background())
	if !seeded {
		t.Fatal("expected seeding on corrupt blob")
	}
	if err == nil {
		t.Error("expected decode error to be reported")
	}
	if s.Count() == 0 {
		t.Error("store empty after reseed")
	}
}

func TestQueryMatchesTransportTypeOnly(t *testing.T) {
	s := newTestStore(persist.NewMemoryStore())
	_ = s.Append(sampleIncident(domain.TransportBus, "175", fixedNow))
	_ = s.Append(sampleIncident(domain.TransportBus, "523", fixedNow))
	_ = s.Append(sampleIncident(domain.TransportTrain, "175", fixedNow))

	buses := s.Query(domain.TransportBus)
	if len(buses) != 2 {
		t.Fatalf("Query(bus) returned %d, expected 2", len(buses))
	}
	for _, inc := range buses {
		if inc.TransportType != domain.TransportBus {
			t.Errorf("Query(bus) returned %s", inc.TransportType)
		}
	}
	if n := len(s.Query(domain.TransportRoad)); n != 0 {
		t.Errorf("Query(road) returned %d, expected 0", n)
	}
}

func TestRecentNewestFirst(t *testing.T) {
	s := newTestStore(persist.NewMemoryStore())
	for i := 0; i < 5; i++ {
		_ = s.Append(sampleIncident(domain.TransportBus, "175", fixedNow.Add(-time.Duration(i)*time.Hour)))
	}
	got := s.Recent(domain.TransportBus, 3)
	if len(got) != 3 {
		t.Fatalf("Recent returned %d, expected 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Timestamp.After(got[i-1].Timestamp) {
			t.Errorf("Recent not sorted newest first at %d", i)
		}
	}
}

func TestAppendRejectsInvalid(t *testing.T) {
	s := newTestStore(persist.NewMemoryStore())

	bad := sampleIncident(domain.TransportBus, "175", fixedNow)
	bad.Duration = -1
	if err := s.Append(bad); !errors.Is(err, ErrInvalidIncident) {
		t.Errorf("negative duration: expected ErrInvalidIncident, got %v", err)
	}

	bad = sampleIncident(domain.TransportBus, "175", fixedNow)
	bad.HourOfDay = 24
	if err := s.Append(bad); !errors.Is(err, ErrInvalidIncident) {
		t.Errorf("hour 24: expected ErrInvalidIncident, got %v", err)
	}

	bad = sampleIncident(domain.TransportBus, "", fixedNow)
	if err := s.Append(bad); !errors.Is(err, ErrInvalidIncident) {
		t.Errorf("empty route: expected ErrInvalidIncident, got %v", err)
	}

	if s.Count() != 0 {
		t.Errorf("invalid incidents were stored: %d", s.Count())
	}
}

func TestAddKeepsIncidentWhenSaveFails(t *testing.T) {
	s := newTestStore(&failingBlobs{persist.NewMemoryStore()})
	err := s.Add(context.Background(), sampleIncident(domain.TransportTrain, "S2", fixedNow))
	if err == nil {
		t.Fatal("expected save error")
	}
	if s.Count() != 1 {
		t.Errorf("Count = %d after failed save, expected 1", s.Count())
	}
}

func TestReset(t *testing.T) {
	s := newTestStore(persist.NewMemoryStore())
	_ = s.Append(sampleIncident(domain.TransportTrain, "S2", fixedNow))
	s.Reset()
	if s.Count() != 0 || len(s.Query(domain.TransportTrain)) != 0 {
		t.Error("Reset left incidents behind")
	}
}
