package knowledge

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"transitrisk/internal/cache"
	"transitrisk/internal/domain"
	"transitrisk/internal/persist"
	"transitrisk/internal/predict"
	"transitrisk/internal/store"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// Wednesday 16 April 2025, 14:00 UTC.
var neutralTime = time.Date(2025, time.April, 16, 14, 0, 0, 0, time.UTC)

type countingObserver struct {
	mu          sync.Mutex
	predictions int
	incidents   int
	persists    map[string]int
}

func (o *countingObserver) ObservePrediction(domain.TransportType, float64, time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.predictions++
}

func (o *countingObserver) ObserveIncident(domain.HistoricalIncident, int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.incidents++
}

func (o *countingObserver) ObservePersist(op string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.persists == nil {
		o.persists = make(map[string]int)
	}
	o.persists[op]++
}

func newTestKB(t *testing.T, weather domain.WeatherCondition) (*KnowledgeBase, *store.IncidentStore, *countingObserver) {
	t.Helper()
	return newTestKBWithBlobs(t, weather, persist.NewMemoryStore())
}

func newTestKBWithBlobs(t *testing.T, weather domain.WeatherCondition, blobs persist.BlobStore) (*KnowledgeBase, *store.IncidentStore, *countingObserver) {
	t.Helper()
	st := store.New(blobs, store.Options{
		Key:  "kb_test",
		Rand: rand.New(rand.NewPCG(3, 4)),
		Now:  func() time.Time { return neutralTime },
	}, testLogger)
	obs := &countingObserver{}
	kb := New(Options{
		Store: st,
		Cache: cache.NewPatternCache(cache.PolicyStructured, testLogger),
		Gatherer: predict.NewGatherer(predict.GathererOptions{
			Weather: predict.WeatherFunc(func(context.Context, string) (domain.WeatherCondition, error) {
				return weather, nil
			}),
		}, testLogger),
		Observer: obs,
		Now:      func() time.Time { return neutralTime },
	}, testLogger)
	return kb, st, obs
}

func TestPredictEmptyHistoryBaseline(t *testing.T) {
	kb, _, obs := newTestKB(t, domain.WeatherClear)

	p := kb.Predict(context.Background(), domain.TransportTrain, "S1", "Otwock", neutralTime)
	if p.Probability != 0.15 {
		t.Errorf("Probability = %v, expected 0.15", p.Probability)
	}
	if obs.predictions != 1 {
		t.Errorf("observer saw %d predictions", obs.predictions)
	}
	d := kb.Diagnostics()
	if d.LastPrediction == nil || !d.LastPrediction.Equal(neutralTime) {
		t.Errorf("LastPrediction = %v", d.LastPrediction)
	}
}

func TestRecordInvalidatesAffectedEntries(t *testing.T) {
	kb, st, obs := newTestKB(t, domain.WeatherClear)
	ctx := context.Background()

	kb.Predict(ctx, domain.TransportBus, "175", "Plac Bankowy", neutralTime)
	kb.Predict(ctx, domain.TransportTrain, "S1", "Otwock", neutralTime)
	if n := kb.cache.Len(); n != 2 {
		t.Fatalf("cache entries = %d, expected 2", n)
	}

	inc := domain.NewIncident(neutralTime.Add(-time.Hour), domain.HistoricalIncident{
		TransportType: domain.TransportBus,
		Route:         "175",
		Location:      "Dworzec Centralny",
		Duration:      domain.SecondsOf(12 * time.Minute),
		Weather:       domain.WeatherClear,
		PassengerLoad: domain.LoadNormal,
	})
	if err := kb.Record(ctx, inc); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if n := kb.cache.Len(); n != 1 {
		t.Errorf("cache entries after record = %d, expected 1", n)
	}
	if st.Count() != 1 {
		t.Errorf("store count = %d", st.Count())
	}
	if obs.incidents != 1 || obs.persists["save"] != 1 {
		t.Errorf("observer = %+v", obs)
	}

	p := kb.Predict(ctx, domain.TransportBus, "175", "Plac Bankowy", neutralTime)
	if p.Probability == 0.15 {
		t.Error("prediction still reflects the stale empty history")
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	kb, st, _ := newTestKB(t, domain.WeatherClear)
	err := kb.Record(context.Background(), domain.HistoricalIncident{})
	if err == nil {
		t.Fatal("expected validation error")
	}
	if st.Count() != 0 {
		t.Error("invalid incident stored")
	}
}

func TestOpenSeedsAndReset(t *testing.T) {
	kb, st, obs := newTestKB(t, domain.WeatherClear)
	ctx := context.Background()

	if err := kb.Open(ctx); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if st.Count() == 0 {
		t.Fatal("Open did not seed")
	}
	if obs.persists["load"] != 1 {
		t.Errorf("load not observed: %+v", obs.persists)
	}

	if err := kb.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	d := kb.Diagnostics()
	if d.IncidentCount != 0 || d.Cache.Entries != 0 {
		t.Errorf("diagnostics after reset = %+v", d)
	}
}

func TestSplitStations(t *testing.T) {
	got := SplitStations(" Pruszków - Warszawa Zachodnia -  - Warszawa Zachodnia - Otwock ")
	want := []string{"Pruszków", "Warszawa Zachodnia", "Otwock"}
	if len(got) != len(want) {
		t.Fatalf("SplitStations = %q", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("station %d = %q, expected %q", i, got[i], want[i])
		}
	}
	if len(SplitStations("")) != 0 {
		t.Error("empty route produced stations")
	}
}

func TestPredictRouteDelaysKeepsOrder(t *testing.T) {
	kb, _, _ := newTestKB(t, domain.WeatherRain)
	line := domain.DefaultNetwork()[0]

	results := kb.PredictRouteDelays(context.Background(), domain.RouteService{
		TransportType: line.TransportType,
		Line:          line.Name,
		Route:         line.Route(),
	}, neutralTime)

	if len(results) != len(line.Stations) {
		t.Fatalf("got %d results, expected %d", len(results), len(line.Stations))
	}
	for i, r := range results {
		if r.Station != line.Stations[i] {
			t.Errorf("result %d station = %q, expected %q", i, r.Station, line.Stations[i])
		}
		if r.Prediction.Context.Weather != domain.WeatherRain {
			t.Errorf("station %q weather = %s", r.Station, r.Prediction.Context.Weather)
		}
	}
}

func TestConcurrentPredictAndRecord(t *testing.T) {
	kb, st, _ := newTestKB(t, domain.WeatherCloudy)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				p := kb.Predict(ctx, domain.TransportBus, "175", "Plac Bankowy", neutralTime)
				if p.Probability < 0 || p.Probability > 1 {
					t.Errorf("probability %v out of range", p.Probability)
				}
			}
		}()
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = kb.Record(ctx, domain.NewIncident(neutralTime.Add(-time.Duration(i*5+j)*time.Hour), domain.HistoricalIncident{
					TransportType: domain.TransportBus,
					Route:         "175",
				}))
			}
		}(i)
	}
	wg.Wait()

	if st.Count() != 20 {
		t.Errorf("store count = %d, expected 20", st.Count())
	}
}

func TestWarmerFillsCache(t *testing.T) {
	kb, _, _ := newTestKB(t, domain.WeatherClear)
	lines := domain.DefaultNetwork()[:2]

	warmed := NewWarmer(kb, lines, testLogger).WarmAll(context.Background(), neutralTime)
	want := len(lines[0].Stations) + len(lines[1].Stations)
	if warmed != want {
		t.Errorf("warmed %d stations, expected %d", warmed, want)
	}
	if kb.cache.Len() != want {
		t.Errorf("cache entries = %d, expected %d", kb.cache.Len(), want)
	}
}

// gatedBlobs parks the first Save until release is closed.
type gatedBlobs struct {
	*persist.MemoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (g *gatedBlobs) Save(ctx context.Context, key string, data []byte) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Save(ctx, key, data)
}

func TestConcurrentRecordsPersistLatestSnapshot(t *testing.T) {
	blobs := &gatedBlobs{
		MemoryStore: persist.NewMemoryStore(),
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	kb, st, _ := newTestKBWithBlobs(t, domain.WeatherClear, blobs)
	ctx := context.Background()

	incident := func(route string) domain.HistoricalIncident {
		return domain.NewIncident(neutralTime.Add(-time.Hour), domain.HistoricalIncident{
			TransportType: domain.TransportBus,
			Route:         route,
		})
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = kb.Record(ctx, incident("175"))
	}()
	<-blobs.entered

	go func() {
		defer wg.Done()
		_ = kb.Record(ctx, incident("180"))
	}()
	deadline := time.Now().Add(2 * time.Second)
	for st.Count() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second incident was not appended")
		}
		time.Sleep(time.Millisecond)
	}
	close(blobs.release)
	wg.Wait()

	reloaded := store.New(blobs.MemoryStore, store.Options{Key: "kb_test"}, testLogger)
	seeded, err := reloaded.Load(ctx)
	if err != nil || seeded {
		t.Fatalf("Load = seeded %v, err %v", seeded, err)
	}
	if reloaded.Count() != 2 {
		t.Errorf("persisted %d incidents, expected 2", reloaded.Count())
	}
}
