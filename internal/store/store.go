package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"transitrisk/internal/domain"
	"transitrisk/internal/persist"
)

var ErrInvalidIncident = errors.New("invalid incident")

var validate = validator.New()

type Options struct {
	Key      string
	Backend  string
	SeedDays int
	Rand     *rand.Rand
	Now      func() time.Time
}

// IncidentStore is the append-only set of historical incidents, indexed by transport type.
type IncidentStore struct {
	mu        sync.RWMutex
	incidents []domain.HistoricalIncident
	byType    map[domain.TransportType][]int

	// saveMu orders snapshots and writes so an older snapshot never overwrites a newer one.
	saveMu sync.Mutex

	blobs   persist.BlobStore
	key     string
	backend string
	days    int
	rng     *rand.Rand
	now     func() time.Time
	logger  *slog.Logger
}

func New(blobs persist.BlobStore, opts Options, logger *slog.Logger) *IncidentStore {
	if opts.Key == "" {
		opts.Key = "transport_historical_incidents"
	}
	if opts.SeedDays <= 0 {
		opts.SeedDays = 90
	}
	if opts.Rand == nil {
		seed := uint64(time.Now().UnixNano())
		opts.Rand = rand.New(rand.NewPCG(seed, seed>>1))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &IncidentStore{
		byType:  make(map[domain.TransportType][]int),
		blobs:   blobs,
		key:     opts.Key,
		backend: opts.Backend,
		days:    opts.SeedDays,
		rng:     opts.Rand,
		now:     opts.Now,
		logger:  logger.With("component", "incident_store"),
	}
}

func Validate(inc domain.HistoricalIncident) error {
	if err := validate.Struct(inc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIncident, err)
	}
	return nil
}

// Append adds the incident in memory only.
func (s *IncidentStore) Append(inc domain.HistoricalIncident) error {
	if err := Validate(inc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(inc)
	return nil
}

// Add appends and persists. A failed save keeps the in-memory record and is returned to the caller.
func (s *IncidentStore) Add(ctx context.Context, inc domain.HistoricalIncident) error {
	if err := s.Append(inc); err != nil {
		return err
	}
	return s.Save(ctx)
}

func (s *IncidentStore) appendLocked(inc domain.HistoricalIncident) {
	s.byType[inc.TransportType] = append(s.byType[inc.TransportType], len(s.incidents))
	s.incidents = append(s.incidents, inc)
}

// Query returns every incident of the transport type. Route and location matching is left to the matcher.
func (s *IncidentStore) Query(transportType domain.TransportType) []domain.HistoricalIncident {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.byType[transportType]
	result := make([]domain.HistoricalIncident, 0, len(idx))
	for _, i := range idx {
		result = append(result, s.incidents[i])
	}
	return result
}

func (s *IncidentStore) All() []domain.HistoricalIncident {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.HistoricalIncident(nil), s.incidents...)
}

// Recent returns up to limit incidents of the type, newest first. A limit of zero means all.
func (s *IncidentStore) Recent(transportType domain.TransportType, limit int) []domain.HistoricalIncident {
	result := s.Query(transportType)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.After(result[j].Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *IncidentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.incidents)
}

func (s *IncidentStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(nil)
}

func (s *IncidentStore) replaceLocked(incidents []domain.HistoricalIncident) {
	s.incidents = make([]domain.HistoricalIncident, 0, len(incidents))
	s.byType = make(map[domain.TransportType][]int)
	for _, inc := range incidents {
		s.appendLocked(inc)
	}
}

// Load replaces the in-memory set with the persisted blob. A missing, empty or undecodable
// blob is replaced by a freshly seeded corpus. The returned error reports backend I/O or decode
// failures; the store is usable either way.
func (s *IncidentStore) Load(ctx context.Context) (seeded bool, err error) {
	start := time.Now()
	incidents, loadErr := s.readBlob(ctx)
	if loadErr != nil && !errors.Is(loadErr, persist.ErrNotFound) {
		s.logger.Warn("incident load failed", "op", "load", "backend", s.backend, "key", s.key, "error", loadErr)
		err = loadErr
	}

	if len(incidents) == 0 {
		incidents = Seed(s.now(), s.days, s.rng)
		seeded = true
	}

	s.mu.Lock()
	s.replaceLocked(incidents)
	s.mu.Unlock()

	s.logger.Info("incidents loaded",
		"op", "load",
		"backend", s.backend,
		"key", s.key,
		"incidents", len(incidents),
		"seeded", seeded,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if seeded {
		if saveErr := s.Save(ctx); saveErr != nil && err == nil {
			err = saveErr
		}
	}
	return seeded, err
}

func (s *IncidentStore) readBlob(ctx context.Context) ([]domain.HistoricalIncident, error) {
	data, err := s.blobs.Load(ctx, s.key)
	if err != nil {
		return nil, err
	}
	var incidents []domain.HistoricalIncident
	if err := json.Unmarshal(data, &incidents); err != nil {
		return nil, fmt.Errorf("decode incidents: %w", err)
	}
	valid := incidents[:0]
	for _, inc := range incidents {
		if Validate(inc) != nil {
			continue
		}
		valid = append(valid, inc)
	}
	if dropped := len(incidents) - len(valid); dropped > 0 {
		return nil, fmt.Errorf("decode incidents: %d of %d records invalid", dropped, len(incidents))
	}
	return valid, nil
}

// Save writes the full set as one JSON array.
func (s *IncidentStore) Save(ctx context.Context) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	s.mu.RLock()
	incidents := s.incidents
	if incidents == nil {
		incidents = []domain.HistoricalIncident{}
	}
	data, err := json.Marshal(incidents)
	count := len(incidents)
	s.mu.RUnlock()

	if err != nil {
		return fmt.Errorf("encode incidents: %w", err)
	}
	if err := s.blobs.Save(ctx, s.key, data); err != nil {
		s.logger.Error("incident save failed", "op", "save", "backend", s.backend, "key", s.key, "incidents", count, "error", err)
		return fmt.Errorf("save incidents: %w", err)
	}
	s.logger.Debug("incidents saved", "op", "save", "backend", s.backend, "key", s.key, "incidents", count, "size_bytes", len(data))
	return nil
}
