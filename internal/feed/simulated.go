package feed

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"transitrisk/internal/domain"
)

// Simulated produces a small random batch of signals over a known network.
type Simulated struct {
	mu       sync.Mutex
	lines    []domain.Line
	rng      *rand.Rand
	maxBatch int
}

func NewSimulated(lines []domain.Line, rng *rand.Rand, maxBatch int) *Simulated {
	if maxBatch <= 0 {
		maxBatch = 3
	}
	return &Simulated{lines: lines, rng: rng, maxBatch: maxBatch}
}

func (s *Simulated) Name() string { return KindSimulated }

func (s *Simulated) Fetch(_ context.Context) ([]domain.DelaySignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.lines) == 0 {
		return nil, nil
	}
	reasons := domain.AllDelayReasons()

	n := 1 + s.rng.IntN(s.maxBatch)
	signals := make([]domain.DelaySignal, 0, n)
	for i := 0; i < n; i++ {
		line := s.lines[s.rng.IntN(len(s.lines))]
		station := line.Stations[s.rng.IntN(len(line.Stations))]
		reason := reasons[s.rng.IntN(len(reasons))]
		d := 5*time.Minute + time.Duration(s.rng.Int64N(int64(55*time.Minute)))

		signals = append(signals, domain.DelaySignal{
			TransportType: line.TransportType,
			Route:         line.Name,
			Location:      station,
			Duration:      domain.SecondsOf(d),
			Reason:        reason,
			Severity:      domain.SeverityForDuration(d),
			Description:   fmt.Sprintf("%s on %s at %s", reason.Label(), line.Name, station),
		})
	}
	return signals, nil
}
