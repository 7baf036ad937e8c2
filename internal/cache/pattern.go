package cache

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"transitrisk/internal/domain"
	"transitrisk/internal/predict"
)

type Policy int

const (
	// PolicyStructured drops entries whose filtered list could contain the new incident:
	// same transport type and a route or location the matcher would accept.
	PolicyStructured Policy = iota
	// PolicySubstring drops entries whose flat key contains the incident's transport type,
	// day or hour as a substring.
	PolicySubstring
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "structured":
		return PolicyStructured, nil
	case "substring":
		return PolicySubstring, nil
	}
	return 0, fmt.Errorf("unknown cache invalidation policy %q", s)
}

func (p Policy) String() string {
	if p == PolicySubstring {
		return "substring"
	}
	return "structured"
}

type Stats struct {
	Entries       int    `json:"entries"`
	Hits          uint64 `json:"hits"`
	Misses        uint64 `json:"misses"`
	Invalidations uint64 `json:"invalidations"`
}

// PatternCache memoizes matcher output per PatternKey. Cached slices are shared between
// callers and must be treated as read-only.
type PatternCache struct {
	mu      sync.RWMutex
	entries map[PatternKey][]domain.HistoricalIncident
	policy  Policy

	hits          atomic.Uint64
	misses        atomic.Uint64
	invalidations atomic.Uint64

	logger *slog.Logger
}

func NewPatternCache(policy Policy, logger *slog.Logger) *PatternCache {
	return &PatternCache{
		entries: make(map[PatternKey][]domain.HistoricalIncident),
		policy:  policy,
		logger:  logger.With("component", "pattern_cache"),
	}
}

func (c *PatternCache) GetOrCompute(key PatternKey, compute func() []domain.HistoricalIncident) []domain.HistoricalIncident {
	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return cached
	}

	c.misses.Add(1)
	computed := compute()
	if computed == nil {
		computed = []domain.HistoricalIncident{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[key]; ok {
		return existing
	}
	c.entries[key] = computed
	return computed
}

// InvalidateFor removes every entry the incident may affect and returns how many were dropped.
func (c *PatternCache) InvalidateFor(inc domain.HistoricalIncident) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	dropped := 0
	for key := range c.entries {
		if c.affects(key, inc) {
			delete(c.entries, key)
			dropped++
		}
	}
	c.invalidations.Add(uint64(dropped))
	c.logger.Debug("cache invalidated",
		"policy", c.policy.String(),
		"transport", inc.TransportType.String(),
		"route", inc.Route,
		"dropped", dropped,
		"remaining", len(c.entries),
	)
	return dropped
}

func (c *PatternCache) affects(key PatternKey, inc domain.HistoricalIncident) bool {
	if c.policy == PolicySubstring {
		flat := key.String()
		return strings.Contains(flat, inc.TransportType.String()) ||
			strings.Contains(flat, strconv.Itoa(inc.DayOfWeek)) ||
			strings.Contains(flat, strconv.Itoa(inc.HourOfDay))
	}
	if key.TransportType != inc.TransportType {
		return false
	}
	return predict.RouteMatches(inc.Route, key.Route) || predict.LocationMatches(inc.Location, key.Location)
}

func (c *PatternCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[PatternKey][]domain.HistoricalIncident)
}

func (c *PatternCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *PatternCache) Stats() Stats {
	return Stats{
		Entries:       c.Len(),
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Invalidations: c.invalidations.Load(),
	}
}
