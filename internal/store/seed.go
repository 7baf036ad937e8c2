package store

import (
	"fmt"
	"math/rand/v2"
	"time"

	"transitrisk/internal/domain"
)

const (
	maxSeedPerDay   = 3
	minSeedDuration = 5 * time.Minute
	maxSeedDuration = 60 * time.Minute
)

// Seed builds a synthetic corpus covering the days before now: zero to three incidents a day,
// each on a random line of the default network.
func Seed(now time.Time, days int, rng *rand.Rand) []domain.HistoricalIncident {
	network := domain.DefaultNetwork()
	byType := make(map[domain.TransportType][]domain.Line)
	for _, l := range network {
		byType[l.TransportType] = append(byType[l.TransportType], l)
	}
	types := domain.AllTransportTypes()
	reasons := domain.AllDelayReasons()

	var incidents []domain.HistoricalIncident
	for d := 1; d <= days; d++ {
		day := now.AddDate(0, 0, -d)
		n := rng.IntN(maxSeedPerDay + 1)
		for i := 0; i < n; i++ {
			ts := time.Date(day.Year(), day.Month(), day.Day(), rng.IntN(24), rng.IntN(60), 0, 0, now.Location())

			tt := types[rng.IntN(len(types))]
			lines := byType[tt]
			line := lines[rng.IntN(len(lines))]
			location := line.Stations[rng.IntN(len(line.Stations))]
			reason := reasons[rng.IntN(len(reasons))]

			span := maxSeedDuration - minSeedDuration
			duration := minSeedDuration + time.Duration(rng.Int64N(int64(span)+1))

			weathers := domain.SeasonalWeather(int(ts.Month()))
			dow := domain.DayOfWeek(ts)
			loads := domain.LoadCandidates(dow, ts.Hour())

			incidents = append(incidents, domain.NewIncident(ts, domain.HistoricalIncident{
				TransportType: tt,
				Route:         line.Name,
				Location:      location,
				Duration:      domain.SecondsOf(duration),
				Reason:        reason,
				Severity:      domain.SeverityForDuration(duration),
				Weather:       weathers[rng.IntN(len(weathers))],
				PassengerLoad: loads[rng.IntN(len(loads))],
				IsHoliday:     domain.IsHoliday(dow),
				Description:   fmt.Sprintf("%s on %s near %s", reason.Label(), line.Name, location),
			}))
		}
	}
	return incidents
}
