package predict

import (
	"math"
	"strings"

	"transitrisk/internal/domain"
)

const DefaultSimilarityThreshold = 0.3

// RouteMatches accepts equal routes or either one containing the other.
func RouteMatches(a, b string) bool {
	return a == b || containsEither(a, b)
}

func LocationMatches(a, b string) bool {
	return containsEither(a, b)
}

// An empty identifier never matches by containment.
func containsEither(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

type Matcher struct {
	Threshold float64
}

func NewMatcher() Matcher {
	return Matcher{Threshold: DefaultSimilarityThreshold}
}

// Filter keeps incidents of the transport type that share the route and resemble the context,
// or failing a route match, share the location.
func (m Matcher) Filter(incidents []domain.HistoricalIncident, tt domain.TransportType, route, location string, pc domain.PredictionContext) []domain.HistoricalIncident {
	result := make([]domain.HistoricalIncident, 0)
	for _, inc := range incidents {
		if inc.TransportType != tt {
			continue
		}
		if RouteMatches(inc.Route, route) {
			if Similarity(inc, pc) > m.Threshold {
				result = append(result, inc)
			}
			continue
		}
		if LocationMatches(inc.Location, location) {
			result = append(result, inc)
		}
	}
	return result
}

// Similarity averages hour proximity, weekday, weather and load agreement into [0,1].
func Similarity(inc domain.HistoricalIncident, pc domain.PredictionContext) float64 {
	hourDiff := math.Abs(float64(inc.HourOfDay - pc.HourOfDay))
	timeScore := math.Max(0, 1-hourDiff/12)

	dayScore := 0.0
	switch inc.DayOfWeek - pc.DayOfWeek {
	case 0:
		dayScore = 1
	case 1, -1:
		dayScore = 0.5
	}

	weatherScore := 0.0
	if inc.Weather == pc.Weather {
		weatherScore = 1
	} else if g := weatherGroup(inc.Weather); g != groupNone && g == weatherGroup(pc.Weather) {
		weatherScore = 0.6
	}

	loadScore := 0.0
	if inc.PassengerLoad == pc.PassengerLoad {
		loadScore = 1
	}

	return (timeScore + dayScore + weatherScore + loadScore) / 4
}

type group int

const (
	groupNone group = iota
	groupRain
	groupClear
	groupWinter
)

func weatherGroup(w domain.WeatherCondition) group {
	switch w {
	case domain.WeatherRain, domain.WeatherHeavyRain, domain.WeatherStorm:
		return groupRain
	case domain.WeatherClear, domain.WeatherCloudy:
		return groupClear
	case domain.WeatherSnow, domain.WeatherIce:
		return groupWinter
	}
	return groupNone
}
