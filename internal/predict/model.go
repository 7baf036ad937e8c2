package predict

import (
	"fmt"
	"math"
	"sort"
	"time"

	"transitrisk/internal/domain"
)

const (
	emptyBaseProbability = 0.15
	staleBaseProbability = 0.12
	recentWindow         = 90 * 24 * time.Hour
	maxSurfacedFactors   = 3
	durationThreshold    = 0.3
	maxConfidence        = 0.95
)

// Model scores a filtered incident set against a context. It holds no state.
type Model struct{}

func NewModel() Model { return Model{} }

func (Model) Score(incidents []domain.HistoricalIncident, tt domain.TransportType, pc domain.PredictionContext) domain.DelayPrediction {
	probability := BaseProbability(incidents, pc.Timestamp)
	probability *= weatherMultiplier(pc.Weather)
	probability *= loadMultiplier(pc.PassengerLoad)
	probability *= timeOfDayMultiplier(tt, pc.HourOfDay)
	probability *= dayOfWeekMultiplier(tt, pc.DayOfWeek)
	probability *= seasonMultiplier(tt, pc.MonthOfYear)
	if pc.IsHoliday || pc.HasLocalEvents {
		probability *= 1.2
	}
	probability = math.Max(0, math.Min(probability, 1))

	factors := Factors(incidents, pc)
	if len(factors) > maxSurfacedFactors {
		factors = factors[:maxSurfacedFactors]
	}

	return domain.DelayPrediction{
		Probability:       probability,
		Confidence:        Confidence(len(incidents), pc.Weather),
		PrimaryFactors:    factors,
		EstimatedDuration: EstimateDuration(incidents, pc, probability),
		Recommendation:    Recommendation(probability, factors),
		Context:           pc,
	}
}

// BaseProbability is the frequency estimate before contextual multipliers. now anchors the
// 90 day recency window.
func BaseProbability(incidents []domain.HistoricalIncident, now time.Time) float64 {
	if len(incidents) == 0 {
		return emptyBaseProbability
	}
	cutoff := now.Add(-recentWindow)
	recent := 0
	for _, inc := range incidents {
		if !inc.Timestamp.Before(cutoff) {
			recent++
		}
	}
	if recent == 0 {
		return staleBaseProbability
	}
	return math.Min(float64(recent)/90*0.4, 0.8)
}

func weatherMultiplier(w domain.WeatherCondition) float64 {
	switch w {
	case domain.WeatherClear, domain.WeatherCloudy:
		return 1.0
	case domain.WeatherRain:
		return 1.3
	case domain.WeatherHeavyRain:
		return 1.6
	case domain.WeatherSnow:
		return 2.0
	case domain.WeatherIce:
		return 2.5
	case domain.WeatherFog:
		return 1.4
	case domain.WeatherStorm:
		return 2.2
	default:
		return 1.1
	}
}

func loadMultiplier(l domain.PassengerLoad) float64 {
	switch l {
	case domain.LoadLow:
		return 0.8
	case domain.LoadHigh:
		return 1.3
	case domain.LoadExtreme:
		return 1.7
	default:
		return 1.0
	}
}

func inRange(hour, from, to int) bool {
	return hour >= from && hour <= to
}

func timeOfDayMultiplier(tt domain.TransportType, hour int) float64 {
	switch tt {
	case domain.TransportTrain:
		if domain.IsRushHour(hour) {
			return 1.4
		}
		if hour >= 22 || hour <= 6 {
			return 0.8
		}
	case domain.TransportBus:
		if inRange(hour, 7, 9) || inRange(hour, 16, 18) {
			return 1.6
		}
	case domain.TransportRoad:
		if inRange(hour, 7, 9) || inRange(hour, 16, 19) {
			return 1.8
		}
	}
	return 1.0
}

func dayOfWeekMultiplier(tt domain.TransportType, day int) float64 {
	switch {
	case domain.IsWeekendDay(day):
		if tt == domain.TransportRoad {
			return 0.7
		}
		return 0.8
	case day == 2:
		return 1.2
	}
	return 1.0
}

func seasonMultiplier(tt domain.TransportType, month int) float64 {
	switch month {
	case 12, 1, 2:
		return 1.3
	case 7, 8:
		if tt == domain.TransportRoad {
			return 1.1
		}
		return 0.9
	}
	return 1.0
}

// Factors lists every applicable contributor, largest impact first.
func Factors(incidents []domain.HistoricalIncident, pc domain.PredictionContext) []domain.Factor {
	var factors []domain.Factor

	if pc.Weather != domain.WeatherClear && pc.Weather != domain.WeatherCloudy {
		factors = append(factors, domain.Factor{
			Type:        domain.FactorWeather,
			Impact:      (weatherMultiplier(pc.Weather) - 1.0) * 0.5,
			Description: fmt.Sprintf("%s weather conditions", pc.Weather.Label()),
		})
	}

	rush := 0.0
	switch {
	case domain.IsRushHour(pc.HourOfDay):
		rush = 0.4
	case inRange(pc.HourOfDay, 10, 16):
		rush = 0.1
	}
	if rush > 0.1 {
		factors = append(factors, domain.Factor{
			Type:        domain.FactorRushHour,
			Impact:      rush,
			Description: "rush hour traffic",
		})
	}

	if historical := math.Min(float64(len(incidents))/50, 0.8); historical > 0.2 {
		factors = append(factors, domain.Factor{
			Type:        domain.FactorHistoricalTrend,
			Impact:      historical,
			Description: fmt.Sprintf("%d similar incidents on record", len(incidents)),
		})
	}

	if pc.PassengerLoad == domain.LoadHigh || pc.PassengerLoad == domain.LoadExtreme {
		factors = append(factors, domain.Factor{
			Type:        domain.FactorPassengerVolume,
			Impact:      (loadMultiplier(pc.PassengerLoad) - 1.0) * 0.6,
			Description: fmt.Sprintf("%s passenger volume", pc.PassengerLoad),
		})
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Impact > factors[j].Impact
	})
	return factors
}

func Confidence(dataCount int, w domain.WeatherCondition) float64 {
	c := 0.5 + math.Min(float64(dataCount)/100, 0.3) + 0.1
	if w != domain.WeatherUnknown {
		c += 0.1
	}
	return math.Min(c, maxConfidence)
}

// EstimateDuration averages incidents sharing the weather or hour, falling back to the whole set,
// and scales by probability. It is nil at or below the 0.3 threshold and for an empty set.
func EstimateDuration(incidents []domain.HistoricalIncident, pc domain.PredictionContext, probability float64) *domain.Seconds {
	if probability <= durationThreshold || len(incidents) == 0 {
		return nil
	}

	var sum float64
	n := 0
	for _, inc := range incidents {
		if inc.Weather == pc.Weather || inc.HourOfDay == pc.HourOfDay {
			sum += float64(inc.Duration)
			n++
		}
	}
	if n == 0 {
		for _, inc := range incidents {
			sum += float64(inc.Duration)
		}
		n = len(incidents)
	}

	d := domain.Seconds(sum / float64(n) * probability)
	return &d
}

func Recommendation(probability float64, factors []domain.Factor) string {
	switch {
	case probability < 0.2:
		return "Low risk of delays. Normal conditions expected."
	case probability < 0.4:
		return "Moderate risk of delays. Check live updates before you travel."
	case probability < 0.7:
		cause := "current conditions"
		if len(factors) > 0 {
			cause = factors[0].Description
		}
		return fmt.Sprintf("High risk of delays due to %s. Consider alternative routes.", cause)
	default:
		return "Very high risk of delays. Consider delaying your trip or using alternative transport."
	}
}
