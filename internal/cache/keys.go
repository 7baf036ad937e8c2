package cache

import (
	"fmt"

	"transitrisk/internal/domain"
)

// PatternKey identifies one filtered view of the incident history.
type PatternKey struct {
	TransportType domain.TransportType
	Route         string
	Location      string
	DayOfWeek     int
	HourOfDay     int
}

func NewPatternKey(tt domain.TransportType, route, location string, pc domain.PredictionContext) PatternKey {
	return PatternKey{
		TransportType: tt,
		Route:         route,
		Location:      location,
		DayOfWeek:     pc.DayOfWeek,
		HourOfDay:     pc.HourOfDay,
	}
}

// String is the flat composite form the substring invalidation policy matches against.
func (k PatternKey) String() string {
	return fmt.Sprintf("%s_%s_%s_%d_%d", k.TransportType, k.Route, k.Location, k.DayOfWeek, k.HourOfDay)
}
