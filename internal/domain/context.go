package domain

import "time"

type PredictionContext struct {
	Timestamp      time.Time        `json:"timestamp"`
	DayOfWeek      int              `json:"dayOfWeek"`
	HourOfDay      int              `json:"hourOfDay"`
	MonthOfYear    int              `json:"monthOfYear"`
	Weather        WeatherCondition `json:"weatherCondition"`
	PassengerLoad  PassengerLoad    `json:"passengerLoad"`
	IsHoliday      bool             `json:"isHoliday"`
	HasLocalEvents bool             `json:"hasLocalEvents"`
	Location       string           `json:"location"`
}

// CalendarContext fills the time derived fields and leaves lookups at their neutral values.
func CalendarContext(location string, t time.Time) PredictionContext {
	return PredictionContext{
		Timestamp:   t,
		DayOfWeek:   DayOfWeek(t),
		HourOfDay:   t.Hour(),
		MonthOfYear: int(t.Month()),
		Weather:     WeatherUnknown,
		Location:    location,
	}
}
