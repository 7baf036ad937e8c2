package domain

import (
	"time"

	"github.com/google/uuid"
)

// Seconds is a non-negative span stored as fractional seconds on the wire.
type Seconds float64

func SecondsOf(d time.Duration) Seconds { return Seconds(d.Seconds()) }

func (s Seconds) Duration() time.Duration {
	return time.Duration(float64(s) * float64(time.Second))
}

// HistoricalIncident is a recorded delay. Records are never mutated after creation.
type HistoricalIncident struct {
	ID            uuid.UUID        `json:"id" validate:"required"`
	Timestamp     time.Time        `json:"timestamp" validate:"required"`
	TransportType TransportType    `json:"transportType"`
	Route         string           `json:"route" validate:"required"`
	Location      string           `json:"location"`
	Duration      Seconds          `json:"duration" validate:"gte=0"`
	Reason        DelayReason      `json:"reason"`
	Severity      Severity         `json:"severity"`
	Weather       WeatherCondition `json:"weatherCondition"`
	DayOfWeek     int              `json:"dayOfWeek" validate:"min=1,max=7"`
	HourOfDay     int              `json:"hourOfDay" validate:"min=0,max=23"`
	PassengerLoad PassengerLoad    `json:"passengerLoad"`
	IsHoliday     bool             `json:"isHoliday"`
	Description   string           `json:"description"`
}

// NewIncident assigns a fresh id and derives the calendar fields from ts.
func NewIncident(ts time.Time, inc HistoricalIncident) HistoricalIncident {
	inc.ID = uuid.New()
	inc.Timestamp = ts
	inc.DayOfWeek = DayOfWeek(ts)
	inc.HourOfDay = ts.Hour()
	return inc
}

// DayOfWeek numbers days 1 (Sunday) through 7 (Saturday).
func DayOfWeek(t time.Time) int {
	return int(t.Weekday()) + 1
}

func IsWeekendDay(day int) bool {
	return day == 1 || day == 7
}

// SeverityForDuration maps a duration onto the nominal severity bands.
func SeverityForDuration(d time.Duration) Severity {
	switch {
	case d < 5*time.Minute:
		return SeverityMinor
	case d < 15*time.Minute:
		return SeverityModerate
	case d < 30*time.Minute:
		return SeverityMajor
	default:
		return SeveritySevere
	}
}
