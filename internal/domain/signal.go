package domain

import "time"

// DelaySignal is a raw delay observation from a live feed, before it is materialized as an incident.
type DelaySignal struct {
	TransportType TransportType `json:"transportType"`
	Route         string        `json:"route"`
	Location      string        `json:"location"`
	Duration      Seconds       `json:"duration"`
	Reason        DelayReason   `json:"reason"`
	Severity      Severity      `json:"severity"`
	Description   string        `json:"description,omitempty"`
	ObservedAt    time.Time     `json:"observedAt,omitempty"`
}
