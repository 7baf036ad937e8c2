package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownCode is returned when a persisted or user supplied enum code is not in its table.
var ErrUnknownCode = errors.New("unknown code")

// TransportType distinguishes the networks a delay can occur on
type TransportType int

const (
	TransportRoad TransportType = iota
	TransportTrain
	TransportBus
)

var transportCodes = []string{"road", "train", "bus"}

func AllTransportTypes() []TransportType {
	return []TransportType{TransportRoad, TransportTrain, TransportBus}
}

func (t TransportType) String() string { return codeOf(transportCodes, t) }

func (t TransportType) MarshalText() ([]byte, error) { return marshalCode(transportCodes, t) }

func (t *TransportType) UnmarshalText(b []byte) error {
	return unmarshalCode(transportCodes, "transport type", b, t)
}

func ParseTransportType(s string) (TransportType, error) {
	return parseCode[TransportType](transportCodes, "transport type", s)
}

// DelayReason is the closed set of delay causes
type DelayReason int

const (
	ReasonTechnicalFailure DelayReason = iota
	ReasonWeather
	ReasonInfrastructure
	ReasonAccident
	ReasonStaffing
	ReasonConstruction
	ReasonPassengerVolume
	ReasonExternal
	ReasonSignal
	ReasonTrackMaintenance
	ReasonRoadConstruction
	ReasonTrafficAccident
)

var reasonCodes = []string{
	"technical_failure",
	"weather",
	"infrastructure",
	"accident",
	"staffing",
	"construction",
	"passenger_volume",
	"external",
	"signal",
	"track_maintenance",
	"road_construction",
	"traffic_accident",
}

var reasonLabels = []string{
	"technical failure",
	"weather conditions",
	"infrastructure problem",
	"accident",
	"staff shortage",
	"construction work",
	"high passenger volume",
	"external factors",
	"signal fault",
	"track maintenance",
	"road construction",
	"traffic accident",
}

func AllDelayReasons() []DelayReason {
	out := make([]DelayReason, len(reasonCodes))
	for i := range reasonCodes {
		out[i] = DelayReason(i)
	}
	return out
}

func (r DelayReason) String() string { return codeOf(reasonCodes, r) }

// Label is the human readable form used in descriptions.
func (r DelayReason) Label() string { return codeOf(reasonLabels, r) }

func (r DelayReason) MarshalText() ([]byte, error) { return marshalCode(reasonCodes, r) }

func (r *DelayReason) UnmarshalText(b []byte) error {
	return unmarshalCode(reasonCodes, "delay reason", b, r)
}

func ParseDelayReason(s string) (DelayReason, error) {
	return parseCode[DelayReason](reasonCodes, "delay reason", s)
}

// Severity grades an incident by how long it held up service
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeverityMajor
	SeveritySevere
)

var severityCodes = []string{"minor", "moderate", "major", "severe"}

func (s Severity) String() string { return codeOf(severityCodes, s) }

func (s Severity) MarshalText() ([]byte, error) { return marshalCode(severityCodes, s) }

func (s *Severity) UnmarshalText(b []byte) error {
	return unmarshalCode(severityCodes, "severity", b, s)
}

func ParseSeverity(s string) (Severity, error) {
	return parseCode[Severity](severityCodes, "severity", s)
}

// WeatherCondition is the weather reported at a location
type WeatherCondition int

const (
	WeatherUnknown WeatherCondition = iota
	WeatherClear
	WeatherCloudy
	WeatherRain
	WeatherHeavyRain
	WeatherSnow
	WeatherIce
	WeatherFog
	WeatherStorm
)

var weatherCodes = []string{"unknown", "clear", "cloudy", "rain", "heavy_rain", "snow", "ice", "fog", "storm"}

func AllWeatherConditions() []WeatherCondition {
	out := make([]WeatherCondition, len(weatherCodes))
	for i := range weatherCodes {
		out[i] = WeatherCondition(i)
	}
	return out
}

func (w WeatherCondition) String() string { return codeOf(weatherCodes, w) }

func (w WeatherCondition) Valid() bool { return int(w) >= 0 && int(w) < len(weatherCodes) }

// Label is the code with spaces, for descriptions.
func (w WeatherCondition) Label() string { return strings.ReplaceAll(w.String(), "_", " ") }

func (w WeatherCondition) MarshalText() ([]byte, error) { return marshalCode(weatherCodes, w) }

func (w *WeatherCondition) UnmarshalText(b []byte) error {
	return unmarshalCode(weatherCodes, "weather condition", b, w)
}

func ParseWeatherCondition(s string) (WeatherCondition, error) {
	return parseCode[WeatherCondition](weatherCodes, "weather condition", s)
}

// PassengerLoad estimates how crowded the network is
type PassengerLoad int

const (
	LoadLow PassengerLoad = iota
	LoadNormal
	LoadHigh
	LoadExtreme
)

var loadCodes = []string{"low", "normal", "high", "extreme"}

func (l PassengerLoad) String() string { return codeOf(loadCodes, l) }

func (l PassengerLoad) MarshalText() ([]byte, error) { return marshalCode(loadCodes, l) }

func (l *PassengerLoad) UnmarshalText(b []byte) error {
	return unmarshalCode(loadCodes, "passenger load", b, l)
}

func ParsePassengerLoad(s string) (PassengerLoad, error) {
	return parseCode[PassengerLoad](loadCodes, "passenger load", s)
}

func codeOf[T ~int](codes []string, v T) string {
	if int(v) < 0 || int(v) >= len(codes) {
		return "invalid"
	}
	return codes[v]
}

func marshalCode[T ~int](codes []string, v T) ([]byte, error) {
	if int(v) < 0 || int(v) >= len(codes) {
		return nil, fmt.Errorf("%w: value %d", ErrUnknownCode, int(v))
	}
	return []byte(codes[v]), nil
}

func unmarshalCode[T ~int](codes []string, kind string, b []byte, dst *T) error {
	v, err := parseCode[T](codes, kind, string(b))
	if err != nil {
		return err
	}
	*dst = v
	return nil
}

func parseCode[T ~int](codes []string, kind, s string) (T, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	for i, c := range codes {
		if c == normalized {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %s %q", ErrUnknownCode, kind, s)
}
