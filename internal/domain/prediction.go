package domain

type FactorType int

const (
	FactorWeather FactorType = iota
	FactorRushHour
	FactorHistoricalTrend
	FactorPassengerVolume
)

var factorCodes = []string{"weather", "rush_hour", "historical_trend", "passenger_volume"}

func (f FactorType) String() string { return codeOf(factorCodes, f) }

func (f FactorType) MarshalText() ([]byte, error) { return marshalCode(factorCodes, f) }

func (f *FactorType) UnmarshalText(b []byte) error {
	return unmarshalCode(factorCodes, "factor type", b, f)
}

type Factor struct {
	Type        FactorType `json:"type"`
	Impact      float64    `json:"impact"`
	Description string     `json:"description"`
}

type DelayPrediction struct {
	Probability       float64           `json:"probability"`
	Confidence        float64           `json:"confidence"`
	PrimaryFactors    []Factor          `json:"primaryFactors"`
	EstimatedDuration *Seconds          `json:"estimatedDuration,omitempty"`
	Recommendation    string            `json:"recommendation"`
	Context           PredictionContext `json:"context"`
}

// RouteService is a line whose Route lists its stations joined by a separator.
// Line is the route identifier matched against incidents; when empty Route is used.
type RouteService struct {
	TransportType TransportType `json:"transportType"`
	Line          string        `json:"line"`
	Route         string        `json:"route"`
}

type StationPrediction struct {
	Station    string          `json:"station"`
	Prediction DelayPrediction `json:"prediction"`
}
