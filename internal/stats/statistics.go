package stats

import (
	"math"
	"sort"
	"time"

	"github.com/sajari/regression"

	"transitrisk/internal/domain"
)

type WeatherImpact struct {
	Weather      domain.WeatherCondition `json:"weather"`
	Count        int                     `json:"count"`
	MeanDuration domain.Seconds          `json:"meanDuration"`
}

type RouteSummary struct {
	TransportType  domain.TransportType `json:"transportType"`
	Route          string               `json:"route"`
	Count          int                  `json:"count"`
	MeanDuration   domain.Seconds       `json:"meanDuration"`
	StdDevDuration domain.Seconds       `json:"stdDevDuration"`
	CommonReason   domain.DelayReason   `json:"commonReason"`
	WorstSeverity  domain.Severity      `json:"worstSeverity"`
}

type ReasonCount struct {
	Reason domain.DelayReason `json:"reason"`
	Count  int                `json:"count"`
}

// Trend is a least squares fit of incidents per day against days since the first recorded day.
type Trend struct {
	Days      int     `json:"days"`
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
}

// Statistics are diagnostic aggregates over the whole incident history.
type Statistics struct {
	ComputedAt     time.Time       `json:"computedAt"`
	Incidents      int             `json:"incidents"`
	WeatherImpact  []WeatherImpact `json:"weatherImpact"`
	HourHistogram  [24]int         `json:"hourHistogram"`
	MonthHistogram [12]int         `json:"monthHistogram"`
	Routes         []RouteSummary  `json:"routes"`
	Reasons        []ReasonCount   `json:"reasons"`
	Trend          *Trend          `json:"trend,omitempty"`
}

type routeKey struct {
	tt    domain.TransportType
	route string
}

type routeAcc struct {
	duration Welford
	reasons  map[domain.DelayReason]int
	worst    domain.Severity
}

func Compute(incidents []domain.HistoricalIncident, now time.Time) *Statistics {
	s := &Statistics{ComputedAt: now, Incidents: len(incidents)}

	weather := make(map[domain.WeatherCondition]*Welford)
	routes := make(map[routeKey]*routeAcc)
	reasons := make(map[domain.DelayReason]int)
	daily := make(map[time.Time]int)

	for _, inc := range incidents {
		d := float64(inc.Duration)

		w, ok := weather[inc.Weather]
		if !ok {
			w = &Welford{}
			weather[inc.Weather] = w
		}
		w.Update(d)

		if inc.HourOfDay >= 0 && inc.HourOfDay < 24 {
			s.HourHistogram[inc.HourOfDay]++
		}
		s.MonthHistogram[inc.Timestamp.Month()-1]++

		k := routeKey{inc.TransportType, inc.Route}
		acc, ok := routes[k]
		if !ok {
			acc = &routeAcc{reasons: make(map[domain.DelayReason]int), worst: inc.Severity}
			routes[k] = acc
		}
		acc.duration.Update(d)
		acc.reasons[inc.Reason]++
		if inc.Severity > acc.worst {
			acc.worst = inc.Severity
		}

		reasons[inc.Reason]++

		y, m, dd := inc.Timestamp.UTC().Date()
		daily[time.Date(y, m, dd, 0, 0, 0, 0, time.UTC)]++
	}

	for _, wc := range domain.AllWeatherConditions() {
		if w, ok := weather[wc]; ok {
			s.WeatherImpact = append(s.WeatherImpact, WeatherImpact{
				Weather:      wc,
				Count:        w.Count,
				MeanDuration: domain.Seconds(w.Mean),
			})
		}
	}

	for k, acc := range routes {
		s.Routes = append(s.Routes, RouteSummary{
			TransportType:  k.tt,
			Route:          k.route,
			Count:          acc.duration.Count,
			MeanDuration:   domain.Seconds(acc.duration.Mean),
			StdDevDuration: domain.Seconds(acc.duration.StdDev()),
			CommonReason:   mostCommon(acc.reasons),
			WorstSeverity:  acc.worst,
		})
	}
	sort.Slice(s.Routes, func(i, j int) bool {
		a, b := s.Routes[i], s.Routes[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.TransportType != b.TransportType {
			return a.TransportType < b.TransportType
		}
		return a.Route < b.Route
	})

	for _, r := range domain.AllDelayReasons() {
		if n := reasons[r]; n > 0 {
			s.Reasons = append(s.Reasons, ReasonCount{Reason: r, Count: n})
		}
	}

	s.Trend = dailyTrend(daily)
	return s
}

func mostCommon(counts map[domain.DelayReason]int) domain.DelayReason {
	best, bestN := domain.DelayReason(0), -1
	for _, r := range domain.AllDelayReasons() {
		if n := counts[r]; n > bestN {
			best, bestN = r, n
		}
	}
	return best
}

// dailyTrend fills days without incidents with zero and fits a line through the counts.
func dailyTrend(daily map[time.Time]int) *Trend {
	if len(daily) == 0 {
		return nil
	}
	var first, last time.Time
	for d := range daily {
		if first.IsZero() || d.Before(first) {
			first = d
		}
		if d.After(last) {
			last = d
		}
	}
	days := int(last.Sub(first).Hours()/24) + 1
	if days < 3 {
		return nil
	}

	r := new(regression.Regression)
	r.SetObserved("incidents")
	r.SetVar(0, "day")
	for i := 0; i < days; i++ {
		day := first.AddDate(0, 0, i)
		r.Train(regression.DataPoint(float64(daily[day]), []float64{float64(i)}))
	}
	if err := r.Run(); err != nil {
		return nil
	}

	coeffs := r.GetCoeffs()
	if len(coeffs) < 2 {
		return nil
	}
	r2 := r.R2
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		r2 = 0
	}
	return &Trend{Days: days, Intercept: coeffs[0], Slope: coeffs[1], R2: r2}
}
