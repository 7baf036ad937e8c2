package stats

import (
	"math"
	"testing"
	"time"

	"transitrisk/internal/domain"
)

func TestWelford(t *testing.T) {
	var w Welford
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.Update(v)
	}
	if w.Mean != 5 {
		t.Errorf("Mean = %v, expected 5", w.Mean)
	}
	if math.Abs(w.StdDev()-2) > 1e-9 {
		t.Errorf("StdDev = %v, expected 2", w.StdDev())
	}

	var single Welford
	single.Update(3)
	if single.StdDev() != 0 {
		t.Errorf("StdDev of one observation = %v", single.StdDev())
	}
}

func mk(tt domain.TransportType, route string, ts time.Time, d time.Duration, reason domain.DelayReason, w domain.WeatherCondition) domain.HistoricalIncident {
	return domain.NewIncident(ts, domain.HistoricalIncident{
		TransportType: tt,
		Route:         route,
		Duration:      domain.SecondsOf(d),
		Reason:        reason,
		Severity:      domain.SeverityForDuration(d),
		Weather:       w,
	})
}

func TestCompute(t *testing.T) {
	base := time.Date(2025, time.January, 10, 8, 0, 0, 0, time.UTC)
	incidents := []domain.HistoricalIncident{
		mk(domain.TransportBus, "175", base, 10*time.Minute, domain.ReasonTrafficAccident, domain.WeatherSnow),
		mk(domain.TransportBus, "175", base.AddDate(0, 0, 1), 30*time.Minute, domain.ReasonTrafficAccident, domain.WeatherSnow),
		mk(domain.TransportBus, "175", base.AddDate(0, 0, 2).Add(9*time.Hour), 20*time.Minute, domain.ReasonWeather, domain.WeatherClear),
		mk(domain.TransportTrain, "S1", base.AddDate(0, 1, 0), 5*time.Minute, domain.ReasonSignal, domain.WeatherClear),
	}

	s := Compute(incidents, base)
	if s.Incidents != 4 {
		t.Errorf("Incidents = %d", s.Incidents)
	}
	if s.HourHistogram[8] != 3 || s.HourHistogram[17] != 1 {
		t.Errorf("HourHistogram = %v", s.HourHistogram)
	}
	if s.MonthHistogram[0] != 3 || s.MonthHistogram[1] != 1 {
		t.Errorf("MonthHistogram = %v", s.MonthHistogram)
	}

	if len(s.WeatherImpact) != 2 || s.WeatherImpact[0].Weather != domain.WeatherClear || s.WeatherImpact[1].Weather != domain.WeatherSnow {
		t.Fatalf("WeatherImpact = %+v", s.WeatherImpact)
	}
	if s.WeatherImpact[1].Count != 2 || s.WeatherImpact[1].MeanDuration != 1200 {
		t.Errorf("snow impact = %+v", s.WeatherImpact[1])
	}

	if len(s.Routes) != 2 {
		t.Fatalf("Routes = %+v", s.Routes)
	}
	bus := s.Routes[0]
	if bus.Route != "175" || bus.Count != 3 || bus.MeanDuration != 1200 {
		t.Errorf("bus summary = %+v", bus)
	}
	if bus.CommonReason != domain.ReasonTrafficAccident {
		t.Errorf("CommonReason = %s", bus.CommonReason)
	}
	if bus.WorstSeverity != domain.SeveritySevere {
		t.Errorf("WorstSeverity = %s", bus.WorstSeverity)
	}
	if math.Abs(float64(bus.StdDevDuration)-math.Sqrt(240000)) > 1e-6 {
		t.Errorf("StdDevDuration = %v, expected %v", bus.StdDevDuration, math.Sqrt(240000))
	}

	if len(s.Reasons) != 3 {
		t.Errorf("Reasons = %+v", s.Reasons)
	}

	if s.Trend == nil {
		t.Fatal("expected a trend over a month of data")
	}
	if s.Trend.Days != 32 {
		t.Errorf("Trend.Days = %d, expected 32", s.Trend.Days)
	}
	if s.Trend.Slope >= 0 {
		t.Errorf("Trend.Slope = %v, expected a declining trend", s.Trend.Slope)
	}
}

func TestComputeEmpty(t *testing.T) {
	s := Compute(nil, time.Now())
	if s.Incidents != 0 || s.Trend != nil || len(s.Routes) != 0 {
		t.Errorf("Compute(nil) = %+v", s)
	}
}
