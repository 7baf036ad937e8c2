package openmeteo

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"transitrisk/internal/domain"
)

func TestConditionForCode(t *testing.T) {
	tests := []struct {
		code int
		want domain.WeatherCondition
	}{
		{0, domain.WeatherClear},
		{2, domain.WeatherCloudy},
		{45, domain.WeatherFog},
		{53, domain.WeatherRain},
		{57, domain.WeatherIce},
		{63, domain.WeatherRain},
		{65, domain.WeatherHeavyRain},
		{67, domain.WeatherIce},
		{73, domain.WeatherSnow},
		{81, domain.WeatherRain},
		{82, domain.WeatherHeavyRain},
		{86, domain.WeatherSnow},
		{96, domain.WeatherStorm},
		{42, domain.WeatherUnknown},
	}
	for _, tt := range tests {
		if got := ConditionForCode(tt.code); got != tt.want {
			t.Errorf("ConditionForCode(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func newServer(t *testing.T, geocodeBody string, weatherCode string, geocodeCalls *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		geocodeCalls.Add(1)
		if r.URL.Query().Get("name") == "" {
			http.Error(w, "missing name", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(geocodeBody))
	})
	mux.HandleFunc("/forecast", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("current") != "weather_code" {
			http.Error(w, "missing current", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"time":"2025-01-06T08:00","weather_code":` + weatherCode + `}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestWeather(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, `{"results":[{"name":"Otwock","latitude":52.105,"longitude":21.261}]}`, "75", &calls)
	c := New(Options{GeocodingURL: srv.URL + "/search", ForecastURL: srv.URL + "/forecast", CountryCode: "PL"})

	for i := 0; i < 2; i++ {
		w, err := c.Weather(context.Background(), "Otwock")
		if err != nil {
			t.Fatalf("Weather: %v", err)
		}
		if w != domain.WeatherSnow {
			t.Errorf("Weather = %s, want snow", w)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("geocoded %d times, want 1", calls.Load())
	}
}

func TestWeatherUnknownLocation(t *testing.T) {
	var calls atomic.Int32
	srv := newServer(t, `{}`, "0", &calls)
	c := New(Options{GeocodingURL: srv.URL + "/search", ForecastURL: srv.URL + "/forecast"})

	w, err := c.Weather(context.Background(), "Atlantis")
	if !errors.Is(err, ErrLocationNotFound) {
		t.Fatalf("err = %v, want ErrLocationNotFound", err)
	}
	if w != domain.WeatherUnknown {
		t.Errorf("Weather = %s", w)
	}

	if _, err := c.Geocode(context.Background(), "  "); !errors.Is(err, ErrLocationNotFound) {
		t.Errorf("blank location err = %v", err)
	}
}

func TestWeatherServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(Options{GeocodingURL: srv.URL, ForecastURL: srv.URL})

	if _, err := c.Weather(context.Background(), "Warszawa"); err == nil {
		t.Fatal("expected error")
	}
}
