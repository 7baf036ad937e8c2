package openmeteo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"transitrisk/internal/domain"
)

const (
	DefaultGeocodingURL = "https://geocoding-api.open-meteo.com/v1/search"
	DefaultForecastURL  = "https://api.open-meteo.com/v1/forecast"
)

var ErrLocationNotFound = errors.New("location not found")

type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Client reports current weather for named locations. Geocoding results are remembered for the
// life of the client.
type Client struct {
	geocodingURL string
	forecastURL  string
	country      string
	httpClient   *http.Client

	mu     sync.RWMutex
	coords map[string]Coordinates
}

type Options struct {
	GeocodingURL string
	ForecastURL  string
	// CountryCode narrows geocoding, e.g. "PL".
	CountryCode string
	Timeout     time.Duration
}

func New(opts Options) *Client {
	if opts.GeocodingURL == "" {
		opts.GeocodingURL = DefaultGeocodingURL
	}
	if opts.ForecastURL == "" {
		opts.ForecastURL = DefaultForecastURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Client{
		geocodingURL: opts.GeocodingURL,
		forecastURL:  opts.ForecastURL,
		country:      opts.CountryCode,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		coords: make(map[string]Coordinates),
	}
}

type geocodingResponse struct {
	Results []struct {
		Name      string  `json:"name"`
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"results"`
}

type forecastResponse struct {
	Current struct {
		Time        string `json:"time"`
		WeatherCode int    `json:"weather_code"`
	} `json:"current"`
	Error  bool   `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Weather returns the current condition at the location.
func (c *Client) Weather(ctx context.Context, location string) (domain.WeatherCondition, error) {
	coords, err := c.Geocode(ctx, location)
	if err != nil {
		return domain.WeatherUnknown, err
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%.4f", coords.Latitude))
	params.Set("longitude", fmt.Sprintf("%.4f", coords.Longitude))
	params.Set("current", "weather_code")

	var resp forecastResponse
	if err := c.getJSON(ctx, c.forecastURL, params, &resp); err != nil {
		return domain.WeatherUnknown, err
	}
	if resp.Error {
		return domain.WeatherUnknown, fmt.Errorf("API error: %s", resp.Reason)
	}
	return ConditionForCode(resp.Current.WeatherCode), nil
}

func (c *Client) Geocode(ctx context.Context, location string) (Coordinates, error) {
	name := strings.TrimSpace(location)
	if name == "" {
		return Coordinates{}, ErrLocationNotFound
	}
	cacheKey := strings.ToLower(name)

	c.mu.RLock()
	coords, ok := c.coords[cacheKey]
	c.mu.RUnlock()
	if ok {
		return coords, nil
	}

	params := url.Values{}
	params.Set("name", name)
	params.Set("count", "1")
	params.Set("format", "json")
	if c.country != "" {
		params.Set("countryCode", c.country)
	}

	var resp geocodingResponse
	if err := c.getJSON(ctx, c.geocodingURL, params, &resp); err != nil {
		return Coordinates{}, err
	}
	if len(resp.Results) == 0 {
		return Coordinates{}, fmt.Errorf("%w: %q", ErrLocationNotFound, name)
	}

	coords = Coordinates{Latitude: resp.Results[0].Latitude, Longitude: resp.Results[0].Longitude}
	c.mu.Lock()
	c.coords[cacheKey] = coords
	c.mu.Unlock()
	return coords, nil
}

func (c *Client) getJSON(ctx context.Context, base string, params url.Values, dst any) error {
	reqURL := fmt.Sprintf("%s?%s", base, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// ConditionForCode maps a WMO weather interpretation code.
func ConditionForCode(code int) domain.WeatherCondition {
	switch {
	case code == 0:
		return domain.WeatherClear
	case code >= 1 && code <= 3:
		return domain.WeatherCloudy
	case code == 45 || code == 48:
		return domain.WeatherFog
	case code == 56 || code == 57 || code == 66 || code == 67:
		return domain.WeatherIce
	case code == 65 || code == 82:
		return domain.WeatherHeavyRain
	case code >= 51 && code <= 64, code == 80 || code == 81:
		return domain.WeatherRain
	case code >= 71 && code <= 77, code == 85 || code == 86:
		return domain.WeatherSnow
	case code >= 95 && code <= 99:
		return domain.WeatherStorm
	}
	return domain.WeatherUnknown
}
