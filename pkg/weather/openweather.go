package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

const defaultOpenWeatherURL = "https://api.openweathermap.org"

// OpenWeatherConfig configures the OpenWeatherMap One Call client.
type OpenWeatherConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// OpenWeatherProvider reads current humidity, temperature and rain plus the
// next-hour minutely precipitation from the One Call 2.5 endpoint.
type OpenWeatherProvider struct {
	cfg     OpenWeatherConfig
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[Snapshot]
}

func NewOpenWeatherProvider(cfg OpenWeatherConfig) *OpenWeatherProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenWeatherURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[Snapshot](gobreaker.Settings{
		Name:        "openweathermap",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// missing credentials say nothing about upstream health
			return err == nil || resilience.IsPermanent(err)
		},
	})
	return &OpenWeatherProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		breaker: cb,
	}
}

func (p *OpenWeatherProvider) Name() string { return "openweathermap" }

func (p *OpenWeatherProvider) Fetch(ctx context.Context, lat, lon float64) (Snapshot, error) {
	if p.cfg.APIKey == "" {
		return Snapshot{}, NotConfigured(p.Name())
	}
	snap, err := p.breaker.Execute(func() (Snapshot, error) {
		return p.fetch(ctx, lat, lon)
	})
	if err != nil {
		return Snapshot{}, errorsx.Wrap(err, errorsx.ReasonWeatherFetch)
	}
	return snap, nil
}

type oneCallResponse struct {
	Current struct {
		Humidity *float64          `json:"humidity"`
		Temp     *float64          `json:"temp"`
		Rain     map[string]float64 `json:"rain"`
	} `json:"current"`
	Minutely []struct {
		Precipitation float64 `json:"precipitation"`
	} `json:"minutely"`
}

func (p *OpenWeatherProvider) fetch(ctx context.Context, lat, lon float64) (Snapshot, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("exclude", "daily,alerts")
	q.Set("units", "metric")
	q.Set("appid", p.cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.BaseURL+"/data/2.5/onecall?"+q.Encode(), nil)
	if err != nil {
		return Snapshot{}, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return Snapshot{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Snapshot{}, resilience.RateLimitError{Provider: p.Name(), Message: string(body)}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Snapshot{}, resilience.Permanent(fmt.Errorf("openweathermap returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return Snapshot{}, fmt.Errorf("openweathermap returned %d", resp.StatusCode)
	}

	var payload oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return Snapshot{}, errorsx.Wrap(fmt.Errorf("decode onecall: %w", err), errorsx.ReasonWeatherDecode)
	}
	snap := Snapshot{
		Humidity:     payload.Current.Humidity,
		TemperatureC: payload.Current.Temp,
	}
	if v, ok := payload.Current.Rain["1h"]; ok {
		snap.RainLastHourMm = Float(v)
	}
	if len(payload.Minutely) > 0 {
		n := len(payload.Minutely)
		if n > 60 {
			n = 60
		}
		total := 0.0
		for _, m := range payload.Minutely[:n] {
			total += m.Precipitation
		}
		snap.RainNextHourMm = Float(total)
	}
	return snap, nil
}
