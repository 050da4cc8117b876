package weather

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/harunnryd/agronomist/pkg/errorsx"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

// ErrNotConfigured is returned by providers that have no credentials.
var ErrNotConfigured = errors.New("weather provider not configured")

// Provider fetches a raw reading for a location.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, lat, lon float64) (Snapshot, error)
}

// NotConfigured builds the error providers return when they lack credentials.
// It is never retried.
func NotConfigured(provider string) error {
	return errorsx.Wrap(resilience.Permanent(fmt.Errorf("%s: %w", provider, ErrNotConfigured)), errorsx.ReasonWeatherNotConfigured)
}

// Key is a location rounded to a fixed number of decimals.
type Key struct {
	Lat float64
	Lon float64
}

func (k Key) String() string {
	return fmt.Sprintf("%g,%g", k.Lat, k.Lon)
}

// KeyFor rounds lat/lon to precision decimals.
func KeyFor(lat, lon float64, precision int) Key {
	return Key{Lat: round(lat, precision), Lon: round(lon, precision)}
}

func round(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}
