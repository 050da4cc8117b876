// Package weather provides a cached weather lookup for farm locations and a
// pure risk scorer over the returned readings.
package weather

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/harunnryd/agronomist/pkg/cache"
	"github.com/harunnryd/agronomist/pkg/logging"
	"github.com/harunnryd/agronomist/pkg/metrics"
	"github.com/harunnryd/agronomist/pkg/resilience"
)

const DefaultPrecision = 2

// Service caches provider readings per rounded location.
type Service struct {
	provider  Provider
	cache     *cache.TTL[Key, Snapshot]
	group     singleflight.Group
	retry     resilience.RetryConfig
	precision int
	now       func() time.Time
	log       *slog.Logger
	obs       metrics.Observer
}

type serviceOptions struct {
	ttl       time.Duration
	precision int
	now       func() time.Time
	retry     resilience.RetryConfig
	log       *slog.Logger
	obs       metrics.Observer
}

// Option configures a Service.
type Option func(*serviceOptions)

func WithTTL(ttl time.Duration) Option {
	return func(o *serviceOptions) { o.ttl = ttl }
}

func WithPrecision(decimals int) Option {
	return func(o *serviceOptions) {
		if decimals >= 0 {
			o.precision = decimals
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithRetry overrides the fetch retry policy (3 attempts, 1s/2s backoff).
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(o *serviceOptions) { o.retry = cfg }
}

func WithLogger(log *slog.Logger) Option {
	return func(o *serviceOptions) { o.log = log }
}

func WithObserver(obs metrics.Observer) Option {
	return func(o *serviceOptions) { o.obs = obs }
}

func NewService(provider Provider, opts ...Option) *Service {
	o := serviceOptions{
		ttl:       cache.DefaultTTL,
		precision: DefaultPrecision,
		now:       time.Now,
		retry: resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   time.Second,
			MaxDelay:    4 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return &Service{
		provider:  provider,
		cache:     cache.New[Key, Snapshot](o.ttl, cache.WithClock(o.now)),
		retry:     o.retry,
		precision: o.precision,
		now:       o.now,
		log:       logging.NewComponentLogger(o.log, "weather"),
		obs:       metrics.OrNoop(o.obs),
	}
}

// Get returns the cached snapshot for the rounded location, fetching it
// when missing or expired. It never fails: exhausted retries yield the
// Unavailable snapshot, which is not cached.
func (s *Service) Get(ctx context.Context, lat, lon float64) Snapshot {
	key := KeyFor(lat, lon, s.precision)
	if snap, ok := s.cache.Get(key); ok {
		s.log.Debug("weather cache hit", slog.String("key", key.String()))
		s.record(metrics.EventCacheHit, key, nil)
		return snap
	}
	s.record(metrics.EventCacheMiss, key, nil)

	v, _, _ := s.group.Do(key.String(), func() (any, error) {
		// a concurrent flight may have filled the entry already
		if snap, ok := s.cache.Get(key); ok {
			return snap, nil
		}
		return s.fetch(ctx, key), nil
	})
	return v.(Snapshot)
}

// Clear drops all cached readings.
func (s *Service) Clear() { s.cache.Clear() }

// Cached reports the number of stored readings.
func (s *Service) Cached() int { return s.cache.Len() }

func (s *Service) fetch(ctx context.Context, key Key) Snapshot {
	if s.provider == nil {
		return NoData()
	}
	retry := s.retry
	retry.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.log.Warn("weather fetch failed, retrying",
			slog.String("provider", s.provider.Name()),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()))
	}
	start := s.now()
	snap, err := resilience.Retry(ctx, retry, func(ctx context.Context) (Snapshot, error) {
		return s.provider.Fetch(ctx, key.Lat, key.Lon)
	})
	if err != nil {
		s.record(metrics.EventWeatherFetch, key, err)
		if errors.Is(err, ErrNotConfigured) {
			s.log.Debug("weather provider not configured", slog.String("provider", s.provider.Name()))
			return NoData()
		}
		s.log.Warn("weather unavailable",
			slog.String("provider", s.provider.Name()),
			slog.String("key", key.String()),
			slog.String("error", err.Error()))
		return Unavailable()
	}
	snap.Available = true
	snap.FetchedAt = s.now()
	snap.Summary = Summarize(snap)
	s.cache.Set(key, snap)
	s.record(metrics.EventWeatherFetch, key, nil)
	s.log.Info("weather fetched",
		slog.String("provider", s.provider.Name()),
		slog.String("key", key.String()),
		slog.Duration("took", s.now().Sub(start)))
	return snap
}

func (s *Service) record(name string, key Key, err error) {
	tags := map[string]string{"key": key.String()}
	if s.provider != nil {
		tags["provider"] = s.provider.Name()
	}
	value := 1.0
	if err != nil {
		tags["error"] = err.Error()
		value = 0
	}
	s.obs.RecordEvent(metrics.MetricsEvent{Name: name, Time: s.now(), Value: value, Tags: tags})
}
