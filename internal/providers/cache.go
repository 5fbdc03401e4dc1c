package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"skipper/internal/config"
	"skipper/internal/types"
)

// WeatherSource is the upstream a CachedWeatherProvider wraps.
type WeatherSource interface {
	GetWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherConditions, error)
}

// TrailSource is the upstream a CachedTrailProvider wraps.
type TrailSource interface {
	GetTrailConditions(ctx context.Context, locationName string) (*types.TrailCondition, error)
}

// NewRedisClient creates a Redis client from config, or nil when no address
// is configured. A nil client means providers are called directly.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	if cfg.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Reveal(),
		DB:       cfg.DB,
	})
}

// CachedWeatherProvider is a read-through cache over a WeatherSource.
// Forecasts change slowly relative to how often routines run, so a short TTL
// keeps repeated evaluations of the same venue from hammering the upstream.
// Any cache failure degrades to a direct fetch; the cache can never make an
// evaluation fail that would otherwise succeed.
type CachedWeatherProvider struct {
	inner  WeatherSource
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedWeatherProvider wraps inner with a Redis cache. Passing a nil
// client returns a provider that always fetches directly.
func NewCachedWeatherProvider(inner WeatherSource, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedWeatherProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedWeatherProvider{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// GetWeather returns cached conditions when fresh, otherwise fetches from the
// upstream and stores the result.
func (p *CachedWeatherProvider) GetWeather(ctx context.Context, lat, lon float64, at time.Time) (*types.WeatherConditions, error) {
	if p.rdb == nil {
		return p.inner.GetWeather(ctx, lat, lon, at)
	}

	key := weatherCacheKey(lat, lon, at)
	if data, err := p.rdb.Get(ctx, key).Bytes(); err == nil {
		var cached types.WeatherConditions
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return &cached, nil
		}
		// Corrupt entry; fall through to a fresh fetch which overwrites it.
	} else if err != redis.Nil {
		p.logger.WarnContext(ctx, "weather cache read failed, fetching direct", "error", err)
	}

	conditions, err := p.inner.GetWeather(ctx, lat, lon, at)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(conditions); jsonErr == nil {
		if err := p.rdb.Set(ctx, key, data, p.ttl).Err(); err != nil {
			p.logger.WarnContext(ctx, "weather cache write failed", "error", err)
		}
	}
	return conditions, nil
}

// CachedTrailProvider is a read-through cache over a TrailSource. A "no
// report" result (nil, nil) is cached too, as a tombstone, so venues without
// reports do not trigger a feed fetch on every evaluation.
type CachedTrailProvider struct {
	inner  TrailSource
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewCachedTrailProvider wraps inner with a Redis cache. Passing a nil client
// returns a provider that always fetches directly.
func NewCachedTrailProvider(inner TrailSource, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedTrailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedTrailProvider{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// trailTombstone marks a cached "venue has no report" result.
const trailTombstone = "none"

// GetTrailConditions returns the cached report for the venue when fresh,
// otherwise fetches from the feed and stores the result.
func (p *CachedTrailProvider) GetTrailConditions(ctx context.Context, locationName string) (*types.TrailCondition, error) {
	if p.rdb == nil {
		return p.inner.GetTrailConditions(ctx, locationName)
	}

	key := trailCacheKey(locationName)
	if data, err := p.rdb.Get(ctx, key).Bytes(); err == nil {
		if string(data) == trailTombstone {
			return nil, nil
		}
		var cached types.TrailCondition
		if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
			return &cached, nil
		}
	} else if err != redis.Nil {
		p.logger.WarnContext(ctx, "trail cache read failed, fetching direct", "error", err)
	}

	condition, err := p.inner.GetTrailConditions(ctx, locationName)
	if err != nil {
		return nil, err
	}

	payload := []byte(trailTombstone)
	if condition != nil {
		if data, jsonErr := json.Marshal(condition); jsonErr == nil {
			payload = data
		}
	}
	if err := p.rdb.Set(ctx, key, payload, p.ttl).Err(); err != nil {
		p.logger.WarnContext(ctx, "trail cache write failed", "error", err)
	}
	return condition, nil
}

// weatherCacheKey buckets by coordinate and hour so an evaluation at 6:05 and
// a re-run at 6:20 share the same entry.
func weatherCacheKey(lat, lon float64, at time.Time) string {
	return fmt.Sprintf("skipper:weather:%.4f,%.4f:%s", lat, lon, at.UTC().Format("2006-01-02T15"))
}

func trailCacheKey(locationName string) string {
	return "skipper:trails:" + normalizeVenue(locationName)
}
