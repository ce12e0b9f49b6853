package weather

import (
	"context"
	"time"

	"github.com/depthbomb/weathergoat-sub000/internal/cache"
)

// LocationInfoTTL is how long resolved coordinate metadata is cached. Zone
// assignments and radar stations effectively never change for a coordinate.
const LocationInfoTTL = 7 * 24 * time.Hour

// CachedProvider wraps a Provider and serves LocationInfo from a TTL cache.
// Alerts and forecast periods are always fetched live; only the coordinate
// resolution step is cached.
type CachedProvider struct {
	inner     Provider
	locations *cache.Store
}

var _ Provider = (*CachedProvider)(nil)

func NewCachedProvider(inner Provider, locations *cache.Store) *CachedProvider {
	return &CachedProvider{inner: inner, locations: locations}
}

func (p *CachedProvider) ActiveAlerts(ctx context.Context, zoneID string) ([]Alert, error) {
	return p.inner.ActiveAlerts(ctx, zoneID)
}

// Forecast resolves the coordinate metadata through the cache and, when the
// inner provider can fetch by URL, reads the forecast from the cached
// ForecastURL without a fresh points lookup.
func (p *CachedProvider) Forecast(ctx context.Context, latitude, longitude string) (ForecastPeriod, error) {
	f, ok := p.inner.(ForecastURLFetcher)
	if !ok {
		return p.inner.Forecast(ctx, latitude, longitude)
	}
	info, err := p.LocationInfo(ctx, latitude, longitude)
	if err != nil {
		return ForecastPeriod{}, err
	}
	return f.ForecastAtURL(ctx, info.ForecastURL)
}

func (p *CachedProvider) LocationInfo(ctx context.Context, latitude, longitude string) (LocationInfo, error) {
	key := latitude + "," + longitude
	if v, ok := p.locations.Get(key); ok {
		return v.(LocationInfo), nil
	}
	info, err := p.inner.LocationInfo(ctx, latitude, longitude)
	if err != nil {
		return LocationInfo{}, err
	}
	p.locations.SetTTL(key, info, LocationInfoTTL)
	return info, nil
}
