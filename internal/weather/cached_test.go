package weather

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthbomb/weathergoat-sub000/internal/cache"
)

type countingProvider struct {
	locationCalls int
	alertCalls    int
	forecastCalls int
}

func (p *countingProvider) ActiveAlerts(ctx context.Context, zoneID string) ([]Alert, error) {
	p.alertCalls++
	return nil, nil
}

func (p *countingProvider) Forecast(ctx context.Context, latitude, longitude string) (ForecastPeriod, error) {
	p.forecastCalls++
	return ForecastPeriod{Name: "Tonight"}, nil
}

func (p *countingProvider) LocationInfo(ctx context.Context, latitude, longitude string) (LocationInfo, error) {
	p.locationCalls++
	return LocationInfo{
		Latitude:    latitude,
		Longitude:   longitude,
		ZoneID:      "TXZ211",
		ForecastURL: "https://api.weather.gov/gridpoints/FWD/88,104/forecast",
	}, nil
}

// urlProvider additionally supports direct forecast-URL fetches.
type urlProvider struct {
	countingProvider
	urlCalls int
	lastURL  string
}

func (p *urlProvider) ForecastAtURL(ctx context.Context, forecastURL string) (ForecastPeriod, error) {
	p.urlCalls++
	p.lastURL = forecastURL
	return ForecastPeriod{Name: "This Afternoon"}, nil
}

func TestCachedProviderServesLocationInfoFromCache(t *testing.T) {
	clk := clockwork.NewFakeClock()
	inner := &countingProvider{}
	p := NewCachedProvider(inner, cache.NewStore("locations", LocationInfoTTL, clk))
	ctx := context.Background()

	first, err := p.LocationInfo(ctx, "32.7767", "-96.7970")
	require.NoError(t, err)
	second, err := p.LocationInfo(ctx, "32.7767", "-96.7970")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.locationCalls)

	// A different coordinate pair is its own entry.
	_, err = p.LocationInfo(ctx, "29.7604", "-95.3698")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.locationCalls)
}

func TestCachedProviderRefetchesAfterTTL(t *testing.T) {
	clk := clockwork.NewFakeClock()
	inner := &countingProvider{}
	p := NewCachedProvider(inner, cache.NewStore("locations", LocationInfoTTL, clk))
	ctx := context.Background()

	_, err := p.LocationInfo(ctx, "32.7767", "-96.7970")
	require.NoError(t, err)

	clk.Advance(LocationInfoTTL + time.Minute)

	_, err = p.LocationInfo(ctx, "32.7767", "-96.7970")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.locationCalls)
}

func TestCachedProviderForecastUsesCachedLocation(t *testing.T) {
	clk := clockwork.NewFakeClock()
	inner := &urlProvider{}
	p := NewCachedProvider(inner, cache.NewStore("locations", LocationInfoTTL, clk))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		period, err := p.Forecast(ctx, "32.7767", "-96.7970")
		require.NoError(t, err)
		assert.Equal(t, "This Afternoon", period.Name)
	}

	assert.Equal(t, 1, inner.locationCalls, "coordinate resolution must come from the cache after the first call")
	assert.Equal(t, 3, inner.urlCalls, "forecast periods must be fetched fresh every time")
	assert.Equal(t, "https://api.weather.gov/gridpoints/FWD/88,104/forecast", inner.lastURL)
	assert.Zero(t, inner.forecastCalls)
}

func TestCachedProviderForecastFallsBackWithoutURLFetcher(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner, cache.NewStore("locations", LocationInfoTTL, clockwork.NewFakeClock()))

	period, err := p.Forecast(context.Background(), "32.7767", "-96.7970")
	require.NoError(t, err)
	assert.Equal(t, "Tonight", period.Name)
	assert.Equal(t, 1, inner.forecastCalls)
	assert.Zero(t, inner.locationCalls)
}

func TestCachedProviderNeverCachesAlerts(t *testing.T) {
	inner := &countingProvider{}
	p := NewCachedProvider(inner, cache.NewStore("locations", LocationInfoTTL, clockwork.NewFakeClock()))
	ctx := context.Background()

	_, _ = p.ActiveAlerts(ctx, "TXZ211")
	_, _ = p.ActiveAlerts(ctx, "TXZ211")
	assert.Equal(t, 2, inner.alertCalls)
}
