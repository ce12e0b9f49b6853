package jobs

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/platform/platformtest"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/internal/sweeper"
	"github.com/depthbomb/weathergoat-sub000/internal/weather"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// fakeProvider returns canned data keyed by zone/coordinates.
type fakeProvider struct {
	alertsByZone  map[string][]weather.Alert
	alertsErr     error
	forecast      weather.ForecastPeriod
	locationsByXY map[string]weather.LocationInfo
}

func (p *fakeProvider) ActiveAlerts(ctx context.Context, zoneID string) ([]weather.Alert, error) {
	if p.alertsErr != nil {
		return nil, p.alertsErr
	}
	return p.alertsByZone[zoneID], nil
}

func (p *fakeProvider) Forecast(ctx context.Context, latitude, longitude string) (weather.ForecastPeriod, error) {
	return p.forecast, nil
}

func (p *fakeProvider) LocationInfo(ctx context.Context, latitude, longitude string) (weather.LocationInfo, error) {
	if info, ok := p.locationsByXY[latitude+","+longitude]; ok {
		return info, nil
	}
	return weather.LocationInfo{Latitude: latitude, Longitude: longitude, Location: "Dallas, TX"}, nil
}

type harness struct {
	store    storage.Store
	adapter  *platformtest.Adapter
	provider *fakeProvider
	sweeper  *sweeper.Service
	clock    *clockwork.FakeClock
	metrics  *observability.Metrics
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "weathergoat.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	adapter := platformtest.New()
	// Storage persists timestamps at millisecond precision, so seed the
	// fake clock with a millisecond-aligned time to keep round-trip
	// comparisons exact.
	clk := clockwork.NewFakeClockAt(time.Now().Truncate(time.Millisecond))
	metrics := observability.NewMetricsForTesting()
	return &harness{
		store:    st,
		adapter:  adapter,
		provider: &fakeProvider{alertsByZone: map[string][]weather.Alert{}, locationsByXY: map[string]weather.LocationInfo{}},
		sweeper:  sweeper.New(st, adapter, clk, logx.Nop(), metrics),
		clock:    clk,
		metrics:  metrics,
	}
}

func (h *harness) alertDestination(t *testing.T, d storage.AlertDestination) storage.AlertDestination {
	t.Helper()
	if d.ID == "" {
		d.ID = "dest-" + d.ChannelID
	}
	h.adapter.AddChannel(d.ChannelID, d.GuildID)
	require.NoError(t, h.store.CreateAlertDestination(context.Background(), d))
	return d
}

func severeAlert(id string) weather.Alert {
	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	return weather.Alert{
		ID:          id,
		Event:       "Severe Thunderstorm Warning",
		Headline:    "Severe Thunderstorm Warning issued",
		Description: "Quarter size hail and 60 mph wind gusts.",
		AreaDesc:    "Dallas, TX",
		SenderName:  "NWS Fort Worth TX",
		Status:      weather.StatusActual,
		MessageType: weather.MessageTypeAlert,
		Severity:    weather.SeveritySevere,
		Certainty:   "Likely",
		Urgency:     "Expected",
		Sent:        base,
		Effective:   base,
		Expires:     base.Add(6 * time.Hour),
	}
}

func refFor(channelID, messageID string) platform.MessageRef {
	return platform.MessageRef{ID: messageID, ChannelID: channelID, GuildID: "g1"}
}
