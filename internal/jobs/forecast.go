package jobs

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/internal/sweeper"
	"github.com/depthbomb/weathergoat-sub000/internal/weather"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// DefaultForecastCleanupAfter is how long forecast messages live under
// auto-cleanup before configuration says otherwise.
const DefaultForecastCleanupAfter = 4 * time.Hour

// ForecastJob posts the latest forecast period to every forecast destination
// once per hour.
type ForecastJob struct {
	store        storage.Store
	provider     weather.Provider
	adapter      platform.Adapter
	sweeper      *sweeper.Service
	clock        clockwork.Clock
	log          logx.Logger
	metrics      *observability.Metrics
	cleanupAfter time.Duration
}

var _ scheduler.Job = (*ForecastJob)(nil)

func NewForecastJob(store storage.Store, provider weather.Provider, adapter platform.Adapter, sw *sweeper.Service, clock clockwork.Clock, log logx.Logger, metrics *observability.Metrics, cleanupAfter time.Duration) *ForecastJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cleanupAfter <= 0 {
		cleanupAfter = DefaultForecastCleanupAfter
	}
	return &ForecastJob{
		store:        store,
		provider:     provider,
		adapter:      adapter,
		sweeper:      sw,
		clock:        clock,
		log:          log.With(logx.String("job", "report-forecasts")),
		metrics:      metrics,
		cleanupAfter: cleanupAfter,
	}
}

func (j *ForecastJob) Name() string         { return "report-forecasts" }
func (j *ForecastJob) Pattern() string      { return "0 0 * * * *" }
func (j *ForecastJob) RunImmediately() bool { return false }

func (j *ForecastJob) Execute(ctx context.Context) error {
	destinations, err := j.store.ForecastDestinations(ctx)
	if err != nil {
		return err
	}

	for _, d := range destinations {
		if err := j.reportTo(ctx, d); err != nil {
			j.log.Error("failed to post forecast",
				logx.String("destination_id", d.ID),
				logx.Err(err))
		}
	}
	return nil
}

func (j *ForecastJob) reportTo(ctx context.Context, d storage.ForecastDestination) error {
	ch, err := j.adapter.ResolveChannel(ctx, d.ChannelID)
	if err != nil {
		if platform.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !ch.Text {
		return nil
	}

	period, err := j.provider.Forecast(ctx, d.Latitude, d.Longitude)
	if err != nil {
		return err
	}
	// Location lookups hit the cache after the first tick per coordinate.
	info, err := j.provider.LocationInfo(ctx, d.Latitude, d.Longitude)
	if err != nil {
		return err
	}

	e := &platform.Embed{
		Title:        period.Name + "'s Forecast for " + info.Location,
		Description:  period.DetailedForecast,
		Color:        0x06b6d4,
		ThumbnailURL: period.Icon,
		FooterText:   period.ShortForecast,
		Timestamp:    j.clock.Now(),
	}
	if d.RadarImageURL != "" {
		e.ImageURL = cacheBust(d.RadarImageURL, j.clock.Now())
	}

	identity, err := j.adapter.GetOrCreateSenderIdentity(ctx, d.ChannelID, forecastIdentityName, identityReason)
	if err != nil {
		return err
	}
	ref, err := j.adapter.SendAs(ctx, identity, platform.Message{
		Embed: e,
		// Forecasts are informational; never buzz anyone's phone for them.
		SuppressNotifications: true,
	})
	if err != nil {
		return err
	}
	if j.metrics != nil {
		j.metrics.ForecastsPosted.Inc()
	}

	if d.AutoCleanup {
		if err := j.sweeper.Enqueue(ctx, ref, j.clock.Now().Add(j.cleanupAfter)); err != nil {
			j.log.Error("failed to schedule forecast cleanup",
				logx.String("destination_id", d.ID), logx.Err(err))
		}
	}
	return nil
}
