package jobs

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/queue"
	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

const radarInterval = 5 * time.Minute

// RadarJob refreshes every tracked radar message in place. Edits go through
// a single shared queue so a tick over many channels never bursts the
// platform's edit route.
type RadarJob struct {
	store   storage.Store
	adapter platform.Adapter
	queue   *queue.Queue
	clock   clockwork.Clock
	log     logx.Logger
	metrics *observability.Metrics
}

var _ scheduler.Job = (*RadarJob)(nil)

func NewRadarJob(store storage.Store, adapter platform.Adapter, q *queue.Queue, clock clockwork.Clock, log logx.Logger, metrics *observability.Metrics) *RadarJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &RadarJob{
		store:   store,
		adapter: adapter,
		queue:   q,
		clock:   clock,
		log:     log.With(logx.String("job", "update-radar")),
		metrics: metrics,
	}
}

func (j *RadarJob) Name() string         { return "update-radar" }
func (j *RadarJob) Pattern() string      { return "0 */5 * * * *" }
func (j *RadarJob) RunImmediately() bool { return true }

func (j *RadarJob) Execute(ctx context.Context) error {
	channels, err := j.store.RadarChannels(ctx)
	if err != nil {
		return err
	}

	for _, rc := range channels {
		rc := rc
		j.queue.Enqueue(func(ctx context.Context) error {
			return j.refresh(ctx, rc)
		})
	}
	return nil
}

func (j *RadarJob) refresh(ctx context.Context, rc storage.RadarChannel) error {
	now := j.clock.Now()
	e := &platform.Embed{
		Title:       "Radar for " + rc.Location,
		Description: "Last updated: " + relativeTimestamp(now) + "\nNext update: " + relativeTimestamp(now.Add(radarInterval)),
		Color:       0x5876aa,
		ImageURL:    cacheBust(rc.RadarImageURL, now),
		FooterText:  rc.RadarStation,
	}

	err := j.adapter.EditMessage(ctx, rc.ChannelID, rc.MessageID, platform.Message{Embed: e})
	if err == nil {
		if j.metrics != nil {
			j.metrics.RadarEdits.Inc()
		}
		return nil
	}
	if platform.IsNotFound(err) {
		// Someone deleted the channel or the message; drop the record instead
		// of failing this way every five minutes forever.
		j.log.Info("radar target is gone, removing record",
			logx.String("id", rc.ID),
			logx.String("channel_id", rc.ChannelID),
			logx.String("message_id", rc.MessageID))
		return j.store.DeleteRadarChannel(ctx, rc.ID)
	}
	return err
}
