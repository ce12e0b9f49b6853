package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthbomb/weathergoat-sub000/internal/queue"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

func newRadarJob(t *testing.T, h *harness) (*RadarJob, *queue.Queue) {
	t.Helper()
	q := queue.New("radar", time.Millisecond, nil, logx.Nop())
	t.Cleanup(q.Close)
	return NewRadarJob(h.store, h.adapter, q, h.clock, logx.Nop(), h.metrics), q
}

func seedRadarChannel(t *testing.T, h *harness, rc storage.RadarChannel) storage.RadarChannel {
	t.Helper()
	h.adapter.AddChannel(rc.ChannelID, rc.GuildID)
	h.adapter.Seed(rc.ChannelID, rc.MessageID)
	require.NoError(t, h.store.CreateRadarChannel(context.Background(), rc))
	return rc
}

func TestRadarEditsTrackedMessage(t *testing.T) {
	h := newHarness(t)
	rc := seedRadarChannel(t, h, storage.RadarChannel{
		ID: "rc1", Latitude: "32.7767", Longitude: "-96.7970",
		GuildID: "g1", ChannelID: "c1", MessageID: "m1",
		Location: "Dallas, TX", RadarStation: "KFWS",
		RadarImageURL: "https://radar.weather.gov/ridge/standard/KFWS_loop.gif",
	})

	job, _ := newRadarJob(t, h)
	require.NoError(t, job.Execute(context.Background()))

	require.Eventually(t, func() bool { return len(h.adapter.Edits()) == 1 }, time.Second, 5*time.Millisecond)
	edit := h.adapter.Edits()[0]
	assert.Equal(t, rc.MessageID, edit.MessageID)
	require.NotNil(t, edit.Msg.Embed)
	assert.Contains(t, edit.Msg.Embed.ImageURL, "KFWS_loop.gif?t=")
	assert.Contains(t, edit.Msg.Embed.Description, "Last updated")
	assert.Contains(t, edit.Msg.Embed.Description, "Next update")
	// No resend: edits only.
	assert.Empty(t, h.adapter.Sent())
}

func TestRadarSelfHealsWhenMessageGone(t *testing.T) {
	h := newHarness(t)
	h.adapter.AddChannel("c1", "g1")
	// Record exists but the tracked message was deleted out from under us.
	require.NoError(t, h.store.CreateRadarChannel(context.Background(), storage.RadarChannel{
		ID: "rc1", Latitude: "32.7767", Longitude: "-96.7970",
		GuildID: "g1", ChannelID: "c1", MessageID: "m-gone",
		Location: "Dallas, TX", RadarStation: "KFWS",
		RadarImageURL: "https://radar.weather.gov/ridge/standard/KFWS_loop.gif",
	}))

	job, _ := newRadarJob(t, h)
	require.NoError(t, job.Execute(context.Background()))

	require.Eventually(t, func() bool {
		channels, err := h.store.RadarChannels(context.Background())
		return err == nil && len(channels) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRadarEditsGoThroughQueue(t *testing.T) {
	h := newHarness(t)
	for _, id := range []string{"c1", "c2", "c3"} {
		seedRadarChannel(t, h, storage.RadarChannel{
			ID: "rc" + id, Latitude: "32.7767", Longitude: "-96.7970",
			GuildID: "g1", ChannelID: id, MessageID: "m" + id,
			Location: "Dallas, TX", RadarStation: "KFWS",
			RadarImageURL: "https://radar.weather.gov/ridge/standard/KFWS_loop.gif",
		})
	}

	q := queue.New("radar", 30*time.Millisecond, nil, logx.Nop())
	t.Cleanup(q.Close)
	job := NewRadarJob(h.store, h.adapter, q, h.clock, logx.Nop(), h.metrics)

	start := time.Now()
	require.NoError(t, job.Execute(context.Background()))
	require.Eventually(t, func() bool { return len(h.adapter.Edits()) == 3 }, 2*time.Second, 5*time.Millisecond)

	// Three edits with a 30ms inter-item delay cannot complete as a burst.
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}
