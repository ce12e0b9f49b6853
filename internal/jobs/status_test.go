package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

func TestStatusUpdatesPresence(t *testing.T) {
	h := newHarness(t)
	job := NewStatusJob(h.adapter, h.clock, logx.Nop())

	h.clock.Advance(90 * time.Minute)
	require.NoError(t, job.Execute(context.Background()))

	presences := h.adapter.Presences()
	require.Len(t, presences, 1)
	assert.Equal(t, "online", presences[0].Status)
	assert.Contains(t, presences[0].Activity, "Up 1h 30m")
	assert.NotEmpty(t, job.commit)
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h 30m"},
		{26 * time.Hour, "1d 2h"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, formatUptime(tc.d))
	}
}

func TestSweepJobDelegates(t *testing.T) {
	h := newHarness(t)
	h.adapter.AddChannel("c1", "g1")
	h.adapter.Seed("c1", "m1")
	require.NoError(t, h.sweeper.Enqueue(context.Background(), refFor("c1", "m1"), h.clock.Now().Add(time.Minute)))
	h.clock.Advance(2 * time.Minute)

	job := NewSweepJob(h.sweeper, logx.Nop())
	require.NoError(t, job.Execute(context.Background()))
	assert.False(t, h.adapter.Has("c1", "m1"))
}
