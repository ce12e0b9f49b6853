package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/depthbomb/weathergoat-sub000/internal/build"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// StatusJob keeps the bot's presence text showing uptime and build identity.
type StatusJob struct {
	adapter   platform.Adapter
	clock     clockwork.Clock
	log       logx.Logger
	startedAt time.Time
	commit    string
}

var _ scheduler.Job = (*StatusJob)(nil)

func NewStatusJob(adapter platform.Adapter, clock clockwork.Clock, log logx.Logger) *StatusJob {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StatusJob{
		adapter:   adapter,
		clock:     clock,
		log:       log.With(logx.String("job", "update-status")),
		startedAt: clock.Now(),
		commit:    build.CommitHash(),
	}
}

func (j *StatusJob) Name() string         { return "update-status" }
func (j *StatusJob) Pattern() string      { return "*/15 * * * * *" }
func (j *StatusJob) RunImmediately() bool { return true }

func (j *StatusJob) Execute(ctx context.Context) error {
	uptime := j.clock.Now().Sub(j.startedAt).Truncate(time.Second)
	return j.adapter.SetPresence(ctx, platform.Presence{
		Status:   "online",
		Activity: fmt.Sprintf("Up %s · %s", formatUptime(uptime), j.commit),
	})
}

func formatUptime(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if days == 0 {
		return fmt.Sprintf("%dh %dm", hours, int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
