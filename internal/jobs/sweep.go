package jobs

import (
	"context"

	"github.com/depthbomb/weathergoat-sub000/internal/scheduler"
	"github.com/depthbomb/weathergoat-sub000/internal/sweeper"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// SweepJob runs the message sweeper once a minute.
type SweepJob struct {
	sweeper *sweeper.Service
	log     logx.Logger
}

var _ scheduler.Job = (*SweepJob)(nil)

func NewSweepJob(sw *sweeper.Service, log logx.Logger) *SweepJob {
	return &SweepJob{sweeper: sw, log: log.With(logx.String("job", "sweep-messages"))}
}

func (j *SweepJob) Name() string         { return "sweep-messages" }
func (j *SweepJob) Pattern() string      { return "0 * * * * *" }
func (j *SweepJob) RunImmediately() bool { return true }

func (j *SweepJob) Execute(ctx context.Context) error {
	swept, failed, err := j.sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	if swept > 0 || failed > 0 {
		j.log.Info("sweep complete", logx.Int("swept", swept), logx.Int("failed", failed))
	}
	return nil
}
