// Package sweeper tracks messages that must be deleted after a deadline and
// removes them once due.
package sweeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/depthbomb/weathergoat-sub000/internal/observability"
	"github.com/depthbomb/weathergoat-sub000/internal/platform"
	"github.com/depthbomb/weathergoat-sub000/internal/storage"
	"github.com/depthbomb/weathergoat-sub000/pkg/logx"
)

// Service owns the ephemeral-message ledger. Producers Enqueue a message with
// a deadline; Sweep deletes everything past due.
type Service struct {
	store   storage.Store
	adapter platform.Adapter
	clock   clockwork.Clock
	log     logx.Logger
	metrics *observability.Metrics
}

func New(store storage.Store, adapter platform.Adapter, clock clockwork.Clock, log logx.Logger, metrics *observability.Metrics) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{store: store, adapter: adapter, clock: clock, log: log, metrics: metrics}
}

// Enqueue records ref for deletion at expiresAt.
func (s *Service) Enqueue(ctx context.Context, ref platform.MessageRef, expiresAt time.Time) error {
	return s.store.CreateVolatileMessage(ctx, storage.VolatileMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		GuildID:   ref.GuildID,
		ChannelID: ref.ChannelID,
		MessageID: ref.ID,
		ExpiresAt: expiresAt,
	})
}

// Sweep deletes every recorded message whose deadline has passed. The ledger
// record is removed whether or not the platform delete succeeds: a message
// already gone upstream, or one we can no longer touch, must not be retried
// forever. Returns how many messages were deleted and how many platform
// deletes failed.
func (s *Service) Sweep(ctx context.Context) (swept, failed int, err error) {
	due, err := s.store.DueVolatileMessages(ctx, s.clock.Now())
	if err != nil {
		return 0, 0, err
	}

	for _, m := range due {
		if derr := s.adapter.DeleteMessage(ctx, m.ChannelID, m.MessageID); derr != nil {
			if !platform.IsNotFound(derr) {
				failed++
				if s.metrics != nil {
					s.metrics.SweepErrors.Inc()
				}
				s.log.Warn("failed to delete expired message",
					logx.String("channel_id", m.ChannelID),
					logx.String("message_id", m.MessageID),
					logx.Err(derr))
			}
		} else {
			swept++
			if s.metrics != nil {
				s.metrics.MessagesSwept.Inc()
			}
		}

		if rerr := s.store.DeleteVolatileMessage(ctx, m.ID); rerr != nil {
			s.log.Error("failed to remove volatile message record",
				logx.String("id", m.ID), logx.Err(rerr))
		}
	}
	return swept, failed, nil
}
