package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/casevend/kiosk-server-go/internal/config"
	"github.com/casevend/kiosk-server-go/internal/repository"
)

// CleanupJob expires overdue sessions and prunes terminal rows. Sessions at
// payment_pending are never expired here: a paid callback must always find
// its session.
type CleanupJob struct {
	sessions repository.SessionRepository
	mappings repository.PaymentMappingRepository
	interval time.Duration
	done     chan struct{}
}

func NewCleanupJob(
	sessions repository.SessionRepository,
	mappings repository.PaymentMappingRepository,
	interval time.Duration,
) *CleanupJob {
	return &CleanupJob{
		sessions: sessions,
		mappings: mappings,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.runCleanup(ctx, "overdue sessions", j.sessions.ExpireOverdue)
	j.runCleanup(ctx, "terminal sessions", func(ctx context.Context) (int64, error) {
		return j.sessions.DeleteTerminal(ctx, time.Now().Add(-config.TerminalSessionRetention))
	})
	j.runCleanup(ctx, "payment mappings", func(ctx context.Context) (int64, error) {
		return j.mappings.DeleteOlderThan(ctx, time.Now().Add(-config.PaymentMappingRetention))
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
