package refresh

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbourse/masi-api/internal/logging"
)

// Scheduler queues a snapshot job on every tick of its interval.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	log      zerolog.Logger
}

func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	return &Scheduler{svc: svc, interval: interval, log: logging.Named("scheduler")}
}

// Run blocks until ctx is cancelled. A non-positive interval returns at once.
func (s *Scheduler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	s.log.Info().Dur("interval", s.interval).Msg("snapshot scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j, err := s.svc.EnqueueSnapshot(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error().Err(err).Msg("enqueue snapshot")
				continue
			}
			s.log.Debug().Int64("job", j.ID).Str("status", string(j.Status)).Msg("snapshot queued")
		}
	}
}
