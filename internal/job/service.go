package job

import (
	"context"
	"strings"

	"github.com/mbourse/masi-api/internal/logging"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) RecoverStaleJobs(ctx context.Context) error {
	n, err := s.repo.RecoverStale(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log := logging.Named("job")
		log.Info().Int64("count", n).Msg("re-queued interrupted jobs")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, req GetJobRequest) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, req.ID)
}

func (s *Service) List(ctx context.Context, req ListJobsRequest) ([]Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, Filter{
		Kind:   Kind(req.Kind),
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Status: Status(req.Status),
	})
}
