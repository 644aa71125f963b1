package job

import "context"

type Repository interface {
	Create(ctx context.Context, j *Job) error
	Update(ctx context.Context, j *Job) error
	Get(ctx context.Context, id int64) (*Job, error)
	List(ctx context.Context, f Filter) ([]Job, error)
	// FindActive returns a pending or running job equal to probe on kind,
	// source, symbol and dates, or nil.
	FindActive(ctx context.Context, probe *Job) (*Job, error)
	ClaimPending(ctx context.Context) (*Job, error)
	// Claim moves job id from pending to running. It reports false when the
	// job is missing or no longer pending.
	Claim(ctx context.Context, id int64) (bool, error)
	RecoverStale(ctx context.Context) (int64, error)
}
