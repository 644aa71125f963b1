package job

import (
	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/validation"
)

type GetJobRequest struct {
	ID int64
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID <= 0 {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}

type ListJobsRequest struct {
	Kind   string `query:"kind" validate:"omitempty,oneof=snapshot history"`
	Symbol string `query:"symbol" validate:"omitempty,max=32"`
	Status string `query:"status" validate:"omitempty,oneof=pending running completed failed"`
}

func (r ListJobsRequest) Validate() *apperror.AppError {
	return validation.Struct(r)
}
