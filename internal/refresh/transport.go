package refresh

import (
	"strings"
	"time"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/validation"
)

const DefaultHistorySource = "yahoo"

// HistoryRequest asks for a symbol's daily candles between From and To.
type HistoryRequest struct {
	Source string    `validate:"omitempty,max=32"`
	Symbol string    `validate:"required,max=32"`
	From   time.Time `validate:"required"`
	To     time.Time
}

func (r *HistoryRequest) normalize(today time.Time) {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Source == "" {
		r.Source = DefaultHistorySource
	}
	if r.To.IsZero() {
		r.To = today
	}
	r.From = r.From.UTC().Truncate(24 * time.Hour)
	r.To = r.To.UTC().Truncate(24 * time.Hour)
}

func (r HistoryRequest) Validate() *apperror.AppError {
	if err := validation.Struct(r); err != nil {
		return err
	}
	if r.From.After(r.To) {
		return apperror.New(apperror.BadRequest, "from must not be after to")
	}
	return nil
}
