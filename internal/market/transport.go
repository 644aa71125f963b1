package market

import (
	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/validation"
)

const (
	DefaultCompanyLimit = 200
	DefaultHistoryLimit = 500
	DefaultPeriod       = "month"
)

type CompanyQuery struct {
	Symbol string `query:"symbol" validate:"omitempty,max=32"`
	Date   string `query:"date"`
	Limit  int    `query:"limit" validate:"min=1,max=5000"`
	Offset int    `query:"offset" validate:"min=0"`
}

func (q CompanyQuery) Validate() *apperror.AppError { return validation.Struct(q) }

type CompanyHistoryQuery struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Period string `query:"period" validate:"omitempty,period"`
	From   string `query:"from" validate:"omitempty,instant"`
	To     string `query:"to" validate:"omitempty,instant"`
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

func (q CompanyHistoryQuery) Validate() *apperror.AppError { return validation.Struct(q) }

type VariationsQuery struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Limit  int    `query:"limit" validate:"min=1,max=5000"`
}

func (q VariationsQuery) Validate() *apperror.AppError { return validation.Struct(q) }

type HistoryQuery struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	From   string `query:"time_from" validate:"omitempty,instant"`
	To     string `query:"time_to" validate:"omitempty,instant"`
	Order  string `query:"order" validate:"omitempty,oneof=asc desc"`
	Limit  int    `query:"limit" validate:"min=1,max=10000"`
	Offset int    `query:"offset" validate:"min=0"`
	Format string `query:"format" validate:"omitempty,oneof=json csv"`
}

func (q HistoryQuery) Validate() *apperror.AppError { return validation.Struct(q) }

type CandlesQuery struct {
	Symbol string `query:"symbol" validate:"required,max=32"`
	Period string `query:"period" validate:"required,period"`
}

func (q CandlesQuery) Validate() *apperror.AppError { return validation.Struct(q) }

type HealthResponse struct {
	Status string `json:"status"`
	DBPath string `json:"db_path"`
	Exists bool   `json:"exists"`
}

type InfoResponse struct {
	DBPath string            `json:"db_path"`
	Tables []string          `json:"tables"`
	Counts map[string]*int64 `json:"counts"`
}

type SymbolsResponse struct {
	Count   int      `json:"count"`
	Symbols []string `json:"symbols"`
}

type SnapshotResponse struct {
	Date  *string   `json:"date"`
	Rows  []Company `json:"rows"`
	Count int       `json:"count"`
}

type RowsResponse[T any] struct {
	Count int `json:"count"`
	Rows  []T `json:"rows"`
}

type CompanyHistoryResponse struct {
	Symbol string    `json:"symbol"`
	Period string    `json:"period,omitempty"`
	From   string    `json:"from,omitempty"`
	To     string    `json:"to,omitempty"`
	Count  int       `json:"count"`
	Rows   []Company `json:"rows"`
}

type IndicesResponse struct {
	Source     string `json:"source"`
	DateOrTime string `json:"date_or_time"`
	Rows       any    `json:"rows"`
}

type CandlesResponse struct {
	Symbol string   `json:"symbol"`
	Period string   `json:"period"`
	Source string   `json:"source"`
	Count  int      `json:"count"`
	Rows   []Candle `json:"rows"`
}
