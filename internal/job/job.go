package job

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Kind selects what a job refreshes.
type Kind string

const (
	// KindSnapshot refreshes the market-wide Company snapshot for today.
	KindSnapshot Kind = "snapshot"
	// KindHistory backfills stock_history candles for one symbol.
	KindHistory Kind = "history"
)

// Job is one refresh request. Snapshot jobs carry no symbol or dates.
type Job struct {
	ID           int64     `json:"id"`
	Kind         Kind      `json:"kind"`
	Source       string    `json:"source"`
	Symbol       string    `json:"symbol,omitempty"`
	StartDate    time.Time `json:"startDate,omitzero"`
	EndDate      time.Time `json:"endDate,omitzero"`
	Status       Status    `json:"status"`
	Error        string    `json:"error,omitempty"`
	RecordsCount int64     `json:"recordsCount"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Filter narrows List. Empty fields match everything.
type Filter struct {
	Kind   Kind
	Symbol string
	Status Status
}
