package market

import "context"

// Repository reads and writes the market tables. Implementations return rows
// unordered by date; ordering and date-range decisions are made by Service.
type Repository interface {
	Tables(ctx context.Context) ([]string, error)
	CountRows(ctx context.Context, table string) (int64, error)

	CompanySymbols(ctx context.Context) ([]string, error)
	HistorySymbols(ctx context.Context) ([]string, error)
	CompanyDates(ctx context.Context) ([]string, error)

	// CompaniesOn returns the rows stored with exactly this date text, by
	// symbol ascending. An empty symbols list means all symbols.
	CompaniesOn(ctx context.Context, date string, symbols ...string) ([]Company, error)
	// CompanyRows returns every row for symbol (all symbols when empty), by
	// symbol ascending.
	CompanyRows(ctx context.Context, symbol string) ([]Company, error)
	Variations(ctx context.Context, symbol string) ([]Variation, error)
	// Candles returns stock_history rows for the given symbols.
	Candles(ctx context.Context, symbols ...string) ([]Candle, error)

	SaveSnapshot(ctx context.Context, date, timestamp string, rows []Company) (companies, variations int64, err error)
	SaveCandles(ctx context.Context, rows []Candle) (int64, error)
}
