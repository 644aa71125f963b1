package market

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	domain "github.com/mbourse/masi-api/internal/market"
)

const batchSize = 500

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func anyArgs(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func (r *Repository) Tables(ctx context.Context) ([]string, error) {
	return r.column(ctx, "list tables",
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
}

func (r *Repository) CountRows(ctx context.Context, table string) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + quoteIdent(table) //nolint:gosec // table names come from sqlite_master
	if err := r.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *Repository) CompanySymbols(ctx context.Context) ([]string, error) {
	return r.column(ctx, "company symbols",
		`SELECT DISTINCT symbol FROM "Company" WHERE symbol IS NOT NULL AND symbol != ''`)
}

func (r *Repository) HistorySymbols(ctx context.Context) ([]string, error) {
	return r.column(ctx, "history symbols",
		`SELECT DISTINCT symbol FROM stock_history WHERE symbol IS NOT NULL AND symbol != ''`)
}

func (r *Repository) CompanyDates(ctx context.Context) ([]string, error) {
	return r.column(ctx, "company dates",
		`SELECT DISTINCT date FROM "Company" WHERE date IS NOT NULL`)
}

func (r *Repository) column(ctx context.Context, op, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scan %s: %w", op, err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const companyColumns = `symbol, name, price, open, high, low, change, volume, date`

func (r *Repository) CompaniesOn(ctx context.Context, date string, symbols ...string) ([]domain.Company, error) {
	query := `SELECT ` + companyColumns + ` FROM "Company" WHERE date = ?`
	args := []any{date}
	if len(symbols) > 0 {
		query += ` AND symbol IN (` + placeholders(len(symbols)) + `)`
		args = append(args, anyArgs(symbols)...)
	}
	query += ` ORDER BY symbol ASC`
	return r.companies(ctx, query, args...)
}

func (r *Repository) CompanyRows(ctx context.Context, symbol string) ([]domain.Company, error) {
	if symbol == "" {
		return r.companies(ctx, `SELECT `+companyColumns+` FROM "Company" ORDER BY symbol ASC`)
	}
	return r.companies(ctx, `SELECT `+companyColumns+` FROM "Company" WHERE symbol = ? ORDER BY symbol ASC`, symbol)
}

func (r *Repository) companies(ctx context.Context, query string, args ...any) ([]domain.Company, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list companies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Company
	for rows.Next() {
		var (
			c                 domain.Company
			symbol, date      sql.NullString
			name, change, vol sql.NullString
			price             sql.NullFloat64
			open, high, low   sql.NullFloat64
		)
		if err := rows.Scan(&symbol, &name, &price, &open, &high, &low, &change, &vol, &date); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		c.Symbol, c.Date = symbol.String, date.String
		c.Name = name.String
		c.Price = price.Float64
		c.Open = floatPtr(open)
		c.High = floatPtr(high)
		c.Low = floatPtr(low)
		c.Change = change.String
		c.Volume = vol.String
		out = append(out, c)
	}
	return out, rows.Err()
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func (r *Repository) Variations(ctx context.Context, symbol string) ([]domain.Variation, error) {
	const query = `SELECT symbol, timestamp, price, change FROM "DailyVariation" WHERE symbol = ?`

	rows, err := r.db.QueryContext(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Variation
	for rows.Next() {
		var (
			v          domain.Variation
			ts, change sql.NullString
			price      sql.NullFloat64
		)
		if err := rows.Scan(&v.Symbol, &ts, &price, &change); err != nil {
			return nil, fmt.Errorf("scan variation: %w", err)
		}
		v.Timestamp = ts.String
		v.Price = price.Float64
		v.Change = change.String
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *Repository) Candles(ctx context.Context, symbols ...string) ([]domain.Candle, error) {
	query := `SELECT symbol, time, open, high, low, close, volume FROM stock_history`
	if len(symbols) > 0 {
		query += ` WHERE symbol IN (` + placeholders(len(symbols)) + `)`
	}

	rows, err := r.db.QueryContext(ctx, query, anyArgs(symbols)...)
	if err != nil {
		return nil, fmt.Errorf("list candles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Candle
	for rows.Next() {
		var (
			c                            domain.Candle
			symbol, tm                   sql.NullString
			open, high, low, closeP, vol sql.NullFloat64
		)
		if err := rows.Scan(&symbol, &tm, &open, &high, &low, &closeP, &vol); err != nil {
			return nil, fmt.Errorf("scan candle: %w", err)
		}
		// A NULL time stays empty and ranks as unparseable.
		c.Symbol, c.Time = symbol.String, tm.String
		c.Open, c.High, c.Low, c.Close, c.Volume = open.Float64, high.Float64, low.Float64, closeP.Float64, vol.Float64
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveSnapshot replaces the Company rows stored for date and records an
// intraday sample per row at timestamp, in one transaction. Samples already
// stored for the same timestamp are kept.
func (r *Repository) SaveSnapshot(ctx context.Context, date, timestamp string, rows []domain.Company) (int64, int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin snapshot: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM "Company" WHERE date = ?`, date); err != nil {
		return 0, 0, fmt.Errorf("clear snapshot %s: %w", date, err)
	}

	var companies, variations int64
	for i := 0; i < len(rows); i += batchSize {
		batch := rows[i:min(i+batchSize, len(rows))]

		cph := make([]string, len(batch))
		cargs := make([]any, 0, len(batch)*9)
		vph := make([]string, len(batch))
		vargs := make([]any, 0, len(batch)*4)
		for j, c := range batch {
			cph[j] = "(?, ?, ?, ?, ?, ?, ?, ?, ?)"
			cargs = append(cargs, c.Symbol, c.Name, c.Price, c.Open, c.High, c.Low, c.Change, c.Volume, date)
			vph[j] = "(?, ?, ?, ?)"
			vargs = append(vargs, c.Symbol, timestamp, c.Price, c.Change)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			`INSERT OR REPLACE INTO "Company" (%s) VALUES %s`, companyColumns, strings.Join(cph, ", "))
		res, err := tx.ExecContext(ctx, query, cargs...)
		if err != nil {
			return 0, 0, fmt.Errorf("save companies: %w", err)
		}
		n, _ := res.RowsAffected()
		companies += n

		query = fmt.Sprintf( //nolint:gosec // placeholders are not user input
			`INSERT OR IGNORE INTO "DailyVariation" (symbol, timestamp, price, change) VALUES %s`, strings.Join(vph, ", "))
		res, err = tx.ExecContext(ctx, query, vargs...)
		if err != nil {
			return 0, 0, fmt.Errorf("save variations: %w", err)
		}
		n, _ = res.RowsAffected()
		variations += n
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit snapshot: %w", err)
	}
	return companies, variations, nil
}

// SaveCandles inserts candles, skipping symbol/time pairs already stored.
func (r *Repository) SaveCandles(ctx context.Context, rows []domain.Candle) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	var total int64
	for i := 0; i < len(rows); i += batchSize {
		batch := rows[i:min(i+batchSize, len(rows))]

		ph := make([]string, len(batch))
		args := make([]any, 0, len(batch)*7)
		for j, c := range batch {
			ph[j] = "(?, ?, ?, ?, ?, ?, ?)"
			args = append(args, c.Symbol, c.Time, c.Open, c.High, c.Low, c.Close, c.Volume)
		}

		query := fmt.Sprintf( //nolint:gosec // placeholders are not user input
			"INSERT OR IGNORE INTO stock_history (symbol, time, open, high, low, close, volume) VALUES %s",
			strings.Join(ph, ", "),
		)
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return total, fmt.Errorf("save candles: %w", err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

var _ domain.Repository = (*Repository)(nil)
