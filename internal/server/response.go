package server

import (
	"encoding/csv"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/market"
)

type APIResponse[T any] struct {
	Message string `json:"message"`
	Data    T      `json:"data"`
}

func writeJSON[T any](w http.ResponseWriter, status int, data T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[T]{
		Message: "ok",
		Data:    data,
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(APIResponse[string]{
		Message: message,
		Data:    "",
	})
}

// writeErr maps client-facing errors to their status. Anything else is a
// 500 and gets logged.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := apperror.As(err); ok {
		writeError(w, ae.HTTPStatus(), ae.Message())
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	writeError(w, http.StatusInternalServerError, err.Error())
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func optFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}

func writeCSV(w http.ResponseWriter, filename string, header []string, rows [][]string) {
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)

	cw := csv.NewWriter(w)
	_ = cw.Write(header)
	_ = cw.WriteAll(rows)
}

func writeCandlesCSV(w http.ResponseWriter, filename string, candles []market.Candle) {
	rows := make([][]string, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, []string{
			c.Symbol, c.Time,
			formatFloat(c.Open), formatFloat(c.High), formatFloat(c.Low), formatFloat(c.Close),
			formatFloat(c.Volume),
		})
	}
	writeCSV(w, filename, []string{"symbol", "time", "open", "high", "low", "close", "volume"}, rows)
}

func writeCompaniesCSV(w http.ResponseWriter, filename string, companies []market.Company) {
	rows := make([][]string, 0, len(companies))
	for _, c := range companies {
		rows = append(rows, []string{
			c.Symbol, c.Name, c.Date, formatFloat(c.Price),
			optFloat(c.Open), optFloat(c.High), optFloat(c.Low),
			c.Change, c.Volume,
		})
	}
	writeCSV(w, filename, []string{"symbol", "name", "date", "price", "open", "high", "low", "change", "volume"}, rows)
}
