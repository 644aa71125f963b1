package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mbourse/masi-api/internal/apperror"
	"github.com/mbourse/masi-api/internal/job"
	"github.com/mbourse/masi-api/internal/market"
	"github.com/mbourse/masi-api/internal/refresh"
)

type handler struct {
	market  *market.Service
	refresh *refresh.Service
	jobs    *job.Service
}

// intQuery reads an integer query parameter, def when absent.
func intQuery(r *http.Request, name string, def int) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, apperror.New(apperror.BadRequest, name+" must be an integer")
	}
	return n, nil
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.market.Health())
}

func (h *handler) info(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.Info(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) symbols(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.Symbols(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) companies(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.Companies(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) latestSnapshot(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.LatestSnapshot(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) queryCompany(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", market.DefaultCompanyLimit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	q := r.URL.Query()
	resp, err := h.market.QueryCompany(r.Context(), market.CompanyQuery{
		Symbol: q.Get("symbol"),
		Date:   q.Get("date"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) companyHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := market.CompanyHistoryQuery{
		Symbol: chi.URLParam(r, "symbol"),
		Period: q.Get("period"),
		From:   q.Get("from"),
		To:     q.Get("to"),
		Format: strings.ToLower(q.Get("format")),
	}

	resp, err := h.market.CompanyHistory(r.Context(), query)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	if query.Format == "csv" {
		writeCompaniesCSV(w, resp.Symbol+"_history.csv", resp.Rows)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) variations(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", market.DefaultCompanyLimit)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	resp, err := h.market.Variations(r.Context(), market.VariationsQuery{
		Symbol: chi.URLParam(r, "symbol"),
		Limit:  limit,
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) indicesLatest(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.IndicesLatest(r.Context())
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) history(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", market.DefaultHistoryLimit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	offset, err := intQuery(r, "offset", 0)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	q := r.URL.Query()
	query := market.HistoryQuery{
		Symbol: q.Get("symbol"),
		From:   q.Get("time_from"),
		To:     q.Get("time_to"),
		Order:  strings.ToLower(q.Get("order")),
		Limit:  limit,
		Offset: offset,
		Format: strings.ToLower(q.Get("format")),
	}

	resp, err := h.market.History(r.Context(), query)
	if err != nil {
		writeErr(w, r, err)
		return
	}

	if query.Format == "csv" {
		writeCandlesCSV(w, strings.ToUpper(strings.TrimSpace(query.Symbol))+"_history.csv", resp.Rows)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) latestCandle(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.LatestCandle(r.Context(), chi.URLParam(r, "symbol"))
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) candles(w http.ResponseWriter, r *http.Request) {
	resp, err := h.market.Candles(r.Context(), market.CandlesQuery{
		Symbol: chi.URLParam(r, "symbol"),
		Period: r.URL.Query().Get("period"),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.refresh.Sources())
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	j, err := h.jobs.Get(r.Context(), job.GetJobRequest{ID: id})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	jobs, err := h.jobs.List(r.Context(), job.ListJobsRequest{
		Kind:   q.Get("kind"),
		Symbol: q.Get("symbol"),
		Status: q.Get("status"),
	})
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}
