package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/prices"
)

type priceList struct {
	Prices []model.PriceReport `json:"prices"`
	Total  int                 `json:"total"`
	Limit  int                 `json:"limit"`
	Offset int                 `json:"offset"`
}

// latestPrice is the body of the latest-price route. Price is null when the
// pair has no approved report.
type latestPrice struct {
	Price      *model.PriceReport `json:"price"`
	Confidence *model.Confidence  `json:"confidence"`
	Tier       string             `json:"tier,omitempty"`
}

func (s *Server) listPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.PriceFilter{
		CropID:   q.Get("crop_id"),
		MarketID: q.Get("market_id"),
	}
	switch q.Get("status") {
	case "":
	case "approved":
		filter.Approved = boolPtr(true)
	case "pending":
		filter.Approved = boolPtr(false)
	default:
		writeError(w, r, model.Invalid("status", "must be approved or pending"))
		return
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", 100); err != nil {
		writeError(w, r, err)
		return
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		writeError(w, r, err)
		return
	}

	reports, total, err := s.deps.Prices.List(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if reports == nil {
		reports = []model.PriceReport{}
	}
	writeJSON(w, http.StatusOK, priceList{
		Prices: reports,
		Total:  total,
		Limit:  filter.Limit,
		Offset: filter.Offset,
	})
}

func (s *Server) submitPrice(w http.ResponseWriter, r *http.Request) {
	var req prices.SubmitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	report, err := s.deps.Prices.Submit(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) latestPrice(w http.ResponseWriter, r *http.Request) {
	q, err := s.deps.Prices.Latest(r.Context(), chi.URLParam(r, "cropID"), chi.URLParam(r, "marketID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if q == nil {
		writeJSON(w, http.StatusOK, latestPrice{})
		return
	}
	writeJSON(w, http.StatusOK, latestPrice{
		Price:      &q.Report,
		Confidence: &q.Confidence,
		Tier:       string(q.Tier),
	})
}

func (s *Server) priceHistory(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 30)
	if err != nil {
		writeError(w, r, err)
		return
	}
	history, err := s.deps.Prices.History(r.Context(), chi.URLParam(r, "cropID"), chi.URLParam(r, "marketID"), days)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if history == nil {
		history = []model.PriceReport{}
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) approvePrice(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Prices.Approve(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) rejectPrice(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Prices.Reject(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func boolPtr(b bool) *bool { return &b }
