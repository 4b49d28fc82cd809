package api

import (
	"net/http"

	"github.com/sells-group/sokoprice/internal/analytics"
	"github.com/sells-group/sokoprice/internal/model"
)

func (s *Server) overview(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Analytics.Overview(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) trends(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "days", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	points, err := s.deps.Analytics.Trends(r.Context(), analytics.TrendsRequest{
		Days:     days,
		CropID:   r.URL.Query().Get("crop_id"),
		MarketID: r.URL.Query().Get("market_id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if points == nil {
		points = []model.TrendPoint{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) comparison(w http.ResponseWriter, r *http.Request) {
	cropID := r.URL.Query().Get("crop_id")
	if cropID == "" {
		writeError(w, r, model.Invalid("crop_id", "is required"))
		return
	}
	c, err := s.deps.Analytics.Comparison(r.Context(), cropID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if c == nil {
		writeMessage(w, http.StatusNotFound, "crop not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}
