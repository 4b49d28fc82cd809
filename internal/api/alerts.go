package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/sokoprice/internal/alerts"
	"github.com/sells-group/sokoprice/internal/model"
)

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	active, err := queryBool(r, "active")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := s.deps.Alerts.List(r.Context(), model.AlertFilter{
		PhoneNumber: r.URL.Query().Get("phone_number"),
		Active:      active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Alert{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) createAlert(w http.ResponseWriter, r *http.Request) {
	var req alerts.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	a, err := s.deps.Alerts.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) deactivateAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Alerts.Deactivate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) deleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Alerts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
