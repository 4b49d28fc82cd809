package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/phone"
)

type registerSourceRequest struct {
	Name        string           `json:"name"`
	PhoneNumber string           `json:"phone_number"`
	Role        model.SourceRole `json:"role"`
}

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Store.ListSources(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if sources == nil {
		sources = []model.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.deps.Store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if src == nil {
		writeMessage(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) sourceByPhone(w http.ResponseWriter, r *http.Request) {
	ph := phone.Normalize(chi.URLParam(r, "phone"), s.deps.CountryCode)
	src, err := s.deps.Store.GetSourceByPhone(r.Context(), ph)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if src == nil {
		writeMessage(w, http.StatusNotFound, "source not found")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

// registerSource is idempotent on phone number: an existing registration is
// returned with 200, a new one with 201.
func (s *Server) registerSource(w http.ResponseWriter, r *http.Request) {
	var req registerSourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ph := phone.Normalize(req.PhoneNumber, s.deps.CountryCode)
	if ph == "" {
		writeError(w, r, model.Invalid("phone_number", "is required"))
		return
	}
	if req.Role == "" {
		req.Role = model.SourceRoleTrader
	}
	if !req.Role.Valid() {
		writeError(w, r, model.Invalid("role", "must be Trader, Official or Enumerator"))
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = phone.Mask(ph)
	}

	src, created, err := s.deps.Store.FindOrCreateSource(r.Context(), model.Source{
		Name:             name,
		PhoneNumber:      ph,
		Role:             req.Role,
		ReliabilityScore: model.DefaultReliability,
		Status:           model.SourceStatusActive,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, src)
}
