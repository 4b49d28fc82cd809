// Package alerts manages price alert subscriptions, evaluates them against
// the latest approved prices and schedules the periodic jobs that do so.
package alerts

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sokoprice/internal/model"
	"github.com/sells-group/sokoprice/internal/phone"
	"github.com/sells-group/sokoprice/internal/store"
)

// Service handles subscription CRUD.
type Service struct {
	store       store.Store
	countryCode string
}

// NewService creates an alert subscription service.
func NewService(st store.Store, countryCode string) *Service {
	if countryCode == "" {
		countryCode = phone.DefaultCountryCode
	}
	return &Service{store: st, countryCode: countryCode}
}

// CreateRequest subscribes a phone number to a (crop, market) price.
type CreateRequest struct {
	PhoneNumber string          `json:"phone_number"`
	CropID      string          `json:"crop_id"`
	MarketID    string          `json:"market_id"`
	TargetPrice float64         `json:"target_price"`
	Direction   model.Direction `json:"direction"`
}

// Create validates and stores a new active alert. Direction defaults to
// above.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*model.Alert, error) {
	ph := phone.Normalize(req.PhoneNumber, s.countryCode)
	if ph == "" {
		return nil, model.Invalid("phone_number", "is required")
	}
	if math.IsNaN(req.TargetPrice) || math.IsInf(req.TargetPrice, 0) || req.TargetPrice < 0 {
		return nil, model.Invalid("target_price", "must be zero or more")
	}
	if req.Direction == "" {
		req.Direction = model.DirectionAbove
	}
	if !req.Direction.Valid() {
		return nil, model.Invalid("direction", "must be %q or %q", model.DirectionAbove, model.DirectionBelow)
	}

	crop, err := s.store.GetCrop(ctx, req.CropID)
	if err != nil {
		return nil, eris.Wrap(err, "alerts: get crop")
	}
	if crop == nil {
		return nil, model.Invalid("crop_id", "unknown crop %q", req.CropID)
	}
	market, err := s.store.GetMarket(ctx, req.MarketID)
	if err != nil {
		return nil, eris.Wrap(err, "alerts: get market")
	}
	if market == nil {
		return nil, model.Invalid("market_id", "unknown market %q", req.MarketID)
	}

	a, err := s.store.CreateAlert(ctx, model.Alert{
		PhoneNumber: ph,
		CropID:      crop.ID,
		MarketID:    market.ID,
		TargetPrice: req.TargetPrice,
		Direction:   req.Direction,
		Active:      true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "alerts: create")
	}
	return a, nil
}

// List returns alerts matching filter. The phone filter is normalized.
func (s *Service) List(ctx context.Context, filter model.AlertFilter) ([]model.Alert, error) {
	if filter.PhoneNumber != "" {
		filter.PhoneNumber = phone.Normalize(filter.PhoneNumber, s.countryCode)
	}
	out, err := s.store.ListAlerts(ctx, filter)
	if err != nil {
		return nil, eris.Wrap(err, "alerts: list")
	}
	return out, nil
}

// Deactivate stops an alert without deleting it.
func (s *Service) Deactivate(ctx context.Context, id string) (*model.Alert, error) {
	a, err := s.store.DeactivateAlert(ctx, id)
	if err != nil {
		return nil, eris.Wrapf(err, "alerts: deactivate %s", id)
	}
	return a, nil
}

// Delete removes an alert.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteAlert(ctx, id); err != nil {
		return eris.Wrapf(err, "alerts: delete %s", id)
	}
	return nil
}
