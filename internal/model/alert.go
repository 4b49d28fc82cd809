package model

import "time"

// Direction is the side of the target price that fires an alert.
type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool {
	return d == DirectionAbove || d == DirectionBelow
}

// Alert is a standing price watch owned by a phone number.
type Alert struct {
	ID              string     `json:"id"`
	PhoneNumber     string     `json:"phone_number"`
	CropID          string     `json:"crop_id"`
	MarketID        string     `json:"market_id"`
	TargetPrice     float64    `json:"target_price"`
	Direction       Direction  `json:"direction"`
	Active          bool       `json:"active"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Triggered reports whether price crosses the alert's threshold.
func (a Alert) Triggered(price float64) bool {
	switch a.Direction {
	case DirectionAbove:
		return price >= a.TargetPrice
	case DirectionBelow:
		return price <= a.TargetPrice
	}
	return false
}

// CoolingDown reports whether the alert fired less than cooldown ago.
func (a Alert) CoolingDown(now time.Time, cooldown time.Duration) bool {
	if a.LastTriggeredAt == nil {
		return false
	}
	return now.Sub(*a.LastTriggeredAt) <= cooldown
}

// AlertFilter specifies criteria for listing alerts.
type AlertFilter struct {
	PhoneNumber string `json:"phone_number,omitempty"`
	Active      *bool  `json:"active,omitempty"`
}
