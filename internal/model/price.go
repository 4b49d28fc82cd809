package model

import "time"

// Channel records how a price report entered the system.
type Channel string

const (
	ChannelWeb  Channel = "web"
	ChannelUSSD Channel = "ussd"
)

// PriceReport is one observed price. A report is pending until approved;
// rejection deletes it.
type PriceReport struct {
	ID       string    `json:"id"`
	CropID   string    `json:"crop_id"`
	MarketID string    `json:"market_id"`
	SourceID string    `json:"source_id"`
	Price    float64   `json:"price"`
	Date     time.Time `json:"date"`
	Approved bool      `json:"approved"`
	Notes    string    `json:"notes,omitempty"`
	Channel  Channel   `json:"channel"`

	// ConfidenceScore is computed at read time and never persisted.
	ConfidenceScore float64 `json:"confidence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Status renders the approval state for API consumers.
func (p PriceReport) Status() string {
	if p.Approved {
		return "approved"
	}
	return "pending"
}

// Observation is a price joined with its reporter's reliability, the unit of
// input for confidence scoring. Reliability is nil when the source is gone.
type Observation struct {
	Price       float64  `json:"price"`
	Reliability *float64 `json:"reliability,omitempty"`
}

// Confidence summarizes the trustworthiness of recent reports for a
// (crop, market) pair.
type Confidence struct {
	Score           float64 `json:"score"`
	WeightedAverage float64 `json:"weighted_average"`
	SubmissionCount int     `json:"submission_count"`
}

// PriceFilter specifies criteria for listing price reports.
type PriceFilter struct {
	CropID   string `json:"crop_id,omitempty"`
	MarketID string `json:"market_id,omitempty"`
	Approved *bool  `json:"approved,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
