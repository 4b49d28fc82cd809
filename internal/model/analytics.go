package model

import "time"

// Overview is the dashboard headline count set.
type Overview struct {
	ActiveMarkets    int       `json:"active_markets"`
	PricesToday      int       `json:"prices_today"`
	PendingApprovals int       `json:"pending_approvals"`
	TotalCrops       int       `json:"total_crops"`
	ActiveSources    int       `json:"active_sources"`
	ActiveAlerts     int       `json:"active_alerts"`
	CollectedAt      time.Time `json:"collected_at"`
}

// TrendPoint aggregates approved prices for one crop, market and day.
type TrendPoint struct {
	Date        string  `json:"date"`
	CropID      string  `json:"crop_id"`
	Crop        string  `json:"crop"`
	MarketID    string  `json:"market_id"`
	Market      string  `json:"market"`
	AvgPrice    float64 `json:"avg_price"`
	MinPrice    float64 `json:"min_price"`
	MaxPrice    float64 `json:"max_price"`
	Submissions int     `json:"submissions"`
}

// TrendFilter narrows a trend query.
type TrendFilter struct {
	Since    time.Time
	CropID   string
	MarketID string
}
