package model

import "time"

// SourceRole classifies a reporter.
type SourceRole string

const (
	SourceRoleTrader     SourceRole = "Trader"
	SourceRoleOfficial   SourceRole = "Official"
	SourceRoleEnumerator SourceRole = "Enumerator"
)

// Valid reports whether r is a known role.
func (r SourceRole) Valid() bool {
	switch r {
	case SourceRoleTrader, SourceRoleOfficial, SourceRoleEnumerator:
		return true
	}
	return false
}

// SourceStatus is the lifecycle state of a reporter.
type SourceStatus string

const (
	SourceStatusActive    SourceStatus = "active"
	SourceStatusInactive  SourceStatus = "inactive"
	SourceStatusSuspended SourceStatus = "suspended"
)

// DefaultReliability is the score assigned to new sources and assumed for
// reports whose source cannot be resolved.
const DefaultReliability = 0.5

// Source is a reporting entity identified by its phone number.
type Source struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	PhoneNumber      string       `json:"phone_number"`
	Role             SourceRole   `json:"role"`
	ReliabilityScore float64      `json:"reliability_score"`
	Status           SourceStatus `json:"status"`
	SubmissionCount  int          `json:"submission_count"`
	LastSubmissionAt *time.Time   `json:"last_submission_at,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// ApprovalStats counts a source's reports over a trailing window.
type ApprovalStats struct {
	Approved int `json:"approved"`
	Total    int `json:"total"`
}

// Rate returns approved/total, or 0 when there are no reports.
func (s ApprovalStats) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Approved) / float64(s.Total)
}
