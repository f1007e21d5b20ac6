package models

import "time"

// Request audit statuses.
const (
	RequestStatusPending   = "pending"
	RequestStatusCompleted = "completed"
	RequestStatusFailed    = "failed"
)

// Request is one append-only audit row for a RequestId call. The input
// identifiers are captured before reconciliation, the output identifiers
// after.
type Request struct {
	ID   string
	User string

	InV2     string
	InV3     string
	InAopPid string

	OutV2     string
	OutV3     string
	OutAopPid string

	Status string
	Diffs  string

	Created time.Time
	Updated time.Time
}
