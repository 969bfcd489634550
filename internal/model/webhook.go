package model

import "time"

// ProviderStatus reports delivery counts for one webhook provider, served
// by the gated GET /webhooks/status diagnostic endpoint.
type ProviderStatus struct {
	Provider   string     `json:"provider" db:"provider"`
	Accepted   int64      `json:"accepted" db:"accepted"`
	Duplicates int64      `json:"duplicates" db:"duplicates"`
	Rejected   int64      `json:"rejected" db:"rejected"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}
