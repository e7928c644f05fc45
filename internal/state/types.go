package state

import "time"

// RunRecord summarizes one completed reconciliation run.
type RunRecord struct {
	Task       string    `json:"task"`
	Mode       string    `json:"mode"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Applied    int       `json:"applied"`
	Skipped    int       `json:"skipped"`
	Errored    int       `json:"errored"`
	ReportPath string    `json:"reportPath"`
}

// CacheEntry maps an Autopilot device serial to its identity id, recorded
// while paging the identity collection so tag updates can address devices
// without refetching.
type CacheEntry struct {
	Serial     string    `json:"serial"`
	IdentityID string    `json:"identityId"`
	GroupTag   string    `json:"groupTag"`
	CachedAt   time.Time `json:"cachedAt"`
}
