// Package refresh runs compliance evaluation across all tenants on a
// schedule or on demand. Per-tenant failures are isolated: one tenant's
// misconfiguration never aborts the sweep.
package refresh

import (
	"time"

	id "attest/pkg/domain"
)

// Status is the run state machine: Pending -> Running -> terminal.
type Status string

const (
	StatusPending             Status = "pending"
	StatusRunning             Status = "running"
	StatusCompleted           Status = "completed"
	StatusCompletedWithErrors Status = "completed_with_errors"
)

// TriggerRequest starts a run. A nil TenantID sweeps every active tenant.
type TriggerRequest struct {
	TenantID *id.TenantID
	Source   string
}

// RunResult is the contract the caller observes: counts, duration, and the
// per-tenant error list.
type RunResult struct {
	RunID            id.RunID               `json:"run_id"`
	Status           Status                 `json:"status"`
	TenantsProcessed int                    `json:"tenants_processed"`
	ClientsUpdated   int                    `json:"clients_updated"`
	Duration         time.Duration          `json:"duration"`
	Errors           map[id.TenantID]string `json:"-"`
	StartedAt        time.Time              `json:"started_at"`
}

// Progress exposes how far in-flight runs have advanced so a supervisor can
// detect stalls. Counts aggregate across overlapping runs, since a scoped
// manual trigger may execute alongside the scheduled sweep.
type Progress struct {
	Running          bool `json:"running"`
	ActiveRuns       int  `json:"active_runs"`
	TenantsProcessed int  `json:"tenants_processed"`
	TenantsTotal     int  `json:"tenants_total"`
}
