// Package catalog is the Postgres-backed index of engine runs and the
// accelerator/instance-type capability table, adapted from the original
// internal/database package. It is a derived index only — the JSON
// cache/footprint files the engine core writes under a run's cache
// directory remain authoritative per §3's Lifecycle invariants; this
// package exists so the HTTP API and CLI can list/inspect past runs
// without re-reading the filesystem.
package catalog

import (
	"context"
	"time"
)

// RunStatus mirrors the engine run's lifecycle state as tracked for
// API/CLI visibility (§3.1's RunRecord).
type RunStatus string

const (
	StatusPending   RunStatus = "pending"
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// RunRecord is the Postgres-indexed counterpart of one Engine.Run
// invocation for a single accelerator.
type RunRecord struct {
	ID             string     `json:"id"`
	AcceleratorKey string     `json:"accelerator_spec"`
	Status         RunStatus  `json:"status"`
	InputModelID   string     `json:"input_model_id"`
	CacheDir       string     `json:"cache_dir"`
	OutputDir      string     `json:"output_dir"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// InstanceAcceleratorCapability is the EC2-backed instance/accelerator
// capability row populated by cmd/instancesync and read by internal/api's
// accelerator-catalog and recommend handlers (§3.1).
type InstanceAcceleratorCapability struct {
	InstanceType                string   `json:"instance_type"`
	AcceleratorName             string   `json:"accelerator_name"`
	AcceleratorCount            int      `json:"accelerator_count"`
	AcceleratorMemoryGiB        int      `json:"accelerator_memory_gib"`
	SupportedExecutionProviders []string `json:"supported_execution_providers"`
}

// PricingRow is one region's on-demand/reserved pricing for an instance
// type, adapted near-verbatim from the original Pricing table.
type PricingRow struct {
	InstanceType         string   `json:"instance_type"`
	Region               string   `json:"region"`
	OnDemandHourlyUSD    float64  `json:"on_demand_hourly_usd"`
	Reserved1YrHourlyUSD *float64 `json:"reserved_1yr_hourly_usd,omitempty"`
	Reserved3YrHourlyUSD *float64 `json:"reserved_3yr_hourly_usd,omitempty"`
	EffectiveDate        string   `json:"effective_date"`
}

// RunFilter holds optional filters for listing run records.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}

// Repo defines the interface for catalog operations. The concrete
// *Repository satisfies this interface; tests use MockRepo behind this
// same narrow interface.
type Repo interface {
	CreateRun(ctx context.Context, rec *RunRecord) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error
	GetRun(ctx context.Context, runID string) (*RunRecord, error)
	ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error)
	DeleteRun(ctx context.Context, runID string) error

	UpsertCapability(ctx context.Context, c *InstanceAcceleratorCapability) error
	GetCapability(ctx context.Context, instanceType string) (*InstanceAcceleratorCapability, error)
	ListCapabilities(ctx context.Context) ([]InstanceAcceleratorCapability, error)

	UpsertPricing(ctx context.Context, p *PricingRow) error
	ListPricing(ctx context.Context, region string) ([]PricingRow, error)
}

var _ Repo = (*Repository)(nil)
