package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides Postgres-backed catalog operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository with a connection pool and ensures
// the catalog schema exists.
func NewRepository(ctx context.Context, connString string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	r := &Repository{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the connection pool.
func (r *Repository) Close() {
	r.pool.Close()
}

func (r *Repository) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS engine_runs (
			id               TEXT PRIMARY KEY,
			accelerator_spec TEXT NOT NULL,
			status           TEXT NOT NULL,
			input_model_id   TEXT NOT NULL,
			cache_dir        TEXT NOT NULL,
			output_dir       TEXT NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at       TIMESTAMPTZ,
			completed_at     TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS instance_accelerator_capabilities (
			instance_type                  TEXT PRIMARY KEY,
			accelerator_name                TEXT NOT NULL,
			accelerator_count               INT NOT NULL,
			accelerator_memory_gib          INT NOT NULL,
			supported_execution_providers   TEXT[] NOT NULL
		);
		CREATE TABLE IF NOT EXISTS instance_pricing (
			instance_type           TEXT NOT NULL,
			region                  TEXT NOT NULL,
			on_demand_hourly_usd    DOUBLE PRECISION NOT NULL,
			reserved_1yr_hourly_usd DOUBLE PRECISION,
			reserved_3yr_hourly_usd DOUBLE PRECISION,
			effective_date          TEXT NOT NULL,
			PRIMARY KEY (instance_type, region)
		);
	`)
	if err != nil {
		return fmt.Errorf("ensure catalog schema: %w", err)
	}
	return nil
}

// CreateRun inserts a new run record.
func (r *Repository) CreateRun(ctx context.Context, rec *RunRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO engine_runs (id, accelerator_spec, status, input_model_id, cache_dir, output_dir)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ID, rec.AcceleratorKey, rec.Status, rec.InputModelID, rec.CacheDir, rec.OutputDir,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdateRunStatus transitions a run's status, stamping started_at/completed_at
// as the new status implies.
func (r *Repository) UpdateRunStatus(ctx context.Context, runID string, status RunStatus) error {
	var query string
	switch status {
	case StatusRunning:
		query = `UPDATE engine_runs SET status = $2, started_at = now() WHERE id = $1`
	case StatusCompleted, StatusFailed, StatusCancelled:
		query = `UPDATE engine_runs SET status = $2, completed_at = now() WHERE id = $1`
	default:
		query = `UPDATE engine_runs SET status = $2 WHERE id = $1`
	}
	tag, err := r.pool.Exec(ctx, query, runID, status)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update run status: run %q not found", runID)
	}
	return nil
}

// GetRun returns a run record by id, or nil if not found.
func (r *Repository) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	var rec RunRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, accelerator_spec, status, input_model_id, cache_dir, output_dir,
		        created_at, started_at, completed_at
		 FROM engine_runs WHERE id = $1`, runID,
	).Scan(&rec.ID, &rec.AcceleratorKey, &rec.Status, &rec.InputModelID, &rec.CacheDir, &rec.OutputDir,
		&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}
	return &rec, nil
}

// ListRuns returns run records matching the given filter, newest first.
func (r *Repository) ListRuns(ctx context.Context, f RunFilter) ([]RunRecord, error) {
	var (
		conditions []string
		args       []any
		argIdx     int
	)

	if f.Status != "" {
		argIdx++
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, f.Status)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	limit := 50
	if f.Limit > 0 && f.Limit <= 200 {
		limit = f.Limit
	}
	argIdx++
	limitClause := fmt.Sprintf("LIMIT $%d", argIdx)
	args = append(args, limit)

	offsetClause := ""
	if f.Offset > 0 {
		argIdx++
		offsetClause = fmt.Sprintf("OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}

	query := fmt.Sprintf(`
		SELECT id, accelerator_spec, status, input_model_id, cache_dir, output_dir,
		       created_at, started_at, completed_at
		FROM engine_runs
		%s
		ORDER BY created_at DESC
		%s %s
	`, where, limitClause, offsetClause)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var recs []RunRecord
	for rows.Next() {
		var rec RunRecord
		if err := rows.Scan(&rec.ID, &rec.AcceleratorKey, &rec.Status, &rec.InputModelID, &rec.CacheDir, &rec.OutputDir,
			&rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteRun removes a run record.
func (r *Repository) DeleteRun(ctx context.Context, runID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM engine_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete run: run %q not found", runID)
	}
	return nil
}

// UpsertCapability inserts or replaces an instance type's accelerator
// capability row.
func (r *Repository) UpsertCapability(ctx context.Context, c *InstanceAcceleratorCapability) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instance_accelerator_capabilities
		   (instance_type, accelerator_name, accelerator_count, accelerator_memory_gib, supported_execution_providers)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (instance_type) DO UPDATE SET
		   accelerator_name = EXCLUDED.accelerator_name,
		   accelerator_count = EXCLUDED.accelerator_count,
		   accelerator_memory_gib = EXCLUDED.accelerator_memory_gib,
		   supported_execution_providers = EXCLUDED.supported_execution_providers`,
		c.InstanceType, c.AcceleratorName, c.AcceleratorCount, c.AcceleratorMemoryGiB, c.SupportedExecutionProviders,
	)
	if err != nil {
		return fmt.Errorf("upsert capability: %w", err)
	}
	return nil
}

// GetCapability returns an instance type's capability row, or nil if not found.
func (r *Repository) GetCapability(ctx context.Context, instanceType string) (*InstanceAcceleratorCapability, error) {
	var c InstanceAcceleratorCapability
	err := r.pool.QueryRow(ctx,
		`SELECT instance_type, accelerator_name, accelerator_count, accelerator_memory_gib, supported_execution_providers
		 FROM instance_accelerator_capabilities WHERE instance_type = $1`, instanceType,
	).Scan(&c.InstanceType, &c.AcceleratorName, &c.AcceleratorCount, &c.AcceleratorMemoryGiB, &c.SupportedExecutionProviders)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query capability: %w", err)
	}
	return &c, nil
}

// ListCapabilities returns every known instance type's capability row.
func (r *Repository) ListCapabilities(ctx context.Context) ([]InstanceAcceleratorCapability, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT instance_type, accelerator_name, accelerator_count, accelerator_memory_gib, supported_execution_providers
		 FROM instance_accelerator_capabilities ORDER BY instance_type`)
	if err != nil {
		return nil, fmt.Errorf("query capabilities: %w", err)
	}
	defer rows.Close()

	var out []InstanceAcceleratorCapability
	for rows.Next() {
		var c InstanceAcceleratorCapability
		if err := rows.Scan(&c.InstanceType, &c.AcceleratorName, &c.AcceleratorCount, &c.AcceleratorMemoryGiB, &c.SupportedExecutionProviders); err != nil {
			return nil, fmt.Errorf("scan capability row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpsertPricing inserts or replaces a region's pricing row for an instance type.
func (r *Repository) UpsertPricing(ctx context.Context, p *PricingRow) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO instance_pricing
		   (instance_type, region, on_demand_hourly_usd, reserved_1yr_hourly_usd, reserved_3yr_hourly_usd, effective_date)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (instance_type, region) DO UPDATE SET
		   on_demand_hourly_usd = EXCLUDED.on_demand_hourly_usd,
		   reserved_1yr_hourly_usd = EXCLUDED.reserved_1yr_hourly_usd,
		   reserved_3yr_hourly_usd = EXCLUDED.reserved_3yr_hourly_usd,
		   effective_date = EXCLUDED.effective_date`,
		p.InstanceType, p.Region, p.OnDemandHourlyUSD, p.Reserved1YrHourlyUSD, p.Reserved3YrHourlyUSD, p.EffectiveDate,
	)
	if err != nil {
		return fmt.Errorf("upsert pricing: %w", err)
	}
	return nil
}

// ListPricing returns pricing rows for a region, or every region if region is "".
func (r *Repository) ListPricing(ctx context.Context, region string) ([]PricingRow, error) {
	var rows pgx.Rows
	var err error
	if region != "" {
		rows, err = r.pool.Query(ctx,
			`SELECT instance_type, region, on_demand_hourly_usd, reserved_1yr_hourly_usd, reserved_3yr_hourly_usd, effective_date
			 FROM instance_pricing WHERE region = $1 ORDER BY instance_type`, region)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT instance_type, region, on_demand_hourly_usd, reserved_1yr_hourly_usd, reserved_3yr_hourly_usd, effective_date
			 FROM instance_pricing ORDER BY instance_type, region`)
	}
	if err != nil {
		return nil, fmt.Errorf("query pricing: %w", err)
	}
	defer rows.Close()

	var out []PricingRow
	for rows.Next() {
		var p PricingRow
		if err := rows.Scan(&p.InstanceType, &p.Region, &p.OnDemandHourlyUSD, &p.Reserved1YrHourlyUSD, &p.Reserved3YrHourlyUSD, &p.EffectiveDate); err != nil {
			return nil, fmt.Errorf("scan pricing row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
