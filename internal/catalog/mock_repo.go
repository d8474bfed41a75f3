package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MockRepo is an in-memory implementation of Repo for testing consumers
// that depend on catalog.Repo (the API server, the CLI client, cmd/instancesync).
type MockRepo struct {
	mu           sync.Mutex
	runs         map[string]*RunRecord
	capabilities map[string]*InstanceAcceleratorCapability
	pricing      map[string]*PricingRow // keyed by "instanceType|region"
}

// NewMockRepo creates a new MockRepo.
func NewMockRepo() *MockRepo {
	return &MockRepo{
		runs:         make(map[string]*RunRecord),
		capabilities: make(map[string]*InstanceAcceleratorCapability),
		pricing:      make(map[string]*PricingRow),
	}
}

func (m *MockRepo) CreateRun(_ context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[rec.ID]; exists {
		return fmt.Errorf("run %q already exists", rec.ID)
	}
	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.runs[rec.ID] = &cp
	return nil
}

func (m *MockRepo) UpdateRunStatus(_ context.Context, runID string, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %q not found", runID)
	}
	run.Status = status
	now := time.Now()
	switch status {
	case StatusRunning:
		run.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		run.CompletedAt = &now
	}
	return nil
}

func (m *MockRepo) GetRun(_ context.Context, runID string) (*RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (m *MockRepo) ListRuns(_ context.Context, f RunFilter) ([]RunRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var recs []RunRecord
	for _, run := range m.runs {
		if f.Status != "" && run.Status != f.Status {
			continue
		}
		recs = append(recs, *run)
	}
	sortRunsByCreatedAtDesc(recs)

	limit := 50
	if f.Limit > 0 && f.Limit <= 200 {
		limit = f.Limit
	}
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return nil, nil
		}
		recs = recs[f.Offset:]
	}
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

func sortRunsByCreatedAtDesc(recs []RunRecord) {
	for i := 1; i < len(recs); i++ {
		for j := i; j > 0 && recs[j].CreatedAt.After(recs[j-1].CreatedAt); j-- {
			recs[j], recs[j-1] = recs[j-1], recs[j]
		}
	}
}

func (m *MockRepo) DeleteRun(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[runID]; !ok {
		return fmt.Errorf("run %q not found", runID)
	}
	delete(m.runs, runID)
	return nil
}

func (m *MockRepo) UpsertCapability(_ context.Context, c *InstanceAcceleratorCapability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.capabilities[c.InstanceType] = &cp
	return nil
}

func (m *MockRepo) GetCapability(_ context.Context, instanceType string) (*InstanceAcceleratorCapability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.capabilities[instanceType]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MockRepo) ListCapabilities(_ context.Context) ([]InstanceAcceleratorCapability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]InstanceAcceleratorCapability, 0, len(m.capabilities))
	for _, c := range m.capabilities {
		out = append(out, *c)
	}
	return out, nil
}

func (m *MockRepo) UpsertPricing(_ context.Context, p *PricingRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := p.InstanceType + "|" + p.Region
	cp := *p
	m.pricing[key] = &cp
	return nil
}

func (m *MockRepo) ListPricing(_ context.Context, region string) ([]PricingRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PricingRow
	for _, p := range m.pricing {
		if region != "" && p.Region != region {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}
