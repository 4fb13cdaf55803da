// Package store persists harvest runs and the leads they produce, behind
// a driver-neutral interface with SQLite and Postgres implementations.
package store

import (
	"context"

	"github.com/sells-group/harvest-cli/internal/model"
)

// RunFilter specifies criteria for listing harvest runs.
type RunFilter struct {
	Status model.HarvestRunStatus `json:"status,omitempty"`
	Limit  int                    `json:"limit,omitempty"`
	Offset int                    `json:"offset,omitempty"`
}

// LeadFilter specifies criteria for listing stored leads.
type LeadFilter struct {
	Source   string         `json:"source,omitempty"`
	SaleType model.SaleType `json:"sale_type,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the harvest pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, sources []string) (*model.HarvestRun, error)
	CompleteRun(ctx context.Context, runID string, stats []model.ScrapeStats, leadCount int) error
	FailRun(ctx context.Context, runID string, runErr string) error
	GetRun(ctx context.Context, runID string) (*model.HarvestRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.HarvestRun, error)

	// Leads
	UpsertLeads(ctx context.Context, leads []model.LeadRecord) (int, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.LeadRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// leadColumns is the shared column order for lead writes in both drivers.
var leadColumns = []string{
	"key", "name", "website", "domain", "category",
	"launch_date", "raised", "sale_type", "source", "details_url",
	"socials", "first_seen_at", "last_seen_at",
}
