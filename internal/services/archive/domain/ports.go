package domain

import (
	"context"

	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
)

// ServicePort is consumed by handlers and other modules
type ServicePort interface {
	GetNumeric(ctx context.Context, in QueryInput) (*Result, error)
	GetBlob(ctx context.Context, in QueryInput) (*Result, error)
	GetDataTable(ctx context.Context, in QueryInput) (*Result, error)
	GetDataTableExpanded(ctx context.Context, in QueryInput) (*Result, error)
	Invalidate(ctx context.Context, in InvalidateInput) (int64, error)
	PurgeErrored(ctx context.Context, in PurgeInput) (int64, error)
}

// SiteReader is the slice of the sites registry the orchestrator needs
// for its skip rules
type SiteReader interface {
	CreationDate(ctx context.Context, siteID int64) (creation SiteCreation, err error)
}

// SiteCreation carries the registry fields the skip rules consult
type SiteCreation struct {
	SiteID    int64
	CreatedAt period.Period // day period of the creation date
	Timezone  string
}

// Aggregator computes one plugin's metrics for a prepared archive
// The engine does not know what the metrics mean; the aggregator either
// completes (archive finalizes OK) or errors (flag stays ERROR)
type Aggregator interface {
	Plugin() string
	Aggregate(ctx context.Context, ar ArchiveContext) error
}

// ArchiveContext is the writing surface handed to an aggregator
type ArchiveContext interface {
	SiteID() int64
	Period() period.Period
	Segment() *segment.Segment

	InsertNumeric(ctx context.Context, name string, value float64) error
	InsertBlob(ctx context.Context, name string, byID map[int64][]byte) error
}

// AggregatorRegistry resolves plugins to their aggregation entry points
type AggregatorRegistry interface {
	// For returns the aggregators to run for the requested plugin set;
	// the core plugin is always included
	For(plugins []string) []Aggregator
}
