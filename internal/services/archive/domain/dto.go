package domain

import (
	"time"

	"statskeep/internal/core/datatable"
	"statskeep/internal/core/period"
	"statskeep/internal/core/segment"
)

// Params identifies one logical aggregation unit
type Params struct {
	SiteID  int64
	Period  period.Period
	Segment *segment.Segment

	// Plugin is the single plugin a flag lookup targets; "" means the
	// all-plugins archive
	Plugin string
}

// RecordKind selects the physical value table
type RecordKind int

// Record kinds
const (
	KindNumeric RecordKind = iota
	KindBlob
)

// SubtableAll requests every subtable blob alongside the root record
const SubtableAll int64 = -1

// FoundArchive is a resolved (idarchive, visits) for one params cell
type FoundArchive struct {
	ID              int64
	Visits          float64
	VisitsConverted float64
	TSArchived      time.Time
	DoneValue       DoneValue
	ExistingRecords bool // a usable done flag row was present
	VisitsFromCore  bool // counters came from the core archive fallback
}

// ArchiveRow is one raw value row fetched from a shard
type ArchiveRow struct {
	ArchiveID int64
	SiteID    int64
	Period    period.Period
	Name      string
	Value     float64
	Blob      []byte
	TS        time.Time
}

// QueryInput is the orchestrator request
type QueryInput struct {
	SiteIDs []int64  `json:"site_ids" validate:"required,min=1,dive,min=1" example:"1"`
	Period  string   `json:"period" validate:"required,oneof=day week month year range" example:"day"`
	Date    string   `json:"date" validate:"required" example:"2024-05-12"`
	Segment string   `json:"segment,omitempty" example:"browserName==ff"`
	Names   []string `json:"names" validate:"required,min=1,dive,min=1" example:"nb_visits"`

	// ForceIndexedBySite and ForceIndexedByDate keep the map shape even
	// for single site or single period queries
	ForceIndexedBySite bool `json:"force_indexed_by_site,omitempty"`
	ForceIndexedByDate bool `json:"force_indexed_by_date,omitempty"`

	// SubtableID applies to blob reads: 0 root, >0 one subtable, -1 all
	SubtableID int64 `json:"subtable_id,omitempty" validate:"omitempty,min=-1"`

	// Depth bounds expanded datatable resolution, 0 = unbounded
	Depth int `json:"depth,omitempty" validate:"omitempty,min=0"`
}

// CellMeta is the per (site, period) metadata attached alongside values
type CellMeta struct {
	SiteID     int64     `json:"site_id"`
	Period     string    `json:"period"`
	PrettyDate string    `json:"pretty_date"`
	TSArchived time.Time `json:"ts_archived,omitempty"`
}

// Result is the normalized query output; exactly one of the value fields
// is populated depending on the query cardinality (see the normalizer)
type Result struct {
	// Simple is the unwrapped single site + single period shape
	Simple map[string]float64 `json:"simple,omitempty"`

	// Indexed holds one or two levels of site / pretty-date keys
	Indexed map[string]any `json:"indexed,omitempty"`

	// Tables carries datatable results per index key ("" for the simple shape)
	Tables map[string]*datatable.Table `json:"tables,omitempty"`

	Meta []CellMeta `json:"meta,omitempty"`
}

// InvalidateInput marks archives stale so the next read recomputes them
type InvalidateInput struct {
	SiteIDs []int64  `json:"site_ids" validate:"required,min=1,dive,min=1" example:"1"`
	Dates   []string `json:"dates" validate:"required,min=1,dive,datetime=2006-01-02" example:"2024-05-12"`
}

// PurgeInput deletes archive rows left behind by failed or superseded runs
type PurgeInput struct {
	// Month selects the shard pair, any date inside the month
	Month string `json:"month" validate:"required,datetime=2006-01-02" example:"2024-05-01"`
}
