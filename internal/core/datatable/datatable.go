// Package datatable models the nested report tables stored as archive blobs
package datatable

// Row is one report line: a label, numeric columns, and optionally a
// nested subtable. While stored, the nesting is a SubtableID
// back-reference; after resolution the Subtable field is materialized
type Row struct {
	Label   string             `json:"label"`
	Columns map[string]float64 `json:"columns,omitempty"`

	// SubtableID links to the blob stored under <name>_<id>; 0 means none
	SubtableID int64 `json:"subtable_id,omitempty"`

	// Subtable is populated by Resolve, never serialized into blobs
	Subtable *Table `json:"subtable,omitempty"`
}

// Table is an ordered list of rows
type Table struct {
	Rows []Row `json:"rows"`
}

// New returns an empty table
func New() *Table { return &Table{} }

// AddRow appends a row
func (t *Table) AddRow(r Row) { t.Rows = append(t.Rows, r) }

// Len returns the number of rows
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Equal compares two tables structurally, subtables included
func (t *Table) Equal(o *Table) bool {
	if t.Len() != o.Len() {
		return false
	}
	for i := range t.Rows {
		a, b := t.Rows[i], o.Rows[i]
		if a.Label != b.Label || a.SubtableID != b.SubtableID {
			return false
		}
		if len(a.Columns) != len(b.Columns) {
			return false
		}
		for k, v := range a.Columns {
			if b.Columns[k] != v {
				return false
			}
		}
		switch {
		case a.Subtable == nil && b.Subtable == nil:
		case a.Subtable == nil || b.Subtable == nil:
			return false
		case !a.Subtable.Equal(b.Subtable):
			return false
		}
	}
	return true
}
