package datatable

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	perr "statskeep/internal/platform/errors"
)

// Encode serializes a table to its blob form: JSON rows wrapped in gzip
// Subtable pointers are dropped; only SubtableID back-references persist
func Encode(t *Table) ([]byte, error) {
	flat := Table{Rows: make([]Row, len(t.Rows))}
	for i, r := range t.Rows {
		r.Subtable = nil
		flat.Rows[i] = r
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "datatable encode")
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "datatable compress")
	}
	if err := zw.Close(); err != nil {
		return nil, perr.Wrap(err, perr.ErrorCodeUnknown, "datatable compress")
	}
	return buf.Bytes(), nil
}

// Decode inflates a blob back into a table
//
// Corrupt blobs degrade to an empty table instead of failing the read:
// one bad month must not break a multi site report. Callers that care
// can check the returned ok flag
func Decode(blob []byte) (t *Table, ok bool) {
	if len(blob) == 0 {
		return New(), false
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return New(), false
	}
	raw, err := io.ReadAll(zr)
	_ = zr.Close()
	if err != nil {
		return New(), false
	}
	var out Table
	if err := json.Unmarshal(raw, &out); err != nil {
		return New(), false
	}
	return &out, true
}
