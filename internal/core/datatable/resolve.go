package datatable

import (
	"fmt"
)

// Flatten walks a materialized table tree and assigns subtable ids,
// producing the per-id blob map the writer persists. The root gets id 0;
// children are numbered breadth first, so ids are dense and deterministic
// for a given tree shape. Rows in the returned tables carry SubtableID
// back-references in place of their Subtable pointers
func Flatten(root *Table) (map[int64]*Table, error) {
	if root == nil {
		return nil, nil
	}
	out := map[int64]*Table{}
	next := int64(1)

	type item struct {
		id int64
		t  *Table
	}
	queue := []item{{id: 0, t: root}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		flat := &Table{Rows: make([]Row, len(cur.t.Rows))}
		for i, r := range cur.t.Rows {
			if r.Subtable != nil {
				r.SubtableID = next
				queue = append(queue, item{id: next, t: r.Subtable})
				next++
			}
			r.Subtable = nil
			flat.Rows[i] = r
		}
		out[cur.id] = flat
	}
	return out, nil
}

// BlobName renders the storage name for a subtable blob:
// id 0 keeps the bare record name, others get a _<id> suffix
func BlobName(name string, id int64) string {
	if id == 0 {
		return name
	}
	return fmt.Sprintf("%s_%d", name, id)
}

// Resolve expands subtable back-references in place of row links, looking
// blobs up in an immutable map keyed by storage name (the already fetched
// blob set for one archive). It is a pure function of its inputs: the
// input table is not mutated, and missing or corrupt subtable blobs leave
// the back-reference untouched rather than failing the whole expansion
//
// Expansion is breadth first and bounded by maxDepth levels below the
// root (maxDepth <= 0 means unbounded)
func Resolve(name string, root *Table, blobsByName map[string][]byte, maxDepth int) *Table {
	if root == nil {
		return nil
	}

	type item struct {
		t     *Table
		depth int
	}

	out := cloneShallow(root)
	queue := []item{{t: out, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		for i := range cur.t.Rows {
			r := &cur.t.Rows[i]
			if r.SubtableID == 0 || r.Subtable != nil {
				continue
			}
			blob, ok := blobsByName[BlobName(name, r.SubtableID)]
			if !ok {
				continue
			}
			sub, ok := Decode(blob)
			if !ok {
				continue
			}
			r.Subtable = sub
			queue = append(queue, item{t: sub, depth: cur.depth + 1})
		}
	}
	return out
}

// cloneShallow copies the table and its row slice so Resolve can attach
// subtables without mutating the caller's value
func cloneShallow(t *Table) *Table {
	c := &Table{Rows: make([]Row, len(t.Rows))}
	copy(c.Rows, t.Rows)
	return c
}
