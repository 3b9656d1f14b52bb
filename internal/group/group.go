// Package group partitions the current and updates batches by the
// identity-column tuple (component C3), producing one Entry per distinct
// identity with the row indices that belong to it on each side.
package group

import (
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/cespare/xxhash/v2"

	"chronoset/core"
	"chronoset/internal/column"
)

// Entry holds the row indices belonging to one identity across both input
// batches, in input order. A group may be present on only one side: a pure
// insert (Current empty) or, in full-state mode, a pure tombstone
// candidate (Updates empty).
type Entry struct {
	// Key is the canonical byte encoding of the identity-column tuple,
	// materialized once per distinct identity. It doubles as the sort
	// key the post-processor uses to make output order a pure function
	// of input (§4.7).
	Key string

	Current []int
	Updates []int
}

// maxPrealloc caps the map preallocation estimate so a single pathological
// batch can't force a multi-gigabyte up-front allocation; distinct-identity
// counts beyond this just grow the map normally.
const maxPrealloc = 4096

// Build groups current and updates by idColumns and returns one Entry per
// distinct identity, in first-seen order (current scanned before updates).
// That order is not itself meaningful to later stages — C6 dispatches
// groups independently and C7 impose the real output order — but it keeps
// this function deterministic for a fixed input, which matters for tests.
func Build(current, updates arrow.Record, idColumns []string) ([]*Entry, error) {
	curKB, err := newKeyBuilder(current, idColumns)
	if err != nil {
		return nil, err
	}
	updKB, err := newKeyBuilder(updates, idColumns)
	if err != nil {
		return nil, err
	}

	capacity := estimateCapacity(int(current.NumRows()) + int(updates.NumRows()))
	buckets := make(map[uint64][]*Entry, capacity)
	order := make([]*Entry, 0, capacity)

	find := func(kb *keyBuilder, row int) (*Entry, error) {
		keyBytes, err := kb.build(row)
		if err != nil {
			return nil, err
		}
		h := xxhash.Sum64(keyBytes)
		for _, e := range buckets[h] {
			if e.Key == string(keyBytes) {
				return e, nil
			}
		}
		e := &Entry{Key: string(keyBytes)}
		buckets[h] = append(buckets[h], e)
		order = append(order, e)
		return e, nil
	}

	for row := 0; row < int(current.NumRows()); row++ {
		e, err := find(curKB, row)
		if err != nil {
			return nil, err
		}
		e.Current = append(e.Current, row)
	}
	for row := 0; row < int(updates.NumRows()); row++ {
		e, err := find(updKB, row)
		if err != nil {
			return nil, err
		}
		e.Updates = append(e.Updates, row)
	}

	return order, nil
}

func estimateCapacity(totalRows int) int {
	if totalRows < maxPrealloc {
		return totalRows
	}
	return maxPrealloc
}

// keyBuilder builds the identity key for one row into a reusable scratch
// buffer, so grouping a batch of n rows allocates O(distinct identities)
// strings rather than O(n) — the "avoid per-call heap allocation on the
// hottest path" discipline from §5.
type keyBuilder struct {
	scratch []byte
	idCols  []arrow.Array
}

func newKeyBuilder(rec arrow.Record, idColumns []string) (*keyBuilder, error) {
	cols := make([]arrow.Array, len(idColumns))
	for i, name := range idColumns {
		idx := core.FieldIndex(rec.Schema(), name)
		if idx < 0 {
			return nil, core.NewSchemaError(name, "id column missing from batch")
		}
		cols[i] = rec.Column(idx)
	}
	return &keyBuilder{idCols: cols}, nil
}

// build returns the key bytes for row, valid only until the next call to
// build: callers that need to retain it must copy (e.g. via string(...)).
func (kb *keyBuilder) build(row int) ([]byte, error) {
	kb.scratch = kb.scratch[:0]
	for _, col := range kb.idCols {
		var err error
		kb.scratch, err = column.AppendScalarBytes(kb.scratch, col, row)
		if err != nil {
			return nil, err
		}
	}
	return kb.scratch, nil
}
