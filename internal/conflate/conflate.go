// Package conflate implements the optional input pre-merge (component C4):
// collapsing runs of consecutive update rows that share a value
// fingerprint and are temporally adjacent, before the reconciler ever sees
// them.
package conflate

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow/array"

	"chronoset/internal/column"
)

// Row is a synthetic stand-in for a run of merged update rows. C5 reads
// the three temporal fields straight off Row and falls back to SourceRow,
// the first physical row of the run, for anything else (identity and
// value columns) — the same "keep the original index, rewrite only what
// downstream needs" indirection internal/diff/diff_column_rename.go uses
// for a renamed-column pair, so the reconciler never has to know whether
// an update came from a real row or a conflated one.
type Row struct {
	EffectiveFrom int64
	EffectiveTo   int64
	AsOfFrom      int64
	SourceRow     int
}

// Updates scans rows in effective_from order and merges any run where one
// row's effective_to equals the next row's effective_from and the two
// share a value fingerprint. The merged row keeps the first row's
// effective_from and as_of_from and the last row's effective_to. rows and
// the underlying record are never mutated.
func Updates(rows []int, axes column.Axes, fingerprints *array.String) []Row {
	if len(rows) == 0 {
		return nil
	}
	ordered := append([]int(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return axes.EffectiveFrom[ordered[i]] < axes.EffectiveFrom[ordered[j]]
	})

	out := make([]Row, 0, len(ordered))
	run := rowAt(ordered[0], axes)

	for _, row := range ordered[1:] {
		adjacent := run.EffectiveTo == axes.EffectiveFrom[row]
		sameValue := fingerprints.Value(run.SourceRow) == fingerprints.Value(row)
		if adjacent && sameValue {
			run.EffectiveTo = axes.EffectiveTo[row]
			continue
		}
		out = append(out, run)
		run = rowAt(row, axes)
	}
	return append(out, run)
}

func rowAt(row int, axes column.Axes) Row {
	return Row{
		EffectiveFrom: axes.EffectiveFrom[row],
		EffectiveTo:   axes.EffectiveTo[row],
		AsOfFrom:      axes.AsOfFrom[row],
		SourceRow:     row,
	}
}
