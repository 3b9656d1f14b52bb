// Package reconcile implements the timeline reconciler (component C5):
// given one identity's current active rows and its update rows, it decides
// which current rows must be expired and which new rows must be inserted.
// It is the sole consumer of internal/group and internal/conflate's output
// and never touches an Arrow builder — segment descriptors are handed off
// to later stages for consolidation.
package reconcile

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow/array"

	"chronoset/core"
	"chronoset/internal/column"
	"chronoset/internal/conflate"
	"chronoset/internal/group"
)

// SourceBatch identifies which input record a Segment's value columns
// should be copied from when it is later materialized into Arrow output.
type SourceBatch int

const (
	SourceCurrent SourceBatch = iota
	SourceUpdates
)

// Segment is one insert this group's reconciliation produced, still
// in-memory: enough for the post-processor to sort, dedup and conflate
// across groups, and for the batch consolidator to copy identity and
// value columns straight from the originating row.
type Segment struct {
	GroupKey string

	EffectiveFrom int64
	EffectiveTo   int64
	AsOfFrom      int64
	AsOfTo        int64

	Fingerprint string

	Source    SourceBatch
	SourceRow int
}

// Plan is one group's reconciliation result.
type Plan struct {
	// Expire holds indices into the caller's current record.
	Expire []int
	Insert []Segment
}

// Options carries the batch-wide settings every group reconciles against.
type Options struct {
	Mode core.UpdateMode

	// AsOfTimestamp is the moment this call is considered to run,
	// normalized to the as-of axis's unit. It stamps as_of_from on
	// every row freshly asserted by an update.
	AsOfTimestamp int64

	// EffectiveCutover is the same moment normalized to the effective
	// axis's unit. It closes effective_to on full-state tombstones.
	EffectiveCutover int64

	EffectiveSentinel int64
	AsOfSentinel      int64

	ConflateInputs bool
}

type currentRow struct {
	EffectiveFrom, EffectiveTo, AsOfFrom int64
	SourceRow                            int
}

type updateRow struct {
	EffectiveFrom, EffectiveTo, AsOfFrom int64
	SourceRow                            int
}

// Group reconciles one identity's rows. currentAxes/updatesAxes and
// currentFP/updatesFP are the normalized temporal columns and fingerprint
// columns of the whole current and updates batches; entry restricts the
// row indices to this identity.
func Group(entry *group.Entry, currentAxes, updatesAxes column.Axes, currentFP, updatesFP *array.String, opts Options) (Plan, error) {
	cur := make([]currentRow, len(entry.Current))
	for i, row := range entry.Current {
		cur[i] = currentRow{
			EffectiveFrom: currentAxes.EffectiveFrom[row],
			EffectiveTo:   currentAxes.EffectiveTo[row],
			AsOfFrom:      currentAxes.AsOfFrom[row],
			SourceRow:     row,
		}
	}
	if err := validateCurrent(entry.Key, cur); err != nil {
		return Plan{}, err
	}

	upd := conflatedUpdates(entry, updatesAxes, updatesFP, opts.ConflateInputs)

	if opts.Mode == core.FullState {
		return reconcileFullState(entry.Key, cur, upd, currentFP, updatesFP, opts)
	}
	return reconcileDelta(entry.Key, cur, upd, currentFP, updatesFP, opts)
}

func validateCurrent(key string, rows []currentRow) error {
	sorted := append([]currentRow(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].EffectiveFrom < sorted[j].EffectiveFrom })
	for i, r := range sorted {
		if r.EffectiveFrom >= r.EffectiveTo {
			return core.NewInvariantError(key, r.SourceRow, "effective_from must precede effective_to")
		}
		if i > 0 && sorted[i-1].EffectiveTo > r.EffectiveFrom {
			return core.NewInvariantError(key, r.SourceRow, "current rows for one identity must not overlap on the effective axis")
		}
	}
	return nil
}

func conflatedUpdates(entry *group.Entry, axes column.Axes, fp *array.String, conflateInputs bool) []updateRow {
	if !conflateInputs {
		rows := make([]updateRow, len(entry.Updates))
		for i, row := range entry.Updates {
			rows[i] = updateRow{
				EffectiveFrom: axes.EffectiveFrom[row],
				EffectiveTo:   axes.EffectiveTo[row],
				AsOfFrom:      axes.AsOfFrom[row],
				SourceRow:     row,
			}
		}
		return rows
	}
	merged := conflate.Updates(entry.Updates, axes, fp)
	rows := make([]updateRow, len(merged))
	for i, m := range merged {
		rows[i] = updateRow{
			EffectiveFrom: m.EffectiveFrom,
			EffectiveTo:   m.EffectiveTo,
			AsOfFrom:      m.AsOfFrom,
			SourceRow:     m.SourceRow,
		}
	}
	return rows
}

// reconcileDelta implements §4.5.a steps 1-5.
func reconcileDelta(key string, cur []currentRow, upd []updateRow, currentFP, updatesFP *array.String, opts Options) (Plan, error) {
	over, disj := partitionUpdates(cur, upd)

	plan := Plan{}
	for _, u := range disj {
		plan.Insert = append(plan.Insert, Segment{
			GroupKey:      key,
			EffectiveFrom: u.EffectiveFrom,
			EffectiveTo:   u.EffectiveTo,
			AsOfFrom:      opts.AsOfTimestamp,
			AsOfTo:        opts.AsOfSentinel,
			Fingerprint:   updatesFP.Value(u.SourceRow),
			Source:        SourceUpdates,
			SourceRow:     u.SourceRow,
		})
	}

	if len(over) == 0 {
		return plan, nil
	}

	var affected []currentRow
	for _, c := range cur {
		if intersectsAny(c, over) {
			affected = append(affected, c)
			plan.Expire = append(plan.Expire, c.SourceRow)
		}
	}
	if len(affected) == 0 {
		return plan, nil
	}

	var inserts []Segment
	for _, seg := range tileSegments(affected, over) {
		s, ok := resolveSegment(key, seg, affected, over, currentFP, updatesFP, opts)
		if ok {
			inserts = append(inserts, s)
		}
	}
	inserts = fuseAdjacent(inserts)
	inserts, expire := collapseEchoes(inserts, affected, plan.Expire, currentFP)

	plan.Insert = append(plan.Insert, inserts...)
	plan.Expire = expire
	return plan, nil
}

// reconcileFullState implements §4.5.b. Rows that are value-equivalent
// (same fingerprint) and share the same effective interval are left alone
// entirely — no expire, no insert — so only the sub-slice that actually
// changed passes through delta-mode reconciliation; a multi-row identity
// where just one row changed must not disturb its untouched siblings.
func reconcileFullState(key string, cur []currentRow, upd []updateRow, currentFP, updatesFP *array.String, opts Options) (Plan, error) {
	if len(upd) == 0 && len(cur) > 0 {
		return tombstone(key, cur, currentFP, opts), nil
	}
	if len(cur) == 0 {
		return reconcileDelta(key, cur, upd, currentFP, updatesFP, opts)
	}

	changedCur, changedUpd := partitionUnchangedState(cur, upd, currentFP, updatesFP)
	if len(changedCur) == 0 && len(changedUpd) == 0 {
		return Plan{}, nil
	}
	return reconcileDelta(key, changedCur, changedUpd, currentFP, updatesFP, opts)
}

// partitionUnchangedState matches each current row against at most one
// update row sharing the same effective interval and fingerprint — those
// pairs describe unchanged state per §4.5.b's first bullet and are dropped
// from both sides before delta-mode ever sees them. The remaining,
// unmatched rows on each side are exactly the sub-slice whose fingerprint
// or interval differs.
func partitionUnchangedState(cur []currentRow, upd []updateRow, currentFP, updatesFP *array.String) ([]currentRow, []updateRow) {
	updMatched := make([]bool, len(upd))
	var changedCur []currentRow
	for _, c := range cur {
		matched := false
		for j, u := range upd {
			if updMatched[j] {
				continue
			}
			if c.EffectiveFrom == u.EffectiveFrom && c.EffectiveTo == u.EffectiveTo &&
				currentFP.Value(c.SourceRow) == updatesFP.Value(u.SourceRow) {
				updMatched[j] = true
				matched = true
				break
			}
		}
		if !matched {
			changedCur = append(changedCur, c)
		}
	}

	var changedUpd []updateRow
	for j, u := range upd {
		if !updMatched[j] {
			changedUpd = append(changedUpd, u)
		}
	}
	return changedCur, changedUpd
}

// tombstone closes out every current row for an identity absent from the
// updates batch, re-asserting its last value up to the cutover date so the
// timeline carries an audit record of when it disappeared.
func tombstone(key string, cur []currentRow, currentFP *array.String, opts Options) Plan {
	plan := Plan{Expire: make([]int, 0, len(cur))}
	for _, c := range cur {
		plan.Expire = append(plan.Expire, c.SourceRow)
		if c.EffectiveFrom >= opts.EffectiveCutover {
			continue // row had not yet started as of the cutover; nothing to re-assert
		}
		plan.Insert = append(plan.Insert, Segment{
			GroupKey:      key,
			EffectiveFrom: c.EffectiveFrom,
			EffectiveTo:   opts.EffectiveCutover,
			AsOfFrom:      opts.AsOfTimestamp,
			AsOfTo:        opts.AsOfSentinel,
			Fingerprint:   currentFP.Value(c.SourceRow),
			Source:        SourceCurrent,
			SourceRow:     c.SourceRow,
		})
	}
	return plan
}

func partitionUpdates(cur []currentRow, upd []updateRow) (over, disj []updateRow) {
	for _, u := range upd {
		hit := false
		for _, c := range cur {
			if overlaps(u.EffectiveFrom, u.EffectiveTo, c.EffectiveFrom, c.EffectiveTo) {
				hit = true
				break
			}
		}
		if hit {
			over = append(over, u)
		} else {
			disj = append(disj, u)
		}
	}
	return over, disj
}

func intersectsAny(c currentRow, over []updateRow) bool {
	for _, u := range over {
		if overlaps(c.EffectiveFrom, c.EffectiveTo, u.EffectiveFrom, u.EffectiveTo) {
			return true
		}
	}
	return false
}

func overlaps(aFrom, aTo, bFrom, bTo int64) bool {
	return aFrom < bTo && bFrom < aTo
}

// tileSegments sweeps the sorted boundary points of the affected current
// rows and the overlapping updates, keeping only the gaps actually covered
// by at least one of them — this is the "flat slice, sort, sweep" strategy
// used elsewhere in this codebase for determinism, not a segment tree: at
// the row counts one identity group sees, the constant overhead of a tree
// buys nothing.
func tileSegments(affected []currentRow, over []updateRow) [][2]int64 {
	boundarySet := make(map[int64]struct{}, 2*(len(affected)+len(over)))
	for _, c := range affected {
		boundarySet[c.EffectiveFrom] = struct{}{}
		boundarySet[c.EffectiveTo] = struct{}{}
	}
	for _, u := range over {
		boundarySet[u.EffectiveFrom] = struct{}{}
		boundarySet[u.EffectiveTo] = struct{}{}
	}
	bounds := make([]int64, 0, len(boundarySet))
	for b := range boundarySet {
		bounds = append(bounds, b)
	}
	sort.Slice(bounds, func(i, j int) bool { return bounds[i] < bounds[j] })

	segs := make([][2]int64, 0, len(bounds))
	for i := 0; i+1 < len(bounds); i++ {
		lo, hi := bounds[i], bounds[i+1]
		if coveredByAny(lo, hi, affected, over) {
			segs = append(segs, [2]int64{lo, hi})
		}
	}
	return segs
}

func coveredByAny(lo, hi int64, affected []currentRow, over []updateRow) bool {
	for _, c := range affected {
		if c.EffectiveFrom <= lo && hi <= c.EffectiveTo {
			return true
		}
	}
	for _, u := range over {
		if u.EffectiveFrom <= lo && hi <= u.EffectiveTo {
			return true
		}
	}
	return false
}

// resolveSegment picks the winning value for one tiled segment. Updates
// shadow current rows wherever one covers the segment; among several
// covering updates the later as_of_from wins, ties broken by input order
// (lower SourceRow, since conflated runs keep their first physical row's
// SourceRow). Otherwise the segment falls outside every update and inside
// exactly one affected current row, which is re-emitted.
func resolveSegment(key string, seg [2]int64, affected []currentRow, over []updateRow, currentFP, updatesFP *array.String, opts Options) (Segment, bool) {
	lo, hi := seg[0], seg[1]

	var covering []updateRow
	for _, u := range over {
		if u.EffectiveFrom <= lo && hi <= u.EffectiveTo {
			covering = append(covering, u)
		}
	}
	if len(covering) > 0 {
		winner := pickWinnerUpdate(covering)
		return Segment{
			GroupKey:      key,
			EffectiveFrom: lo,
			EffectiveTo:   hi,
			AsOfFrom:      opts.AsOfTimestamp,
			AsOfTo:        opts.AsOfSentinel,
			Fingerprint:   updatesFP.Value(winner.SourceRow),
			Source:        SourceUpdates,
			SourceRow:     winner.SourceRow,
		}, true
	}

	for _, c := range affected {
		if c.EffectiveFrom <= lo && hi <= c.EffectiveTo {
			triggerAsOf := triggeringAsOf(c, over)
			return Segment{
				GroupKey:      key,
				EffectiveFrom: lo,
				EffectiveTo:   hi,
				AsOfFrom:      triggerAsOf,
				AsOfTo:        opts.AsOfSentinel,
				Fingerprint:   currentFP.Value(c.SourceRow),
				Source:        SourceCurrent,
				SourceRow:     c.SourceRow,
			}, true
		}
	}
	return Segment{}, false
}

// triggeringAsOf picks the as_of_from to attribute a re-emitted slice of c
// to: among the updates overlapping c, the one that would win Step 3's
// winner rule, so the re-emission is traced to the same decision that made
// c affected in the first place.
func triggeringAsOf(c currentRow, over []updateRow) int64 {
	var triggering []updateRow
	for _, u := range over {
		if overlaps(c.EffectiveFrom, c.EffectiveTo, u.EffectiveFrom, u.EffectiveTo) {
			triggering = append(triggering, u)
		}
	}
	return pickWinnerUpdate(triggering).AsOfFrom
}

func pickWinnerUpdate(candidates []updateRow) updateRow {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.AsOfFrom > best.AsOfFrom || (c.AsOfFrom == best.AsOfFrom && c.SourceRow < best.SourceRow) {
			best = c
		}
	}
	return best
}

// fuseAdjacent merges consecutive segments (already ascending by
// construction) that share a fingerprint, an as_of_from, and touch at the
// boundary — without the as_of_from match a fusion would have to silently
// pick one of two distinct audit attributions.
func fuseAdjacent(segs []Segment) []Segment {
	if len(segs) == 0 {
		return segs
	}
	out := make([]Segment, 0, len(segs))
	cur := segs[0]
	for _, s := range segs[1:] {
		touching := cur.EffectiveTo == s.EffectiveFrom
		sameValue := cur.Fingerprint == s.Fingerprint && cur.AsOfFrom == s.AsOfFrom
		if touching && sameValue {
			cur.EffectiveTo = s.EffectiveTo
			continue
		}
		out = append(out, cur)
		cur = s
	}
	return append(out, cur)
}

// collapseEchoes drops an insert/expire pair when the insert is
// bit-identical to the affected current row it would replace: nothing
// actually changed for that slice.
func collapseEchoes(inserts []Segment, affected []currentRow, expire []int, currentFP *array.String) ([]Segment, []int) {
	expireSet := make(map[int]bool, len(expire))
	for _, e := range expire {
		expireSet[e] = true
	}

	kept := make([]Segment, 0, len(inserts))
	for _, s := range inserts {
		echoed := false
		for _, c := range affected {
			if !expireSet[c.SourceRow] {
				continue
			}
			if c.EffectiveFrom == s.EffectiveFrom && c.EffectiveTo == s.EffectiveTo &&
				c.AsOfFrom == s.AsOfFrom && currentFP.Value(c.SourceRow) == s.Fingerprint {
				delete(expireSet, c.SourceRow)
				echoed = true
				break
			}
		}
		if !echoed {
			kept = append(kept, s)
		}
	}

	remaining := make([]int, 0, len(expireSet))
	for e := range expireSet {
		remaining = append(remaining, e)
	}
	sort.Ints(remaining)
	return kept, remaining
}
