// Package postprocess consolidates the per-group reconciliation plans into
// one deterministic insert set (component C7): exact duplicates dropped,
// temporally-adjacent equal-valued slices that slipped past per-group
// fusion merged, and the whole set ordered so output is a pure function of
// input.
package postprocess

import (
	"fmt"
	"sort"

	"chronoset/internal/reconcile"
)

// Clean merges every group's plan into one insert list and one expire
// list. Both are ordered: inserts by (identity key, effective_from),
// expire indices ascending.
func Clean(plans []reconcile.Plan) ([]reconcile.Segment, []int) {
	segments := make([]reconcile.Segment, 0, len(plans))
	expireSet := make(map[int]struct{})
	for _, p := range plans {
		segments = append(segments, p.Insert...)
		for _, e := range p.Expire {
			expireSet[e] = struct{}{}
		}
	}

	sort.SliceStable(segments, func(i, j int) bool {
		if segments[i].GroupKey != segments[j].GroupKey {
			return segments[i].GroupKey < segments[j].GroupKey
		}
		return segments[i].EffectiveFrom < segments[j].EffectiveFrom
	})

	segments = dedup(segments)
	segments = conflateAdjacent(segments)

	expire := make([]int, 0, len(expireSet))
	for e := range expireSet {
		expire = append(expire, e)
	}
	sort.Ints(expire)

	return segments, expire
}

func dedupKey(s reconcile.Segment) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d|%s", s.GroupKey, s.EffectiveFrom, s.EffectiveTo, s.AsOfFrom, s.AsOfTo, s.Fingerprint)
}

// dedup drops repeats of the exact same (identity, both intervals,
// fingerprint) tuple. The identity key is part of the tuple, so only
// repeats within one identity are dropped.
func dedup(segments []reconcile.Segment) []reconcile.Segment {
	seen := make(map[string]struct{}, len(segments))
	out := make([]reconcile.Segment, 0, len(segments))
	for _, s := range segments {
		key := dedupKey(s)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}

// conflateAdjacent merges consecutive segments of the same identity that
// share a fingerprint and an as_of_from and whose effective intervals
// touch. Per-group fusion (§4.5.a step 4) covers only the slices built
// from overlapping updates; this pass also merges a group's verbatim
// disjoint-update inserts with a touching slice of the same value.
// Segments of different identities are never merged.
func conflateAdjacent(segments []reconcile.Segment) []reconcile.Segment {
	if len(segments) == 0 {
		return segments
	}
	out := make([]reconcile.Segment, 0, len(segments))
	cur := segments[0]
	for _, s := range segments[1:] {
		sameIdentity := cur.GroupKey == s.GroupKey
		touching := cur.EffectiveTo == s.EffectiveFrom
		sameValue := cur.Fingerprint == s.Fingerprint && cur.AsOfFrom == s.AsOfFrom
		if sameIdentity && touching && sameValue {
			cur.EffectiveTo = s.EffectiveTo
			continue
		}
		out = append(out, cur)
		cur = s
	}
	return append(out, cur)
}
