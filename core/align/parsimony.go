package align

import (
	"sort"

	"github.com/hukai916/knock-knock/core/interval"
)

// DisjointCovered returns the normalized set of read positions covered by
// any of the alignments.
func DisjointCovered(als []Record) interval.Set {
	ivs := make([]interval.Interval, 0, len(als))
	for i := range als {
		ivs = append(ivs, als[i].QueryInterval())
	}
	return interval.NewSet(ivs...)
}

// MakeParsimonious greedily reduces als to a covering subset: alignments are
// kept in input order while each newly kept one still explains read bases the
// already-kept set does not. Input order is the deterministic tie-break, so
// the result is an approximation of the minimal cover, not a global optimum.
func MakeParsimonious(als []Record) []Record {
	var (
		kept    []Record
		covered interval.Set
	)
	for i := range als {
		q := als[i].QueryInterval()
		novel := interval.Set{}
		if !q.IsEmpty() {
			novel = interval.Set{q}
		}
		novel = novel.DifferenceSet(covered)
		if novel.TotalLen() > 0 {
			kept = append(kept, als[i])
			covered = interval.NewSet(append(covered, q)...)
		}
	}
	return kept
}

// MakeNonredundant drops exact duplicate alignments, keeping first
// occurrences in order.
func MakeNonredundant(als []Record) []Record {
	seen := make(map[string]struct{}, len(als))
	var out []Record
	for i := range als {
		k := als[i].Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, als[i])
	}
	return out
}

// SortByAlignedLength orders als by decreasing aligned query length, stably.
func SortByAlignedLength(als []Record) []Record {
	out := make([]Record, len(als))
	copy(out, als)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AlignedQueryLen() > out[j].AlignedQueryLen()
	})
	return out
}
