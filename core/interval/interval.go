// Package interval implements closed integer intervals on a single
// coordinate axis (query or reference) and normalized disjoint sets of them.
// An interval with End < Start is the canonical empty interval; it absorbs
// in intersection and difference.
package interval

import "sort"

// Interval is a 0-based inclusive-closed integer interval.
type Interval struct {
	Start int
	End   int
}

// Empty returns the canonical empty interval.
func Empty() Interval { return Interval{0, -1} }

// New returns the interval [start, end].
func New(start, end int) Interval { return Interval{start, end} }

// IsEmpty reports whether iv contains no positions.
func (iv Interval) IsEmpty() bool { return iv.End < iv.Start }

// Len returns the number of positions covered by iv.
func (iv Interval) Len() int {
	if iv.IsEmpty() {
		return 0
	}
	return iv.End - iv.Start + 1
}

// Contains reports whether p lies inside iv.
func (iv Interval) Contains(p int) bool { return !iv.IsEmpty() && iv.Start <= p && p <= iv.End }

// Intersection returns the overlap of iv and o, empty if they are disjoint.
func (iv Interval) Intersection(o Interval) Interval {
	if iv.IsEmpty() || o.IsEmpty() {
		return Empty()
	}
	s, e := max(iv.Start, o.Start), min(iv.End, o.End)
	if e < s {
		return Empty()
	}
	return Interval{s, e}
}

// Intersects reports whether iv and o share at least one position.
func (iv Interval) Intersects(o Interval) bool { return !iv.Intersection(o).IsEmpty() }

// Difference returns iv with o removed. Removing an internal span can split
// iv into two pieces; the result has 0, 1, or 2 intervals.
func (iv Interval) Difference(o Interval) Set {
	if iv.IsEmpty() {
		return nil
	}
	ov := iv.Intersection(o)
	if ov.IsEmpty() {
		return Set{iv}
	}
	var out Set
	if iv.Start < ov.Start {
		out = append(out, Interval{iv.Start, ov.Start - 1})
	}
	if ov.End < iv.End {
		out = append(out, Interval{ov.End + 1, iv.End})
	}
	return out
}

// Adjacent reports whether a and b abut within tolerance tol: with tol 0 it
// holds iff a.End+1 == b.Start or b.End+1 == a.Start.
func Adjacent(a, b Interval, tol int) bool {
	if a.IsEmpty() || b.IsEmpty() {
		return false
	}
	return abs(b.Start-(a.End+1)) <= tol || abs(a.Start-(b.End+1)) <= tol
}

// Set is a normalized collection of disjoint, sorted, non-empty intervals.
type Set []Interval

// NewSet normalizes ivs into a Set: empties dropped, overlapping or exactly
// abutting intervals merged, result sorted by Start.
func NewSet(ivs ...Interval) Set {
	var kept Set
	for _, iv := range ivs {
		if !iv.IsEmpty() {
			kept = append(kept, iv)
		}
	}
	if len(kept) == 0 {
		return nil
	}
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].Start != kept[j].Start {
			return kept[i].Start < kept[j].Start
		}
		return kept[i].End < kept[j].End
	})
	out := Set{kept[0]}
	for _, iv := range kept[1:] {
		last := &out[len(out)-1]
		if iv.Start <= last.End+1 {
			if iv.End > last.End {
				last.End = iv.End
			}
		} else {
			out = append(out, iv)
		}
	}
	return out
}

// IsEmpty reports whether s covers no positions.
func (s Set) IsEmpty() bool { return len(s) == 0 }

// TotalLen returns the measure of the union, exact even when NewSet's inputs
// overlapped.
func (s Set) TotalLen() int {
	n := 0
	for _, iv := range s {
		n += iv.Len()
	}
	return n
}

// Bounds returns the spanning interval of s, empty if s is.
func (s Set) Bounds() Interval {
	if len(s) == 0 {
		return Empty()
	}
	return Interval{s[0].Start, s[len(s)-1].End}
}

// Intersects reports whether any member of s overlaps iv.
func (s Set) Intersects(iv Interval) bool {
	for _, m := range s {
		if m.Intersects(iv) {
			return true
		}
	}
	return false
}

// Intersection returns the part of s inside iv.
func (s Set) Intersection(iv Interval) Set {
	var out Set
	for _, m := range s {
		if ov := m.Intersection(iv); !ov.IsEmpty() {
			out = append(out, ov)
		}
	}
	return out
}

// Difference returns s with iv removed from every member.
func (s Set) Difference(iv Interval) Set {
	var out Set
	for _, m := range s {
		out = append(out, m.Difference(iv)...)
	}
	return out
}

// DifferenceSet returns s with every member of o removed.
func (s Set) DifferenceSet(o Set) Set {
	out := s
	for _, iv := range o {
		out = out.Difference(iv)
	}
	return out
}

// Contains reports whether s covers position p.
func (s Set) Contains(p int) bool {
	for _, m := range s {
		if m.Contains(p) {
			return true
		}
	}
	return false
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
