package align

import (
	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/interval"
)

// opSpan is one CIGAR operation with its aligned-orientation query start and
// reference start resolved.
type opSpan struct {
	op sam.CigarOpType
	n  int
	q  int
	r  int
}

func (r *Record) spans() []opSpan {
	out := make([]opSpan, 0, len(r.Cigar))
	q, rp := 0, r.Pos
	for _, co := range r.Cigar {
		t := co.Type()
		out = append(out, opSpan{op: t, n: co.Len(), q: q, r: rp})
		if consumesQuery(t) || t == sam.CigarHardClipped {
			q += co.Len()
		}
		if consumesRef(t) {
			rp += co.Len()
		}
	}
	return out
}

// appendOp appends an operation to a CIGAR, merging with a trailing operation
// of the same type.
func appendOp(c sam.Cigar, t sam.CigarOpType, n int) sam.Cigar {
	if n <= 0 {
		return c
	}
	if len(c) > 0 && c[len(c)-1].Type() == t {
		c[len(c)-1] = sam.NewCigarOp(t, c[len(c)-1].Len()+n)
		return c
	}
	return append(c, sam.NewCigarOp(t, n))
}

// subRecord returns the part of r whose aligned (match-type) query positions
// lie in [qFirst, qLast] (aligned orientation). Query bases outside become
// soft clips; insertions strictly inside are kept; deletions at the cut
// points are dropped. Returns nil if the window holds no aligned positions.
func (r *Record) subRecord(qFirst, qLast int) *Record {
	if qLast < qFirst {
		return nil
	}
	hardLead := r.hardLead()
	var (
		mid      sam.Cigar
		refStart = -1
		sawMatch bool
		pendingD int
	)
	for _, sp := range r.spans() {
		switch {
		case isClip(sp.op):
			continue
		case isMatchType(sp.op):
			lo, hi := sp.q, sp.q+sp.n-1
			if lo < qFirst {
				lo = qFirst
			}
			if hi > qLast {
				hi = qLast
			}
			if hi < lo {
				continue
			}
			if sawMatch && pendingD > 0 {
				mid = appendOp(mid, sam.CigarDeletion, pendingD)
			}
			pendingD = 0
			if !sawMatch {
				refStart = sp.r + (lo - sp.q)
				sawMatch = true
			}
			mid = appendOp(mid, sp.op, hi-lo+1)
		case sp.op == sam.CigarInsertion:
			if sawMatch && sp.q > qFirst && sp.q <= qLast {
				if pendingD > 0 {
					mid = appendOp(mid, sam.CigarDeletion, pendingD)
					pendingD = 0
				}
				mid = appendOp(mid, sam.CigarInsertion, sp.n)
			}
		case consumesRef(sp.op): // D, N
			if sawMatch && sp.q > qFirst && sp.q <= qLast {
				pendingD += sp.n
			}
		}
	}
	if !sawMatch {
		return nil
	}
	var cigar sam.Cigar
	if hardLead > 0 {
		cigar = appendOp(cigar, sam.CigarHardClipped, hardLead)
	}
	cigar = appendOp(cigar, sam.CigarSoftClipped, qFirst-hardLead)
	cigar = append(cigar, mid...)
	hardTrail := 0
	if n := len(r.Cigar); n > 0 && r.Cigar[n-1].Type() == sam.CigarHardClipped {
		hardTrail = r.Cigar[n-1].Len()
	}
	cigar = appendOp(cigar, sam.CigarSoftClipped, r.ReadLen-1-qLast-hardTrail)
	if hardTrail > 0 {
		cigar = appendOp(cigar, sam.CigarHardClipped, hardTrail)
	}
	sub := Record{
		RefName: r.RefName,
		Strand:  r.Strand,
		Pos:     refStart,
		Cigar:   cigar,
		Seq:     r.Seq,
		Qual:    r.Qual,
		ReadLen: r.ReadLen,
	}
	return &sub
}

// matchBounds returns the first and last aligned query positions (aligned
// orientation) satisfying keep, or ok=false when none do.
func (r *Record) matchBounds(keep func(q, ref int) bool) (first, last int, ok bool) {
	first, last = -1, -1
	for _, sp := range r.spans() {
		if !isMatchType(sp.op) {
			continue
		}
		for i := 0; i < sp.n; i++ {
			if keep(sp.q+i, sp.r+i) {
				if first == -1 {
					first = sp.q + i
				}
				last = sp.q + i
			}
		}
	}
	return first, last, first != -1
}

// CropToQueryInterval restricts r to read-coordinate query window [start, end].
// Returns nil if no aligned positions remain.
func (r *Record) CropToQueryInterval(start, end int) *Record {
	s, e := start, end
	if r.Strand < 0 {
		s, e = r.ReadLen-1-end, r.ReadLen-1-start
	}
	first, last, ok := r.matchBounds(func(q, _ int) bool { return s <= q && q <= e })
	if !ok {
		return nil
	}
	return r.subRecord(first, last)
}

// CropToRefInterval restricts r to reference window [start, end]. Returns nil
// if no aligned positions remain.
func (r *Record) CropToRefInterval(start, end int) *Record {
	first, last, ok := r.matchBounds(func(_, ref int) bool { return start <= ref && ref <= end })
	if !ok {
		return nil
	}
	return r.subRecord(first, last)
}

// splitAt splits r into sub-alignments at every operation where split
// returns true. The split operations themselves belong to no piece.
func (r *Record) splitAt(split func(op sam.CigarOpType, n int) bool) []Record {
	spans := r.spans()
	var out []Record
	segFirst, segLast := -1, -1
	flush := func() {
		if segFirst != -1 {
			if sub := r.subRecord(segFirst, segLast); sub != nil {
				out = append(out, *sub)
			}
		}
		segFirst, segLast = -1, -1
	}
	for _, sp := range spans {
		if split(sp.op, sp.n) {
			flush()
			continue
		}
		if isMatchType(sp.op) {
			if segFirst == -1 {
				segFirst = sp.q
			}
			segLast = sp.q + sp.n - 1
		}
	}
	flush()
	return out
}

// SplitAtDeletions splits r at deletions longer than threshold.
func (r *Record) SplitAtDeletions(threshold int) []Record {
	return r.splitAt(func(op sam.CigarOpType, n int) bool {
		return op == sam.CigarDeletion && n > threshold
	})
}

// SplitAtLargeInsertions splits r at insertions longer than threshold; the
// inserted query bases are soft-clipped out of both pieces.
func (r *Record) SplitAtLargeInsertions(threshold int) []Record {
	return r.splitAt(func(op sam.CigarOpType, n int) bool {
		return op == sam.CigarInsertion && n > threshold
	})
}

// maxBridgedInsertion bounds the query gap MergeAdjacent will bridge as an
// insertion. Ref gaps (deletions) are unbounded: a 60 bp deletion split for
// normalization must rejoin to be called as a deletion. A query gap larger
// than any plausible end-joining insertion is integration evidence and must
// keep the two alignments apart.
const maxBridgedInsertion = 20

// MergeAdjacent merges two alignments of the same read to the same reference
// and strand into one when they abut on the query (small overlaps are cropped
// away), bridging a reference gap as a deletion and a query gap up to
// maxBridgedInsertion as an insertion. Returns nil when they cannot form one
// consistent alignment.
func MergeAdjacent(a, b *Record) *Record {
	if a == nil || b == nil {
		return nil
	}
	if a.RefName != b.RefName || a.Strand != b.Strand || a.ReadLen != b.ReadLen {
		return nil
	}
	if a.Key() == b.Key() {
		// One alignment contains both anchors.
		merged := *a
		return &merged
	}
	aqs, _ := a.alignedQuery()
	bqs, _ := b.alignedQuery()
	if bqs < aqs {
		a, b = b, a
	}
	_, aqe := a.alignedQuery()
	bqs, bqe := b.alignedQuery()
	if bqs <= aqe {
		// Crop the overlap out of the later alignment.
		first, last, ok := b.matchBounds(func(q, _ int) bool { return q > aqe })
		if !ok {
			return nil
		}
		b = b.subRecord(first, last)
		bqs, bqe = first, last
		_ = bqe
	}
	qgap := bqs - aqe - 1
	rgap := b.Pos - a.RefEnd()
	if rgap < 0 {
		return nil
	}
	if qgap > 0 && rgap > 0 {
		return nil
	}
	if qgap > maxBridgedInsertion {
		return nil
	}

	var cigar sam.Cigar
	spans := a.spans()
	for _, sp := range spans {
		if isClip(sp.op) && sp.q > aqe {
			break
		}
		if sp.op == sam.CigarHardClipped && sp.q <= aqe {
			cigar = appendOp(cigar, sp.op, sp.n)
			continue
		}
		cigar = appendOp(cigar, sp.op, sp.n)
	}
	cigar = appendOp(cigar, sam.CigarInsertion, qgap)
	cigar = appendOp(cigar, sam.CigarDeletion, rgap)
	started := false
	for _, sp := range b.spans() {
		if isClip(sp.op) && !started {
			continue
		}
		started = true
		cigar = appendOp(cigar, sp.op, sp.n)
	}
	merged := Record{
		RefName: a.RefName,
		Strand:  a.Strand,
		Pos:     a.Pos,
		Cigar:   cigar,
		Seq:     a.Seq,
		Qual:    a.Qual,
		ReadLen: a.ReadLen,
	}
	return &merged
}

// Extend grows r by ungapped extension against refSeq, converting soft-clip
// bases into matches while they agree exactly with the reference. front and
// back select the aligned-orientation ends to extend.
func (r Record) Extend(refSeq []byte, front, back bool) Record {
	out := r
	hardLead := r.hardLead()
	if front {
		qs, _ := out.alignedQuery()
		k := 0
		for qs-1-k >= hardLead && out.Pos-1-k >= 0 {
			if out.Seq[qs-1-k-hardLead] != refSeq[out.Pos-1-k] {
				break
			}
			k++
		}
		if k > 0 {
			out = out.withFrontExtension(k)
		}
	}
	if back {
		_, qe := out.alignedQuery()
		k := 0
		end := out.RefEnd()
		for qe+1+k-hardLead < len(out.Seq) && end+k < len(refSeq) {
			if out.Seq[qe+1+k-hardLead] != refSeq[end+k] {
				break
			}
			k++
		}
		if k > 0 {
			out = out.withBackExtension(k)
		}
	}
	return out
}

// ExtendToward extends like Extend but steps through isolated mismatches,
// continuing whenever at least one exact match follows or the read edge is
// reached. Used to recover primer-edge alignments truncated by sequencing
// errors.
func (r *Record) ExtendToward(refSeq []byte, front, back bool) Record {
	out := r.Extend(refSeq, front, back)
	hardLead := r.hardLead()
	for {
		progressed := false
		if front {
			qs, _ := out.alignedQuery()
			if qs-1 >= hardLead && out.Pos-1 >= 0 {
				atEdge := qs-1 == hardLead || out.Pos-1 == 0
				next := out.withFrontExtension(1).Extend(refSeq, true, false)
				nqs, _ := next.alignedQuery()
				if atEdge || nqs < qs-1 {
					out = next
					progressed = true
				}
			}
		}
		if back {
			_, qe := out.alignedQuery()
			if qe+1-hardLead < len(out.Seq) && out.RefEnd() < len(refSeq) {
				atEdge := qe+1-hardLead == len(out.Seq)-1 || out.RefEnd() == len(refSeq)-1
				next := out.withBackExtension(1).Extend(refSeq, false, true)
				_, nqe := next.alignedQuery()
				if atEdge || nqe > qe+1 {
					out = next
					progressed = true
				}
			}
		}
		if !progressed {
			return out
		}
	}
}

func (r Record) withFrontExtension(k int) Record {
	var cigar sam.Cigar
	consumed := false
	for _, co := range r.Cigar {
		t := co.Type()
		if !consumed && t == sam.CigarSoftClipped {
			cigar = appendOp(cigar, sam.CigarSoftClipped, co.Len()-k)
			cigar = appendOp(cigar, sam.CigarMatch, k)
			consumed = true
			continue
		}
		cigar = appendOp(cigar, t, co.Len())
	}
	r.Cigar = cigar
	r.Pos -= k
	return r
}

func (r Record) withBackExtension(k int) Record {
	spans := r.spans()
	consumed := false
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		if !consumed && sp.op == sam.CigarSoftClipped {
			pre := make(sam.Cigar, 0, i+2)
			for _, p := range spans[:i] {
				pre = appendOp(pre, p.op, p.n)
			}
			pre = appendOp(pre, sam.CigarMatch, k)
			pre = appendOp(pre, sam.CigarSoftClipped, sp.n-k)
			for _, p := range spans[i+1:] {
				pre = appendOp(pre, p.op, p.n)
			}
			r.Cigar = pre
			consumed = true
			break
		}
	}
	return r
}

// MaxBlockLength returns the longest operation of any of the given types.
func (r *Record) MaxBlockLength(types ...sam.CigarOpType) int {
	maxLen := 0
	for _, co := range r.Cigar {
		for _, t := range types {
			if co.Type() == t && co.Len() > maxLen {
				maxLen = co.Len()
			}
		}
	}
	return maxLen
}

// MaxIndelNearby returns the longest indel within window reference positions
// of refPos.
func (r *Record) MaxIndelNearby(refPos, window int) int {
	lo, hi := refPos-window, refPos+window
	maxLen := 0
	for _, sp := range r.spans() {
		switch sp.op {
		case sam.CigarDeletion:
			if sp.r <= hi && sp.r+sp.n-1 >= lo && sp.n > maxLen {
				maxLen = sp.n
			}
		case sam.CigarInsertion:
			if sp.r-1 >= lo && sp.r-1 <= hi && sp.n > maxLen {
				maxLen = sp.n
			}
		}
	}
	return maxLen
}

// ClosestQueryPosition returns the read-coordinate query position aligned
// nearest to refPos, and whether any aligned position exists.
func (r *Record) ClosestQueryPosition(refPos int) (int, bool) {
	best, bestDist := -1, int(^uint(0)>>1)
	for _, sp := range r.spans() {
		if !isMatchType(sp.op) {
			continue
		}
		// Nearest position within this block to refPos.
		p := refPos
		if p < sp.r {
			p = sp.r
		}
		if p > sp.r+sp.n-1 {
			p = sp.r + sp.n - 1
		}
		d := p - refPos
		if d < 0 {
			d = -d
		}
		if d < bestDist {
			bestDist = d
			best = sp.q + (p - sp.r)
		}
	}
	if best == -1 {
		return 0, false
	}
	return r.toReadCoord(best), true
}

// EditDistanceInQueryInterval returns the edit distance of the alignment
// restricted to the read-coordinate query window q: inserted and deleted
// bases plus mismatches. Explicit X operations always count; M blocks are
// compared base-by-base when refSeq is non-nil and otherwise assumed to
// match.
func (r *Record) EditDistanceInQueryInterval(q interval.Interval, refSeq []byte) int {
	if q.IsEmpty() {
		return 0
	}
	s, e := q.Start, q.End
	if r.Strand < 0 {
		s, e = r.ReadLen-1-q.End, r.ReadLen-1-q.Start
	}
	hardLead := r.hardLead()
	dist := 0
	for _, sp := range r.spans() {
		switch {
		case isMatchType(sp.op):
			lo, hi := sp.q, sp.q+sp.n-1
			if lo < s {
				lo = s
			}
			if hi > e {
				hi = e
			}
			if hi < lo {
				continue
			}
			if sp.op == sam.CigarMismatch {
				dist += hi - lo + 1
				continue
			}
			if sp.op == sam.CigarMatch && refSeq != nil {
				for p := lo; p <= hi; p++ {
					ref := sp.r + (p - sp.q)
					if ref < 0 || ref >= len(refSeq) {
						continue
					}
					if r.Seq[p-hardLead] != refSeq[ref] {
						dist++
					}
				}
			}
		case sp.op == sam.CigarInsertion:
			lo, hi := sp.q, sp.q+sp.n-1
			if lo < s {
				lo = s
			}
			if hi > e {
				hi = e
			}
			if hi >= lo {
				dist += hi - lo + 1
			}
		case sp.op == sam.CigarDeletion:
			if sp.q-1 >= s && sp.q <= e {
				dist += sp.n
			}
		}
	}
	return dist
}

// MismatchRefPositions returns the reference positions inside window whose
// aligned read base differs from refSeq.
func (r *Record) MismatchRefPositions(refSeq []byte, window interval.Interval) []int {
	hardLead := r.hardLead()
	var out []int
	for _, sp := range r.spans() {
		if !isMatchType(sp.op) {
			continue
		}
		for i := 0; i < sp.n; i++ {
			ref := sp.r + i
			if !window.Contains(ref) || ref >= len(refSeq) {
				continue
			}
			if sp.op == sam.CigarMismatch || r.Seq[sp.q+i-hardLead] != refSeq[ref] {
				out = append(out, ref)
			}
		}
	}
	return out
}

// CigarIndel is a raw indel read off an alignment's CIGAR.
type CigarIndel struct {
	Kind   sam.CigarOpType // CigarDeletion or CigarInsertion
	RefPos int             // deletion start, or position the insertion starts after
	Length int
	Seq    []byte // inserted bases, nil for deletions
}

// Indels returns the indels of r in CIGAR order. Inserted sequences are
// reported in reference plus-strand orientation.
func (r *Record) Indels() []CigarIndel {
	hardLead := r.hardLead()
	var out []CigarIndel
	for _, sp := range r.spans() {
		switch sp.op {
		case sam.CigarDeletion:
			out = append(out, CigarIndel{Kind: sam.CigarDeletion, RefPos: sp.r, Length: sp.n})
		case sam.CigarInsertion:
			seq := make([]byte, sp.n)
			copy(seq, r.Seq[sp.q-hardLead:sp.q-hardLead+sp.n])
			out = append(out, CigarIndel{Kind: sam.CigarInsertion, RefPos: sp.r - 1, Length: sp.n, Seq: seq})
		}
	}
	return out
}
