// Package align holds the alignment record the classification engine
// consumes and the pure transformations over it: splitting at large indels,
// cropping to query or reference windows, ungapped extension, merging of
// adjacent alignments, coordinate flipping, parsimonious reduction, and
// coverage/edit-distance measures. CIGAR semantics come from biogo/hts.
//
// Coordinate conventions: Pos is the 0-based reference start and reference
// intervals are inclusive-closed. Query coordinates are "true read"
// coordinates: 0-based positions on the read as sequenced, counting
// hard-clipped prefixes. Seq/Qual are stored in aligned orientation (reverse
// complemented relative to the read for minus-strand alignments, as in SAM)
// and exclude hard-clipped bases.
package align

import (
	"fmt"

	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/interval"
)

// Record is one local alignment of a read against one reference. Records are
// immutable from the engine's point of view: every transformation returns a
// new Record.
type Record struct {
	RefName string
	Strand  int8 // +1 forward, -1 reverse
	Pos     int  // 0-based reference start
	Cigar   sam.Cigar
	Seq     []byte
	Qual    []byte
	ReadLen int
}

func consumesQuery(t sam.CigarOpType) bool {
	return t.Consumes().Query == 1
}

func consumesRef(t sam.CigarOpType) bool {
	return t.Consumes().Reference == 1
}

func isClip(t sam.CigarOpType) bool {
	return t == sam.CigarSoftClipped || t == sam.CigarHardClipped
}

func isMatchType(t sam.CigarOpType) bool {
	return t == sam.CigarMatch || t == sam.CigarEqual || t == sam.CigarMismatch
}

// NewRecord builds a Record, deriving ReadLen from the CIGAR (query-consuming
// operations plus hard clips).
func NewRecord(refName string, strand int8, pos int, cigar sam.Cigar, seq, qual []byte) Record {
	n := 0
	for _, co := range cigar {
		t := co.Type()
		if consumesQuery(t) || t == sam.CigarHardClipped {
			n += co.Len()
		}
	}
	return Record{RefName: refName, Strand: strand, Pos: pos, Cigar: cigar, Seq: seq, Qual: qual, ReadLen: n}
}

// RefEnd returns one past the last reference position covered.
func (r *Record) RefEnd() int {
	n := r.Pos
	for _, co := range r.Cigar {
		if consumesRef(co.Type()) {
			n += co.Len()
		}
	}
	return n
}

// RefInterval returns the inclusive reference interval covered by r.
func (r *Record) RefInterval() interval.Interval {
	end := r.RefEnd() - 1
	if end < r.Pos {
		return interval.Empty()
	}
	return interval.New(r.Pos, end)
}

// clips returns the total leading and trailing clipped query lengths
// (hard + soft) in aligned orientation.
func (r *Record) clips() (lead, trail int) {
	for _, co := range r.Cigar {
		if !isClip(co.Type()) {
			break
		}
		lead += co.Len()
	}
	for i := len(r.Cigar) - 1; i >= 0; i-- {
		if !isClip(r.Cigar[i].Type()) {
			break
		}
		trail += r.Cigar[i].Len()
	}
	return lead, trail
}

func (r *Record) hardLead() int {
	n := 0
	for _, co := range r.Cigar {
		if co.Type() == sam.CigarHardClipped {
			n += co.Len()
			continue
		}
		break
	}
	return n
}

// alignedQuery returns the first and last aligned query positions in aligned
// orientation (true read coordinates before strand flipping).
func (r *Record) alignedQuery() (qs, qe int) {
	lead, trail := r.clips()
	return lead, r.ReadLen - 1 - trail
}

// AlignedQueryLen returns the number of read bases the alignment explains.
func (r *Record) AlignedQueryLen() int {
	qs, qe := r.alignedQuery()
	if qe < qs {
		return 0
	}
	return qe - qs + 1
}

// toReadCoord maps an aligned-orientation query position to read coordinates.
func (r *Record) toReadCoord(q int) int {
	if r.Strand < 0 {
		return r.ReadLen - 1 - q
	}
	return q
}

// QueryInterval returns the read-coordinate interval covered by r.
func (r *Record) QueryInterval() interval.Interval {
	qs, qe := r.alignedQuery()
	if qe < qs {
		return interval.Empty()
	}
	if r.Strand < 0 {
		return interval.New(r.ReadLen-1-qe, r.ReadLen-1-qs)
	}
	return interval.New(qs, qe)
}

// Flipped returns r with its coordinates flipped to the opposite read
// orientation: strand negated, sequence reverse complemented, CIGAR reversed.
// Reference coordinates are unchanged, so flipping a minus-strand alignment
// yields plus-strand-relative output for downstream consumers.
func (r *Record) Flipped() Record {
	flipped := Record{
		RefName: r.RefName,
		Strand:  -r.Strand,
		Pos:     r.Pos,
		Seq:     RevComp(r.Seq),
		Qual:    reverseBytes(r.Qual),
		ReadLen: r.ReadLen,
	}
	flipped.Cigar = make(sam.Cigar, len(r.Cigar))
	for i, co := range r.Cigar {
		flipped.Cigar[len(r.Cigar)-1-i] = co
	}
	return flipped
}

// Key identifies an alignment for redundancy elimination.
func (r *Record) Key() string {
	return fmt.Sprintf("%s/%d/%d/%s", r.RefName, r.Strand, r.Pos, r.Cigar.String())
}

// String renders a compact description used in diagnostics and reports.
func (r *Record) String() string {
	strand := byte('+')
	if r.Strand < 0 {
		strand = '-'
	}
	return fmt.Sprintf("%s:%c:%d:%s", r.RefName, strand, r.Pos, r.Cigar.String())
}
