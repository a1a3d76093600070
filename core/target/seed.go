package target

import (
	"bytes"

	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
)

const (
	gapSeedLength = 20
	// maxGapHits caps the alignments reported per reference for one gap so a
	// read falling in a low-complexity region cannot flood the engine.
	maxGapHits = 10
)

// AlignGap searches the unexplained read interval gap against the target and
// donor references with exact seeds extended ungapped on both strands. Target
// hits outside the amplicon are discarded. Hits come back deduplicated,
// sorted by decreasing aligned length, and capped per reference.
func (c *Config) AlignGap(readSeq []byte, gap interval.Interval) []align.Record {
	if gap.IsEmpty() || gap.Len() < 2 {
		return nil
	}
	var out []align.Record
	hits := c.alignGapAgainst(readSeq, gap, c.Target, c.TargetSeq)
	kept := hits[:0]
	for i := range hits {
		if hits[i].RefInterval().Intersects(c.Amplicon) {
			kept = append(kept, hits[i])
		}
	}
	out = append(out, capHits(kept)...)
	if c.HasDonor() {
		out = append(out, capHits(c.alignGapAgainst(readSeq, gap, c.Donor, c.DonorSeq))...)
	}
	return out
}

func capHits(hits []align.Record) []align.Record {
	hits = align.SortByAlignedLength(align.MakeNonredundant(hits))
	if len(hits) > maxGapHits {
		hits = hits[:maxGapHits]
	}
	return hits
}

func (c *Config) alignGapAgainst(readSeq []byte, gap interval.Interval, refName string, refSeq []byte) []align.Record {
	seedLen := gapSeedLength
	if gap.Len() < seedLen {
		seedLen = gap.Len()
	}
	step := seedLen / 2
	if step == 0 {
		step = 1
	}

	var seedStarts []int
	for q := gap.Start; q+seedLen <= gap.End+1; q += step {
		seedStarts = append(seedStarts, q)
	}
	if last := gap.End + 1 - seedLen; len(seedStarts) > 0 && seedStarts[len(seedStarts)-1] != last {
		seedStarts = append(seedStarts, last)
	}

	rcRead := align.RevComp(readSeq)
	var out []align.Record
	for _, q := range seedStarts {
		seed := readSeq[q : q+seedLen]
		for _, p := range allOccurrences(refSeq, seed) {
			out = append(out, extendSeedHit(readSeq, refName, refSeq, 1, q, p, seedLen))
		}
		for _, p := range allOccurrences(refSeq, align.RevComp(seed)) {
			// In aligned orientation the seed sits at the mirrored offset of
			// the reverse-complemented read.
			qrc := len(readSeq) - q - seedLen
			out = append(out, extendSeedHit(rcRead, refName, refSeq, -1, qrc, p, seedLen))
		}
	}
	return out
}

// allOccurrences lists every start of needle in haystack, overlaps included.
func allOccurrences(haystack, needle []byte) []int {
	if len(needle) == 0 {
		return nil
	}
	var out []int
	off := 0
	for {
		i := bytes.Index(haystack[off:], needle)
		if i < 0 {
			return out
		}
		out = append(out, off+i)
		off += i + 1
	}
}

// extendSeedHit grows an exact seed match outward base by base while the
// aligned-orientation read and the reference agree, then wraps it as a
// soft-clipped match record.
func extendSeedHit(alignedSeq []byte, refName string, refSeq []byte, strand int8, q, p, n int) align.Record {
	for q > 0 && p > 0 && alignedSeq[q-1] == refSeq[p-1] {
		q--
		p--
		n++
	}
	for q+n < len(alignedSeq) && p+n < len(refSeq) && alignedSeq[q+n] == refSeq[p+n] {
		n++
	}
	var cigar sam.Cigar
	if q > 0 {
		cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, q))
	}
	cigar = append(cigar, sam.NewCigarOp(sam.CigarMatch, n))
	if rest := len(alignedSeq) - q - n; rest > 0 {
		cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, rest))
	}
	return align.NewRecord(refName, strand, p, cigar, alignedSeq, nil)
}
