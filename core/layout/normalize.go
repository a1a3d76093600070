package layout

import (
	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
	"github.com/hukai916/knock-knock/core/target"
)

// supplementalSplitThreshold is the insertion size supplemental alignments
// are split at. Coarser than the target threshold: supplemental genomes only
// need to explain coverage, not carry scar structure.
const supplementalSplitThreshold = 10

// minNovelEdgeCoverage is how much new read coverage a recovered primer-edge
// alignment must add before it is kept.
const minNovelEdgeCoverage = 10

// targetAlignments normalizes the raw target alignments: amplicon filter,
// extension of near-edge truncations through primer sequencing errors,
// splitting at large indels, exact re-extension of the pieces, and recovery
// of uncovered read edges directly against the primers.
func (l *Layout) targetAlignments() []align.Record {
	return l.mTargetAls.get(func() []align.Record {
		var processed []align.Record

		p5len := l.cfg.Primers[target.Side5].Len()
		p3len := l.cfg.Primers[target.Side3].Len()

		for _, al := range l.originals {
			if al.RefName != l.cfg.Target {
				continue
			}
			// Alignments entirely outside the amplicon are genomic insertion
			// evidence; supplemental alignments catch those.
			if !l.cfg.Amplicon.Intersects(al.RefInterval()) {
				continue
			}

			// Primers frequently carry 1 nt synthesis errors that truncate
			// alignments just short of the read edge. Step through them.
			qi := al.QueryInterval()
			extendBefore := 0 < qi.Start && qi.Start <= p5len+5
			extendAfter := len(l.seq)-1-p3len-5 <= qi.End && qi.End < len(l.seq)-1
			if extendBefore || extendAfter {
				front, back := extendBefore, extendAfter
				if al.Strand < 0 {
					front, back = extendAfter, extendBefore
				}
				al = al.ExtendToward(l.cfg.TargetSeq, front, back)
			}

			for _, piece := range al.SplitAtDeletions(l.splitThreshold) {
				for _, sub := range piece.SplitAtLargeInsertions(l.splitThreshold) {
					processed = append(processed, sub.Extend(l.cfg.TargetSeq, true, true))
				}
			}
		}

		// Uncovered read edges usually mean nonspecific amplification; try to
		// pin each uncovered edge to its primer.
		covered := align.DisjointCovered(processed)
		b := covered.Bounds()

		var edgeAls []*align.Record
		if b.IsEmpty() || b.Start != 0 {
			edgeAls = append(edgeAls, l.cfg.RealignEdge(l.seq, l.qual, target.Side5))
		}
		if b.IsEmpty() || b.End != len(l.seq)-1 {
			edgeAls = append(edgeAls, l.cfg.RealignEdge(l.seq, l.qual, target.Side3))
		}
		for _, edgeAl := range edgeAls {
			if edgeAl == nil {
				continue
			}
			novel := interval.Set{edgeAl.QueryInterval()}.DifferenceSet(covered)
			if novel.TotalLen() > minNovelEdgeCoverage {
				processed = append(processed, *edgeAl)
			}
		}

		return processed
	})
}

// donorAlignments normalizes donor alignments by splitting at large indels.
func (l *Layout) donorAlignments() []align.Record {
	return l.mDonorAls.get(func() []align.Record {
		if !l.cfg.HasDonor() {
			return nil
		}
		var out []align.Record
		for _, al := range l.originals {
			if al.RefName != l.cfg.Donor {
				continue
			}
			for _, piece := range al.SplitAtDeletions(l.splitThreshold) {
				out = append(out, piece.SplitAtLargeInsertions(l.splitThreshold)...)
			}
		}
		return out
	})
}

func (l *Layout) nonhomologousDonorAlignments() []align.Record {
	return l.mNhDonorAls.get(func() []align.Record {
		if !l.cfg.HasNonhomologousDonor() {
			return nil
		}
		var out []align.Record
		for _, al := range l.originals {
			if al.RefName != l.cfg.NonhomologousDonor {
				continue
			}
			out = append(out, al.SplitAtDeletions(l.splitThreshold)...)
		}
		return out
	})
}

func (l *Layout) supplementalAlignments() []align.Record {
	return l.mSuppAls.get(func() []align.Record {
		var out []align.Record
		for _, al := range l.originals {
			if l.cfg.ClassifyReference(al.RefName) != target.OriginSupplemental {
				continue
			}
			out = append(out, al.SplitAtLargeInsertions(supplementalSplitThreshold)...)
		}
		return out
	})
}
