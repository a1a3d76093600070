// Package layout turns the set of local alignments of one read into a repair
// outcome call. A Layout owns the read, its normalized alignments, and the
// derived facts the decision tree consults; facts are computed on first use
// and cached, so a read that fails an early malformed gate never pays for the
// expensive ones. A Layout is not safe for concurrent use.
package layout

import (
	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
	"github.com/hukai916/knock-knock/core/target"
)

// Split thresholds for normalizing alignments: indels longer than this are
// split into separate alignments before reasoning about structure.
const (
	splitThresholdShort = 3
	splitThresholdLong  = 4
)

// nearCutWindow is how far from the cut an indel or mismatch still counts as
// cut-associated.
const nearCutWindow = 10

type memo[T any] struct {
	v  T
	ok bool
}

func (m *memo[T]) get(f func() T) T {
	if !m.ok {
		m.v = f()
		m.ok = true
	}
	return m.v
}

type optInt struct {
	v  int
	ok bool
}

// readSide distinguishes the two physical ends of the read, independent of
// which target side they came from.
type readSide int

const (
	readLeft readSide = iota
	readRight
)

// coveringKind names the four single-read explanations a mate can offer for
// bridging in paired-end mode.
type coveringKind string

const (
	coveringDonor         coveringKind = "h"
	coveringNhDonor       coveringKind = "nh"
	coveringNonspecific   coveringKind = "nonspecific_amplification"
	coveringGenomicInsert coveringKind = "genomic_insertion"
)

var coveringKinds = []coveringKind{coveringDonor, coveringNhDonor, coveringNonspecific, coveringGenomicInsert}

// Layout is the per-read classification state.
type Layout struct {
	cfg  *target.Config
	name string
	seq  []byte
	qual []byte

	splitThreshold int

	originals []align.Record

	mTargetAls      memo[[]align.Record]
	mDonorAls       memo[[]align.Record]
	mNhDonorAls     memo[[]align.Record]
	mSuppAls        memo[[]align.Record]
	mAlignments     memo[[]align.Record]
	mParsAls        memo[[]align.Record]
	mGapAls         memo[[]align.Record]
	mParsGapAls     memo[[]align.Record]
	mParsTargetAls  memo[[]align.Record]
	mParsDonorAls   memo[[]align.Record]
	mNonredSuppAls  memo[[]align.Record]
	mUncatRelevant  memo[[]align.Record]
	mAllPrimerAls   memo[map[target.Side][]align.Record]
	mPrimerAls      memo[map[target.Side]*align.Record]
	mStrand         memo[int8]
	mCoveredPrimers memo[interval.Set]
	mMerged         memo[*align.Record]
	mHasIntegration memo[bool]
	mMismatches     memo[[]int]
	mIndels         memo[[]target.Indel]
	mIndelNearCut   memo[[]target.Indel]
	mClosestDonor   memo[map[target.Side]*align.Record]
	mCleanHandoff   memo[map[target.Side]bool]
	mEdgeR          memo[map[target.Side]optInt]
	mFullHA         memo[map[target.Side]bool]
	mIntegrationIv  memo[interval.Interval]
	mGapBetween     memo[interval.Set]
	mJunctionSide   memo[map[target.Side]string]
	mIntSummary     memo[string]
	mGenomicIns     memo[[]align.Record]
	mNhIntegration  memo[[]align.Record]
	mMinEditGenomic memo[[]align.Record]
	mExtraQuery     memo[map[readSide]int]
	mJustPrimer     memo[map[readSide]interval.Interval]
	mNonspecific    memo[[]align.Record]
	mOneSided       memo[map[coveringKind][]align.Record]
}

// New builds a Layout from a read and its alignments. Seq and qual are the
// read as sequenced; alignments carry their own orientation. longReads
// selects the looser split threshold appropriate for higher-error platforms.
func New(cfg *target.Config, name string, seq, qual []byte, als []align.Record, longReads bool) *Layout {
	threshold := splitThresholdShort
	if longReads {
		threshold = splitThresholdLong
	}
	return &Layout{
		cfg:            cfg,
		name:           name,
		seq:            seq,
		qual:           qual,
		splitThreshold: threshold,
		originals:      als,
	}
}

// Name returns the read name.
func (l *Layout) Name() string { return l.name }

// Seq returns the read sequence as sequenced.
func (l *Layout) Seq() []byte { return l.seq }

func (l *Layout) wholeRead() interval.Interval {
	return interval.New(0, len(l.seq)-1)
}

// alignments is the pool of target and donor alignments structure calls draw
// from.
func (l *Layout) alignments() []align.Record {
	return l.mAlignments.get(func() []align.Record {
		return append(append([]align.Record{}, l.targetAlignments()...), l.donorAlignments()...)
	})
}

func (l *Layout) parsimoniousAlignments() []align.Record {
	return l.mParsAls.get(func() []align.Record {
		return align.MakeParsimonious(l.alignments())
	})
}

// gapAlignments re-searches the unexplained span between the primer
// alignments against the target and donor. Finding one means the gap is local
// sequence, not a genomic insertion.
func (l *Layout) gapAlignments() []align.Record {
	return l.mGapAls.get(func() []align.Record {
		gap := l.gapBetweenPrimerAlignments()
		if gap.TotalLen() < 4 {
			return nil
		}
		return l.cfg.AlignGap(l.seq, gap.Bounds())
	})
}

func (l *Layout) parsimoniousAndGapAlignments() []align.Record {
	return l.mParsGapAls.get(func() []align.Record {
		pool := append(append([]align.Record{}, l.parsimoniousAlignments()...), l.gapAlignments()...)
		return align.MakeNonredundant(align.MakeParsimonious(pool))
	})
}

func (l *Layout) parsimoniousTargetAlignments() []align.Record {
	return l.mParsTargetAls.get(func() []align.Record {
		var out []align.Record
		for _, al := range l.parsimoniousAndGapAlignments() {
			if al.RefName == l.cfg.Target {
				out = append(out, al)
			}
		}
		return out
	})
}

func (l *Layout) parsimoniousDonorAlignments() []align.Record {
	return l.mParsDonorAls.get(func() []align.Record {
		var out []align.Record
		for _, al := range l.parsimoniousAndGapAlignments() {
			if l.cfg.HasDonor() && al.RefName == l.cfg.Donor {
				out = append(out, al)
			}
		}
		return out
	})
}

// allPrimerAlignments groups the parsimonious alignments that overlap each
// primer. Strand is deliberately not required to match.
func (l *Layout) allPrimerAlignments() map[target.Side][]align.Record {
	return l.mAllPrimerAls.get(func() map[target.Side][]align.Record {
		out := map[target.Side][]align.Record{}
		for _, side := range target.Sides {
			primer := l.cfg.Primers[side]
			for _, al := range l.parsimoniousAlignments() {
				if al.RefName == l.cfg.Target && al.RefInterval().Intersects(primer) {
					out[side] = append(out[side], al)
				}
			}
		}
		return out
	})
}

func (l *Layout) extraCopyOfPrimer() bool {
	for _, side := range target.Sides {
		if len(l.allPrimerAlignments()[side]) > 1 {
			return true
		}
	}
	return false
}

func (l *Layout) missingAPrimer() bool {
	for _, side := range target.Sides {
		if len(l.allPrimerAlignments()[side]) == 0 {
			return true
		}
	}
	return false
}

// primerAlignments returns the single alignment containing each primer, nil
// for sides with zero or several.
func (l *Layout) primerAlignments() map[target.Side]*align.Record {
	return l.mPrimerAls.get(func() map[target.Side]*align.Record {
		out := map[target.Side]*align.Record{}
		for _, side := range target.Sides {
			als := l.allPrimerAlignments()[side]
			if len(als) == 1 {
				al := als[0]
				out[side] = &al
			} else {
				out[side] = nil
			}
		}
		return out
	})
}

func (l *Layout) primerStrand(side target.Side) int8 {
	if al := l.primerAlignments()[side]; al != nil {
		return al.Strand
	}
	return 0
}

// strand is the sequencing orientation of the read relative to the target,
// taken from the primer alignments. Zero when they disagree or are absent.
func (l *Layout) strand() int8 {
	return l.mStrand.get(func() int8 {
		var s int8
		for _, side := range target.Sides {
			ps := l.primerStrand(side)
			if ps == 0 {
				continue
			}
			if s == 0 {
				s = ps
			} else if s != ps {
				return 0
			}
		}
		return s
	})
}

func (l *Layout) coveredByPrimerAlignments() interval.Set {
	return l.mCoveredPrimers.get(func() interval.Set {
		if l.strand() == 0 {
			return nil
		}
		var als []align.Record
		for _, side := range target.Sides {
			if al := l.primerAlignments()[side]; al != nil {
				als = append(als, *al)
			}
		}
		return align.DisjointCovered(als)
	})
}

func (l *Layout) primerAlignmentsReachEdges() bool {
	covered := l.coveredByPrimerAlignments()
	if covered.IsEmpty() {
		return false
	}
	b := covered.Bounds()
	return b.Start <= 10 && len(l.seq)-b.End <= 10
}

// singleMergedPrimerAlignment joins the two primer alignments into one when
// they are query-adjacent: the read is then a single pass over the target and
// its CIGAR holds any scar directly.
func (l *Layout) singleMergedPrimerAlignment() *align.Record {
	return l.mMerged.get(func() *align.Record {
		als := l.primerAlignments()
		if als[target.Side5] == nil || als[target.Side3] == nil {
			return nil
		}
		return align.MergeAdjacent(als[target.Side5], als[target.Side3])
	})
}

// hasIntegration holds when the read starts in the amplicon but the primer
// alignments cannot be merged into one pass over the target.
func (l *Layout) hasIntegration() bool {
	return l.mHasIntegration.get(func() bool {
		covered := l.coveredByPrimerAlignments()
		if covered.IsEmpty() || covered.Bounds().Start > 10 {
			return false
		}
		return l.singleMergedPrimerAlignment() == nil
	})
}

func (l *Layout) nearCut() interval.Interval {
	return l.cfg.AroundCut(nearCutWindow)
}

func (l *Layout) mismatchesNearCut() []int {
	return l.mMismatches.get(func() []int {
		merged := l.singleMergedPrimerAlignment()
		if merged == nil {
			return nil
		}
		return merged.MismatchRefPositions(l.cfg.TargetSeq, l.nearCut())
	})
}

// indels reads the raw indels off the merged primer alignment.
func (l *Layout) indels() []target.Indel {
	return l.mIndels.get(func() []target.Indel {
		merged := l.singleMergedPrimerAlignment()
		if merged == nil {
			return nil
		}
		var out []target.Indel
		for _, ci := range merged.Indels() {
			switch ci.Kind {
			case sam.CigarDeletion:
				out = append(out, target.Deletion{StartsAt: []int{ci.RefPos}, Length: ci.Length})
			case sam.CigarInsertion:
				out = append(out, target.Insertion{StartsAfter: []int{ci.RefPos}, Seqs: []string{string(ci.Seq)}})
			}
		}
		return out
	})
}

func (l *Layout) largestDeletionNearCut() *target.Deletion {
	var best *target.Deletion
	for _, indel := range l.indels() {
		d, ok := indel.(target.Deletion)
		if !ok {
			continue
		}
		span := interval.New(d.StartsAt[0], d.StartsAt[len(d.StartsAt)-1]+d.Length-1)
		if !span.Intersects(l.nearCut()) {
			continue
		}
		if best == nil || d.Length > best.Length {
			d := d
			best = &d
		}
	}
	if best != nil {
		expanded := l.cfg.ExpandDeletion(*best)
		best = &expanded
	}
	return best
}

func (l *Layout) largestInsertionNearCut() *target.Insertion {
	var best *target.Insertion
	for _, indel := range l.indels() {
		ins, ok := indel.(target.Insertion)
		if !ok {
			continue
		}
		near := false
		for _, sa := range ins.StartsAfter {
			if l.nearCut().Contains(sa) {
				near = true
			}
		}
		if !near {
			continue
		}
		if best == nil || len(ins.Seqs[0]) > len(best.Seqs[0]) {
			ins := ins
			best = &ins
		}
	}
	if best != nil {
		expanded := l.cfg.ExpandInsertion(*best)
		best = &expanded
	}
	return best
}

// indelNearCut is the cut-associated scar: the largest deletion, the largest
// insertion, or both when they tie.
func (l *Layout) indelNearCut() []target.Indel {
	return l.mIndelNearCut.get(func() []target.Indel {
		d := l.largestDeletionNearCut()
		ins := l.largestInsertionNearCut()

		dLen, iLen := 0, 0
		if d != nil {
			dLen = d.Length
		}
		if ins != nil {
			iLen = len(ins.Seqs[0])
		}
		switch {
		case dLen == 0 && iLen == 0:
			return nil
		case dLen > iLen:
			return []target.Indel{*d}
		case iLen > dLen:
			return []target.Indel{*ins}
		default:
			return []target.Indel{*d, *ins}
		}
	})
}

func (l *Layout) indelString() string {
	parts := ""
	for i, indel := range l.indelNearCut() {
		if i > 0 {
			parts += " "
		}
		parts += indel.String()
	}
	return parts
}

func (l *Layout) anyDonorSpecificPresent() bool {
	if !l.cfg.HasDonor() || l.cfg.DonorSpecific.IsEmpty() {
		return false
	}
	for _, al := range l.donorAlignments() {
		if al.RefInterval().Intersects(l.cfg.DonorSpecific) {
			return true
		}
	}
	return false
}

// closestDonorAlignmentToEdge picks, for each target side, the donor
// alignment nearest the read end carrying that side's primer.
func (l *Layout) closestDonorAlignmentToEdge() map[target.Side]*align.Record {
	return l.mClosestDonor.get(func() map[target.Side]*align.Record {
		out := map[target.Side]*align.Record{target.Side5: nil, target.Side3: nil}
		donorAls := l.donorAlignments()
		if l.strand() == 0 || len(donorAls) == 0 {
			return out
		}
		left, right := &donorAls[0], &donorAls[0]
		for i := range donorAls {
			if donorAls[i].QueryInterval().Start < left.QueryInterval().Start {
				left = &donorAls[i]
			}
			if donorAls[i].QueryInterval().End > right.QueryInterval().End {
				right = &donorAls[i]
			}
		}
		if l.strand() > 0 {
			out[target.Side5], out[target.Side3] = left, right
		} else {
			out[target.Side5], out[target.Side3] = right, left
		}
		return out
	})
}

// cleanHandoff reports, per junction, whether target sequence transitions to
// donor sequence through one full copy of the homology arm with no large
// indel near the internal arm edge.
func (l *Layout) cleanHandoff() map[target.Side]bool {
	return l.mCleanHandoff.get(func() map[target.Side]bool {
		out := map[target.Side]bool{target.Side5: false, target.Side3: false}

		if len(l.donorAlignments()) == 0 || !l.cfg.DonorCarriesArms() {
			return out
		}
		closest := l.closestDonorAlignmentToEdge()
		if closest[target.Side5] == nil && closest[target.Side3] == nil {
			return out
		}
		fromPrimer := l.primerAlignments()
		has := l.cfg.HomologyArms

		targetContainsFullArm := map[target.Side]bool{
			target.Side5: fromPrimer[target.Side5] != nil &&
				has[target.Side5].Target.End-fromPrimer[target.Side5].RefEnd() <= 10,
			target.Side3: fromPrimer[target.Side3] != nil &&
				fromPrimer[target.Side3].Pos-has[target.Side3].Target.Start <= 10,
		}

		for _, side := range target.Sides {
			donorAl := closest[side]
			if donorAl == nil || fromPrimer[side] == nil {
				continue
			}
			arm := has[side]

			var external, internal bool
			var junction int
			if side == target.Side5 {
				external = donorAl.Pos-arm.Donor.Start <= 10
				internal = (donorAl.RefEnd()-1)-arm.Donor.End >= 20
				junction = arm.Donor.End
			} else {
				external = arm.Donor.End-(donorAl.RefEnd()-1) <= 10
				internal = arm.Donor.Start-donorAl.Pos >= 20
				junction = arm.Donor.Start
			}

			var targetEdgeRef, donorEdgeRef int
			if side == target.Side5 {
				targetEdgeRef, donorEdgeRef = arm.Target.Start, arm.Donor.Start
			} else {
				targetEdgeRef, donorEdgeRef = arm.Target.End, arm.Donor.End
			}
			targetEdgeQ, okT := fromPrimer[side].ClosestQueryPosition(targetEdgeRef)
			donorEdgeQ, okD := donorAl.ClosestQueryPosition(donorEdgeRef)
			armsOverlap := okT && okD && abs(targetEdgeQ-donorEdgeQ) <= 10

			out[side] = targetContainsFullArm[side] &&
				external && internal &&
				armsOverlap &&
				donorAl.MaxIndelNearby(junction, 10) <= 2
		}
		return out
	})
}

// edgeR locates the integration edges on the donor: the smallest donor start
// and largest donor end among donor alignments cropped to the integration.
func (l *Layout) edgeR() map[target.Side]optInt {
	return l.mEdgeR.get(func() map[target.Side]optInt {
		out := map[target.Side]optInt{}
		ii := l.integrationInterval()
		for _, al := range l.parsimoniousDonorAlignments() {
			cropped := al.CropToQueryInterval(ii.Start, ii.End)
			if cropped == nil {
				continue
			}
			start, end := cropped.Pos, cropped.RefEnd()-1
			if v := out[target.Side5]; !v.ok || start < v.v {
				out[target.Side5] = optInt{start, true}
			}
			if v := out[target.Side3]; !v.ok || end > v.v {
				out[target.Side3] = optInt{end, true}
			}
		}
		return out
	})
}

// donorRelativeToArmExternal measures how far past (positive) or short of
// (negative) the outer homology-arm edge each integration edge reaches.
func (l *Layout) donorRelativeToArmExternal(side target.Side) optInt {
	edge := l.edgeR()[side]
	if !edge.ok {
		return optInt{}
	}
	arm := l.cfg.HomologyArms[side]
	if side == target.Side5 {
		return optInt{arm.Donor.Start - edge.v, true}
	}
	return optInt{edge.v - arm.Donor.End, true}
}

func (l *Layout) donorIntegrationContainsFullHA() map[target.Side]bool {
	return l.mFullHA.get(func() map[target.Side]bool {
		out := map[target.Side]bool{target.Side5: false, target.Side3: false}
		if !l.cfg.DonorCarriesArms() || !l.hasIntegration() {
			return out
		}
		for _, side := range target.Sides {
			offset := l.donorRelativeToArmExternal(side)
			out[side] = offset.ok && offset.v >= 0
		}
		return out
	})
}

const refMaskBound = 1 << 30

// integrationInterval is the query span holding integrated sequence. Because
// the cut may not coincide with the arm boundary, each flank is measured up
// to the arm edge when that side hands off cleanly and up to the cut
// otherwise.
func (l *Layout) integrationInterval() interval.Interval {
	return l.mIntegrationIv.get(func() interval.Interval {
		if !l.hasIntegration() {
			return interval.Empty()
		}
		has := l.cfg.HomologyArms
		cutAfter := l.cfg.CutAfter
		handoff := l.cleanHandoff()

		flank := map[target.Side]*align.Record{}
		maskLo := map[target.Side]int{target.Side5: -refMaskBound}
		maskHi := map[target.Side]int{target.Side3: refMaskBound}
		for _, side := range target.Sides {
			if handoff[side] {
				flank[side] = l.closestDonorAlignmentToEdge()[side]
			} else {
				flank[side] = l.primerAlignments()[side]
			}
		}
		if handoff[target.Side5] {
			maskHi[target.Side5] = has[target.Side5].Donor.End
		} else {
			maskHi[target.Side5] = cutAfter
		}
		if handoff[target.Side3] {
			maskLo[target.Side3] = has[target.Side3].Donor.Start
		} else {
			maskLo[target.Side3] = cutAfter + 1
		}

		covered := map[target.Side]*align.Record{}
		for _, side := range target.Sides {
			if flank[side] != nil {
				covered[side] = flank[side].CropToRefInterval(maskLo[side], maskHi[side])
			}
		}

		start, end := 0, len(l.seq)-1
		if l.strand() > 0 {
			if covered[target.Side5] != nil {
				start = covered[target.Side5].QueryInterval().End + 1
			}
			if covered[target.Side3] != nil {
				end = covered[target.Side3].QueryInterval().Start - 1
			}
		} else {
			if covered[target.Side5] != nil {
				end = covered[target.Side5].QueryInterval().Start - 1
			}
			if covered[target.Side3] != nil {
				start = covered[target.Side3].QueryInterval().End + 1
			}
		}
		return interval.New(start, end)
	})
}

// gapBetweenPrimerAlignments is the query span between the two primer
// alignments that neither explains.
func (l *Layout) gapBetweenPrimerAlignments() interval.Set {
	return l.mGapBetween.get(func() interval.Set {
		als := l.primerAlignments()
		if als[target.Side5] == nil || als[target.Side3] == nil || l.strand() == 0 {
			return nil
		}
		left := als[target.Side5].QueryInterval()
		right := als[target.Side3].QueryInterval()
		var between interval.Interval
		if l.strand() > 0 {
			between = interval.New(left.Start, right.End)
		} else {
			between = interval.New(right.Start, left.End)
		}
		return interval.Set{between}.Difference(left).Difference(right)
	})
}

func (l *Layout) junctionSummaryPerSide() map[target.Side]string {
	return l.mJunctionSide.get(func() map[target.Side]string {
		out := map[target.Side]string{}
		for _, side := range target.Sides {
			switch {
			case l.cleanHandoff()[side]:
				out[side] = "HDR"
			case l.donorIntegrationContainsFullHA()[side]:
				out[side] = "NHEJ"
			default:
				out[side] = "truncated"
			}
		}
		return out
	})
}

func (l *Layout) junctionSummary() string {
	per := l.junctionSummaryPerSide()
	switch {
	case per[target.Side5] == "HDR" && per[target.Side3] == "HDR":
		return "HDR"
	case per[target.Side5] == "NHEJ" && per[target.Side3] == "HDR":
		return "5' NHEJ"
	case per[target.Side5] == "HDR" && per[target.Side3] == "NHEJ":
		return "3' NHEJ"
	case per[target.Side5] == "NHEJ" && per[target.Side3] == "NHEJ":
		return "5' and 3' NHEJ"
	default:
		return "uncategorized"
	}
}

// integrationSummary classifies what fills the integration interval: a single
// donor copy, a donor copy with an indel, a concatamer, or something else.
func (l *Layout) integrationSummary() string {
	return l.mIntSummary.get(func() string {
		ii := l.integrationInterval()

		var integrationDonorAls []align.Record
		for _, al := range l.parsimoniousDonorAlignments() {
			covered := al.QueryInterval()
			if ii.Difference(covered).TotalLen() == 0 {
				// A single donor alignment covers the whole integration.
				integrationDonorAls = []align.Record{al}
				break
			}
			if ii.Intersection(covered).Len() >= 5 {
				integrationDonorAls = append(integrationDonorAls, al)
			}
		}

		switch len(integrationDonorAls) {
		case 0:
			return "other"
		case 1:
			pool := append(append([]align.Record{}, l.parsimoniousTargetAlignments()...), integrationDonorAls...)
			uncovered := len(l.seq) - align.DisjointCovered(pool).TotalLen()
			if uncovered > 10 {
				return "other"
			}
			donorAl := integrationDonorAls[0]
			if donorAl.MaxBlockLength(sam.CigarDeletion, sam.CigarInsertion) > 1 {
				return "donor with indel"
			}
			return "donor"
		default:
			if l.cleanlyConcatenatedDonors() > 1 {
				return "concatamer"
			}
			return "other"
		}
	})
}

// cleanlyConcatenatedDonors counts donor copies joined end-to-end through
// their homology arms, or zero when any junction is messy.
func (l *Layout) cleanlyConcatenatedDonors() int {
	donorAls := l.parsimoniousDonorAlignments()
	if len(donorAls) <= 1 || !l.cfg.DonorCarriesArms() {
		return 0
	}
	has := l.cfg.HomologyArms

	fiveToThree := make([]align.Record, len(donorAls))
	copy(fiveToThree, donorAls)
	desc := l.strand() < 0
	for i := 0; i < len(fiveToThree); i++ {
		for j := i + 1; j < len(fiveToThree); j++ {
			less := fiveToThree[j].QueryInterval().Start < fiveToThree[i].QueryInterval().Start
			if desc {
				less = fiveToThree[j].QueryInterval().End > fiveToThree[i].QueryInterval().End
			}
			if less {
				fiveToThree[i], fiveToThree[j] = fiveToThree[j], fiveToThree[i]
			}
		}
	}

	for i := 0; i+1 < len(fiveToThree); i++ {
		before, after := &fiveToThree[i], &fiveToThree[i+1]
		beforeIv := before.QueryInterval()
		afterIv := after.QueryInterval()

		overlapSlightly := beforeIv.Intersection(afterIv).Len() <= 2
		adjacent := interval.Adjacent(beforeIv, afterIv, 0)

		missingBefore := has[target.Side3].Donor.End - (before.RefEnd() - 1)
		missingAfter := after.Pos - has[target.Side5].Donor.Start

		if !((adjacent || overlapSlightly) && missingBefore <= 0 && missingAfter <= 0) {
			return 0
		}
	}
	return len(fiveToThree)
}

const minIntegrationGap = 10

// genomicInsertion returns the supplemental alignments that explain the gap
// between the primer alignments as sequence from elsewhere in the genome.
func (l *Layout) genomicInsertion() []align.Record {
	return l.mGenomicIns.get(func() []align.Record {
		gap := l.gapBetweenPrimerAlignments()
		unexplained := gap.DifferenceSet(align.DisjointCovered(l.alignments()))
		if unexplained.TotalLen() < minIntegrationGap {
			return nil
		}
		if len(l.gapAlignments()) > 0 {
			// The gap aligns locally; not an insertion from elsewhere.
			return nil
		}
		var covering []align.Record
		for _, al := range l.supplementalAlignments() {
			covered := al.QueryInterval()
			if gap.Difference(covered).TotalLen() > 3 {
				continue
			}
			edits := al.EditDistanceInQueryInterval(gap.Bounds(), nil)
			if float64(edits)/float64(gap.TotalLen()) < 0.1 {
				covering = append(covering, al)
			}
		}
		return covering
	})
}

// nonhomologousDonorIntegration returns the non-homologous donor alignments
// covering the gap between the primer alignments.
func (l *Layout) nonhomologousDonorIntegration() []align.Record {
	return l.mNhIntegration.get(func() []align.Record {
		gap := l.gapBetweenPrimerAlignments()
		unexplained := gap.DifferenceSet(align.DisjointCovered(l.alignments()))
		if unexplained.TotalLen() < minIntegrationGap {
			return nil
		}
		if len(l.gapAlignments()) > 0 {
			return nil
		}
		var covering []align.Record
		for _, al := range l.nonhomologousDonorAlignments() {
			if gap.Difference(al.QueryInterval()).TotalLen() <= 2 {
				covering = append(covering, al)
			}
		}
		return covering
	})
}

func (l *Layout) minEditDistanceGenomicInsertions() []align.Record {
	return l.mMinEditGenomic.get(func() []align.Record {
		covering := l.genomicInsertion()
		if len(covering) == 0 {
			return nil
		}
		best := -1
		for i := range covering {
			d := covering[i].EditDistanceInQueryInterval(l.wholeRead(), nil)
			if best == -1 || d < best {
				best = d
			}
		}
		var out []align.Record
		for i := range covering {
			if covering[i].EditDistanceInQueryInterval(l.wholeRead(), nil) == best {
				out = append(out, covering[i])
			}
		}
		return out
	})
}

func (l *Layout) sideToReadSide(side target.Side) readSide {
	if (side == target.Side5) == (l.strand() > 0) {
		return readLeft
	}
	return readRight
}

// justPrimerInterval is, per read end, the query interval from that end
// through the primer-covered part of its primer alignment.
func (l *Layout) justPrimerInterval() map[readSide]interval.Interval {
	return l.mJustPrimer.get(func() map[readSide]interval.Interval {
		out := map[readSide]interval.Interval{
			readLeft:  interval.Empty(),
			readRight: interval.Empty(),
		}
		if l.strand() == 0 {
			return out
		}
		for _, side := range target.Sides {
			al := l.primerAlignments()[side]
			if al == nil {
				continue
			}
			primer := l.cfg.Primers[side]
			justPrimer := al.CropToRefInterval(primer.Start, primer.End)
			if justPrimer == nil {
				continue
			}
			qi := justPrimer.QueryInterval()
			if l.sideToReadSide(side) == readLeft {
				out[readLeft] = interval.New(0, qi.End)
			} else {
				out[readRight] = interval.New(qi.Start, len(l.seq)-1)
			}
		}
		return out
	})
}

// extraQueryInPrimerAls measures how far each primer alignment extends beyond
// the primer itself toward the middle of the read.
func (l *Layout) extraQueryInPrimerAls() map[readSide]int {
	return l.mExtraQuery.get(func() map[readSide]int {
		out := map[readSide]int{readLeft: 0, readRight: 0}
		if l.strand() == 0 {
			return out
		}
		for _, side := range target.Sides {
			al := l.primerAlignments()[side]
			if al == nil {
				continue
			}
			rs := l.sideToReadSide(side)
			notPrimer := interval.Set{l.wholeRead()}.Difference(l.justPrimerInterval()[rs])
			if notPrimer.IsEmpty() {
				continue
			}
			b := notPrimer.Bounds()
			if cropped := al.CropToQueryInterval(b.Start, b.End); cropped != nil {
				out[rs] = cropped.AlignedQueryLen()
			}
		}
		return out
	})
}

// nonspecificAmplification returns supplemental alignments explaining the
// whole read outside the primers themselves, the signature of primers
// annealing somewhere else in the genome.
func (l *Layout) nonspecificAmplification() []align.Record {
	return l.mNonspecific.get(func() []align.Record {
		if !l.primerAlignmentsReachEdges() {
			return nil
		}
		extra := l.extraQueryInPrimerAls()
		if extra[readLeft] >= 20 || extra[readRight] >= 20 {
			return nil
		}
		justPrimer := l.justPrimerInterval()
		needToCover := interval.Set{l.wholeRead()}.
			Difference(justPrimer[readLeft]).
			Difference(justPrimer[readRight])

		var covering []align.Record
		for _, al := range l.supplementalAlignments() {
			if needToCover.DifferenceSet(interval.Set{al.QueryInterval()}).TotalLen() == 0 {
				covering = append(covering, al)
			}
		}
		return covering
	})
}

// oneSidedCoveringAls finds, for a read anchored by one primer, the
// alignments that explain everything past that primer. Used for bridging
// non-overlapping read pairs.
func (l *Layout) oneSidedCoveringAls() map[coveringKind][]align.Record {
	return l.mOneSided.get(func() map[coveringKind][]align.Record {
		out := map[coveringKind][]align.Record{}

		var primerAl *align.Record
		switch {
		case l.strand() > 0:
			primerAl = l.primerAlignments()[target.Side5]
		case l.strand() < 0:
			primerAl = l.primerAlignments()[target.Side3]
		}
		if primerAl == nil || primerAl.QueryInterval().Start > 10 {
			return out
		}

		hasExtra := l.extraQueryInPrimerAls()[readLeft] >= 20

		var kind coveringKind
		var primerInterval interval.Interval
		if hasExtra {
			kind = coveringGenomicInsert
			primerInterval = primerAl.QueryInterval()
			primerInterval.Start = 0
		} else {
			kind = coveringNonspecific
			primerInterval = l.justPrimerInterval()[readLeft]
		}

		needToCover := interval.Set{l.wholeRead()}.Difference(primerInterval)
		var covering []align.Record
		for _, al := range l.supplementalAlignments() {
			if needToCover.DifferenceSet(interval.Set{al.QueryInterval()}).TotalLen() <= 10 {
				covering = append(covering, al)
			}
		}
		if len(covering) > 0 {
			out[kind] = covering
		}

		primerInterval = primerAl.QueryInterval()
		primerInterval.Start = 0
		needToCover = interval.Set{l.wholeRead()}.Difference(primerInterval)
		for _, src := range []struct {
			kind coveringKind
			als  []align.Record
		}{
			{coveringDonor, l.parsimoniousDonorAlignments()},
			{coveringNhDonor, l.nonhomologousDonorAlignments()},
		} {
			var covering []align.Record
			for _, al := range src.als {
				if needToCover.DifferenceSet(interval.Set{al.QueryInterval()}).TotalLen() <= 10 {
					covering = append(covering, al)
				}
			}
			if len(covering) > 0 {
				out[src.kind] = covering
			}
		}
		return out
	})
}

// nonredundantSupplementalAlignments drops supplemental alignments wholly
// explained by target, donor, or non-homologous donor alignments.
func (l *Layout) nonredundantSupplementalAlignments() []align.Record {
	return l.mNonredSuppAls.get(func() []align.Record {
		primary := append(append([]align.Record{}, l.alignments()...), l.nonhomologousDonorAlignments()...)
		covered := align.DisjointCovered(primary)

		var kept []align.Record
		for _, al := range l.supplementalAlignments() {
			if !(interval.Set{al.QueryInterval()}).DifferenceSet(covered).IsEmpty() {
				kept = append(kept, al)
			}
		}
		return align.SortByAlignedLength(kept)
	})
}

// uncategorizedRelevantAlignments is the evidence reported for reads the tree
// cannot place: the parsimonious local picture plus up to ten supplemental
// alignments that add novel coverage.
func (l *Layout) uncategorizedRelevantAlignments() []align.Record {
	return l.mUncatRelevant.get(func() []align.Record {
		pool := append(append([]align.Record{}, l.parsimoniousAndGapAlignments()...), l.nonhomologousDonorAlignments()...)
		pars := align.MakeParsimonious(pool)

		covered := align.DisjointCovered(pars)
		supp := l.nonredundantSupplementalAlignments()
		if len(supp) > 10 {
			supp = supp[:10]
		}
		out := pars
		for _, al := range supp {
			novel := interval.Set{al.QueryInterval()}.DifferenceSet(covered)
			if novel.TotalLen() > 0 {
				out = append(out, al)
			}
		}
		return out
	})
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
