package layout

import (
	"errors"
	"fmt"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/outcome"
	"github.com/hukai916/knock-knock/core/target"
)

// ErrAmbiguousBridge reports a read pair that more than one bridging
// explanation fits; no single call is defensible.
var ErrAmbiguousBridge = errors.New("layout: ambiguous bridging between mates")

// maxConcordantLength bounds the reference span a bridged pair may imply.
const maxConcordantLength = 2000

// PairOutcome is the joint call for a non-overlapping read pair, with the
// relevant alignments of each mate and the inferred fragment length
// (negative when no length could be inferred).
type PairOutcome struct {
	outcome.Outcome
	R1     []align.Record
	R2     []align.Record
	Length int
}

// PairLayout bridges two non-overlapping mates of one fragment: R1 anchored
// by the 5' primer, R2 by the 3' primer.
type PairLayout struct {
	R1, R2 *Layout
	name   string

	mBridging   memo[map[coveringKind]bridgePair]
	mMissing    memo[map[coveringKind]bridgeMissing]
	mStrand     memo[map[coveringKind]int8]
	mSuccessful memo[struct {
		kind coveringKind
		err  error
	}]
}

type bridgePair struct {
	r1, r2 *align.Record
}

type bridgeMissing struct {
	r1, r2 optInt
}

// NewPairLayout pairs two single-read layouts. The mates must come from the
// same fragment.
func NewPairLayout(r1, r2 *Layout) (*PairLayout, error) {
	if r1.Name() != r2.Name() {
		return nil, fmt.Errorf("layout: mate names differ: %q vs %q", r1.Name(), r2.Name())
	}
	return &PairLayout{R1: r1, R2: r2, name: r1.Name()}, nil
}

// Name returns the fragment name shared by the mates.
func (p *PairLayout) Name() string { return p.name }

// bridgingAlignments proposes, per kind, one alignment from each mate that
// could bridge the gap between them.
func (p *PairLayout) bridgingAlignments() map[coveringKind]bridgePair {
	return p.mBridging.get(func() map[coveringKind]bridgePair {
		out := map[coveringKind]bridgePair{}

		for _, which := range []*Layout{p.R1, p.R2} {
			if !which.hasIntegration() {
				continue
			}
			for _, kind := range []coveringKind{coveringDonor, coveringNhDonor} {
				als := which.oneSidedCoveringAls()[kind]
				if len(als) != 1 {
					continue
				}
				pair := out[kind]
				al := als[0]
				if which == p.R1 {
					pair.r1 = &al
				} else {
					pair.r2 = &al
				}
				out[kind] = pair
			}
		}

		for kind, pair := range p.bestGenomicAlPairs() {
			out[kind] = pair
		}
		return out
	})
}

// bestGenomicAlPairs picks, for the supplemental-alignment kinds, the
// concordant R1/R2 alignment pair implying the shortest fragment.
func (p *PairLayout) bestGenomicAlPairs() map[coveringKind]bridgePair {
	out := map[coveringKind]bridgePair{}
	for _, kind := range []coveringKind{coveringNonspecific, coveringGenomicInsert} {
		r1Als := p.R1.oneSidedCoveringAls()[kind]
		r2Als := p.R2.oneSidedCoveringAls()[kind]
		if len(r1Als) == 0 || len(r2Als) == 0 {
			continue
		}

		bestLength := -1
		var best bridgePair
		for i := range r1Als {
			for j := range r2Als {
				r1Al, r2Al := &r1Als[i], &r2Als[j]
				if r1Al.RefName != r2Al.RefName {
					continue
				}
				// Concordant mates align in opposite orientations.
				var start, end int
				switch {
				case r1Al.Strand > 0 && r2Al.Strand < 0:
					start, end = r1Al.Pos, r2Al.RefEnd()
				case r1Al.Strand < 0 && r2Al.Strand > 0:
					start, end = r2Al.Pos, r1Al.RefEnd()
				default:
					continue
				}
				length := end - start
				if length <= 0 || length >= maxConcordantLength {
					continue
				}
				if bestLength == -1 || length < bestLength {
					bestLength = length
					best = bridgePair{r1: r1Al, r2: r2Al}
				}
			}
		}
		if bestLength != -1 {
			out[kind] = best
		}
	}
	return out
}

// bridgingAlsMissingFromEnd measures how far each bridging alignment falls
// short of its mate's internal (3') end.
func (p *PairLayout) bridgingAlsMissingFromEnd() map[coveringKind]bridgeMissing {
	return p.mMissing.get(func() map[coveringKind]bridgeMissing {
		out := map[coveringKind]bridgeMissing{}
		for kind, pair := range p.bridgingAlignments() {
			var m bridgeMissing
			if pair.r1 != nil {
				m.r1 = optInt{len(p.R1.Seq()) - 1 - pair.r1.QueryInterval().End, true}
			}
			if pair.r2 != nil {
				m.r2 = optInt{len(p.R2.Seq()) - 1 - pair.r2.QueryInterval().End, true}
			}
			out[kind] = m
		}
		return out
	})
}

func (p *PairLayout) bridgingAlsReachInternalEdges(kind coveringKind) bool {
	m := p.bridgingAlsMissingFromEnd()[kind]
	return m.r1.ok && m.r1.v <= 5 && m.r2.ok && m.r2.v <= 5
}

// bridgingStrand is the shared orientation of a kind's bridging pair, after
// flipping R2 into R1's frame. Zero when inconsistent or incomplete.
func (p *PairLayout) bridgingStrand() map[coveringKind]int8 {
	return p.mStrand.get(func() map[coveringKind]int8 {
		out := map[coveringKind]int8{}
		for kind, pair := range p.bridgingAlignments() {
			if pair.r1 == nil || pair.r2 == nil {
				continue
			}
			r2Flipped := pair.r2.Flipped()
			if pair.r1.Strand == r2Flipped.Strand {
				out[kind] = pair.r1.Strand
			}
		}
		return out
	})
}

// successfulBridgingKind resolves which explanation bridges the pair. Exactly
// one may succeed; several is ErrAmbiguousBridge; none is the empty kind.
func (p *PairLayout) successfulBridgingKind() (coveringKind, error) {
	res := p.mSuccessful.get(func() struct {
		kind coveringKind
		err  error
	} {
		var successful []coveringKind
		for _, kind := range coveringKinds {
			if p.bridgingStrand()[kind] != 0 && p.bridgingAlsReachInternalEdges(kind) {
				successful = append(successful, kind)
			}
		}
		switch len(successful) {
		case 0:
			return struct {
				kind coveringKind
				err  error
			}{"", nil}
		case 1:
			return struct {
				kind coveringKind
				err  error
			}{successful[0], nil}
		default:
			return struct {
				kind coveringKind
				err  error
			}{"", fmt.Errorf("%w: pair %s fits %v", ErrAmbiguousBridge, p.name, successful)}
		}
	})
	return res.kind, res.err
}

// gap is the unsequenced reference span between the mates' bridging
// alignments, corrected for read bases the alignments fail to reach.
func (p *PairLayout) gap(kind coveringKind) int {
	pair := p.bridgingAlignments()[kind]
	m := p.bridgingAlsMissingFromEnd()[kind]
	unaligned := 0
	if m.r1.ok {
		unaligned += m.r1.v
	}
	if m.r2.ok {
		unaligned += m.r2.v
	}
	var aligned int
	if p.bridgingStrand()[kind] > 0 {
		aligned = pair.r2.Pos - pair.r1.RefEnd()
	} else {
		aligned = pair.r1.Pos - pair.r2.RefEnd()
	}
	return aligned - unaligned
}

func (p *PairLayout) inferredLength(kind coveringKind) int {
	return len(p.R1.Seq()) + len(p.R2.Seq()) + p.gap(kind)
}

func (p *PairLayout) junctions() (r1, r2 string) {
	return p.R1.junctionSummaryPerSide()[target.Side5], p.R2.junctionSummaryPerSide()[target.Side3]
}

func (p *PairLayout) uncategorizedRelevant(l *Layout) []align.Record {
	out := append(append([]align.Record{}, l.parsimoniousAndGapAlignments()...), l.nonhomologousDonorAlignments()...)
	supp := l.nonredundantSupplementalAlignments()
	if len(supp) > 10 {
		supp = supp[:10]
	}
	return append(out, supp...)
}

func (p *PairLayout) uncategorizedOutcome() PairOutcome {
	return PairOutcome{
		Outcome: outcome.Outcome{
			Category:    "uncategorized",
			Subcategory: "non-overlapping",
			Details:     noDetails,
		},
		R1:     p.uncategorizedRelevant(p.R1),
		R2:     p.uncategorizedRelevant(p.R2),
		Length: -1,
	}
}

func strandString(s int8) string {
	if s < 0 {
		return "-"
	}
	return "+"
}

// Categorize resolves the joint outcome of a non-overlapping pair.
func (p *PairLayout) Categorize() (PairOutcome, error) {
	kind, err := p.successfulBridgingKind()
	if err != nil {
		return PairOutcome{}, err
	}

	switch {
	case kind == coveringDonor && p.inferredLength(kind) > 0:
		j1, j2 := p.junctions()
		out := PairOutcome{
			R1:     append(append([]align.Record{}, p.R1.parsimoniousTargetAlignments()...), p.R1.parsimoniousDonorAlignments()...),
			R2:     append(append([]align.Record{}, p.R2.parsimoniousTargetAlignments()...), p.R2.parsimoniousDonorAlignments()...),
			Length: p.inferredLength(kind),
		}
		switch {
		case j1 == "NHEJ" && j2 == "NHEJ":
			out.Category = "misintegration"
			out.Subcategory = "5' NHEJ, 3' NHEJ"
			out.Details = strandString(p.bridgingStrand()[kind])
		case j1 == "truncated" && j2 == "truncated":
			out.Category = "misintegration"
			out.Subcategory = "5' truncated, 3' truncated"
			out.Details = strandString(p.bridgingStrand()[kind])
		default:
			return p.uncategorizedOutcome(), nil
		}
		return out, nil

	case kind == coveringNhDonor && p.inferredLength(kind) > 0:
		return PairOutcome{
			Outcome: outcome.Outcome{
				Category:    "misintegration",
				Subcategory: "non-homologous donor",
				Details:     noDetails,
			},
			R1:     append(append([]align.Record{}, p.R1.parsimoniousTargetAlignments()...), p.R1.nonhomologousDonorAlignments()...),
			R2:     append(append([]align.Record{}, p.R2.parsimoniousTargetAlignments()...), p.R2.nonhomologousDonorAlignments()...),
			Length: p.inferredLength(kind),
		}, nil

	case (kind == coveringNonspecific || kind == coveringGenomicInsert) && p.inferredLength(kind) > 0:
		r1Primer := p.R1.primerAlignments()[target.Side5]
		r2Primer := p.R2.primerAlignments()[target.Side3]
		if r1Primer == nil || r2Primer == nil {
			return p.uncategorizedOutcome(), nil
		}
		pair := p.bridgingAlignments()[kind]
		out := PairOutcome{
			R1:     []align.Record{*r1Primer, *pair.r1},
			R2:     []align.Record{*r2Primer, *pair.r2},
			Length: p.inferredLength(kind),
		}
		out.Details = noDetails
		if kind == coveringNonspecific {
			out.Category = "nonspecific amplification"
			out.Subcategory = "nonspecific amplification"
		} else {
			out.Category = "genomic insertion"
			out.Subcategory = "genomic insertion"
		}
		return out, nil

	default:
		return p.uncategorizedOutcome(), nil
	}
}
