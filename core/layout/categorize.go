package layout

import (
	"errors"
	"fmt"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/outcome"
	"github.com/hukai916/knock-knock/core/target"
)

// ErrUnhandledIntegration reports an integration pattern no decision branch
// claims. Reaching it is a bug, not a property of the read.
var ErrUnhandledIntegration = errors.New("layout: unhandled integration pattern")

const noDetails = "n/a"

// Categorize runs the full decision tree and returns the read's outcome.
// Malformed-layout gates run first, in a fixed order; structural calls only
// apply to reads that pass all of them.
func (l *Layout) Categorize() (outcome.Outcome, error) {
	out := outcome.Outcome{Details: noDetails}

	switch {
	case len(l.alignments()) == 0:
		out.Category = "malformed layout"
		out.Subcategory = "no alignments detected"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case l.extraCopyOfPrimer():
		out.Category = "malformed layout"
		out.Subcategory = "extra copy of primer"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case l.missingAPrimer():
		out.Category = "malformed layout"
		out.Subcategory = "missing a primer"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case l.primerStrand(target.Side5) != l.primerStrand(target.Side3):
		out.Category = "malformed layout"
		out.Subcategory = "primers not in same orientation"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case !l.primerAlignmentsReachEdges():
		out.Category = "malformed layout"
		out.Subcategory = "primer far from read edge"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case !l.hasIntegration():
		l.categorizeNoIntegration(&out)

	case l.integrationSummary() == "donor":
		per := l.junctionSummaryPerSide()
		if per[target.Side5] == "HDR" && per[target.Side3] == "HDR" {
			out.Category = "HDR"
			out.Subcategory = "HDR"
		} else {
			out.Category = "misintegration"
			out.Subcategory = fmt.Sprintf("5' %s, 3' %s", per[target.Side5], per[target.Side3])
		}
		out.Relevant = l.parsimoniousAndGapAlignments()

	case l.integrationSummary() == "concatamer":
		out.Category = "concatamer"
		out.Subcategory = l.junctionSummary()
		out.Relevant = append(append([]align.Record{}, l.parsimoniousTargetAlignments()...), l.parsimoniousDonorAlignments()...)

	case len(l.nonhomologousDonorIntegration()) > 0:
		out.Category = "misintegration"
		out.Subcategory = "non-homologous donor"
		out.Relevant = append(append([]align.Record{}, l.parsimoniousTargetAlignments()...), l.nonhomologousDonorAlignments()...)

	case len(l.nonspecificAmplification()) > 0:
		out.Category = "nonspecific amplification"
		out.Subcategory = "nonspecific amplification"
		out.Relevant = append(append([]align.Record{}, l.parsimoniousTargetAlignments()...), l.nonspecificAmplification()...)

	case len(l.genomicInsertion()) > 0:
		out.Category = "genomic insertion"
		out.Subcategory = "genomic insertion"
		out.Relevant = append(append([]align.Record{}, l.parsimoniousTargetAlignments()...), l.minEditDistanceGenomicInsertions()...)

	case l.integrationSummary() == "donor with indel" || l.integrationSummary() == "other":
		out.Category = "uncategorized"
		out.Subcategory = l.integrationSummary()
		out.Relevant = l.uncategorizedRelevantAlignments()

	default:
		return outcome.Outcome{}, fmt.Errorf("%w: read %s, summary %q", ErrUnhandledIntegration, l.name, l.integrationSummary())
	}

	l.orientRelevant(&out)
	return out, nil
}

// categorizeNoIntegration handles reads whose primer alignments merge into a
// single pass over the target: wild type, cut-site indels, or near-cut noise.
func (l *Layout) categorizeNoIntegration(out *outcome.Outcome) {
	switch {
	case len(l.indelNearCut()) > 1:
		out.Category = "uncategorized"
		out.Subcategory = "multiple indels near cut"
		out.Details = l.indelString()
		out.Relevant = l.parsimoniousTargetAlignments()

	case len(l.indelNearCut()) == 1:
		out.Category = "indel"
		indel := l.indelNearCut()[0]
		switch indel.Kind() {
		case target.KindDeletion:
			if indel.Size() < 50 {
				out.Subcategory = "deletion <50 nt"
			} else {
				out.Subcategory = "deletion >=50 nt"
			}
		case target.KindInsertion:
			out.Subcategory = "insertion"
		}
		out.Details = l.indelString()
		out.Relevant = l.parsimoniousTargetAlignments()

	case len(l.mismatchesNearCut()) > 0:
		out.Category = "uncategorized"
		out.Subcategory = "mismatch(es) near cut"
		out.Relevant = l.uncategorizedRelevantAlignments()

	case l.anyDonorSpecificPresent():
		out.Category = "uncategorized"
		out.Subcategory = "donor specific present"
		out.Relevant = l.uncategorizedRelevantAlignments()

	default:
		out.Category = "WT"
		out.Subcategory = "WT"
		out.Relevant = l.parsimoniousTargetAlignments()
	}
}

// CategorizeNoDonor is the reduced tree for experiments without a donor:
// only malformed gates, cut-site indels, and wild type.
func (l *Layout) CategorizeNoDonor() (outcome.Outcome, error) {
	out := outcome.Outcome{Details: noDetails}

	switch {
	case len(l.alignments()) == 0:
		out.Category = "malformed layout"
		out.Subcategory = "no alignments detected"

	case l.extraCopyOfPrimer():
		out.Category = "malformed layout"
		out.Subcategory = "extra copy of primer"

	case l.missingAPrimer():
		out.Category = "malformed layout"
		out.Subcategory = "missing a primer"

	case l.primerStrand(target.Side5) != l.primerStrand(target.Side3):
		out.Category = "malformed layout"
		out.Subcategory = "primers not in same orientation"

	case !l.primerAlignmentsReachEdges():
		out.Category = "malformed layout"
		out.Subcategory = "primer far from read edge"

	case len(l.indelNearCut()) > 0:
		out.Category = "indel"
		if len(l.indelNearCut()) > 1 {
			out.Subcategory = "complex indel"
		} else {
			indel := l.indelNearCut()[0]
			switch indel.Kind() {
			case target.KindDeletion:
				if indel.Size() < 50 {
					out.Subcategory = "deletion <50 nt"
				} else {
					out.Subcategory = "deletion >=50 nt"
				}
			case target.KindInsertion:
				out.Subcategory = "insertion"
			}
		}
		out.Details = l.indelString()

	default:
		out.Category = "WT"
		out.Subcategory = "WT"
	}

	return out, nil
}

// orientRelevant flips the reported alignments of minus-strand reads so
// downstream consumers always see them in amplicon orientation.
func (l *Layout) orientRelevant(out *outcome.Outcome) {
	if l.strand() >= 0 {
		return
	}
	flipped := make([]align.Record, len(out.Relevant))
	for i := range out.Relevant {
		flipped[i] = out.Relevant[i].Flipped()
	}
	out.Relevant = flipped
}
