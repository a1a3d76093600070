// Package target describes the static per-experiment context a classification
// run shares across all reads: the edited locus, the optional donor and
// non-homologous donor, primer and homology-arm annotations, and the
// degenerate-indel expansion over the target sequence. A Config is immutable
// once built and safe for concurrent readers.
package target

import (
	"fmt"

	"github.com/hukai916/knock-knock/core/interval"
)

// Side names the two ends of the amplicon.
type Side int

const (
	Side5 Side = 5
	Side3 Side = 3
)

// Sides lists both sides in 5' to 3' order.
var Sides = []Side{Side5, Side3}

func (s Side) String() string {
	if s == Side5 {
		return "5'"
	}
	return "3'"
}

// Origin classifies which reference a read alignment landed on.
type Origin int

const (
	OriginTarget Origin = iota
	OriginDonor
	OriginNonhomologousDonor
	OriginSupplemental
)

// HomologyArm locates one side's homology arm on the target and, when the
// donor shares it, on the donor.
type HomologyArm struct {
	Target interval.Interval
	Donor  interval.Interval // empty when the donor does not carry this arm
}

// Config is the read-only experiment description.
type Config struct {
	Target    string
	TargetSeq []byte

	Donor    string // empty when no donor was transfected
	DonorSeq []byte

	NonhomologousDonor    string
	NonhomologousDonorSeq []byte

	// Origins maps any additional reference name to its origin class.
	// Names absent from the map (and not the target/donor names) are
	// supplemental genomic references.
	Origins map[string]Origin

	Primers      map[Side]interval.Interval // on the target
	HomologyArms map[Side]HomologyArm
	CutAfter     int
	Amplicon     interval.Interval

	// DonorSpecific is the donor feature marking payload sequence absent
	// from the target; empty when unannotated.
	DonorSpecific interval.Interval
}

// HasDonor reports whether a homologous donor is configured.
func (c *Config) HasDonor() bool { return c.Donor != "" }

// HasNonhomologousDonor reports whether a non-homologous donor is configured.
func (c *Config) HasNonhomologousDonor() bool { return c.NonhomologousDonor != "" }

// DonorCarriesArms reports whether both homology arms are annotated on the
// donor; without them HDR handoffs and concatamer junctions are undefined.
func (c *Config) DonorCarriesArms() bool {
	if !c.HasDonor() {
		return false
	}
	for _, side := range Sides {
		if c.HomologyArms[side].Donor.IsEmpty() {
			return false
		}
	}
	return true
}

// ClassifyReference resolves a reference name to its origin. Classification
// is explicit configuration, never name-prefix inference; unmapped names are
// supplemental.
func (c *Config) ClassifyReference(name string) Origin {
	switch name {
	case c.Target:
		return OriginTarget
	case c.Donor:
		if c.HasDonor() {
			return OriginDonor
		}
	case c.NonhomologousDonor:
		if c.HasNonhomologousDonor() {
			return OriginNonhomologousDonor
		}
	}
	if o, ok := c.Origins[name]; ok {
		return o
	}
	return OriginSupplemental
}

// AroundCut returns the closed target window reaching window bases to either
// side of the cut point between CutAfter and CutAfter+1.
func (c *Config) AroundCut(window int) interval.Interval {
	return interval.New(c.CutAfter-window, c.CutAfter+1+window)
}

// Validate checks internal consistency of the annotations.
func (c *Config) Validate() error {
	if c.Target == "" || len(c.TargetSeq) == 0 {
		return fmt.Errorf("target: missing target name or sequence")
	}
	for _, side := range Sides {
		p, ok := c.Primers[side]
		if !ok || p.IsEmpty() {
			return fmt.Errorf("target: missing %s primer", side)
		}
		if !c.Amplicon.Intersects(p) {
			return fmt.Errorf("target: %s primer %v outside amplicon %v", side, p, c.Amplicon)
		}
	}
	if c.Amplicon.IsEmpty() || c.Amplicon.End >= len(c.TargetSeq) {
		return fmt.Errorf("target: amplicon %v outside target sequence (len %d)", c.Amplicon, len(c.TargetSeq))
	}
	if !c.Amplicon.Contains(c.CutAfter) {
		return fmt.Errorf("target: cut-after %d outside amplicon %v", c.CutAfter, c.Amplicon)
	}
	if c.HasDonor() && len(c.DonorSeq) == 0 {
		return fmt.Errorf("target: donor %q has no sequence", c.Donor)
	}
	if c.HasNonhomologousDonor() && len(c.NonhomologousDonorSeq) == 0 {
		return fmt.Errorf("target: non-homologous donor %q has no sequence", c.NonhomologousDonor)
	}
	return nil
}
