package target

import (
	"reflect"
	"testing"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
)

// synthSeq builds a deterministic mixed-base sequence for fixtures.
func synthSeq(n int, seed uint32) []byte {
	letters := []byte("ACGT")
	s := make([]byte, n)
	x := seed
	for i := range s {
		x = x*1664525 + 1013904223
		s[i] = letters[(x>>24)%4]
	}
	return s
}

func TestExpandDeletionInRepeat(t *testing.T) {
	cfg := &Config{TargetSeq: []byte("ACGTAAAAACGT")}

	got := cfg.ExpandDeletion(Deletion{StartsAt: []int{5}, Length: 2})
	want := Deletion{StartsAt: []int{4, 5, 6, 7}, Length: 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandDeletion = %v, want %v", got, want)
	}

	// Outside any repeat the class is a single placement.
	got = cfg.ExpandDeletion(Deletion{StartsAt: []int{1}, Length: 2})
	want = Deletion{StartsAt: []int{1}, Length: 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandDeletion = %v, want %v", got, want)
	}
}

func TestExpandInsertionInHomopolymer(t *testing.T) {
	cfg := &Config{TargetSeq: []byte("ACCCG")}

	got := cfg.ExpandInsertion(Insertion{StartsAfter: []int{1}, Seqs: []string{"C"}})
	want := Insertion{StartsAfter: []int{0, 1, 2, 3}, Seqs: []string{"C", "C", "C", "C"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ExpandInsertion = %v, want %v", got, want)
	}
}

func TestIndelDescriptorRoundTrip(t *testing.T) {
	for _, s := range []string{
		"D:{4|5|6|7},2",
		"D:{100},13",
		"I:{0|1|2|3},{C|C|C|C}",
		"I:{42},{ACGT}",
	} {
		indel, err := ParseIndel(s)
		if err != nil {
			t.Fatalf("ParseIndel(%q): %v", s, err)
		}
		if got := indel.String(); got != s {
			t.Errorf("round trip %q = %q", s, got)
		}
	}

	for _, s := range []string{"", "X:{1},2", "D:nope", "D:{a},2"} {
		if _, err := ParseIndel(s); err == nil {
			t.Errorf("ParseIndel(%q): expected error", s)
		}
	}
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := &Config{
		Target:    "locus",
		TargetSeq: synthSeq(100, 7),
		Primers: map[Side]interval.Interval{
			Side5: interval.New(5, 24),
			Side3: interval.New(75, 94),
		},
		CutAfter: 49,
		Amplicon: interval.New(5, 94),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestRealignEdgeRecoversPrimerAlignment(t *testing.T) {
	cfg := testConfig(t)

	read := append([]byte{}, cfg.TargetSeq[5:45]...)
	rec := cfg.RealignEdge(read, nil, Side5)
	if rec == nil {
		t.Fatal("RealignEdge(5'): no alignment for an exact primer prefix")
	}
	if rec.Pos != 5 || rec.Strand != 1 {
		t.Fatalf("RealignEdge(5') = %s, want start at 5 on +", rec)
	}
	if got := rec.Cigar.String(); got != "25M15S" {
		t.Fatalf("RealignEdge(5') cigar = %s, want 25M15S", got)
	}

	read = append([]byte{}, cfg.TargetSeq[60:95]...)
	rec = cfg.RealignEdge(read, nil, Side3)
	if rec == nil {
		t.Fatal("RealignEdge(3'): no alignment for an exact primer suffix")
	}
	if rec.Pos != 70 || rec.Strand != 1 {
		t.Fatalf("RealignEdge(3') = %s, want start at 70 on +", rec)
	}
	if got := rec.Cigar.String(); got != "10S25M" {
		t.Fatalf("RealignEdge(3') cigar = %s, want 10S25M", got)
	}
}

func TestRealignEdgeRejectsDivergedPrimer(t *testing.T) {
	cfg := testConfig(t)

	read := append([]byte{}, cfg.TargetSeq[5:45]...)
	for _, i := range []int{2, 5, 8, 11, 14, 17} {
		read[i] = flipBase(read[i])
	}
	if rec := cfg.RealignEdge(read, nil, Side5); rec != nil {
		t.Fatalf("RealignEdge(5') = %s, want nil for 6 primer mismatches", rec)
	}
}

func flipBase(b byte) byte {
	if b == 'A' {
		return 'C'
	}
	return 'A'
}

func TestAlignGapFindsPlantedBlocks(t *testing.T) {
	cfg := testConfig(t)

	// Read: 10 unrelated bases, 30 target bases, 10 unrelated bases.
	read := append([]byte{}, synthSeq(10, 99)...)
	read = append(read, cfg.TargetSeq[40:70]...)
	read = append(read, synthSeq(10, 123)...)
	gap := interval.New(8, 44)

	hits := cfg.AlignGap(read, gap)
	if len(hits) == 0 {
		t.Fatal("AlignGap: no hits for an exact 30 nt target block")
	}
	found := false
	for i := range hits {
		h := &hits[i]
		if h.RefName == "locus" && h.Strand == 1 && h.RefInterval().Contains(45) && h.RefInterval().Contains(65) {
			found = true
			if !h.QueryInterval().Intersects(gap) {
				t.Errorf("hit %s does not overlap the gap on the read", h)
			}
		}
	}
	if !found {
		t.Fatalf("AlignGap: no + strand hit spanning target 45..65 in %v", hits)
	}
}

func TestAlignGapMinusStrand(t *testing.T) {
	cfg := testConfig(t)

	read := append([]byte{}, synthSeq(10, 99)...)
	read = append(read, align.RevComp(cfg.TargetSeq[40:70])...)
	read = append(read, synthSeq(10, 123)...)

	hits := cfg.AlignGap(read, interval.New(8, 44))
	found := false
	for i := range hits {
		h := &hits[i]
		if h.RefName == "locus" && h.Strand == -1 && h.RefInterval().Contains(45) && h.RefInterval().Contains(65) {
			found = true
		}
	}
	if !found {
		t.Fatalf("AlignGap: no - strand hit spanning target 45..65 in %v", hits)
	}
}

func TestAlignGapFiltersOutsideAmplicon(t *testing.T) {
	cfg := testConfig(t)
	cfg.Amplicon = interval.New(5, 35)

	read := append([]byte{}, synthSeq(10, 99)...)
	read = append(read, cfg.TargetSeq[40:70]...)

	for _, h := range cfg.AlignGap(read, interval.New(8, 39)) {
		if h.RefName == "locus" && h.RefInterval().Contains(50) {
			t.Fatalf("AlignGap kept out-of-amplicon hit %s", &h)
		}
	}
}

func TestClassifyReference(t *testing.T) {
	cfg := &Config{
		Target: "locus",
		Donor:  "hdr_donor",
		Origins: map[string]Origin{
			"phiX": OriginSupplemental,
		},
	}
	cases := []struct {
		name string
		want Origin
	}{
		{"locus", OriginTarget},
		{"hdr_donor", OriginDonor},
		{"phiX", OriginSupplemental},
		{"chr11", OriginSupplemental},
	}
	for _, tc := range cases {
		if got := cfg.ClassifyReference(tc.name); got != tc.want {
			t.Errorf("ClassifyReference(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
