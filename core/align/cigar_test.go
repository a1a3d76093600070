package align

import (
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/interval"
)

func cM(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarMatch, n) }
func cS(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarSoftClipped, n) }
func cD(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarDeletion, n) }
func cI(n int) sam.CigarOp { return sam.NewCigarOp(sam.CigarInsertion, n) }

func TestQueryIntervalMinusStrand(t *testing.T) {
	// 100 nt read, aligned positions 20..59 in aligned orientation.
	r := NewRecord("ref", -1, 500, sam.Cigar{cS(20), cM(40), cS(40)}, make([]byte, 100), nil)
	if got := r.QueryInterval(); got != interval.New(40, 79) {
		t.Fatalf("QueryInterval = %v, want [40, 79]", got)
	}
	if got := r.RefInterval(); got != interval.New(500, 539) {
		t.Fatalf("RefInterval = %v, want [500, 539]", got)
	}
}

func TestSplitAtDeletions(t *testing.T) {
	r := NewRecord("ref", 1, 100, sam.Cigar{cM(50), cD(12), cM(30), cD(2), cM(20)}, make([]byte, 100), nil)

	pieces := r.SplitAtDeletions(3)
	if len(pieces) != 2 {
		t.Fatalf("split into %d pieces, want 2", len(pieces))
	}
	if pieces[0].Pos != 100 || pieces[0].Cigar.String() != "50M50S" {
		t.Errorf("piece 0 = %s, want pos 100 cigar 50M50S", &pieces[0])
	}
	// The small deletion survives inside the second piece.
	if pieces[1].Pos != 162 || pieces[1].Cigar.String() != "50S30M2D20M" {
		t.Errorf("piece 1 = %s, want pos 162 cigar 50S30M2D20M", &pieces[1])
	}
}

func TestSplitAtLargeInsertions(t *testing.T) {
	r := NewRecord("ref", 1, 100, sam.Cigar{cM(40), cI(25), cM(35)}, make([]byte, 100), nil)

	pieces := r.SplitAtLargeInsertions(3)
	if len(pieces) != 2 {
		t.Fatalf("split into %d pieces, want 2", len(pieces))
	}
	if pieces[0].Cigar.String() != "40M60S" || pieces[1].Cigar.String() != "65S35M" {
		t.Errorf("pieces = %s / %s, want 40M60S / 65S35M", &pieces[0], &pieces[1])
	}
	if pieces[1].Pos != 140 {
		t.Errorf("piece 1 pos = %d, want 140", pieces[1].Pos)
	}
}

func TestMergeAdjacentBridgesDeletion(t *testing.T) {
	seq := make([]byte, 100)
	a := NewRecord("ref", 1, 100, sam.Cigar{cM(50), cS(50)}, seq, nil)
	b := NewRecord("ref", 1, 210, sam.Cigar{cS(50), cM(50)}, seq, nil)

	merged := MergeAdjacent(&a, &b)
	if merged == nil {
		t.Fatal("MergeAdjacent returned nil")
	}
	if merged.Pos != 100 || merged.Cigar.String() != "50M60D50M" {
		t.Fatalf("merged = %s, want pos 100 cigar 50M60D50M", merged)
	}
}

func TestMergeAdjacentRejectsLargeQueryGap(t *testing.T) {
	seq := make([]byte, 200)
	a := NewRecord("ref", 1, 100, sam.Cigar{cM(50), cS(150)}, seq, nil)
	b := NewRecord("ref", 1, 150, sam.Cigar{cS(150), cM(50)}, seq, nil)

	// 100 unexplained read bases between the pieces: integration, not indel.
	if merged := MergeAdjacent(&a, &b); merged != nil {
		t.Fatalf("MergeAdjacent = %s, want nil", merged)
	}
}

func TestMergeAdjacentSameAlignment(t *testing.T) {
	a := NewRecord("ref", 1, 100, sam.Cigar{cM(80)}, make([]byte, 80), nil)
	merged := MergeAdjacent(&a, &a)
	if merged == nil || merged.Key() != a.Key() {
		t.Fatalf("MergeAdjacent(a, a) = %v, want a itself", merged)
	}
}

func TestCropToRefInterval(t *testing.T) {
	r := NewRecord("ref", 1, 100, sam.Cigar{cM(60)}, make([]byte, 60), nil)
	cropped := r.CropToRefInterval(120, 139)
	if cropped == nil {
		t.Fatal("CropToRefInterval returned nil")
	}
	if cropped.Pos != 120 || cropped.Cigar.String() != "20S20M20S" {
		t.Fatalf("cropped = %s, want pos 120 cigar 20S20M20S", cropped)
	}
	if r.CropToRefInterval(300, 400) != nil {
		t.Fatal("crop outside the alignment should be nil")
	}
}

func TestExtendConvertsClipsToMatches(t *testing.T) {
	ref := []byte("AAAACCCCGGGGTTTT")
	// Read equals ref[4:12] but only the middle 4 are aligned.
	r := NewRecord("ref", 1, 6, sam.Cigar{cS(2), cM(4), cS(2)}, []byte("CCCCGGGG"), nil)

	out := r.Extend(ref, true, true)
	if out.Pos != 4 || out.Cigar.String() != "8M" {
		t.Fatalf("extended = %s, want pos 4 cigar 8M", &out)
	}
}

func TestExtendTowardStepsThroughMismatch(t *testing.T) {
	ref := []byte("ACGTACGTACGTACGT")

	// Read equals ref[4:12] with a single error at read position 1. Exact
	// extension stops one base past the mismatch; stepping through it should
	// recover the full read.
	front := NewRecord("ref", 1, 8, sam.Cigar{cS(4), cM(4)}, []byte("AGGTACGT"), nil)
	out := front.ExtendToward(ref, true, false)
	if out.Pos != 4 || out.Cigar.String() != "8M" {
		t.Fatalf("front extension = %s, want pos 4 cigar 8M", &out)
	}

	// Mirror case: error at read position 6, extending toward the back edge.
	back := NewRecord("ref", 1, 4, sam.Cigar{cM(4), cS(4)}, []byte("ACGTACCT"), nil)
	out = back.ExtendToward(ref, false, true)
	if out.Pos != 4 || out.Cigar.String() != "8M" {
		t.Fatalf("back extension = %s, want pos 4 cigar 8M", &out)
	}
}

func TestEditDistanceInQueryInterval(t *testing.T) {
	ref := []byte("ACGTACGTACGTACGT")
	// Read matches ref[0:13] except a mismatch at read 5 and a 2 nt insertion
	// after read 8.
	read := []byte("ACGTAGGTAGGCGTA")
	r := NewRecord("ref", 1, 0, sam.Cigar{cM(9), cI(2), cM(4)}, read, nil)

	if got := r.EditDistanceInQueryInterval(interval.New(0, 14), ref); got != 3 {
		t.Fatalf("edit distance over whole read = %d, want 3", got)
	}
	if got := r.EditDistanceInQueryInterval(interval.New(0, 4), ref); got != 0 {
		t.Fatalf("edit distance over clean prefix = %d, want 0", got)
	}
	if got := r.EditDistanceInQueryInterval(interval.New(0, 14), nil); got != 2 {
		t.Fatalf("edit distance without reference = %d, want 2", got)
	}
}

func TestFlippedRoundTrip(t *testing.T) {
	r := NewRecord("ref", -1, 50, sam.Cigar{cS(3), cM(5), cS(2)}, []byte("ACGTACGTAC"), nil)
	f := r.Flipped()
	if f.Strand != 1 || f.Cigar.String() != "2S5M3S" {
		t.Fatalf("flipped = %s, want +, 2S5M3S", &f)
	}
	back := f.Flipped()
	if back.Key() != r.Key() || string(back.Seq) != string(r.Seq) {
		t.Fatalf("double flip = %s, want original %s", &back, &r)
	}
}

func TestMakeParsimonious(t *testing.T) {
	seq := make([]byte, 100)
	full := NewRecord("ref", 1, 0, sam.Cigar{cM(100)}, seq, nil)
	prefix := NewRecord("ref", 1, 0, sam.Cigar{cM(40), cS(60)}, seq, nil)
	suffix := NewRecord("ref", 1, 60, sam.Cigar{cS(60), cM(40)}, seq, nil)

	kept := MakeParsimonious([]Record{full, prefix, suffix})
	if len(kept) != 1 || kept[0].Key() != full.Key() {
		t.Fatalf("kept %d alignments, want just the full one", len(kept))
	}

	kept = MakeParsimonious([]Record{prefix, suffix, full})
	if len(kept) != 3 {
		// Greedy in input order: both partial alignments add novel coverage
		// before the full one is seen.
		t.Fatalf("kept %d alignments, want 3", len(kept))
	}
}

func TestMakeParsimoniousIdempotentAndConservesCoverage(t *testing.T) {
	seq := make([]byte, 120)
	als := []Record{
		NewRecord("ref", 1, 0, sam.Cigar{cM(50), cS(70)}, seq, nil),
		NewRecord("ref", 1, 200, sam.Cigar{cS(30), cM(60), cS(30)}, seq, nil),
		NewRecord("donor", 1, 10, sam.Cigar{cS(20), cM(40), cS(60)}, seq, nil),
		NewRecord("ref", 1, 400, sam.Cigar{cS(70), cM(50)}, seq, nil),
	}

	before := DisjointCovered(als).TotalLen()
	once := MakeParsimonious(als)
	if got := DisjointCovered(once).TotalLen(); got != before {
		t.Fatalf("covered %d read bases after reduction, want %d", got, before)
	}
	if len(once) != 3 {
		// The donor alignment is contained in the first two and adds nothing.
		t.Fatalf("kept %d alignments, want 3", len(once))
	}

	twice := MakeParsimonious(once)
	if len(twice) != len(once) {
		t.Fatalf("second reduction kept %d alignments, want %d", len(twice), len(once))
	}
	for i := range twice {
		if twice[i].Key() != once[i].Key() {
			t.Fatalf("second reduction changed alignment %d: %s != %s", i, &twice[i], &once[i])
		}
	}
}

func TestIndelsReportsPositions(t *testing.T) {
	read := []byte("AAAATTCCCC")
	r := NewRecord("ref", 1, 100, sam.Cigar{cM(4), cI(2), cM(2), cD(3), cM(2)}, read, nil)

	indels := r.Indels()
	if len(indels) != 2 {
		t.Fatalf("got %d indels, want 2", len(indels))
	}
	ins, del := indels[0], indels[1]
	if ins.Kind != sam.CigarInsertion || ins.RefPos != 103 || string(ins.Seq) != "TT" {
		t.Errorf("insertion = %+v, want after 103, seq TT", ins)
	}
	if del.Kind != sam.CigarDeletion || del.RefPos != 106 || del.Length != 3 {
		t.Errorf("deletion = %+v, want start 106 length 3", del)
	}
}
