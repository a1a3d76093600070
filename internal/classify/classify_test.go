package classify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
	"github.com/hukai916/knock-knock/core/layout"
	"github.com/hukai916/knock-knock/core/target"
	"github.com/hukai916/knock-knock/internal/samio"
)

func synthSeq(n int, seed uint32) []byte {
	letters := []byte("ACGT")
	out := make([]byte, n)
	x := seed
	for i := range out {
		x = x*1664525 + 1013904223
		out[i] = letters[(x>>24)%4]
	}
	return out
}

func testConfig(t *testing.T) *target.Config {
	t.Helper()
	cfg := &target.Config{
		Target:    "locus",
		TargetSeq: synthSeq(300, 11),
		Primers: map[target.Side]interval.Interval{
			target.Side5: interval.New(10, 29),
			target.Side3: interval.New(270, 289),
		},
		HomologyArms:  map[target.Side]target.HomologyArm{},
		CutAfter:      149,
		Amplicon:      interval.New(10, 289),
		DonorSpecific: interval.Empty(),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

type sliceSource struct {
	mu     sync.Mutex
	groups []*samio.Group
	i      int
}

func (s *sliceSource) Next() (*samio.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.i >= len(s.groups) {
		return nil, io.EOF
	}
	g := s.groups[s.i]
	s.i++
	return g, nil
}

func wtGroup(cfg *target.Config, name string) *samio.Group {
	seq := append([]byte(nil), cfg.TargetSeq[10:290]...)
	al := align.NewRecord("locus", 1, 10, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 280)}, seq, nil)
	return &samio.Group{
		Name: name,
		R1:   &samio.Read{Seq: seq, Alignments: []align.Record{al}},
	}
}

func TestForEachClassifiesWT(t *testing.T) {
	cfg := testConfig(t)
	var groups []*samio.Group
	for i := 0; i < 20; i++ {
		groups = append(groups, wtGroup(cfg, fmt.Sprintf("read%02d", i)))
	}

	var results []Result
	err := ForEach(context.Background(), cfg, &sliceSource{groups: groups}, Options{Workers: 4}, func(r Result) error {
		results = append(results, r)
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if len(results) != 20 {
		t.Fatalf("got %d results, want 20", len(results))
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Name < results[j].Name })
	for i, r := range results {
		if r.Name != fmt.Sprintf("read%02d", i) {
			t.Fatalf("result %d name = %s", i, r.Name)
		}
		if r.Category != "WT" || r.Err != nil {
			t.Fatalf("read %s = %s/%s err %v, want WT", r.Name, r.Category, r.Subcategory, r.Err)
		}
		if r.Length != 280 {
			t.Fatalf("read %s length = %d, want 280", r.Name, r.Length)
		}
	}
}

func TestForEachNoAlignments(t *testing.T) {
	cfg := testConfig(t)
	grp := &samio.Group{Name: "lost", R1: &samio.Read{Seq: []byte("ACGTACGT")}}

	var got Result
	err := ForEach(context.Background(), cfg, &sliceSource{groups: []*samio.Group{grp}}, Options{}, func(r Result) error {
		got = r
		return nil
	})
	if err != nil {
		t.Fatalf("ForEach: %v", err)
	}
	if got.Category != "malformed layout" || got.Subcategory != "no alignments detected" {
		t.Fatalf("got %s/%s", got.Category, got.Subcategory)
	}
}

func TestForEachVisitorErrorStopsRun(t *testing.T) {
	cfg := testConfig(t)
	groups := []*samio.Group{wtGroup(cfg, "a"), wtGroup(cfg, "b")}
	wantErr := fmt.Errorf("sink full")
	err := ForEach(context.Background(), cfg, &sliceSource{groups: groups}, Options{}, func(Result) error {
		return wantErr
	})
	if err == nil {
		t.Fatal("expected visitor error to surface")
	}
}

// donorConfig is an HDR experiment: amplicon [10, 289], cut between 149 and
// 150, 30 nt homology arms, a 140 nt payload between them on the donor.
func donorConfig(t *testing.T) *target.Config {
	t.Helper()
	ts := synthSeq(300, 11)
	insert := synthSeq(140, 77)
	donor := append(append(append([]byte{}, ts[120:150]...), insert...), ts[150:180]...)

	cfg := &target.Config{
		Target:    "locus",
		TargetSeq: ts,
		Donor:     "donor",
		DonorSeq:  donor,
		Primers: map[target.Side]interval.Interval{
			target.Side5: interval.New(10, 29),
			target.Side3: interval.New(270, 289),
		},
		HomologyArms: map[target.Side]target.HomologyArm{
			target.Side5: {Target: interval.New(120, 149), Donor: interval.New(0, 29)},
			target.Side3: {Target: interval.New(150, 179), Donor: interval.New(170, 199)},
		},
		CutAfter:      149,
		Amplicon:      interval.New(10, 289),
		DonorSpecific: interval.New(30, 169),
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

// ambiguousPairGroup builds a non-overlapping pair whose middle block maps
// equally well to the donor and to a supplemental genome, so no single bridge
// wins.
func ambiguousPairGroup(cfg *target.Config) *samio.Group {
	r1read := append(append([]byte{}, cfg.TargetSeq[10:60]...), synthSeq(100, 21)...)
	r1als := []align.Record{
		align.NewRecord("locus", 1, 10, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 50), sam.NewCigarOp(sam.CigarSoftClipped, 100)}, r1read, nil),
		align.NewRecord("phiX", 1, 1000, sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, 45), sam.NewCigarOp(sam.CigarMatch, 105)}, r1read, nil),
		align.NewRecord("donor", 1, 30, sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, 45), sam.NewCigarOp(sam.CigarMatch, 105)}, r1read, nil),
	}

	r2read := append(append([]byte{}, align.RevComp(cfg.TargetSeq[240:290])...), synthSeq(100, 22)...)
	r2rc := align.RevComp(r2read)
	r2als := []align.Record{
		align.NewRecord("locus", -1, 240, sam.Cigar{sam.NewCigarOp(sam.CigarSoftClipped, 100), sam.NewCigarOp(sam.CigarMatch, 50)}, r2rc, nil),
		align.NewRecord("phiX", -1, 1195, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 105), sam.NewCigarOp(sam.CigarSoftClipped, 45)}, r2rc, nil),
		align.NewRecord("donor", -1, 65, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 105), sam.NewCigarOp(sam.CigarSoftClipped, 45)}, r2rc, nil),
	}

	return &samio.Group{
		Name: "pair",
		R1:   &samio.Read{Seq: r1read, Alignments: r1als},
		R2:   &samio.Read{Seq: r2read, Alignments: r2als},
	}
}

func TestForEachAmbiguousPairAborts(t *testing.T) {
	cfg := donorConfig(t)
	grp := ambiguousPairGroup(cfg)

	err := ForEach(context.Background(), cfg, &sliceSource{groups: []*samio.Group{grp}}, Options{Paired: true}, func(Result) error { return nil })
	if !errors.Is(err, layout.ErrAmbiguousBridge) {
		t.Fatalf("ForEach error = %v, want ErrAmbiguousBridge", err)
	}
}

func TestForEachCancel(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var groups []*samio.Group
	for i := 0; i < 100; i++ {
		groups = append(groups, wtGroup(cfg, fmt.Sprintf("r%03d", i)))
	}
	err := ForEach(ctx, cfg, &sliceSource{groups: groups}, Options{Workers: 2}, func(Result) error { return nil })
	if err == nil {
		t.Fatal("expected cancellation error")
	}
}
