package outcome

import "testing"

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, category := range Categories() {
		enc, err := Encode(category, "")
		if err != nil {
			t.Fatalf("Encode(%q, \"\"): %v", category, err)
		}
		gotC, gotS, err := Decode(enc)
		if err != nil || gotC != category || gotS != "" {
			t.Fatalf("Decode(%q) = (%q, %q, %v), want (%q, \"\", nil)", enc, gotC, gotS, err, category)
		}
		for _, sub := range Subcategories(category) {
			enc, err := Encode(category, sub)
			if err != nil {
				t.Fatalf("Encode(%q, %q): %v", category, sub, err)
			}
			gotC, gotS, err := Decode(enc)
			if err != nil || gotC != category || gotS != sub {
				t.Fatalf("Decode(%q) = (%q, %q, %v), want (%q, %q, nil)", enc, gotC, gotS, err, category, sub)
			}
		}
	}
}

func TestEncodeUnknown(t *testing.T) {
	if _, err := Encode("bogus", "WT"); err == nil {
		t.Error("Encode with unknown category: expected error")
	}
	if _, err := Encode("WT", "bogus"); err == nil {
		t.Error("Encode with unknown subcategory: expected error")
	}
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "category", "categoryxyz", "category999", "category000_subcategory999", "subcategory001"} {
		if _, _, err := Decode(s); err == nil {
			t.Errorf("Decode(%q): expected error", s)
		}
	}
}

func TestOrderMatchesTaxonomy(t *testing.T) {
	c, s, err := Order("malformed layout", "no alignments detected")
	if err != nil {
		t.Fatal(err)
	}
	if c != 9 || s != 4 {
		t.Fatalf("Order = (%d, %d), want (9, 4)", c, s)
	}

	cases := []struct {
		a, b Outcome
		want bool
	}{
		{Outcome{Category: "WT", Subcategory: "WT"}, Outcome{Category: "indel", Subcategory: "insertion"}, true},
		{Outcome{Category: "indel", Subcategory: "deletion <50 nt"}, Outcome{Category: "indel", Subcategory: "insertion"}, false},
		{Outcome{Category: "HDR", Subcategory: "HDR"}, Outcome{Category: "concatamer", Subcategory: "HDR"}, true},
	}
	for _, tc := range cases {
		if got := Less(tc.a, tc.b); got != tc.want {
			t.Errorf("Less(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}
