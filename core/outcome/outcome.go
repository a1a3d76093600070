// Package outcome defines the fixed classification taxonomy, ordering of
// outcomes for reporting, and the loss-free encoding of outcomes into
// filesystem-safe strings.
package outcome

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/hukai916/knock-knock/core/align"
)

// Outcome is the classification of one read (or read pair): a category and
// subcategory drawn from the fixed taxonomy, free-form details, and the
// alignments that drove the call.
type Outcome struct {
	Category    string
	Subcategory string
	Details     string
	Relevant    []align.Record
}

func (o Outcome) String() string {
	if o.Details == "" {
		return fmt.Sprintf("%s/%s", o.Category, o.Subcategory)
	}
	return fmt.Sprintf("%s/%s/%s", o.Category, o.Subcategory, o.Details)
}

// taxonomy lists every category with its subcategories. Order is meaningful:
// the index pair is the sort key and the wire encoding.
var taxonomy = []struct {
	category      string
	subcategories []string
}{
	{"WT", []string{
		"WT",
	}},
	{"indel", []string{
		"insertion",
		"deletion",
		"deletion <50 nt",
		"deletion >=50 nt",
		"complex indel",
	}},
	{"HDR", []string{
		"HDR",
	}},
	{"concatamer", []string{
		"HDR",
		"5' NHEJ",
		"3' NHEJ",
		"5' and 3' NHEJ",
		"uncategorized",
	}},
	{"misintegration", []string{
		"5' HDR, 3' NHEJ",
		"5' NHEJ, 3' HDR",
		"5' HDR, 3' truncated",
		"5' truncated, 3' HDR",
		"5' NHEJ, 3' truncated",
		"5' truncated, 3' NHEJ",
		"5' NHEJ, 3' NHEJ",
		"5' truncated, 3' truncated",
		"non-homologous donor",
	}},
	{"nonspecific amplification", []string{
		"nonspecific amplification",
	}},
	{"genomic insertion", []string{
		"genomic insertion",
	}},
	{"uncategorized", []string{
		"uncategorized",
		"non-overlapping",
		"donor with indel",
		"mismatch(es) near cut",
		"multiple indels near cut",
		"donor specific present",
		"other",
	}},
	{"unexpected source", []string{
		"flipped",
		"supplemental",
		"uncategorized",
	}},
	{"malformed layout", []string{
		"extra copy of primer",
		"missing a primer",
		"primer far from read edge",
		"primers not in same orientation",
		"no alignments detected",
	}},
}

// Categories lists the category names in taxonomy order.
func Categories() []string {
	out := make([]string, len(taxonomy))
	for i := range taxonomy {
		out[i] = taxonomy[i].category
	}
	return out
}

// Subcategories lists the subcategories of category, or nil for an unknown
// category.
func Subcategories(category string) []string {
	for i := range taxonomy {
		if taxonomy[i].category == category {
			return append([]string(nil), taxonomy[i].subcategories...)
		}
	}
	return nil
}

// Order returns the (category, subcategory) index pair used to sort outcomes.
// Unknown names report an error instead of a silent sort position.
func Order(category, subcategory string) (int, int, error) {
	for c := range taxonomy {
		if taxonomy[c].category != category {
			continue
		}
		for s, sub := range taxonomy[c].subcategories {
			if sub == subcategory {
				return c, s, nil
			}
		}
		return 0, 0, fmt.Errorf("outcome: unknown subcategory %q of %q", subcategory, category)
	}
	return 0, 0, fmt.Errorf("outcome: unknown category %q", category)
}

// Encode renders an outcome as a filesystem-safe string. Subcategory may be
// empty, encoding a bare category.
func Encode(category, subcategory string) (string, error) {
	if subcategory == "" {
		for c := range taxonomy {
			if taxonomy[c].category == category {
				return fmt.Sprintf("category%03d", c), nil
			}
		}
		return "", fmt.Errorf("outcome: unknown category %q", category)
	}
	c, s, err := Order(category, subcategory)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("category%03d_subcategory%03d", c, s), nil
}

var (
	encodedPair     = regexp.MustCompile(`^category(\d+)_subcategory(\d+)$`)
	encodedCategory = regexp.MustCompile(`^category(\d+)$`)
)

// Decode inverts Encode. Decoding a bare category returns an empty
// subcategory.
func Decode(s string) (category, subcategory string, err error) {
	if m := encodedPair.FindStringSubmatch(s); m != nil {
		c, _ := strconv.Atoi(m[1])
		sub, _ := strconv.Atoi(m[2])
		if c >= len(taxonomy) || sub >= len(taxonomy[c].subcategories) {
			return "", "", fmt.Errorf("outcome: %q outside taxonomy", s)
		}
		return taxonomy[c].category, taxonomy[c].subcategories[sub], nil
	}
	if m := encodedCategory.FindStringSubmatch(s); m != nil {
		c, _ := strconv.Atoi(m[1])
		if c >= len(taxonomy) {
			return "", "", fmt.Errorf("outcome: %q outside taxonomy", s)
		}
		return taxonomy[c].category, "", nil
	}
	return "", "", fmt.Errorf("outcome: malformed encoded outcome %q", s)
}

// Less orders two outcomes by taxonomy position. Unknown outcomes sort last.
func Less(a, b Outcome) bool {
	ac, as, errA := Order(a.Category, a.Subcategory)
	bc, bs, errB := Order(b.Category, b.Subcategory)
	if errA != nil || errB != nil {
		return errB != nil && errA == nil
	}
	if ac != bc {
		return ac < bc
	}
	if as != bs {
		return as < bs
	}
	return a.Details < b.Details
}
