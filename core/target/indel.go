package target

import (
	"fmt"
	"strconv"
	"strings"
)

// IndelKind distinguishes deletions from insertions.
type IndelKind byte

const (
	KindDeletion  IndelKind = 'D'
	KindInsertion IndelKind = 'I'
)

// Indel is a degenerate indel: the full equivalence class of reference
// placements that produce an identical edited sequence. Two reads carrying
// the same biological indel compare equal regardless of which placement the
// aligner reported.
type Indel interface {
	fmt.Stringer
	Kind() IndelKind
	Size() int
}

// Deletion is a set of equivalent start positions and a length.
type Deletion struct {
	StartsAt []int
	Length   int
}

func (d Deletion) Kind() IndelKind { return KindDeletion }
func (d Deletion) Size() int       { return d.Length }

func (d Deletion) String() string {
	return fmt.Sprintf("D:{%s},%d", joinInts(d.StartsAt), d.Length)
}

// Insertion is a set of equivalent starts-after positions with the inserted
// sequence corresponding to each.
type Insertion struct {
	StartsAfter []int
	Seqs        []string
}

func (i Insertion) Kind() IndelKind { return KindInsertion }

func (i Insertion) Size() int {
	if len(i.Seqs) == 0 {
		return 0
	}
	return len(i.Seqs[0])
}

func (i Insertion) String() string {
	return fmt.Sprintf("I:{%s},{%s}", joinInts(i.StartsAfter), strings.Join(i.Seqs, "|"))
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, "|")
}

// ParseIndel parses the descriptor format produced by String.
func ParseIndel(s string) (Indel, error) {
	kind, rest, ok := strings.Cut(s, ":")
	if !ok || len(kind) != 1 {
		return nil, fmt.Errorf("target: malformed indel descriptor %q", s)
	}
	switch IndelKind(kind[0]) {
	case KindDeletion:
		posPart, lenPart, ok := strings.Cut(rest, ",")
		if !ok {
			return nil, fmt.Errorf("target: malformed deletion descriptor %q", s)
		}
		starts, err := splitInts(strings.Trim(posPart, "{}"))
		if err != nil {
			return nil, fmt.Errorf("target: %q: %w", s, err)
		}
		length, err := strconv.Atoi(lenPart)
		if err != nil {
			return nil, fmt.Errorf("target: %q: %w", s, err)
		}
		return Deletion{StartsAt: starts, Length: length}, nil
	case KindInsertion:
		posPart, seqPart, ok := strings.Cut(rest, ",")
		if !ok {
			return nil, fmt.Errorf("target: malformed insertion descriptor %q", s)
		}
		starts, err := splitInts(strings.Trim(posPart, "{}"))
		if err != nil {
			return nil, fmt.Errorf("target: %q: %w", s, err)
		}
		seqs := strings.Split(strings.Trim(seqPart, "{}"), "|")
		return Insertion{StartsAfter: starts, Seqs: seqs}, nil
	}
	return nil, fmt.Errorf("target: unknown indel kind in %q", s)
}

func splitInts(s string) ([]int, error) {
	parts := strings.Split(s, "|")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// ExpandDeletion returns d with StartsAt widened to every start position on
// the target that deletes an identical sequence. A deletion inside a tandem
// repeat can slide by whole repeat units without changing the outcome.
func (c *Config) ExpandDeletion(d Deletion) Deletion {
	if len(d.StartsAt) == 0 || d.Length <= 0 {
		return d
	}
	seq := c.TargetSeq
	s := d.StartsAt[0]
	for s-1 >= 0 && s-1+d.Length < len(seq) && seq[s-1] == seq[s-1+d.Length] {
		s--
	}
	starts := []int{s}
	for s+d.Length < len(seq) && seq[s] == seq[s+d.Length] {
		s++
		starts = append(starts, s)
	}
	return Deletion{StartsAt: starts, Length: d.Length}
}

// ExpandInsertion returns i with every equivalent placement and the rotated
// inserted sequence at each.
func (c *Config) ExpandInsertion(ins Insertion) Insertion {
	if len(ins.StartsAfter) == 0 || len(ins.Seqs) == 0 || len(ins.Seqs[0]) == 0 {
		return ins
	}
	seq := c.TargetSeq
	p := ins.StartsAfter[0]
	x := []byte(ins.Seqs[0])
	// Slide left: moving the insertion point one base left is equivalent when
	// the last inserted base equals the target base it hops over.
	for p >= 0 && p < len(seq) && x[len(x)-1] == seq[p] {
		x = append([]byte{seq[p]}, x[:len(x)-1]...)
		p--
	}
	starts := []int{p}
	seqs := []string{string(x)}
	for p+1 < len(seq) && x[0] == seq[p+1] {
		x = append(append([]byte{}, x[1:]...), seq[p+1])
		p++
		starts = append(starts, p)
		seqs = append(seqs, string(x))
	}
	return Insertion{StartsAfter: starts, Seqs: seqs}
}

// Expand widens any indel to its degenerate equivalence class.
func (c *Config) Expand(indel Indel) Indel {
	switch v := indel.(type) {
	case Deletion:
		return c.ExpandDeletion(v)
	case Insertion:
		return c.ExpandInsertion(v)
	}
	return indel
}
