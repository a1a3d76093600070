// Package samio reads SAM/BAM alignment files and converts their records into
// the engine's alignment representation, grouping records by read name. Input
// must be collated so that all records of one read (and of its mate) are
// consecutive, as produced by name sorting.
package samio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
)

// Read is one sequenced read: its sequence and qualities in read orientation
// plus every alignment reported for it.
type Read struct {
	Seq        []byte
	Qual       []byte
	Alignments []align.Record
}

// Group is every record sharing one read name. R2 is nil for single-end data.
type Group struct {
	Name string
	R1   *Read
	R2   *Read
}

// Paired reports whether the group has both mates.
func (g *Group) Paired() bool { return g.R1 != nil && g.R2 != nil }

type recordReader interface {
	Read() (*sam.Record, error)
}

// Reader iterates over the alignment records of one SAM or BAM file.
type Reader struct {
	rc  io.Closer
	rr  recordReader
	bmr *bam.Reader
}

// Open opens a SAM or BAM file, or stdin when path is "-". The format is
// detected from the leading bytes: BGZF-compressed input is read as BAM,
// anything else as SAM text.
func Open(path string) (*Reader, error) {
	var (
		rc  io.ReadCloser
		err error
	)
	if path == "-" {
		rc = io.NopCloser(os.Stdin)
	} else {
		rc, err = os.Open(path)
		if err != nil {
			return nil, err
		}
	}

	br := bufio.NewReaderSize(rc, 1<<16)
	magic, _ := br.Peek(2)
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		bmr, err := bam.NewReader(br, 1)
		if err != nil {
			rc.Close()
			return nil, fmt.Errorf("samio: open %s: %w", path, err)
		}
		return &Reader{rc: rc, rr: bmr, bmr: bmr}, nil
	}
	smr, err := sam.NewReader(br)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("samio: open %s: %w", path, err)
	}
	return &Reader{rc: rc, rr: smr}, nil
}

// Read returns the next record, or io.EOF.
func (r *Reader) Read() (*sam.Record, error) { return r.rr.Read() }

// Close releases the underlying file.
func (r *Reader) Close() error {
	if r.bmr != nil {
		r.bmr.Close()
	}
	return r.rc.Close()
}

// Convert turns a mapped SAM record into an engine alignment. The second
// return is false for unmapped records.
func Convert(rec *sam.Record) (align.Record, bool) {
	if rec.Flags&sam.Unmapped != 0 || rec.Ref == nil {
		return align.Record{}, false
	}
	var strand int8 = 1
	if rec.Flags&sam.Reverse != 0 {
		strand = -1
	}
	return align.NewRecord(rec.Ref.Name(), strand, rec.Pos, rec.Cigar, rec.Seq.Expand(), rec.Qual), true
}

// GroupReader batches consecutive records sharing a read name.
type GroupReader struct {
	rr      recordReader
	pending *sam.Record
	done    bool
}

// NewGroupReader wraps any record source; *Reader satisfies it.
func NewGroupReader(rr recordReader) *GroupReader {
	return &GroupReader{rr: rr}
}

// Next returns the next read group, or io.EOF when the input is exhausted.
func (g *GroupReader) Next() (*Group, error) {
	if g.done {
		return nil, io.EOF
	}

	var recs []*sam.Record
	if g.pending != nil {
		recs = append(recs, g.pending)
		g.pending = nil
	}
	for {
		rec, err := g.rr.Read()
		if errors.Is(err, io.EOF) {
			g.done = true
			break
		}
		if err != nil {
			return nil, err
		}
		if len(recs) > 0 && rec.Name != recs[0].Name {
			g.pending = rec
			break
		}
		recs = append(recs, rec)
	}
	if len(recs) == 0 {
		return nil, io.EOF
	}
	return buildGroup(recs)
}

func buildGroup(recs []*sam.Record) (*Group, error) {
	group := &Group{Name: recs[0].Name}
	var r1, r2 []*sam.Record
	for _, rec := range recs {
		if rec.Flags&sam.Paired != 0 && rec.Flags&sam.Read2 != 0 {
			r2 = append(r2, rec)
		} else {
			r1 = append(r1, rec)
		}
	}
	var err error
	if group.R1, err = buildRead(group.Name, r1); err != nil {
		return nil, err
	}
	if len(r2) > 0 {
		if group.R2, err = buildRead(group.Name, r2); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// buildRead recovers the read-orientation sequence from a record without hard
// clips and converts every mapped record. Reads whose every record is
// hard-clipped or unmapped without sequence cannot be reconstructed.
func buildRead(name string, recs []*sam.Record) (*Read, error) {
	if len(recs) == 0 {
		return nil, fmt.Errorf("samio: read %s: mate has no records", name)
	}
	read := &Read{}
	for _, rec := range recs {
		if al, ok := Convert(rec); ok {
			read.Alignments = append(read.Alignments, al)
		}
		if read.Seq != nil || hasHardClip(rec.Cigar) || rec.Seq.Length == 0 {
			continue
		}
		seq := rec.Seq.Expand()
		qual := append([]byte(nil), rec.Qual...)
		if rec.Flags&sam.Reverse != 0 {
			seq = align.RevComp(seq)
			for i, j := 0, len(qual)-1; i < j; i, j = i+1, j-1 {
				qual[i], qual[j] = qual[j], qual[i]
			}
		}
		read.Seq = seq
		read.Qual = qual
	}
	if read.Seq == nil {
		return nil, fmt.Errorf("samio: read %s: no record carries the full sequence", name)
	}
	return read, nil
}

func hasHardClip(c sam.Cigar) bool {
	for _, co := range c {
		if co.Type() == sam.CigarHardClipped {
			return true
		}
	}
	return false
}
