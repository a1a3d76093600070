package target

import (
	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/interval"
)

// Fixed small scoring scheme for primer-edge recovery. Primers are short, so
// a full DP over primer-length windows is cheap.
const (
	swMatch    = 2
	swMismatch = -2
	swGap      = -3
)

// edgeBuffer is the slack added around a primer when realigning read edges.
const edgeBuffer = 5

// maxPrimerEdits is the largest edit distance tolerated inside the
// primer-covered part of a recovered edge alignment.
const maxPrimerEdits = 5

// swResult describes an anchored alignment: the aligned prefix (anchored
// start) or suffix (anchored end) lengths of query and reference, and the
// CIGAR in query orientation.
type swResult struct {
	qLen  int
	rLen  int
	cigar sam.Cigar
	score int
}

// alignAnchoredStart aligns query against ref with both starting at offset 0,
// free to end anywhere that maximizes the score.
func alignAnchoredStart(query, ref []byte) swResult {
	n, m := len(query), len(ref)
	h := make([][]int, n+1)
	for i := range h {
		h[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		h[i][0] = i * swGap
	}
	for j := 1; j <= m; j++ {
		h[0][j] = j * swGap
	}
	bestI, bestJ, best := 0, 0, 0
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			sub := swMatch
			if query[i-1] != ref[j-1] {
				sub = swMismatch
			}
			v := h[i-1][j-1] + sub
			if up := h[i-1][j] + swGap; up > v {
				v = up
			}
			if left := h[i][j-1] + swGap; left > v {
				v = left
			}
			h[i][j] = v
			if v > best {
				best, bestI, bestJ = v, i, j
			}
		}
	}
	// Traceback from the best cell to the anchored corner.
	var rev sam.Cigar
	i, j := bestI, bestJ
	push := func(t sam.CigarOpType) {
		if len(rev) > 0 && rev[len(rev)-1].Type() == t {
			rev[len(rev)-1] = sam.NewCigarOp(t, rev[len(rev)-1].Len()+1)
			return
		}
		rev = append(rev, sam.NewCigarOp(t, 1))
	}
	for i > 0 || j > 0 {
		switch {
		case i > 0 && j > 0 && h[i][j] == h[i-1][j-1]+subScore(query[i-1], ref[j-1]):
			push(sam.CigarMatch)
			i--
			j--
		case i > 0 && h[i][j] == h[i-1][j]+swGap:
			push(sam.CigarInsertion)
			i--
		default:
			push(sam.CigarDeletion)
			j--
		}
	}
	cigar := make(sam.Cigar, len(rev))
	for k := range rev {
		cigar[len(rev)-1-k] = rev[k]
	}
	return swResult{qLen: bestI, rLen: bestJ, cigar: cigar, score: best}
}

// alignAnchoredEnd aligns query against ref with both ending at their last
// base, free to start anywhere.
func alignAnchoredEnd(query, ref []byte) swResult {
	res := alignAnchoredStart(reversed(query), reversed(ref))
	cigar := make(sam.Cigar, len(res.cigar))
	for k := range res.cigar {
		cigar[len(res.cigar)-1-k] = res.cigar[k]
	}
	res.cigar = cigar
	return res
}

func subScore(a, b byte) int {
	if a == b {
		return swMatch
	}
	return swMismatch
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[len(b)-1-i]
	}
	return out
}

// RealignEdge re-aligns one edge of a plus-orientation read against the
// primer-flanking target region. It returns nil when the anchored alignment
// carries more than maxPrimerEdits edits inside the primer-covered part of
// the read. Used when no processed alignment reaches that read edge, which
// typically signals nonspecific amplification.
func (c *Config) RealignEdge(readSeq, readQual []byte, side Side) *align.Record {
	primer := c.Primers[side]
	window := primer.Len() + edgeBuffer
	if window > len(readSeq) {
		window = len(readSeq)
	}
	if window == 0 {
		return nil
	}

	var rec align.Record
	switch side {
	case Side5:
		refEnd := primer.End + 1 + edgeBuffer
		if refEnd > len(c.TargetSeq) {
			refEnd = len(c.TargetSeq)
		}
		res := alignAnchoredStart(readSeq[:window], c.TargetSeq[primer.Start:refEnd])
		if res.qLen == 0 {
			return nil
		}
		cigar := append(sam.Cigar{}, res.cigar...)
		if rest := len(readSeq) - res.qLen; rest > 0 {
			cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, rest))
		}
		rec = align.NewRecord(c.Target, 1, primer.Start, cigar, readSeq, readQual)
		if rec.EditDistanceInQueryInterval(interval.New(0, primer.Len()-1), c.TargetSeq) > maxPrimerEdits {
			return nil
		}
	case Side3:
		refStart := primer.Start - edgeBuffer
		if refStart < 0 {
			refStart = 0
		}
		res := alignAnchoredEnd(readSeq[len(readSeq)-window:], c.TargetSeq[refStart:primer.End+1])
		if res.qLen == 0 {
			return nil
		}
		var cigar sam.Cigar
		if rest := len(readSeq) - res.qLen; rest > 0 {
			cigar = append(cigar, sam.NewCigarOp(sam.CigarSoftClipped, rest))
		}
		cigar = append(cigar, res.cigar...)
		pos := primer.End + 1 - res.rLen
		rec = align.NewRecord(c.Target, 1, pos, cigar, readSeq, readQual)
		primerQ := interval.New(len(readSeq)-primer.Len(), len(readSeq)-1)
		if rec.EditDistanceInQueryInterval(primerQ, c.TargetSeq) > maxPrimerEdits {
			return nil
		}
	}
	return &rec
}
