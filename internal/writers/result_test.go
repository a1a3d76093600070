package writers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"syscall"
	"testing"

	"github.com/biogo/hts/sam"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/internal/classify"
)

func sampleResults() []classify.Result {
	al := align.NewRecord("locus", 1, 10, sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 8)}, []byte("ACGTACGT"), nil)
	return []classify.Result{
		{Name: "r2", Category: "uncategorized", Subcategory: "other", Details: "n/a", Length: -1},
		{Name: "r1", Category: "WT", Subcategory: "WT", Details: "n/a", Length: 280, Relevant: []align.Record{al}},
		{Name: "r0", Category: "WT", Subcategory: "WT", Details: "n/a", Length: 280},
	}
}

func runWriter(t *testing.T, format string, sortOut, header bool, results []classify.Result) string {
	t.Helper()
	var buf bytes.Buffer
	in, errCh := StartResultWriter(&buf, format, sortOut, header, 4)
	for _, r := range results {
		in <- r
	}
	close(in)
	if err := <-errCh; err != nil {
		t.Fatalf("writer: %v", err)
	}
	return buf.String()
}

func TestTSVStreamPreservesOrder(t *testing.T) {
	out := runWriter(t, "tsv", false, true, sampleResults())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if lines[0] != TSVHeader {
		t.Fatalf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "r2\tuncategorized") {
		t.Fatalf("line 1 = %q, want streaming input order", lines[1])
	}
	if !strings.Contains(lines[2], "locus:+:10:8M") {
		t.Fatalf("line 2 = %q, want rendered alignment", lines[2])
	}
}

func TestTSVSortedByTaxonomyThenName(t *testing.T) {
	out := runWriter(t, "tsv", true, false, sampleResults())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	// WT sorts before uncategorized; names break the tie.
	for i, prefix := range []string{"r0\tWT", "r1\tWT", "r2\tuncategorized"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Errorf("line %d = %q, want prefix %q", i, lines[i], prefix)
		}
	}
}

func TestJSONLRoundTrip(t *testing.T) {
	out := runWriter(t, "jsonl", false, false, sampleResults())
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	var row Row
	if err := json.Unmarshal([]byte(lines[1]), &row); err != nil {
		t.Fatalf("line 1: %v", err)
	}
	if row.Read != "r1" || row.Category != "WT" || len(row.Alignments) != 1 {
		t.Fatalf("row = %+v", row)
	}
}

type errWriter struct{ err error }

func (w errWriter) Write(p []byte) (int, error) { return 0, w.err }

func TestJSONLDrainsAfterWriteError(t *testing.T) {
	// Enough rows to overflow the writer's buffer mid-stream; every send must
	// still complete once the sink has failed.
	in, errCh := StartResultWriter(errWriter{errors.New("disk full")}, "jsonl", false, false, 1)
	for i := 0; i < 5000; i++ {
		in <- classify.Result{Name: fmt.Sprintf("r%04d", i), Category: "WT", Subcategory: "WT"}
	}
	close(in)
	if err := <-errCh; err == nil {
		t.Fatal("expected the write error to surface")
	}
}

func TestJSONLSuppressesBrokenPipe(t *testing.T) {
	in, errCh := StartResultWriter(errWriter{syscall.EPIPE}, "jsonl", false, false, 1)
	for i := 0; i < 5000; i++ {
		in <- classify.Result{Name: fmt.Sprintf("r%04d", i), Category: "WT", Subcategory: "WT"}
	}
	close(in)
	if err := <-errCh; err != nil {
		t.Fatalf("broken pipe should be suppressed, got %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	var buf bytes.Buffer
	in, errCh := StartResultWriter(&buf, "xml", false, false, 1)
	close(in)
	if err := <-errCh; err == nil {
		t.Fatal("expected unsupported-format error")
	}
}
