// Package writers streams classification results to their output encodings.
// Each writer runs in its own goroutine fed by a channel; the error channel
// reports the first failure after the input channel is closed.
package writers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hukai916/knock-knock/core/outcome"
	"github.com/hukai916/knock-knock/internal/classify"
	"github.com/hukai916/knock-knock/internal/jsonlutil"
)

// TSVHeader is the canonical header row for text/TSV output.
const TSVHeader = "read\tcategory\tsubcategory\tdetails\tlength\talignments"

// Row is the wire form of one classification call.
type Row struct {
	Read        string   `json:"read"`
	Category    string   `json:"category"`
	Subcategory string   `json:"subcategory"`
	Details     string   `json:"details"`
	Length      int      `json:"length"`
	Alignments  []string `json:"alignments,omitempty"`
	Error       string   `json:"error,omitempty"`
}

// ToRow converts a result, rendering each relevant alignment compactly.
func ToRow(r classify.Result) Row {
	row := Row{
		Read:        r.Name,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Details:     r.Details,
		Length:      r.Length,
	}
	for i := range r.Relevant {
		row.Alignments = append(row.Alignments, r.Relevant[i].String())
	}
	if r.Err != nil {
		row.Error = r.Err.Error()
	}
	return row
}

func (r Row) tsv() string {
	return fmt.Sprintf("%s\t%s\t%s\t%s\t%d\t%s",
		r.Read, r.Category, r.Subcategory, r.Details, r.Length, strings.Join(r.Alignments, ","))
}

// SortRows orders rows by taxonomy position, then read name.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a := outcome.Outcome{Category: rows[i].Category, Subcategory: rows[i].Subcategory}
		b := outcome.Outcome{Category: rows[j].Category, Subcategory: rows[j].Subcategory}
		if outcome.Less(a, b) {
			return true
		}
		if outcome.Less(b, a) {
			return false
		}
		return rows[i].Read < rows[j].Read
	})
}

// StartResultWriter spins up a writer goroutine for classification results.
// Formats: "tsv" and "jsonl". Sorting buffers all rows; otherwise TSV
// streams. Broken-pipe errors from early-exiting consumers are suppressed.
func StartResultWriter(out io.Writer, format string, sortOut, header bool, bufSize int) (chan<- classify.Result, <-chan error) {
	if format == "jsonl" {
		return jsonlutil.Start[classify.Result](out, bufSize,
			func(enc *json.Encoder, r classify.Result) error {
				return enc.Encode(ToRow(r))
			},
			IsBrokenPipe,
		)
	}

	if bufSize <= 0 {
		bufSize = 64
	}
	in := make(chan classify.Result, bufSize)
	errCh := make(chan error, 1)

	go func() {
		if format != "tsv" {
			for range in {
			}
			errCh <- fmt.Errorf("unsupported output %q", format)
			return
		}

		bw := bufio.NewWriterSize(out, 64<<10)
		write := func(line string) error {
			_, err := fmt.Fprintln(bw, line)
			return err
		}

		var err error
		if header {
			err = write(TSVHeader)
		}
		if sortOut {
			var rows []Row
			for r := range in {
				rows = append(rows, ToRow(r))
			}
			SortRows(rows)
			for _, row := range rows {
				if err != nil {
					break
				}
				err = write(row.tsv())
			}
		} else {
			for r := range in {
				if err != nil {
					continue
				}
				err = write(ToRow(r).tsv())
			}
		}
		if ferr := bw.Flush(); ferr != nil && err == nil {
			err = ferr
		}
		if IsBrokenPipe(err) {
			err = nil
		}
		errCh <- err
	}()

	return in, errCh
}
