// Package classify runs the layout engine over a stream of read groups with a
// bounded worker pool and hands each call to a visitor.
package classify

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/hukai916/knock-knock/core/align"
	"github.com/hukai916/knock-knock/core/layout"
	"github.com/hukai916/knock-knock/core/outcome"
	"github.com/hukai916/knock-knock/core/target"
	"github.com/hukai916/knock-knock/internal/samio"
)

// Options controls a classification run.
type Options struct {
	Workers   int  // worker goroutines (>=1)
	Paired    bool // bridge non-overlapping mate pairs
	LongReads bool // relax split thresholds for long-read data
}

// Result is the outcome call for one read or read pair. Err is set for reads
// with an integration layout the engine refuses to summarize; such reads are
// reported as uncategorized rather than aborting the run. Internal
// consistency errors (ambiguous pair bridging) abort the run instead.
type Result struct {
	Name        string
	Category    string
	Subcategory string
	Details     string
	Length      int // inferred fragment length; -1 when unknown
	Relevant    []align.Record
	Err         error
}

// GroupSource yields read groups; *samio.GroupReader satisfies it.
type GroupSource interface {
	Next() (*samio.Group, error)
}

// ForEach classifies every group from src and calls visit with each result
// from a single goroutine, in no particular order. It returns the first
// infrastructure error, including context cancellation.
func ForEach(ctx context.Context, cfg *target.Config, src GroupSource, opts Options, visit func(Result) error) error {
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan *samio.Group, opts.Workers*2)
	results := make(chan Result, opts.Workers*2)

	for w := 0; w < opts.Workers; w++ {
		g.Go(func() error {
			for grp := range jobs {
				res, err := classifyGroup(cfg, grp, opts)
				if err != nil {
					return err
				}
				select {
				case results <- res:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(jobs)
		for {
			grp, err := src.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			select {
			case jobs <- grp:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	})

	collectErr := make(chan error, 1)
	go func() {
		var err error
		for res := range results {
			if err != nil {
				continue
			}
			err = visit(res)
		}
		collectErr <- err
	}()

	err := g.Wait()
	close(results)
	if cerr := <-collectErr; err == nil {
		err = cerr
	}
	return err
}

func classifyGroup(cfg *target.Config, grp *samio.Group, opts Options) (Result, error) {
	r1 := layout.New(cfg, grp.Name, grp.R1.Seq, grp.R1.Qual, grp.R1.Alignments, opts.LongReads)

	if opts.Paired && grp.Paired() {
		r2 := layout.New(cfg, grp.Name, grp.R2.Seq, grp.R2.Qual, grp.R2.Alignments, opts.LongReads)
		return classifyPair(r1, r2)
	}

	var (
		out outcome.Outcome
		err error
	)
	if cfg.HasDonor() {
		out, err = r1.Categorize()
	} else {
		out, err = r1.CategorizeNoDonor()
	}
	if err != nil {
		if errors.Is(err, layout.ErrUnhandledIntegration) {
			return uncategorizedResult(grp.Name, err), nil
		}
		return Result{}, fmt.Errorf("classify %s: %w", grp.Name, err)
	}
	return Result{
		Name:        grp.Name,
		Category:    out.Category,
		Subcategory: out.Subcategory,
		Details:     out.Details,
		Length:      len(grp.R1.Seq),
		Relevant:    out.Relevant,
	}, nil
}

func classifyPair(r1, r2 *layout.Layout) (Result, error) {
	p, err := layout.NewPairLayout(r1, r2)
	if err != nil {
		return Result{}, err
	}
	out, err := p.Categorize()
	if err != nil {
		if errors.Is(err, layout.ErrUnhandledIntegration) {
			return uncategorizedResult(p.Name(), err), nil
		}
		return Result{}, fmt.Errorf("classify pair %s: %w", p.Name(), err)
	}
	return Result{
		Name:        p.Name(),
		Category:    out.Category,
		Subcategory: out.Subcategory,
		Details:     out.Details,
		Length:      out.Length,
		Relevant:    append(append([]align.Record{}, out.R1...), out.R2...),
	}, nil
}

func uncategorizedResult(name string, err error) Result {
	return Result{
		Name:        name,
		Category:    "uncategorized",
		Subcategory: "other",
		Details:     "n/a",
		Length:      -1,
		Err:         err,
	}
}
