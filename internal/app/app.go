// Package app wires the command line to the classification pipeline.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/hukai916/knock-knock/core/outcome"
	"github.com/hukai916/knock-knock/internal/classify"
	"github.com/hukai916/knock-knock/internal/cmdutil"
	"github.com/hukai916/knock-knock/internal/config"
	"github.com/hukai916/knock-knock/internal/samio"
	"github.com/hukai916/knock-knock/internal/version"
	"github.com/hukai916/knock-knock/internal/writers"
)

type options struct {
	configPath string
	input      string
	output     string
	format     string
	paired     bool
	longReads  bool
	threads    int
	sortOut    bool
	header     bool
	quiet      bool
}

// NewRootCommand builds the CLI. stdout/stderr are injectable for tests.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "knock-knock",
		Short:         "Classify genome-editing repair outcomes from read alignments",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(newCategorizeCommand(stdout, stderr))
	root.AddCommand(newTaxonomyCommand(stdout))
	return root
}

func newCategorizeCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := options{
		input:   "-",
		output:  "-",
		format:  "tsv",
		threads: runtime.NumCPU(),
		header:  true,
	}
	cmd := &cobra.Command{
		Use:   "categorize",
		Short: "Categorize each read (or read pair) of a name-collated SAM/BAM file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCategorize(cmd.Context(), opts, stdout, stderr)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&opts.configPath, "config", "c", "", "experiment description (TOML)")
	fs.StringVarP(&opts.input, "input", "i", opts.input, "name-collated SAM/BAM file, or - for stdin")
	fs.StringVarP(&opts.output, "output", "o", opts.output, "output file, or - for stdout")
	fs.StringVarP(&opts.format, "format", "f", opts.format, "output format: tsv or jsonl")
	fs.BoolVar(&opts.paired, "paired", false, "bridge non-overlapping R1/R2 mate pairs")
	fs.BoolVar(&opts.longReads, "long-reads", false, "use long-read split thresholds")
	fs.IntVarP(&opts.threads, "threads", "t", opts.threads, "worker goroutines")
	fs.BoolVar(&opts.sortOut, "sort", false, "sort output by taxonomy, then read name")
	fs.BoolVar(&opts.header, "header", opts.header, "write the TSV header row")
	fs.BoolVarP(&opts.quiet, "quiet", "q", false, "suppress per-read warnings")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runCategorize(ctx context.Context, opts options, stdout, stderr io.Writer) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	in, err := samio.Open(opts.input)
	if err != nil {
		return err
	}
	defer in.Close()

	out := stdout
	if opts.output != "-" {
		f, err := os.Create(opts.output)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	resCh, errCh := writers.StartResultWriter(out, opts.format, opts.sortOut, opts.header, opts.threads*4)

	unresolved := 0
	runErr := classify.ForEach(ctx, cfg, samio.NewGroupReader(in), classify.Options{
		Workers:   opts.threads,
		Paired:    opts.paired,
		LongReads: opts.longReads,
	}, func(r classify.Result) error {
		if r.Err != nil {
			unresolved++
			cmdutil.Warnf(stderr, opts.quiet, "%v", r.Err)
		}
		resCh <- r
		return nil
	})

	close(resCh)
	if werr := <-errCh; runErr == nil {
		runErr = werr
	}
	if runErr == nil && unresolved > 0 {
		cmdutil.Warnf(stderr, opts.quiet, "%d read(s) reported as uncategorized", unresolved)
	}
	return runErr
}

func newTaxonomyCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "taxonomy",
		Short: "Print the outcome taxonomy with its stable encodings",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, cat := range outcome.Categories() {
				for _, sub := range outcome.Subcategories(cat) {
					enc, err := outcome.Encode(cat, sub)
					if err != nil {
						return err
					}
					if _, err := fmt.Fprintf(stdout, "%s\t%s\t%s\n", enc, cat, sub); err != nil {
						return err
					}
				}
			}
			return nil
		},
	}
}

// RunContext executes the CLI and maps errors to exit codes.
func RunContext(ctx context.Context, argv []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(argv)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}

// Run executes the CLI with a background context.
func Run(argv []string, stdout, stderr io.Writer) int {
	return RunContext(context.Background(), argv, stdout, stderr)
}
