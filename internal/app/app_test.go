package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const appTestConfig = `
[target]
name = "locus"
sequence = "%s"
cut_after = 50
amplicon = { start = 5, end = 94 }

[target.primers]
five = { start = 5, end = 24 }
three = { start = 75, end = 94 }
`

func writeFixtures(t *testing.T) (cfgPath, samPath string) {
	t.Helper()
	dir := t.TempDir()
	seq := strings.Repeat("ACGTTGCAAT", 10)

	cfgPath = filepath.Join(dir, "experiment.toml")
	if err := os.WriteFile(cfgPath, []byte(fmt.Sprintf(appTestConfig, seq)), 0o644); err != nil {
		t.Fatal(err)
	}

	read := seq[5:95]
	qual := strings.Repeat("I", len(read))
	sam := "@HD\tVN:1.6\tSO:queryname\n" +
		"@SQ\tSN:locus\tLN:100\n" +
		fmt.Sprintf("read1\t0\tlocus\t6\t60\t90M\t*\t0\t0\t%s\t%s\n", read, qual)
	samPath = filepath.Join(dir, "aligned.sam")
	if err := os.WriteFile(samPath, []byte(sam), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfgPath, samPath
}

func TestCategorizeEndToEnd(t *testing.T) {
	cfgPath, samPath := writeFixtures(t)

	var out, errb bytes.Buffer
	code := Run([]string{"categorize", "-c", cfgPath, "-i", samPath, "--header=false", "-t", "1"}, &out, &errb)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, errb.String())
	}
	line := strings.TrimRight(out.String(), "\n")
	fields := strings.Split(line, "\t")
	if len(fields) < 5 || fields[0] != "read1" || fields[1] != "WT" || fields[2] != "WT" {
		t.Fatalf("output = %q", line)
	}
	if fields[4] != "90" {
		t.Fatalf("length = %s, want 90", fields[4])
	}
}

func TestCategorizeWritesFileOutput(t *testing.T) {
	cfgPath, samPath := writeFixtures(t)
	outPath := filepath.Join(t.TempDir(), "calls.jsonl")

	var out, errb bytes.Buffer
	code := Run([]string{"categorize", "-c", cfgPath, "-i", samPath, "-o", outPath, "-f", "jsonl"}, &out, &errb)
	if code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, errb.String())
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"category":"WT"`) {
		t.Fatalf("jsonl = %s", data)
	}
}

func TestCategorizeRequiresConfig(t *testing.T) {
	var out, errb bytes.Buffer
	if code := Run([]string{"categorize"}, &out, &errb); code == 0 {
		t.Fatal("expected failure without --config")
	}
}

func TestTaxonomyListsEncodings(t *testing.T) {
	var out, errb bytes.Buffer
	if code := Run([]string{"taxonomy"}, &out, &errb); code != 0 {
		t.Fatalf("exit %d, stderr: %s", code, errb.String())
	}
	if !strings.Contains(out.String(), "category000_subcategory000\tWT\tWT") {
		t.Fatalf("taxonomy output missing WT row:\n%s", out.String())
	}
	if !strings.Contains(out.String(), "malformed layout\tno alignments detected") {
		t.Fatal("taxonomy output missing final row")
	}
}
