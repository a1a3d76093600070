// Package config loads the TOML experiment description and resolves it into
// the engine's immutable per-run context. Sequences may be given inline or by
// FASTA path; paths are relative to the config file.
package config

import (
	"fmt"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/hukai916/knock-knock/core/fasta"
	"github.com/hukai916/knock-knock/core/interval"
	"github.com/hukai916/knock-knock/core/target"
)

// Span is a closed coordinate interval in the TOML file.
type Span struct {
	Start int `toml:"start"`
	End   int `toml:"end"`
}

func (s Span) interval() interval.Interval {
	return interval.New(s.Start, s.End)
}

func (s Span) isZero() bool { return s.Start == 0 && s.End == 0 }

// Reference is a named sequence, inline or loaded from FASTA.
type Reference struct {
	Name     string `toml:"name"`
	Sequence string `toml:"sequence"`
	Fasta    string `toml:"fasta"`
}

// Arm mirrors one homology arm annotation.
type Arm struct {
	Target Span `toml:"target"`
	Donor  Span `toml:"donor"`
}

// File is the raw TOML schema.
type File struct {
	Target struct {
		Reference
		CutAfter int `toml:"cut_after"`
		Amplicon Span
		Primers  struct {
			Five  Span `toml:"five"`
			Three Span `toml:"three"`
		} `toml:"primers"`
	} `toml:"target"`

	Donor struct {
		Reference
		Specific     Span `toml:"specific"`
		HomologyArms struct {
			Five  Arm `toml:"five"`
			Three Arm `toml:"three"`
		} `toml:"homology_arms"`
	} `toml:"donor"`

	NonhomologousDonor Reference `toml:"nonhomologous_donor"`

	// Origins classifies extra reference names seen in the alignments, e.g.
	// phiX = "supplemental". Unlisted names default to supplemental.
	Origins map[string]string `toml:"origins"`
}

func (r *Reference) resolve(dir string) ([]byte, error) {
	switch {
	case r.Name == "":
		return nil, nil
	case r.Sequence != "" && r.Fasta != "":
		return nil, fmt.Errorf("config: reference %q has both inline sequence and fasta path", r.Name)
	case r.Sequence != "":
		return []byte(r.Sequence), nil
	case r.Fasta != "":
		path := r.Fasta
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		seqs, err := fasta.ReadMap(path)
		if err != nil {
			return nil, err
		}
		seq, ok := seqs[r.Name]
		if !ok {
			return nil, fmt.Errorf("config: %s has no sequence named %q", path, r.Name)
		}
		return seq, nil
	default:
		return nil, fmt.Errorf("config: reference %q has no sequence", r.Name)
	}
}

func parseOrigin(s string) (target.Origin, error) {
	switch s {
	case "target":
		return target.OriginTarget, nil
	case "donor":
		return target.OriginDonor, nil
	case "nonhomologous_donor":
		return target.OriginNonhomologousDonor, nil
	case "supplemental":
		return target.OriginSupplemental, nil
	}
	return 0, fmt.Errorf("config: unknown origin %q", s)
}

// Load reads path and builds a validated run context.
func Load(path string) (*target.Config, error) {
	var file File
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return file.Build(filepath.Dir(path))
}

// Build resolves the raw schema against dir, the directory FASTA paths are
// relative to.
func (f *File) Build(dir string) (*target.Config, error) {
	targetSeq, err := f.Target.resolve(dir)
	if err != nil {
		return nil, err
	}
	donorSeq, err := f.Donor.resolve(dir)
	if err != nil {
		return nil, err
	}
	nhSeq, err := f.NonhomologousDonor.resolve(dir)
	if err != nil {
		return nil, err
	}

	cfg := &target.Config{
		Target:                f.Target.Name,
		TargetSeq:             targetSeq,
		Donor:                 f.Donor.Name,
		DonorSeq:              donorSeq,
		NonhomologousDonor:    f.NonhomologousDonor.Name,
		NonhomologousDonorSeq: nhSeq,
		CutAfter:              f.Target.CutAfter,
		Amplicon:              f.Target.Amplicon.interval(),
		Primers: map[target.Side]interval.Interval{
			target.Side5: f.Target.Primers.Five.interval(),
			target.Side3: f.Target.Primers.Three.interval(),
		},
		HomologyArms: map[target.Side]target.HomologyArm{},
	}

	for side, arm := range map[target.Side]Arm{
		target.Side5: f.Donor.HomologyArms.Five,
		target.Side3: f.Donor.HomologyArms.Three,
	} {
		ha := target.HomologyArm{}
		if !arm.Target.isZero() {
			ha.Target = arm.Target.interval()
		} else {
			ha.Target = interval.Empty()
		}
		if !arm.Donor.isZero() {
			ha.Donor = arm.Donor.interval()
		} else {
			ha.Donor = interval.Empty()
		}
		cfg.HomologyArms[side] = ha
	}

	if !f.Donor.Specific.isZero() {
		cfg.DonorSpecific = f.Donor.Specific.interval()
	} else {
		cfg.DonorSpecific = interval.Empty()
	}

	if len(f.Origins) > 0 {
		cfg.Origins = make(map[string]target.Origin, len(f.Origins))
		for name, kind := range f.Origins {
			o, err := parseOrigin(kind)
			if err != nil {
				return nil, err
			}
			cfg.Origins[name] = o
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
