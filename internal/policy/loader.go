package policy

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// fileDoc is the on-disk profile file shape.
type fileDoc struct {
	PolicyVersion string                `json:"policy_version"`
	Profiles      map[string]profileDoc `json:"profiles"`
}

type profileDoc struct {
	Name             string              `json:"name"`
	DefaultLevel     string              `json:"default_level"`
	AllowedLevels    []string            `json:"allowed_levels"`
	NoDowngrade      bool                `json:"no_downgrade"`
	MinimumLevel     string              `json:"minimum_level"`
	ManualUpgrades   []string            `json:"manual_upgrades"`
	DocumentTypes    map[string]string   `json:"document_types"`
	SubmissionPrefix string              `json:"submission_prefix"`
	PolicyVersion    string              `json:"policy_version"`
	Levels           map[string]levelDoc `json:"levels"`
}

type levelDoc struct {
	Required []string            `json:"required"`
	Optional []string            `json:"optional"`
	Enums    map[string][]string `json:"enums"`
	Controls *controlsDoc        `json:"controls"`
}

type controlsDoc struct {
	TamperEvidence *bool `json:"tamper_evidence"`
	Registration   *bool `json:"registration"`
	ForensicLedger *bool `json:"forensic_ledger"`
	FourEyes       *bool `json:"four_eyes"`
}

// LoadError is a configuration error with source position when available.
type LoadError struct {
	File    string
	Message string
	Pos     token.Pos
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// LoadFile reads a profile file. ".cue" files are compiled as CUE, anything
// else (".yaml", ".yml", ".json") is parsed as YAML.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: fmt.Sprintf("read profiles: %v", err)}
	}
	return Load(path, data)
}

// Load parses profile data; name selects the format by extension and is used
// in error positions.
func Load(name string, data []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}

	var value cue.Value
	switch strings.ToLower(filepath.Ext(name)) {
	case ".cue":
		value = ctx.CompileBytes(data, cue.Filename(name))
	default:
		var raw map[string]any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &LoadError{File: name, Message: fmt.Sprintf("parse yaml: %v", err)}
		}
		if raw == nil {
			raw = map[string]any{}
		}
		value = ctx.Encode(raw)
	}
	if err := value.Err(); err != nil {
		return nil, cueLoadError(name, err)
	}

	unified := schema.LookupPath(cue.ParsePath("#File")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(name, err)
	}

	var doc fileDoc
	if err := unified.Decode(&doc); err != nil {
		return nil, cueLoadError(name, err)
	}
	return buildConfig(name, doc)
}

func buildConfig(name string, doc fileDoc) (*Config, error) {
	profiles := make([]*Profile, 0, len(doc.Profiles))
	for id, pd := range doc.Profiles {
		p := &Profile{
			ID:               id,
			Name:             pd.Name,
			DefaultLevel:     Level(pd.DefaultLevel),
			AllowedLevels:    toLevels(pd.AllowedLevels),
			NoDowngrade:      pd.NoDowngrade,
			MinimumLevel:     Level(pd.MinimumLevel),
			ManualUpgrades:   toLevels(pd.ManualUpgrades),
			DocumentTypes:    make(map[string]Level, len(pd.DocumentTypes)),
			Schemas:          make(map[Level]LevelSchema, len(pd.Levels)),
			SubmissionPrefix: pd.SubmissionPrefix,
			PolicyVersion:    pd.PolicyVersion,
		}
		if p.PolicyVersion == "" {
			p.PolicyVersion = doc.PolicyVersion
		}
		for dt, lvl := range pd.DocumentTypes {
			p.DocumentTypes[dt] = Level(lvl)
		}
		for lvl, ld := range pd.Levels {
			level := Level(lvl)
			schema := LevelSchema{
				Level:    level,
				Required: ld.Required,
				Optional: ld.Optional,
				Enums:    ld.Enums,
				Controls: DefaultSchema(level).Controls,
			}
			if c := ld.Controls; c != nil {
				applyBool(&schema.Controls.TamperEvidence, c.TamperEvidence)
				applyBool(&schema.Controls.Registration, c.Registration)
				applyBool(&schema.Controls.ForensicLedger, c.ForensicLedger)
				applyBool(&schema.Controls.FourEyes, c.FourEyes)
			}
			p.Schemas[level] = schema
		}
		if !slices.Contains(p.AllowedLevels, p.DefaultLevel) {
			return nil, &LoadError{
				File:    name,
				Message: fmt.Sprintf("profile %q: default_level %s is not in allowed_levels %v", id, p.DefaultLevel, p.AllowedLevels),
			}
		}
		profiles = append(profiles, p)
	}
	return NewConfig(doc.PolicyVersion, profiles...)
}

func applyBool(dst *bool, src *bool) {
	if src != nil {
		*dst = *src
	}
}

func toLevels(ss []string) []Level {
	out := make([]Level, len(ss))
	for i, s := range ss {
		out[i] = Level(s)
	}
	return out
}

// cueLoadError keeps the first CUE error and its position.
func cueLoadError(name string, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &LoadError{File: name, Message: err.Error()}
	}
	first := errs[0]
	le := &LoadError{File: name, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		le.Pos = positions[0]
	}
	return le
}
