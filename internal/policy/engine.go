package policy

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/roach88/windi/internal/canon"
)

// Config is an immutable snapshot of all governance profiles.
type Config struct {
	PolicyVersion string
	Profiles      map[string]*Profile

	hash string
}

// NewConfig builds a Config from profiles and computes its hash.
// Profiles are keyed by ID.
func NewConfig(policyVersion string, profiles ...*Profile) (*Config, error) {
	cfg := &Config{
		PolicyVersion: policyVersion,
		Profiles:      make(map[string]*Profile, len(profiles)),
	}
	for _, p := range profiles {
		if p.ID == "" {
			return nil, fmt.Errorf("profile with empty id")
		}
		cfg.Profiles[p.ID] = p
	}
	h, err := canon.StructuralHash(cfg.toValue())
	if err != nil {
		return nil, fmt.Errorf("config hash: %w", err)
	}
	cfg.hash = h
	return cfg, nil
}

// Hash returns the stable configuration hash.
func (c *Config) Hash() string {
	return c.hash
}

// Profile returns the profile with id.
func (c *Config) Profile(id string) (*Profile, error) {
	p, ok := c.Profiles[id]
	if !ok {
		return nil, &Violation{
			Kind:    KindUnknownProfile,
			Profile: id,
			Allowed: c.ProfileIDs(),
			Message: fmt.Sprintf("unknown governance profile %q", id),
		}
	}
	return p, nil
}

// ProfileIDs returns profile IDs in sorted order.
func (c *Config) ProfileIDs() []string {
	ids := make([]string, 0, len(c.Profiles))
	for id := range c.Profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// toValue renders the config in the same shape the loader reads, so a
// config built in code hashes like the equivalent file.
func (c *Config) toValue() canon.Object {
	profiles := canon.Object{}
	for id, p := range c.Profiles {
		levels := canon.Object{}
		for lvl, s := range p.Schemas {
			enums := canon.Object{}
			for f, vals := range s.Enums {
				enums[f] = canon.Strings(vals...)
			}
			levels[string(lvl)] = canon.Object{
				"required": canon.Strings(s.Required...),
				"optional": canon.Strings(s.Optional...),
				"enums":    enums,
				"controls": canon.Object{
					"tamper_evidence": canon.Bool(s.Controls.TamperEvidence),
					"registration":    canon.Bool(s.Controls.Registration),
					"forensic_ledger": canon.Bool(s.Controls.ForensicLedger),
					"four_eyes":       canon.Bool(s.Controls.FourEyes),
				},
			}
		}
		docTypes := canon.Object{}
		for dt, lvl := range p.DocumentTypes {
			docTypes[dt] = canon.String(lvl)
		}
		profiles[id] = canon.Object{
			"name":              canon.String(p.Name),
			"default_level":     canon.String(p.DefaultLevel),
			"allowed_levels":    canon.Strings(levelStrings(p.AllowedLevels)...),
			"no_downgrade":      canon.Bool(p.NoDowngrade),
			"minimum_level":     canon.String(p.MinimumLevel),
			"manual_upgrades":   canon.Strings(levelStrings(p.ManualUpgrades)...),
			"document_types":    docTypes,
			"submission_prefix": canon.String(p.SubmissionPrefix),
			"policy_version":    canon.String(p.PolicyVersion),
			"levels":            levels,
		}
	}
	return canon.Object{
		"policy_version": canon.String(c.PolicyVersion),
		"profiles":       profiles,
	}
}

// Loader produces a fresh Config, typically by re-reading a file.
type Loader func() (*Config, error)

// Option configures an Engine.
type Option func(*Engine)

// WithLoader sets the loader used by Reload.
func WithLoader(l Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithLogger sets the engine logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Engine resolves governance levels and validates evidence against the
// current Config snapshot. Safe for concurrent use; Reload swaps the
// snapshot atomically.
type Engine struct {
	cfg    atomic.Pointer[Config]
	loader Loader
	logger *slog.Logger
}

// NewEngine creates an Engine over cfg.
func NewEngine(cfg *Config, opts ...Option) *Engine {
	e := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg.Store(cfg)
	return e
}

// Open loads path and returns an Engine that reloads from the same file.
func Open(path string, opts ...Option) (*Engine, error) {
	loader := func() (*Config, error) { return LoadFile(path) }
	cfg, err := loader()
	if err != nil {
		return nil, err
	}
	return NewEngine(cfg, append([]Option{WithLoader(loader)}, opts...)...), nil
}

// Config returns the current snapshot.
func (e *Engine) Config() *Config {
	return e.cfg.Load()
}

// ConfigHash returns the hash of the current snapshot.
func (e *Engine) ConfigHash() string {
	return e.Config().Hash()
}

// Reload replaces the snapshot with a freshly loaded one. On error the
// current snapshot stays in place.
func (e *Engine) Reload() error {
	if e.loader == nil {
		return errors.New("reload: no loader configured")
	}
	cfg, err := e.loader()
	if err != nil {
		return fmt.Errorf("reload: %w", err)
	}
	old := e.cfg.Swap(cfg)
	if old == nil || old.Hash() != cfg.Hash() {
		e.logger.Info("governance config reloaded", "config_hash", canon.Prefix(cfg.Hash(), 12), "profiles", len(cfg.Profiles))
	}
	return nil
}

// Resolution is the outcome of level resolution.
type Resolution struct {
	Profile    *Profile
	Level      Level
	Base       Level
	Requested  Level
	Schema     LevelSchema
	ConfigHash string
}

// Resolve computes the effective level for a request.
//
// Order: profile default, then document-type override, then the requested
// level (downgrades rejected under no-downgrade, upgrades only via the
// manual upgrade allow-list). Under no-downgrade the final level must not
// fall below max(base, MinimumLevel). The result must be in AllowedLevels.
func (e *Engine) Resolve(profileID, documentType string, requested Level) (Resolution, error) {
	cfg := e.Config()
	p, err := cfg.Profile(profileID)
	if err != nil {
		return Resolution{}, err
	}

	base := p.DefaultLevel
	if override, ok := p.DocumentTypes[documentType]; ok && documentType != "" {
		base = override
	}

	level := base
	if requested != "" {
		if !requested.Valid() {
			return Resolution{}, &Violation{
				Kind:    KindLevelNotAllowed,
				Profile: p.ID,
				Level:   requested,
				Allowed: levelStrings(p.AllowedLevels),
				Message: fmt.Sprintf("unknown governance level %q", requested),
			}
		}
		if requested.Below(base) && p.NoDowngrade {
			return Resolution{}, &Violation{
				Kind:     KindNoDowngrade,
				Profile:  p.ID,
				Level:    requested,
				Baseline: base,
				Message:  fmt.Sprintf("requested level %s is below baseline %s and profile forbids downgrades", requested, base),
			}
		}
		if base.Below(requested) && !p.UpgradeAllowed(requested) {
			return Resolution{}, &Violation{
				Kind:     KindUpgradeNotAllowed,
				Profile:  p.ID,
				Level:    requested,
				Baseline: base,
				Allowed:  levelStrings(p.ManualUpgrades),
				Message:  fmt.Sprintf("upgrade from %s to %s is not in the manual upgrade allow-list", base, requested),
			}
		}
		level = requested
	}

	if p.NoDowngrade {
		floor := base
		if p.MinimumLevel.Valid() {
			floor = maxLevel(base, p.MinimumLevel)
		}
		if level.Below(floor) {
			return Resolution{}, &Violation{
				Kind:     KindNoDowngrade,
				Profile:  p.ID,
				Level:    level,
				Baseline: floor,
				Message:  fmt.Sprintf("resolved level %s is below minimum %s", level, floor),
			}
		}
	}

	if !p.Allows(level) {
		return Resolution{}, &Violation{
			Kind:    KindLevelNotAllowed,
			Profile: p.ID,
			Level:   level,
			Allowed: levelStrings(p.AllowedLevels),
			Message: fmt.Sprintf("level %s is not allowed for profile %s", level, p.ID),
		}
	}

	e.logger.Debug("governance level resolved",
		"profile", p.ID, "document_type", documentType,
		"base", base, "requested", requested, "level", level)

	return Resolution{
		Profile:    p,
		Level:      level,
		Base:       base,
		Requested:  requested,
		Schema:     p.Schema(level),
		ConfigHash: cfg.Hash(),
	}, nil
}

// Evaluate resolves the level and validates metadata against its schema.
func (e *Engine) Evaluate(profileID, documentType string, requested Level, metadata canon.Object) (Resolution, error) {
	res, err := e.Resolve(profileID, documentType, requested)
	if err != nil {
		return Resolution{}, err
	}
	if err := Validate(res.Schema, metadata); err != nil {
		var v *Violation
		if errors.As(err, &v) {
			v.Profile = profileID
		}
		return Resolution{}, err
	}
	return res, nil
}

// Validate checks metadata against schema. Pure: no side effects, so the
// caller may retry freely with corrected input.
//
// Required fields are checked in declared order; a field is missing when it
// is absent, null or an empty string. Enum fields are checked in name order
// and only when present.
func Validate(schema LevelSchema, metadata canon.Object) error {
	for _, field := range schema.Required {
		if isBlank(metadata, field) {
			return &Violation{
				Kind:    KindMissingRequiredField,
				Level:   schema.Level,
				Field:   field,
				Message: fmt.Sprintf("required field %q is missing for level %s", field, schema.Level),
			}
		}
	}

	fields := make([]string, 0, len(schema.Enums))
	for f := range schema.Enums {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, field := range fields {
		if isBlank(metadata, field) {
			continue
		}
		allowed := schema.Enums[field]
		val, ok := metadata.Text(field)
		if !ok || !slices.Contains(allowed, val) {
			return &Violation{
				Kind:    KindInvalidEnumValue,
				Level:   schema.Level,
				Field:   field,
				Value:   val,
				Allowed: slices.Clone(allowed),
				Message: fmt.Sprintf("value %q for field %q is not allowed", val, field),
			}
		}
	}
	return nil
}

func isBlank(metadata canon.Object, field string) bool {
	v, ok := metadata[field]
	if !ok || v == nil {
		return true
	}
	switch val := v.(type) {
	case canon.Null:
		return true
	case canon.String:
		return val == ""
	default:
		return false
	}
}
