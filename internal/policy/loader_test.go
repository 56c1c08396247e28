package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileYAML(t *testing.T) {
	cfg, err := LoadFile("testdata/profiles.yaml")
	require.NoError(t, err)

	assert.Equal(t, "2.1.0", cfg.PolicyVersion)
	assert.Equal(t, []string{"central-bank", "open-office"}, cfg.ProfileIDs())

	cb, err := cfg.Profile("central-bank")
	require.NoError(t, err)
	assert.Equal(t, LevelHigh, cb.DefaultLevel)
	assert.True(t, cb.NoDowngrade)
	assert.Equal(t, "REG", cb.Prefix())
	assert.Equal(t, "2.1.0", cb.PolicyVersion)

	high := cb.Schema(LevelHigh)
	assert.Equal(t, []string{"reporting_entity", "reference_period", "data_frequency"}, high.Required)
	assert.Equal(t, []string{"quarterly", "annual"}, high.Enums["data_frequency"])
	assert.True(t, high.Controls.Registration)
	assert.True(t, high.Controls.TamperEvidence)

	oo, err := cfg.Profile("open-office")
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, oo.DocumentTypes["board-minutes"])
	assert.Equal(t, []Level{LevelMedium, LevelHigh}, oo.ManualUpgrades)
}

func TestLoadFileCUEMatchesYAML(t *testing.T) {
	fromYAML, err := LoadFile("testdata/profiles.yaml")
	require.NoError(t, err)
	fromCUE, err := LoadFile("testdata/profiles.cue")
	require.NoError(t, err)

	assert.Equal(t, fromYAML.Hash(), fromCUE.Hash())
	assert.Equal(t, fromYAML.ProfileIDs(), fromCUE.ProfileIDs())
}

func TestLoadRejectsInvalidFiles(t *testing.T) {
	tests := []struct {
		file    string
		message string
	}{
		{"testdata/unknown_level.yaml", ""},
		{"testdata/unknown_field.yaml", ""},
		{"testdata/default_not_allowed.yaml", "default_level HIGH is not in allowed_levels"},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.file), func(t *testing.T) {
			_, err := LoadFile(tt.file)
			require.Error(t, err)

			var le *LoadError
			require.ErrorAs(t, err, &le)
			if tt.message != "" {
				assert.Contains(t, err.Error(), tt.message)
			}
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read profiles")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load("bad.yaml", []byte("profiles: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse yaml")
}

func TestOpenAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  p:
    default_level: LOW
    allowed_levels: [LOW]
`), 0o644))

	e, err := Open(path)
	require.NoError(t, err)
	before := e.ConfigHash()

	require.NoError(t, os.WriteFile(path, []byte(`
profiles:
  p:
    default_level: MEDIUM
    allowed_levels: [LOW, MEDIUM]
`), 0o644))
	require.NoError(t, e.Reload())
	assert.NotEqual(t, before, e.ConfigHash())

	res, err := e.Resolve("p", "", "")
	require.NoError(t, err)
	assert.Equal(t, LevelMedium, res.Level)

	require.NoError(t, os.WriteFile(path, []byte("profiles: {p: {default_level: NOPE}}"), 0o644))
	assert.Error(t, e.Reload())
	assert.Equal(t, LevelMedium, e.Config().Profiles["p"].DefaultLevel)
}
