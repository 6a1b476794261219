package rules

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/modbot/internal/moderation"
)

const sampleRules = `
terms: [presale, "Free Mint"]
substitutions:
  e: "3€"
  s: "$5"
word_boundary: true
emphasis_max: 2
strip_invisible: true
heuristics: [invite, mass_mention]
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(sampleRules))
	require.NoError(t, err)

	assert.Equal(t, []string{"presale", "Free Mint"}, r.Terms)
	assert.Equal(t, map[string]string{"e": "3€", "s": "$5"}, r.Substitutions)
	assert.True(t, r.WordBoundary)
	assert.Equal(t, 2, r.EmphasisMax)
	assert.True(t, r.Normalize, "normalize keeps its default when omitted")
	assert.True(t, r.StripInvisible)
	assert.Equal(t, []string{"invite", "mass_mention"}, r.Heuristics)
}

func TestParseFilter(t *testing.T) {
	r, err := Parse([]byte(sampleRules))
	require.NoError(t, err)
	f, err := r.Filter()
	require.NoError(t, err)

	tests := []struct {
		text   string
		reason string
		term   string
	}{
		{"join the pr3$ale now", moderation.ReasonForbiddenTerm, "presale"},
		{"**FREE MINT** today", moderation.ReasonForbiddenTerm, "free mint"},
		{"pre\u200bsale", moderation.ReasonForbiddenTerm, "presale"},
		{"see discord.gg/abc", moderation.ReasonSpamPattern, "invite"},
		{"@everyone look", moderation.ReasonSpamPattern, "mass_mention"},
		{"presales", "", ""},
		{"airdrop", "", ""},
	}
	for _, tt := range tests {
		v := f.Check(tt.text)
		assert.Equal(t, tt.reason != "", v.Blocked, tt.text)
		assert.Equal(t, tt.reason, v.Reason, tt.text)
		assert.Equal(t, tt.term, v.Term, tt.text)
	}
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	r, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), r)

	m, err := r.Matcher()
	require.NoError(t, err)
	assert.True(t, m.Matches("4!rdr0p"))
}

func TestParseExplicitEmptySubstitutions(t *testing.T) {
	r, err := Parse([]byte("substitutions: {}\n"))
	require.NoError(t, err)

	m, err := r.Matcher()
	require.NoError(t, err)
	assert.True(t, m.Matches("airdrop"))
	assert.False(t, m.Matches("4irdr0p"))
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		is   error
	}{
		{"multi-rune key", "substitutions:\n  ab: \"x\"\n", ErrBadSubstitution},
		{"unknown key", "termz: [x]\n", nil},
		{"bad yaml", "terms: [unterminated\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
				var cfgErr *moderation.ConfigError
				assert.True(t, errors.As(err, &cfgErr))
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	r := Default()
	r.Terms = nil
	_, err := r.Matcher()
	assert.ErrorIs(t, err, moderation.ErrNoTerms)

	r = Default()
	r.Heuristics = []string{"caps_lock"}
	_, err = r.Filter()
	assert.ErrorIs(t, err, moderation.ErrBadHeuristic)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRules), 0o600))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"presale", "Free Mint"}, r.Terms)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
