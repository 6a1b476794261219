// Package rules loads the forbidden-term configuration from a YAML file.
//
// A rules file looks like:
//
//	terms: [airdrop, ico, giveaway]
//	substitutions:
//	  a: "аA@4"
//	  o: "O0о"
//	word_boundary: false
//	emphasis_max: 3
//	normalize: true
//	strip_invisible: true
//	heuristics: [invite, mass_mention]
//
// Keys left out keep their Default value. An explicit empty substitutions
// map disables substitution entirely.
package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/whisper/modbot/internal/moderation"
)

// ErrBadSubstitution is wrapped by the *moderation.ConfigError returned for a
// substitution key that is not exactly one character.
var ErrBadSubstitution = errors.New("substitution key must be a single character")

// Rules is the decoded rules file.
type Rules struct {
	Terms          []string          `yaml:"terms"`
	Substitutions  map[string]string `yaml:"substitutions"`
	WordBoundary   bool              `yaml:"word_boundary"`
	EmphasisMax    int               `yaml:"emphasis_max"`
	Normalize      bool              `yaml:"normalize"`
	StripInvisible bool              `yaml:"strip_invisible"`
	Heuristics     []string          `yaml:"heuristics"`
}

// Default returns the built-in rule set.
func Default() *Rules {
	return &Rules{
		Terms:         append([]string(nil), moderation.DefaultTerms...),
		Substitutions: fromSubstitutions(moderation.DefaultSubstitutions()),
		EmphasisMax:   moderation.DefaultEmphasisMax,
		Normalize:     true,
	}
}

// Load reads and parses the rules file at path.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules: %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes a rules document. Unknown keys are rejected.
func Parse(data []byte) (*Rules, error) {
	r := Default()
	r.Substitutions = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if r.Substitutions == nil {
		r.Substitutions = Default().Substitutions
	}
	if _, err := r.substitutions(); err != nil {
		return nil, err
	}
	return r, nil
}

// Matcher compiles the rule set into a matcher.
func (r *Rules) Matcher() (*moderation.Matcher, error) {
	subs, err := r.substitutions()
	if err != nil {
		return nil, err
	}
	return moderation.BuildMatcher(r.Terms, subs,
		moderation.WithWordBoundary(r.WordBoundary),
		moderation.WithEmphasis(r.EmphasisMax),
		moderation.WithNormalization(r.Normalize),
		moderation.WithInvisibleStripping(r.StripInvisible),
	)
}

// Filter compiles the rule set into a filter with its heuristics.
func (r *Rules) Filter() (*moderation.Filter, error) {
	m, err := r.Matcher()
	if err != nil {
		return nil, err
	}
	hs, err := moderation.HeuristicsByName(r.Heuristics)
	if err != nil {
		return nil, err
	}
	return moderation.NewFilter(m, hs...), nil
}

func (r *Rules) substitutions() (moderation.Substitutions, error) {
	keys := make([]string, 0, len(r.Substitutions))
	for k := range r.Substitutions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	subs := make(moderation.Substitutions, len(keys))
	for _, k := range keys {
		if utf8.RuneCountInString(k) != 1 || !utf8.ValidString(k) {
			return nil, &moderation.ConfigError{Index: -1, Value: k, Err: ErrBadSubstitution}
		}
		base, _ := utf8.DecodeRuneInString(k)
		subs[base] = append(subs[base], []rune(r.Substitutions[k])...)
	}
	return subs, nil
}

func fromSubstitutions(subs moderation.Substitutions) map[string]string {
	out := make(map[string]string, len(subs))
	for base, variants := range subs {
		out[string(base)] = string(variants)
	}
	return out
}
