package moderation

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultEmphasisMax is the longest run of Markdown emphasis markers ("*" or
// "_") tolerated on either side of a term.
const DefaultEmphasisMax = 3

// Substitutions maps a canonical lowercase letter to the characters that are
// commonly used in its place (homoglyphs, digits, symbols).
type Substitutions map[rune][]rune

type matcherOptions struct {
	wordBoundary   bool
	emphasisMax    int
	normalize      bool
	stripInvisible bool
}

// Option configures BuildMatcher.
type Option func(*matcherOptions)

// WithWordBoundary requires a matched term to be surrounded by something other
// than a letter or digit. Off by default, so "airdropper" matches "airdrop".
func WithWordBoundary(on bool) Option {
	return func(o *matcherOptions) { o.wordBoundary = on }
}

// WithEmphasis sets the maximum emphasis run tolerated around a term. Zero
// disables emphasis handling.
func WithEmphasis(max int) Option {
	return func(o *matcherOptions) { o.emphasisMax = max }
}

// WithNormalization toggles NFC normalization of text before matching.
func WithNormalization(on bool) Option {
	return func(o *matcherOptions) { o.normalize = on }
}

// WithInvisibleStripping removes zero-width and bidi control characters
// before matching, so "air\u200bdrop" is treated as "airdrop".
func WithInvisibleStripping(on bool) Option {
	return func(o *matcherOptions) { o.stripInvisible = on }
}

// Matcher is a compiled forbidden-term pattern. It is immutable after
// BuildMatcher returns and safe for concurrent use.
type Matcher struct {
	re    *regexp.Regexp
	terms []string
	opts  matcherOptions
}

// BuildMatcher compiles terms and their substitution rules into a single
// case-insensitive alternation. Each term may be wrapped in up to
// DefaultEmphasisMax emphasis markers on either side.
//
// Terms are trimmed and lowercased; duplicates collapse. An empty term list,
// an empty term or a term that is not valid UTF-8 yields a *ConfigError. A
// pattern rejected by the regexp compiler yields a *PatternError.
func BuildMatcher(terms []string, subs Substitutions, opts ...Option) (*Matcher, error) {
	o := matcherOptions{emphasisMax: DefaultEmphasisMax, normalize: true}
	for _, opt := range opts {
		opt(&o)
	}
	if o.emphasisMax < 0 {
		return nil, &ConfigError{Index: -1, Value: strconv.Itoa(o.emphasisMax), Err: ErrBadEmphasis}
	}

	canon, err := canonicalTerms(terms)
	if err != nil {
		return nil, err
	}

	emphasis := emphasisPattern(o.emphasisMax)
	alts := make([]string, len(canon))
	for i, term := range canon {
		var b strings.Builder
		if o.wordBoundary {
			b.WriteString(`(?:^|[^\pL\pN])`)
		}
		b.WriteString(emphasis)
		b.WriteByte('(')
		b.WriteString(expandTerm(term, subs))
		b.WriteByte(')')
		b.WriteString(emphasis)
		if o.wordBoundary {
			b.WriteString(`(?:[^\pL\pN]|$)`)
		}
		alts[i] = b.String()
	}

	src := "(?i)" + strings.Join(alts, "|")
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, &PatternError{Pattern: src, Err: err}
	}

	return &Matcher{re: re, terms: canon, opts: o}, nil
}

// Matches reports whether text contains any forbidden term, literal or
// disguised. The text is normalized first unless normalization was disabled.
func (m *Matcher) Matches(text string) bool {
	return m.re.MatchString(m.prepare(text))
}

// Find returns the canonical term that matched first in text.
func (m *Matcher) Find(text string) (string, bool) {
	return m.findPrepared(m.prepare(text))
}

// Terms returns a copy of the canonical term list.
func (m *Matcher) Terms() []string {
	return slices.Clone(m.terms)
}

// String returns the source of the compiled expression.
func (m *Matcher) String() string {
	return m.re.String()
}

func (m *Matcher) prepare(text string) string {
	if m.opts.stripInvisible {
		text = StripInvisible(text)
	}
	if m.opts.normalize {
		text = Normalize(text)
	}
	return text
}

func (m *Matcher) findPrepared(text string) (string, bool) {
	loc := m.re.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", false
	}
	// Group i+1 is the core of terms[i]; all other groups are non-capturing.
	for i := range m.terms {
		if loc[2*(i+1)] >= 0 {
			return m.terms[i], true
		}
	}
	return "", true
}

func canonicalTerms(terms []string) ([]string, error) {
	if len(terms) == 0 {
		return nil, &ConfigError{Index: -1, Err: ErrNoTerms}
	}

	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for i, raw := range terms {
		if !utf8.ValidString(raw) {
			return nil, &ConfigError{Index: i, Value: raw, Err: ErrInvalidTerm}
		}
		term := strings.ToLower(strings.TrimSpace(raw))
		if term == "" {
			return nil, &ConfigError{Index: i, Value: raw, Err: ErrEmptyTerm}
		}
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		out = append(out, term)
	}
	return out, nil
}

func emphasisPattern(max int) string {
	if max == 0 {
		return ""
	}
	n := strconv.Itoa(max)
	return `(?:\*{1,` + n + `}|_{1,` + n + `})?`
}

// expandTerm turns every rune that has a substitution rule into a character
// class of the rune plus its variants. Variants are sorted so the same
// configuration always yields the same pattern.
func expandTerm(term string, subs Substitutions) string {
	var b strings.Builder
	for _, r := range term {
		variants, ok := subs[r]
		if !ok || len(variants) == 0 {
			b.WriteString(regexp.QuoteMeta(string(r)))
			continue
		}

		set := make([]rune, 0, len(variants)+1)
		set = append(set, r)
		for _, v := range variants {
			if !slices.Contains(set, v) {
				set = append(set, v)
			}
		}
		slices.Sort(set[1:])

		b.WriteByte('[')
		for _, v := range set {
			writeClassRune(&b, v)
		}
		b.WriteByte(']')
	}
	return b.String()
}

func writeClassRune(b *strings.Builder, r rune) {
	switch r {
	case '\\', ']', '[', '^', '-':
		b.WriteByte('\\')
	}
	b.WriteRune(r)
}
