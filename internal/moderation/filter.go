// Package moderation provides the content filter used by the moderation bot.
// It compiles forbidden terms plus their homoglyph and leetspeak variants
// into a single matcher and screens chat messages against it, optionally
// followed by cheap spam heuristics.
package moderation

// Verdict reasons.
const (
	ReasonForbiddenTerm = "forbidden_term"
	ReasonSpamPattern   = "spam_pattern"
)

// Verdict is the outcome of a Filter check. Term holds the canonical
// forbidden term or the heuristic name that triggered the block.
type Verdict struct {
	Blocked bool
	Reason  string
	Term    string
}

// Filter screens text with a Matcher and then with spam heuristics, in order.
// A Filter holds no mutable state and may be shared between goroutines.
type Filter struct {
	matcher    *Matcher
	heuristics []Heuristic
}

// NewFilter returns a Filter over m. Heuristics run only when no forbidden
// term matched, first match wins.
func NewFilter(m *Matcher, heuristics ...Heuristic) *Filter {
	return &Filter{matcher: m, heuristics: heuristics}
}

// Matcher returns the underlying forbidden-term matcher.
func (f *Filter) Matcher() *Matcher {
	return f.matcher
}

// Check screens text and reports whether it should be moderated.
func (f *Filter) Check(text string) Verdict {
	prepared := f.matcher.prepare(text)

	if term, ok := f.matcher.findPrepared(prepared); ok {
		return Verdict{Blocked: true, Reason: ReasonForbiddenTerm, Term: term}
	}

	for _, h := range f.heuristics {
		if h.Match(prepared) {
			return Verdict{Blocked: true, Reason: ReasonSpamPattern, Term: h.Name}
		}
	}
	return Verdict{}
}
