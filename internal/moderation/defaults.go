package moderation

// DefaultTerms are the scam keywords the bot removes out of the box.
var DefaultTerms = []string{"airdrop", "ico", "giveaway"}

// DefaultSubstitutions covers the Cyrillic homoglyphs, digits, symbols and
// accented forms seen in airdrop spam.
func DefaultSubstitutions() Substitutions {
	return Substitutions{
		'a': {'а', 'A', 'А', '@', '4', 'à', 'á', 'â', 'ä'},
		'i': {'1', '!', '|', 'I', 'І', 'і', 'í', 'ì', 'ï'},
		'r': {'R', 'г', 'Г'},
		'd': {'D'},
		'o': {'O', 'о', 'О', '0', 'ó', 'ò', 'ö'},
	}
}

// DefaultMatcher builds a matcher from DefaultTerms and DefaultSubstitutions.
func DefaultMatcher(opts ...Option) (*Matcher, error) {
	return BuildMatcher(DefaultTerms, DefaultSubstitutions(), opts...)
}
