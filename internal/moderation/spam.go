package moderation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// Compiled once and shared; regexp.Regexp is safe for concurrent use.
var (
	// invitePattern matches Discord server invites, the usual landing page of
	// airdrop scams.
	invitePattern = regexp.MustCompile(`(?i)(discord(?:app)?\.com/invite|discord\.gg)/\S+`)

	// massMentionPattern matches @everyone and @here pings.
	massMentionPattern = regexp.MustCompile(`@(everyone|here)\b`)

	// urlPattern matches http/https URLs, www. URLs, and bare domains on
	// common TLDs. The bare-domain variant requires a trailing "/" so that
	// "v2.0" or "3.14" are not flagged.
	urlPattern = regexp.MustCompile(`(?i)(https?://\S+|www\.\S+|\S+\.(com|net|org|io|co|xyz|info|biz|ru|cn|tk|ml|ga|cf|gg)/\S*)`)
)

// Heuristic is a named spam check applied to normalized text.
type Heuristic struct {
	Name        string
	Description string
	Match       func(string) bool
}

// Built-in heuristics, referenced by name from rules files.
var (
	HeuristicInvite = Heuristic{Name: "invite", Description: "Server invites are not allowed", Match: func(text string) bool {
		return invitePattern.MatchString(text)
	}}
	HeuristicMassMention = Heuristic{Name: "mass_mention", Description: "Mass mentions are not allowed", Match: func(text string) bool {
		return massMentionPattern.MatchString(text)
	}}
	HeuristicURL = Heuristic{Name: "url", Description: "URLs are not allowed", Match: func(text string) bool {
		return urlPattern.MatchString(text)
	}}
	HeuristicCharFlood = Heuristic{Name: "char_flood", Description: "Character flooding detected", Match: hasCharFlood}
	HeuristicWordFlood = Heuristic{Name: "word_flood", Description: "Repeated word flooding detected", Match: hasWordFlood}
)

var heuristicsByName = map[string]Heuristic{
	HeuristicInvite.Name:      HeuristicInvite,
	HeuristicMassMention.Name: HeuristicMassMention,
	HeuristicURL.Name:         HeuristicURL,
	HeuristicCharFlood.Name:   HeuristicCharFlood,
	HeuristicWordFlood.Name:   HeuristicWordFlood,
}

// HeuristicsByName resolves heuristic names in order. An unknown name yields
// a *ConfigError wrapping ErrBadHeuristic.
func HeuristicsByName(names []string) ([]Heuristic, error) {
	out := make([]Heuristic, 0, len(names))
	for _, name := range names {
		h, ok := heuristicsByName[strings.TrimSpace(name)]
		if !ok {
			return nil, &ConfigError{Index: -1, Value: name, Err: fmt.Errorf("%w: %s", ErrBadHeuristic, name)}
		}
		out = append(out, h)
	}
	return out, nil
}

// hasCharFlood reports whether text contains 5 or more consecutive identical
// runes. RE2 has no backreferences, so this is a linear scan.
func hasCharFlood(text string) bool {
	const threshold = 5

	count := 1
	prev := rune(-1)
	for _, r := range text {
		if r == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = r
		}
	}
	return false
}

// hasWordFlood reports whether the same word appears 3 or more times in a
// row, ignoring case.
func hasWordFlood(text string) bool {
	const threshold = 3

	words := strings.FieldsFunc(text, unicode.IsSpace)
	if len(words) < threshold {
		return false
	}

	count := 1
	prev := ""
	for _, w := range words {
		lower := strings.ToLower(w)
		if lower == prev {
			count++
			if count >= threshold {
				return true
			}
		} else {
			count = 1
			prev = lower
		}
	}
	return false
}
