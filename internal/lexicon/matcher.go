// internal/lexicon/matcher.go
package lexicon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Match is one surface occurrence in folded text.
type Match struct {
	Surface string
	Tag     string
	Start   int
	End     int
}

// Matcher finds lexicon surfaces with a single alternation ordered longest
// first. RE2 alternation is leftmost-first, so at any position the longest
// surface wins.
type Matcher struct {
	re      *regexp.Regexp
	tags    map[string]string
	ordered []string
}

// NewMatcher compiles the surface → tag table. Keys must already be folded.
func NewMatcher(surfaceToTag map[string]string) (*Matcher, error) {
	ordered := make([]string, 0, len(surfaceToTag))
	for surface := range surfaceToTag {
		ordered = append(ordered, surface)
	}
	sort.Slice(ordered, func(i, j int) bool {
		li, lj := utf8.RuneCountInString(ordered[i]), utf8.RuneCountInString(ordered[j])
		if li != lj {
			return li > lj
		}
		return ordered[i] < ordered[j]
	})

	m := &Matcher{tags: surfaceToTag, ordered: ordered}
	if len(ordered) == 0 {
		return m, nil
	}

	parts := make([]string, 0, len(ordered))
	for _, surface := range ordered {
		parts = append(parts, boundedPattern(surface))
	}
	re, err := regexp.Compile("(?:" + strings.Join(parts, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("compile lexicon matcher: %w", err)
	}
	m.re = re
	return m, nil
}

// boundedPattern anchors ASCII word edges with \b so "fever" does not
// match inside "fevers". Indic surfaces match as plain substrings.
func boundedPattern(surface string) string {
	pattern := regexp.QuoteMeta(surface)
	first, _ := utf8.DecodeRuneInString(surface)
	last, _ := utf8.DecodeLastRuneInString(surface)
	if isASCIIWord(first) {
		pattern = `\b` + pattern
	}
	if isASCIIWord(last) {
		pattern += `\b`
	}
	return pattern
}

func isASCIIWord(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

// FindAll returns non-overlapping matches from left to right.
func (m *Matcher) FindAll(folded string) []Match {
	if m.re == nil || folded == "" {
		return nil
	}
	locs := m.re.FindAllStringIndex(folded, -1)
	out := make([]Match, 0, len(locs))
	for _, loc := range locs {
		surface := folded[loc[0]:loc[1]]
		tag, ok := m.tags[surface]
		if !ok {
			continue
		}
		out = append(out, Match{Surface: surface, Tag: tag, Start: loc[0], End: loc[1]})
	}
	return out
}

// Surfaces returns the surfaces in match priority order.
func (m *Matcher) Surfaces() []string {
	return append([]string(nil), m.ordered...)
}
