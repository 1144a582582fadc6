// internal/workers/triage/normalize-query/clean.go
package normalizequery

import (
	"regexp"
	"strings"
	"unicode"

	"medical-triage/internal/models"

	"golang.org/x/text/unicode/norm"
)

const (
	zwnj = '\u200c'
	zwj  = '\u200d'
)

var (
	repeatedBangs    = regexp.MustCompile(`!{2,}`)
	repeatedQuestion = regexp.MustCompile(`\?{2,}`)
	repeatedCommas   = regexp.MustCompile(`,{2,}`)
	repeatedPeriods  = regexp.MustCompile(`\.{2,}`)
	whitespaceRuns   = regexp.MustCompile(`\s+`)

	fahrenheitWords = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:degrees?|deg)\s*(?:fahrenheit|f)\b`)
	celsiusWords    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:degrees?|deg)\s*(?:celsius|centigrade|c)\b`)
	tempAbbrev      = regexp.MustCompile(`(?i)\btemp\b`)
)

type correction struct {
	pattern     *regexp.Regexp
	replacement string
}

var phraseCorrections = []correction{
	{regexp.MustCompile(`(?i)\bfever\s+and\s+cold\b`), "fever and chills"},
	{regexp.MustCompile(`(?i)\bhead\s+ache\b`), "headache"},
	{regexp.MustCompile(`(?i)\bstomach\s+ache\b`), "stomach pain"},
	{regexp.MustCompile(`(?i)\bbody\s+pain\b`), "body aches"},
	{regexp.MustCompile(`(?i)\bcan'?t\s+sleep\b`), "difficulty sleeping"},
	{regexp.MustCompile(`(?i)\bvery\s+tired\b`), "fatigue"},
}

var apostrophes = strings.NewReplacer("\u2019", "'", "\u2018", "'", "\u02bc", "'")

// cleanText normalizes raw query text. The result keeps the user's casing;
// matching happens on the folded form.
func cleanText(raw string) string {
	text := norm.NFC.String(raw)
	text = apostrophes.Replace(text)
	text = strings.Map(safeRune, text)

	text = fahrenheitWords.ReplaceAllString(text, "${1}°F")
	text = celsiusWords.ReplaceAllString(text, "${1}°C")
	text = tempAbbrev.ReplaceAllString(text, "temperature")

	text = repeatedBangs.ReplaceAllString(text, "")
	text = repeatedQuestion.ReplaceAllString(text, "")
	text = repeatedCommas.ReplaceAllString(text, ",")
	text = repeatedPeriods.ReplaceAllString(text, "...")

	for _, c := range phraseCorrections {
		text = c.pattern.ReplaceAllString(text, c.replacement)
	}

	text = whitespaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// safeRune maps characters outside the safelist to a space so that
// neighbouring words never fuse.
func safeRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsMark(r), unicode.IsDigit(r):
		return r
	case unicode.IsSpace(r):
		return ' '
	case r == zwj || r == zwnj:
		return r
	case strings.ContainsRune(".,;:!?-()%°/'", r):
		return r
	default:
		return ' '
	}
}

func isDevanagari(r rune) bool { return r >= 0x0900 && r <= 0x097F }
func isBengali(r rune) bool    { return r >= 0x0980 && r <= 0x09FF }

const (
	dominantRatio = 0.3
	presentRatio  = 0.1
)

// detectLanguage assigns a language from per-script shares of the
// alphabetic runes (letters and combining marks).
func detectLanguage(text string) models.Language {
	var alpha, latin, devanagari, bengali int
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			continue
		}
		alpha++
		switch {
		case isDevanagari(r):
			devanagari++
		case isBengali(r):
			bengali++
		case unicode.Is(unicode.Latin, r):
			latin++
		}
	}
	if alpha == 0 {
		return models.LanguageUnknown
	}

	shares := []struct {
		lang  models.Language
		ratio float64
	}{
		{models.LanguageEnglish, float64(latin) / float64(alpha)},
		{models.LanguageHindi, float64(devanagari) / float64(alpha)},
		{models.LanguageBengali, float64(bengali) / float64(alpha)},
	}

	present := 0
	for _, s := range shares {
		if s.ratio > presentRatio {
			present++
		}
	}
	for _, s := range shares {
		if s.ratio > dominantRatio && present == 1 {
			return s.lang
		}
	}
	if present >= 2 {
		return models.LanguageMixed
	}
	return models.LanguageUnknown
}
