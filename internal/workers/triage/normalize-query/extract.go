// internal/workers/triage/normalize-query/extract.go
package normalizequery

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"medical-triage/internal/models"
)

// asciiDigits rewrites Devanagari and Bengali digits to ASCII.
var asciiDigits = strings.NewReplacer(
	"०", "0", "१", "1", "२", "2", "३", "3", "४", "4",
	"५", "5", "६", "6", "७", "7", "८", "8", "९", "9",
	"০", "0", "১", "1", "২", "2", "৩", "3", "৪", "4",
	"৫", "5", "৬", "6", "৭", "7", "৮", "8", "৯", "9",
)

// ==========================
// Duration
// ==========================

var (
	englishDuration = regexp.MustCompile(`\b(\d+)\s+(hours?|days?|weeks?|months?)\b`)
	indicDuration   = regexp.MustCompile(`(\d+)\s*(दिनों|दिन|हफ़्ते|हफ्ते|सप्ताह|महीने|महीना|घंटे|দিন|সপ্তাহ|মাস|ঘণ্টা)`)
	relativeWhen    = regexp.MustCompile(`\b(since yesterday|since last night|since morning|since this morning|yesterday|today|last night)\b`)
	indicRelative   = regexp.MustCompile(`(कल से|आज से|গতকাল থেকে|আজ থেকে)`)
)

var indicUnits = map[string]string{
	"दिनों": "days", "दिन": "days", "हफ़्ते": "weeks", "हफ्ते": "weeks",
	"सप्ताह": "weeks", "महीने": "months", "महीना": "months", "घंटे": "hours",
	"দিন": "days", "সপ্তাহ": "weeks", "মাস": "months", "ঘণ্টা": "hours",
}

var indicRelativeEnglish = map[string]string{
	"कल से":      "since yesterday",
	"आज से":      "since today",
	"গতকাল থেকে": "since yesterday",
	"আজ থেকে":    "since today",
}

// extractDuration returns the first duration phrase, always in English.
func extractDuration(folded string) string {
	if m := englishDuration.FindStringSubmatch(folded); m != nil {
		return m[1] + " " + pluralUnit(m[1], m[2])
	}
	if m := indicDuration.FindStringSubmatch(folded); m != nil {
		return m[1] + " " + pluralUnit(m[1], indicUnits[m[2]])
	}
	if m := relativeWhen.FindString(folded); m != "" {
		return m
	}
	if m := indicRelative.FindString(folded); m != "" {
		return indicRelativeEnglish[m]
	}
	return ""
}

func pluralUnit(count, unit string) string {
	unit = strings.TrimSuffix(unit, "s")
	if count == "1" {
		return unit
	}
	return unit + "s"
}

// ==========================
// Populations and modifiers
// ==========================

type cueSet struct {
	label   string
	pattern *regexp.Regexp
}

var populationCues = []cueSet{
	{models.PopulationPregnancy, regexp.MustCompile(`\b(pregnant|pregnancy|expecting mother)\b|गर्भवती|गर्भावस्था|গর্ভবতী|গর্ভাবস্থা`)},
	{models.PopulationPediatric, regexp.MustCompile(`\b(child|children|baby|babies|infant|infants|toddler|kid|kids|newborn)\b|बच्चा|बच्चे|बच्ची|शिशु|শিশু|বাচ্চা`)},
	{models.PopulationElderly, regexp.MustCompile(`\b(elderly|old person|old man|old woman|aged parent|senior citizen)\b|बुजुर्ग|বয়স্ক|বৃদ্ধ`)},
}

var severityWords = map[string]string{
	"severe":     "severe",
	"extreme":    "extreme",
	"unbearable": "unbearable",
	"intense":    "intense",
	"terrible":   "terrible",
	"awful":      "awful",
	"गंभीर":      "severe",
	"तीव्र":      "intense",
	"असहनीय":     "unbearable",
	"গুরুতর":     "severe",
	"তীব্র":      "intense",
	"অসহ্য":      "unbearable",
}

var severityPattern = buildSeverityPattern()

func buildSeverityPattern() *regexp.Regexp {
	var english, indic []string
	for word := range severityWords {
		if isASCII(word) {
			english = append(english, regexp.QuoteMeta(word))
		} else {
			indic = append(indic, regexp.QuoteMeta(word))
		}
	}
	sort.Strings(english)
	sort.Strings(indic)
	return regexp.MustCompile(`\b(?:` + strings.Join(english, "|") + `)\b|` + strings.Join(indic, "|"))
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

func extractPopulations(folded string) []string {
	var out []string
	for _, cue := range populationCues {
		if cue.pattern.MatchString(folded) {
			out = append(out, cue.label)
		}
	}
	return out
}

// extractSeverityModifiers returns the English modifiers present, sorted.
func extractSeverityModifiers(folded string) []string {
	seen := map[string]bool{}
	for _, word := range severityPattern.FindAllString(folded, -1) {
		seen[severityWords[word]] = true
	}
	return sortedSet(seen)
}

// ==========================
// Temperature
// ==========================

var (
	temperatureReading = regexp.MustCompile(`\b(\d{2,3}(?:\.\d+)?)\s*(?:(°)\s*)?(fahrenheit|celsius|f|c)?(?:[^\pL\pN]|$)`)
	otherQuantity      = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:years?|yrs?|year-old|kgs?|kilos?|lbs?|pounds|mg|ml|bpm|minutes?|mins?|hours?|days?|weeks?|months?|times|%|साल|वर्ष|বছর)`)
	feverContext       = regexp.MustCompile(`\b(fever|temperature|febrile)\b|बुखार|ज्वर|तापमान|জ্বর|তাপমাত্রা`)
)

const (
	highFeverFahrenheit = 104.0
	unitlessCutoff      = 50.0
)

// extractTemperature finds the first plausible body temperature. A bare
// number only counts when the text talks about fever or temperature.
func extractTemperature(folded string) *models.Temperature {
	hasContext := feverContext.MatchString(folded)
	folded = otherQuantity.ReplaceAllString(folded, " ")
	for _, m := range temperatureReading.FindAllStringSubmatch(folded, -1) {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		unit := ""
		switch m[3] {
		case "f", "fahrenheit":
			unit = "F"
		case "c", "celsius":
			unit = "C"
		}
		if unit == "" && m[2] == "" && !hasContext {
			continue
		}
		if unit == "" {
			unit = "C"
			if value > unitlessCutoff {
				unit = "F"
			}
		}

		fahrenheit := value
		if unit == "C" {
			fahrenheit = value*9/5 + 32
		}
		if fahrenheit < 90 || fahrenheit > 115 {
			continue
		}
		return &models.Temperature{
			Value:      value,
			Unit:       unit,
			Fahrenheit: fahrenheit,
			Phrase:     strings.TrimRight(m[0], " ,.;:!?)-/"),
		}
	}
	return nil
}

// isHighFever reports a reading at or above 104°F (40°C).
func isHighFever(t *models.Temperature) bool {
	return t != nil && t.Fahrenheit >= highFeverFahrenheit
}

func sortedSet(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
