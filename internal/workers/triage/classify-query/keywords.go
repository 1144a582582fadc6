// internal/workers/triage/classify-query/keywords.go
package classifyquery

import "regexp"

// English terms are word-bounded; Indic terms match as substrings.
var (
	nonMedicalKeywords = regexp.MustCompile(`\b(weather|temperature outside|forecast|recipes?|cooking|news|sports|cricket score|politics|election|movies?|what time|today's date|calendar)\b`)

	medicalKeywords = regexp.MustCompile(`\b(symptoms?|disease|illness|condition|treatment|medicine|doctor|hospital|health|fever|pain|ache|sick|unwell)\b|बीमारी|दवा|डॉक्टर|अस्पताल|রোগ|ওষুধ|ডাক্তার|হাসপাতাল`)

	preventionKeywords = regexp.MustCompile(`\b(prevent(?:ion|ing)?|avoid|protect(?:ion)?|vaccines?|vaccination|immuni[sz]ation)\b|बचाव|रोकथाम|टीका|প্রতিরোধ|টিকা`)

	densityKeywords = regexp.MustCompile(`\b(fever|pain|ache|symptoms|sick|illness|disease)\b`)
)

func distinctMatches(re *regexp.Regexp, text string) int {
	seen := map[string]bool{}
	for _, m := range re.FindAllString(text, -1) {
		seen[m] = true
	}
	return len(seen)
}
