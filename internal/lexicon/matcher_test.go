package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tagsOf(matches []Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.Tag)
	}
	return out
}

func TestMatcher_LongestFirst(t *testing.T) {
	m, err := NewMatcher(map[string]string{
		"headache":        "headache",
		"severe headache": "severe headache",
		"pain":            "pain",
		"chest pain":      "chest pain",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"severe headache"}, tagsOf(m.FindAll("severe headache since morning")))
	assert.Equal(t, []string{"chest pain", "headache"}, tagsOf(m.FindAll("chest pain and headache")))
	assert.Equal(t, "severe headache", m.Surfaces()[0])
}

func TestMatcher_WordBoundaries(t *testing.T) {
	m, err := NewMatcher(map[string]string{
		"fever": "fever",
		"cold":  "cold",
	})
	require.NoError(t, err)

	assert.Empty(t, m.FindAll("feverish and scolding"))
	assert.Equal(t, []string{"fever"}, tagsOf(m.FindAll("fever, then more")))
	assert.Equal(t, []string{"fever"}, tagsOf(m.FindAll("(fever)")))
}

func TestMatcher_IndicSubstrings(t *testing.T) {
	m, err := NewMatcher(map[string]string{
		"জ্বর":       "fever",
		"তীব্র জ্বর": "high fever",
		"বমি":        "vomiting",
		"বমি বমি ভাব": "nausea",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"high fever", "nausea"}, tagsOf(m.FindAll("আমার তীব্র জ্বর এবং বমি বমি ভাব")))
	assert.Equal(t, []string{"fever"}, tagsOf(m.FindAll("জ্বরের")))
}

func TestMatcher_Empty(t *testing.T) {
	m, err := NewMatcher(nil)
	require.NoError(t, err)
	assert.Nil(t, m.FindAll("anything"))
}

func TestStore_MatchSymptomsAcrossLanguages(t *testing.T) {
	store := loadStore(t)

	matches := store.MatchSymptoms(Fold("Fever with मांसपेशियों में दर्द and মাথাব্যথা"))
	assert.Equal(t, []string{"fever", "muscle pain", "headache"}, tagsOf(matches))

	emergency := store.MatchEmergency(Fold("patient unconscious with high fever and cough"))
	assert.Equal(t, []string{"unconscious", "high fever"}, tagsOf(emergency))
	assert.Equal(t, "high fever", emergency[1].Surface)
}
