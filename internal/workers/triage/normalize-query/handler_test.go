// internal/workers/triage/normalize-query/handler_test.go
package normalizequery

import (
	"context"
	"testing"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/lexicon"
	"medical-triage/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:       time.Second,
		SlowThreshold: time.Second,
	}
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	store, err := lexicon.Load()
	require.NoError(t, err)
	return NewHandler(createTestConfig(), store, logger.NewTestLogger(t))
}

// ==========================
// Process
// ==========================

func TestProcess_Scenarios(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		name           string
		text           string
		validateOutput func(t *testing.T, q *models.NormalizedQuery)
	}{
		{
			name: "english symptoms with duration",
			text: "I have fever and headache for 2 days",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, models.LanguageEnglish, q.Language)
				assert.Equal(t, []string{"fever", "headache"}, q.SymptomTags)
				assert.False(t, q.EmergencyDetected)
				assert.Empty(t, q.EmergencyIndicators)
				assert.Equal(t, "2 days", q.Duration)
			},
		},
		{
			name: "unconscious with high fever",
			text: "Patient unconscious with high fever",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.True(t, q.EmergencyDetected)
				assert.ElementsMatch(t, []string{"unconscious", "high fever"}, q.IndicatorTags())
				assert.Contains(t, q.SymptomTags, "unconscious")
				assert.Contains(t, q.SymptomTags, "high fever")
			},
		},
		{
			name: "bengali fever and headache",
			text: "আমার জ্বর এবং মাথাব্যথা আছে",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, models.LanguageBengali, q.Language)
				assert.Equal(t, []string{"fever", "headache"}, q.SymptomTags)
				assert.False(t, q.EmergencyDetected)
			},
		},
		{
			name: "hindi breathing difficulty",
			text: "मुझे सांस लेने में तकलीफ है",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, models.LanguageHindi, q.Language)
				assert.True(t, q.EmergencyDetected)
				assert.Contains(t, q.IndicatorTags(), "difficulty breathing")
			},
		},
		{
			name: "mixed scripts",
			text: "Fever with मांसपेशियों में दर्द and মাথাব্যথা",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, models.LanguageMixed, q.Language)
				assert.Equal(t, []string{"fever", "headache", "muscle pain"}, q.SymptomTags)
			},
		},
		{
			name: "no letters",
			text: "12345 ???",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, models.LanguageUnknown, q.Language)
				assert.Empty(t, q.SymptomTags)
			},
		},
		{
			name: "phrase corrections",
			text: "Head ache and body pain since yesterday",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Contains(t, q.CleanedText, "headache")
				assert.Contains(t, q.SymptomTags, "headache")
				assert.Equal(t, "since yesterday", q.Duration)
			},
		},
		{
			name: "populations and modifiers",
			text: "My pregnant wife has severe headache and the baby has fever",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.ElementsMatch(t, []string{models.PopulationPregnancy, models.PopulationPediatric}, q.SpecialPopulations)
				assert.Equal(t, []string{"severe"}, q.SeverityModifiers)
				assert.True(t, q.EmergencyDetected)
				assert.Contains(t, q.IndicatorTags(), "severe headache")
			},
		},
		{
			name: "urgency cues are emergency indicators",
			text: "I need help right now, my cough is getting worse",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.Equal(t, []string{"getting worse", "help", "right now"}, q.UrgencyCues)
				assert.True(t, q.EmergencyDetected)
				assert.ElementsMatch(t, []string{"getting worse", "help", "right now"}, q.IndicatorTags())
				assert.Empty(t, q.ClinicalIndicatorTags())
				for _, ind := range q.EmergencyIndicators {
					assert.True(t, ind.IsUrgencyCue(), ind.Tag)
				}
				assert.Contains(t, q.SymptomTags, "cough")
				assert.NotContains(t, q.SymptomTags, "getting worse")
				assert.NotContains(t, q.SymptomTags, "help")
			},
		},
		{
			name: "urgency cue alongside a clinical indicator",
			text: "my child is unconscious, come immediately",
			validateOutput: func(t *testing.T, q *models.NormalizedQuery) {
				assert.True(t, q.EmergencyDetected)
				assert.Equal(t, []string{"unconscious"}, q.ClinicalIndicatorTags())
				assert.ElementsMatch(t, []string{"unconscious", "immediately"}, q.IndicatorTags())
				assert.Contains(t, q.SymptomTags, "unconscious")
				assert.NotContains(t, q.SymptomTags, "immediately")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := h.Process(tt.text)
			require.NoError(t, err)
			require.NotNil(t, q)
			assert.Equal(t, tt.text, q.OriginalText)
			tt.validateOutput(t, q)
		})
	}
}

func TestProcess_EmptyInput(t *testing.T) {
	h := newTestHandler(t)

	for _, text := range []string{"", "   ", "\n\t"} {
		q, err := h.Process(text)
		assert.Nil(t, q)
		require.Error(t, err)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInputError))
	}
}

func TestProcess_PunctuationInvariance(t *testing.T) {
	h := newTestHandler(t)

	base, err := h.Process("fever")
	require.NoError(t, err)

	for _, text := range []string{"fever!!!", "fever???", "fever...", "fever,,,", "  fever  "} {
		q, err := h.Process(text)
		require.NoError(t, err)
		assert.Equal(t, base.SymptomTags, q.SymptomTags, text)
	}
}

func TestProcess_LongestMatchWins(t *testing.T) {
	h := newTestHandler(t)

	q, err := h.Process("sudden severe headache")
	require.NoError(t, err)
	assert.Contains(t, q.SymptomTags, "severe headache")
	assert.NotContains(t, q.SymptomTags, "headache")
}

func TestProcess_TemperatureRule(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		text      string
		emergency bool
		unit      string
	}{
		{"fever of 104 degrees fahrenheit", true, "F"},
		{"temp 40.5 c since morning", true, "C"},
		{"my fever is 103", false, "F"},
		{"fever 38°C", false, "C"},
		{"40 year old with fever", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			q, err := h.Process(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.emergency, q.EmergencyDetected)
			if tt.unit == "" {
				assert.Nil(t, q.Temperature)
				return
			}
			require.NotNil(t, q.Temperature)
			assert.Equal(t, tt.unit, q.Temperature.Unit)
			if tt.emergency {
				assert.Contains(t, q.IndicatorTags(), "high fever")
			}
		})
	}
}

func TestProcess_IndicDuration(t *testing.T) {
	h := newTestHandler(t)

	q, err := h.Process("৩ দিন ধরে জ্বর")
	require.NoError(t, err)
	assert.Equal(t, "3 days", q.Duration)

	q, err = h.Process("कल से बुखार है")
	require.NoError(t, err)
	assert.Equal(t, "since yesterday", q.Duration)
	assert.Equal(t, []string{"fever"}, q.SymptomTags)
}

// ==========================
// DetectEmergencyFast
// ==========================

func TestDetectEmergencyFast(t *testing.T) {
	h := newTestHandler(t)

	detected, indicators := h.DetectEmergencyFast("He had seizures and cannot breathe!!")
	assert.True(t, detected)
	tags := make([]string, 0, len(indicators))
	for _, ind := range indicators {
		tags = append(tags, ind.Tag)
	}
	assert.ElementsMatch(t, []string{"seizures", "difficulty breathing"}, tags)

	detected, indicators = h.DetectEmergencyFast("mild cough and sneezing")
	assert.False(t, detected)
	assert.Empty(t, indicators)

	detected, _ = h.DetectEmergencyFast("")
	assert.False(t, detected)
}

func TestDetectEmergencyFast_UrgencyCues(t *testing.T) {
	h := newTestHandler(t)

	tests := []struct {
		text string
		want []string
	}{
		{"my fever is getting worse, I can't wait", []string{"getting worse", "can't wait"}},
		{"please see me as soon as possible", []string{"as soon as possible"}},
		{"the rash is spreading rapidly", []string{"rapidly"}},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			detected, indicators := h.DetectEmergencyFast(tt.text)
			assert.True(t, detected)
			tags := make([]string, 0, len(indicators))
			for _, ind := range indicators {
				assert.Equal(t, models.IndicatorUrgencyCue, ind.Source)
				tags = append(tags, ind.Tag)
			}
			assert.ElementsMatch(t, tt.want, tags)

			q, err := h.Process(tt.text)
			require.NoError(t, err)
			assert.True(t, q.EmergencyDetected)
			assert.Equal(t, indicators, q.EmergencyIndicators)
		})
	}
}

func TestExecute(t *testing.T) {
	h := newTestHandler(t)

	out, err := h.Execute(context.Background(), &Input{Text: "cough and fever"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cough", "fever"}, out.NormalizedQuery.SymptomTags)

	_, err = h.Execute(context.Background(), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInputError))
}

// ==========================
// Helpers
// ==========================

func TestCleanText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  fever   and\tchills ", "fever and chills"},
		{"fever!!! really???", "fever really"},
		{"wait.... what,,, now", "wait... what, now"},
		{"fever 102 degrees fahrenheit", "fever 102°F"},
		{"high temp", "high temperature"},
		{"can’t sleep 😷", "difficulty sleeping"},
		{"fever and cold", "fever and chills"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanText(tt.in))
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		text string
		want models.Language
	}{
		{"I have a fever", models.LanguageEnglish},
		{"मुझे बुखार है", models.LanguageHindi},
		{"আমার জ্বর", models.LanguageBengali},
		{"fever बुखार", models.LanguageMixed},
		{"123 !!", models.LanguageUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, detectLanguage(tt.text))
		})
	}
}
