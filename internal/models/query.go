// internal/models/query.go
package models

// EmergencyIndicator is a canonical emergency-tier tag plus the text that
// produced it. Urgency cues ("right now", "getting worse") are indicators
// too but carry Source IndicatorUrgencyCue and are not symptoms.
type EmergencyIndicator struct {
	Tag    string `json:"tag"`
	Phrase string `json:"phrase"`
	Source string `json:"source,omitempty"`
}

const IndicatorUrgencyCue = "urgency_cue"

// IsUrgencyCue reports whether the indicator came from an urgency phrase
// rather than a clinical emergency symptom.
func (e EmergencyIndicator) IsUrgencyCue() bool {
	return e.Source == IndicatorUrgencyCue
}

// Temperature is a body temperature reading found in the query.
type Temperature struct {
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"` // F or C
	Fahrenheit float64 `json:"fahrenheit"`
	Phrase     string  `json:"phrase"`
}

// NormalizedQuery is the Normalizer's output, completed by the classifier.
// SymptomTags and EmergencyIndicators only ever hold canonical English tags.
type NormalizedQuery struct {
	OriginalText        string               `json:"originalText"`
	CleanedText         string               `json:"cleanedText"`
	Language            Language             `json:"language"`
	SymptomTags         []string             `json:"symptomTags"`
	EmergencyIndicators []EmergencyIndicator `json:"emergencyIndicators"`
	EmergencyDetected   bool                 `json:"emergencyDetected"`
	UrgencyCues         []string             `json:"urgencyCues,omitempty"`
	Duration            string               `json:"duration,omitempty"`
	SeverityModifiers   []string             `json:"severityModifiers,omitempty"`
	SpecialPopulations  []string             `json:"specialPopulations,omitempty"`
	Temperature         *Temperature         `json:"temperature,omitempty"`
	QueryType           QueryType            `json:"queryType,omitempty"`
	Confidence          float64              `json:"confidence"`
}

// HasSymptom reports whether tag is among the query's symptom tags.
func (q *NormalizedQuery) HasSymptom(tag string) bool {
	for _, t := range q.SymptomTags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasPopulation reports whether the special population was detected.
func (q *NormalizedQuery) HasPopulation(population string) bool {
	for _, p := range q.SpecialPopulations {
		if p == population {
			return true
		}
	}
	return false
}

// IndicatorTags returns the tags of every emergency indicator.
func (q *NormalizedQuery) IndicatorTags() []string {
	tags := make([]string, 0, len(q.EmergencyIndicators))
	for _, ind := range q.EmergencyIndicators {
		tags = append(tags, ind.Tag)
	}
	return tags
}

// ClinicalIndicatorTags is IndicatorTags without urgency cues.
func (q *NormalizedQuery) ClinicalIndicatorTags() []string {
	tags := make([]string, 0, len(q.EmergencyIndicators))
	for _, ind := range q.EmergencyIndicators {
		if !ind.IsUrgencyCue() {
			tags = append(tags, ind.Tag)
		}
	}
	return tags
}
