// internal/workers/notification/escalate-emergency/message.go
package escalateemergency

import (
	"fmt"
	"strings"
)

const (
	subjectTemplate = "EMERGENCY triage alert ({{facilityId}})"
	bodyTemplate    = "A triage request was classified as a medical emergency.\n" +
		"Request: {{requestId}}\n" +
		"Indicators: {{indicators}}\n" +
		"Language: {{language}}\n" +
		"Location: {{location}}\n" +
		"Please contact the patient or dispatch help immediately."
	smsTemplate = "EMERGENCY triage {{requestId}}: {{indicators}}. Location: {{location}}. Respond immediately."
)

func messageData(input *Input, facility string) map[string]interface{} {
	indicators := strings.Join(input.Indicators, ", ")
	if indicators == "" {
		indicators = "unspecified"
	}
	location := input.Location
	if location == "" {
		location = "not provided"
	}
	return map[string]interface{}{
		"requestId":  input.RequestID,
		"facilityId": facility,
		"indicators": indicators,
		"language":   input.Language,
		"location":   location,
	}
}

// renderTemplate fills {{key}} placeholders and drops any left unfilled.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		switch x := v.(type) {
		case string:
			value = x
		case nil:
		default:
			value = fmt.Sprintf("%v", x)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
