// internal/knowledge/corpus.go
package knowledge

import (
	"embed"
	"fmt"
	"os"

	"medical-triage/internal/models"

	"gopkg.in/yaml.v3"
)

//go:embed data/seed.yaml
var seed embed.FS

// Document is a knowledge-base entry as stored in the seed file and in the
// Elasticsearch index.
type Document struct {
	ID            string   `yaml:"id" json:"id"`
	Title         string   `yaml:"title" json:"title"`
	Content       string   `yaml:"content" json:"content"`
	Section       string   `yaml:"section" json:"section_type"`
	Source        string   `yaml:"source" json:"source"`
	Symptoms      []string `yaml:"symptoms" json:"symptom_tags,omitempty"`
	EmergencyTags []string `yaml:"emergencyTags" json:"emergency_tags,omitempty"`
}

// Retrieved converts the entry into a search candidate with the given score.
func (d Document) Retrieved(score float64) models.RetrievedDocument {
	return models.RetrievedDocument{
		ID:            d.ID,
		Title:         d.Title,
		Content:       d.Content,
		SectionType:   d.Section,
		SourceID:      d.Source,
		RawScore:      score,
		SymptomTags:   d.Symptoms,
		EmergencyTags: d.EmergencyTags,
	}
}

// Seed returns the embedded demo corpus.
func Seed() ([]Document, error) {
	raw, err := seed.ReadFile("data/seed.yaml")
	if err != nil {
		return nil, fmt.Errorf("read seed corpus: %w", err)
	}
	return Parse(raw)
}

// LoadFile reads a corpus file in the seed format.
func LoadFile(path string) ([]Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes and validates a YAML corpus with a top-level documents list.
func Parse(raw []byte) ([]Document, error) {
	var file struct {
		Documents []Document `yaml:"documents"`
	}
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode corpus: %w", err)
	}
	if err := Validate(file.Documents); err != nil {
		return nil, err
	}
	return file.Documents, nil
}

// Validate rejects duplicate ids, empty content and unknown sections.
func Validate(docs []Document) error {
	seen := map[string]bool{}
	for i, d := range docs {
		switch {
		case d.ID == "":
			return fmt.Errorf("document %d: missing id", i)
		case seen[d.ID]:
			return fmt.Errorf("document %s: duplicate id", d.ID)
		case d.Content == "":
			return fmt.Errorf("document %s: missing content", d.ID)
		case !models.IsValidSection(d.Section):
			return fmt.Errorf("document %s: unknown section %q", d.ID, d.Section)
		}
		seen[d.ID] = true
	}
	return nil
}
