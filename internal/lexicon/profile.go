// internal/lexicon/profile.go
package lexicon

import (
	"fmt"
)

// PartitionEmergency is the partition every disease profile must declare.
const PartitionEmergency = "emergency"

// TierPartition groups canonical tags of one severity level.
type TierPartition struct {
	Name string   `yaml:"name"`
	Tags []string `yaml:"tags"`
}

// Clause holds when every per-partition minimum is met and every required
// tag is present.
type Clause struct {
	Min     map[string]int `yaml:"min"`
	Require []string       `yaml:"require"`
}

// Rule yields Tier when any of its clauses holds.
type Rule struct {
	Tier       string   `yaml:"tier"`
	Confidence float64  `yaml:"confidence"`
	Disclaimer string   `yaml:"disclaimer"`
	AnyOf      []Clause `yaml:"anyOf"`
}

type Outcome struct {
	Tier       string  `yaml:"tier"`
	Confidence float64 `yaml:"confidence"`
}

type GuidanceLine struct {
	WhenAny []string `yaml:"whenAny"`
	Text    string   `yaml:"text"`
}

// Guidance is the disease block appended to symptom guidance when the
// query overlaps the disease's marker symptoms.
type Guidance struct {
	Heading         string         `yaml:"heading"`
	Markers         []string       `yaml:"markers"`
	MinOverlap      int            `yaml:"minOverlap"`
	Keyword         string         `yaml:"keyword"`
	Lead            string         `yaml:"lead"`
	Lines           []GuidanceLine `yaml:"lines"`
	Closing         string         `yaml:"closing"`
	Recommendations []string       `yaml:"recommendations"`
}

// DiseaseProfile is the data a generic severity engine runs on.
type DiseaseProfile struct {
	Name                string                       `yaml:"name"`
	DisplayName         string                       `yaml:"displayName"`
	Tiers               []TierPartition              `yaml:"tiers"`
	Surfaces            map[string]map[string]string `yaml:"surfaces"`
	EmergencyConfidence float64                      `yaml:"emergencyConfidence"`
	Rules               []Rule                       `yaml:"rules"`
	Fallback            Outcome                      `yaml:"fallback"`
	Guidance            *Guidance                    `yaml:"guidance"`
	Disclaimers         map[string]map[string]string `yaml:"disclaimers"`

	partitionIndex map[string]string
}

// PartitionOf returns the first partition listing tag, or "".
func (p *DiseaseProfile) PartitionOf(tag string) string {
	return p.partitionIndex[tag]
}

// PartitionNames returns partition names in declaration order.
func (p *DiseaseProfile) PartitionNames() []string {
	names := make([]string, 0, len(p.Tiers))
	for _, t := range p.Tiers {
		names = append(names, t.Name)
	}
	return names
}

// EmergencyTags returns the tags of the emergency partition.
func (p *DiseaseProfile) EmergencyTags() []string {
	for _, t := range p.Tiers {
		if t.Name == PartitionEmergency {
			return t.Tags
		}
	}
	return nil
}

// Holds evaluates the clause against per-partition counts and a tag set.
func (c Clause) Holds(counts map[string]int, present map[string]bool) bool {
	for partition, min := range c.Min {
		if counts[partition] < min {
			return false
		}
	}
	for _, tag := range c.Require {
		if !present[tag] {
			return false
		}
	}
	return true
}

// Matches reports whether any clause of the rule holds.
func (r Rule) Matches(counts map[string]int, present map[string]bool) bool {
	for _, c := range r.AnyOf {
		if c.Holds(counts, present) {
			return true
		}
	}
	return false
}

func (p *DiseaseProfile) index() error {
	if p.Name == "" {
		return fmt.Errorf("disease profile without name")
	}
	p.partitionIndex = map[string]string{}
	declared := map[string]bool{}
	for _, tier := range p.Tiers {
		if tier.Name == "" {
			return fmt.Errorf("%s: partition without name", p.Name)
		}
		if declared[tier.Name] {
			return fmt.Errorf("%s: duplicate partition %q", p.Name, tier.Name)
		}
		declared[tier.Name] = true
		for _, tag := range tier.Tags {
			tag = Fold(tag)
			if _, seen := p.partitionIndex[tag]; !seen {
				p.partitionIndex[tag] = tier.Name
			}
		}
	}
	if !declared[PartitionEmergency] {
		return fmt.Errorf("%s: missing %q partition", p.Name, PartitionEmergency)
	}
	if p.EmergencyConfidence <= 0 || p.EmergencyConfidence > 1 {
		return fmt.Errorf("%s: emergencyConfidence must be in (0, 1]", p.Name)
	}

	for i, rule := range p.Rules {
		if rule.Tier == "" || rule.Tier == PartitionEmergency {
			return fmt.Errorf("%s: rule %d has invalid tier %q", p.Name, i, rule.Tier)
		}
		if rule.Confidence < 0 || rule.Confidence > 1 {
			return fmt.Errorf("%s: rule %d confidence out of range", p.Name, i)
		}
		if len(rule.AnyOf) == 0 {
			return fmt.Errorf("%s: rule %d has no clauses", p.Name, i)
		}
		for _, clause := range rule.AnyOf {
			for partition := range clause.Min {
				if !declared[partition] {
					return fmt.Errorf("%s: rule %d references unknown partition %q", p.Name, i, partition)
				}
			}
		}
	}
	if p.Fallback.Tier == "" {
		return fmt.Errorf("%s: fallback tier is required", p.Name)
	}
	return nil
}
