// internal/lexicon/store.go
package lexicon

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed data/general.yaml data/diseases/*.yaml
var embedded embed.FS

// SourceInfo describes an attributable knowledge source.
type SourceInfo struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Authority float64 `yaml:"authority"`
}

// Trigger adds recommendations when any listed tag is present.
type Trigger struct {
	WhenAny []string `yaml:"whenAny"`
	Add     []string `yaml:"add"`
}

// RecommendationBank holds per-response-type recommendation lists.
type RecommendationBank struct {
	ByType   map[string][]string `yaml:"byType"`
	Triggers []Trigger           `yaml:"triggers"`
	Closing  map[string]string   `yaml:"closing"`
}

type generalFile struct {
	Languages       []string                     `yaml:"languages"`
	Diseases        []string                     `yaml:"diseases"`
	EmergencyTags   []string                     `yaml:"emergencyTags"`
	Aliases         map[string]string            `yaml:"aliases"`
	UrgencyCues     []string                     `yaml:"urgencyCues"`
	Sources         []SourceInfo                 `yaml:"sources"`
	Disclaimers     map[string]map[string]string `yaml:"disclaimers"`
	Recommendations RecommendationBank           `yaml:"recommendations"`
}

// Conflict records a surface form claimed by two diseases. The first
// registration wins.
type Conflict struct {
	Surface string
	Kept    string
	Dropped string
	Disease string
}

// Store is the immutable lexicon shared by every pipeline stage. All
// methods are safe for concurrent use.
type Store struct {
	languages   []string
	surfaces    map[string]string
	canonical   map[string]bool
	emergency   map[string]bool
	diseases    map[string]*DiseaseProfile
	order       []string
	sources     map[string]SourceInfo
	disclaimers map[string]map[string]string
	recs        RecommendationBank
	urgencyCues []string
	conflicts   []Conflict

	all           *Matcher
	emergencyOnly *Matcher
	cues          *Matcher
}

// Fold returns the NFC, case-folded form used for every lookup.
func Fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Load builds a Store from the embedded data files.
func Load() (*Store, error) {
	sub, err := fs.Sub(embedded, "data")
	if err != nil {
		return nil, err
	}
	return LoadFS(sub)
}

// LoadFS builds a Store from general.yaml and diseases/<name>.yaml in fsys.
func LoadFS(fsys fs.FS) (*Store, error) {
	var general generalFile
	if err := decodeFile(fsys, "general.yaml", &general); err != nil {
		return nil, err
	}
	if len(general.Diseases) == 0 {
		return nil, fmt.Errorf("general.yaml lists no diseases")
	}

	profiles := make([]*DiseaseProfile, 0, len(general.Diseases))
	for _, name := range general.Diseases {
		var p DiseaseProfile
		if err := decodeFile(fsys, path.Join("diseases", name+".yaml"), &p); err != nil {
			return nil, err
		}
		if p.Name != name {
			return nil, fmt.Errorf("diseases/%s.yaml declares name %q", name, p.Name)
		}
		if err := p.index(); err != nil {
			return nil, err
		}
		profiles = append(profiles, &p)
	}

	return build(general, profiles)
}

func decodeFile(fsys fs.FS, name string, out interface{}) error {
	raw, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

func build(general generalFile, profiles []*DiseaseProfile) (*Store, error) {
	s := &Store{
		languages:   general.Languages,
		surfaces:    map[string]string{},
		canonical:   map[string]bool{},
		emergency:   map[string]bool{},
		diseases:    map[string]*DiseaseProfile{},
		sources:     map[string]SourceInfo{},
		disclaimers: general.Disclaimers,
		recs:        general.Recommendations,
	}
	if _, ok := s.disclaimers["en"][DisclaimerKeyGeneral]; !ok {
		return nil, fmt.Errorf("general.yaml: english general disclaimer is required")
	}

	for _, p := range profiles {
		s.diseases[p.Name] = p
		s.order = append(s.order, p.Name)
	}

	// Canonical tags map to themselves before any alias or foreign surface
	// is registered.
	addCanonical := func(tag string) {
		tag = Fold(tag)
		if tag == "" {
			return
		}
		s.canonical[tag] = true
		s.surfaces[tag] = tag
	}
	for _, p := range profiles {
		for _, tier := range p.Tiers {
			for _, tag := range tier.Tags {
				addCanonical(tag)
				if tier.Name == PartitionEmergency {
					s.emergency[Fold(tag)] = true
				}
			}
		}
		for _, bySurface := range p.Surfaces {
			for _, tag := range bySurface {
				addCanonical(tag)
			}
		}
	}
	for _, tag := range general.EmergencyTags {
		addCanonical(tag)
		s.emergency[Fold(tag)] = true
	}
	for _, tag := range general.Aliases {
		addCanonical(tag)
	}

	register := func(surface, tag, owner string) {
		surface, tag = Fold(surface), Fold(tag)
		if surface == "" {
			return
		}
		if kept, exists := s.surfaces[surface]; exists {
			if kept != tag {
				s.conflicts = append(s.conflicts, Conflict{Surface: surface, Kept: kept, Dropped: tag, Disease: owner})
			}
			return
		}
		s.surfaces[surface] = tag
	}
	for _, surface := range sortedKeys(general.Aliases) {
		register(surface, general.Aliases[surface], "general")
	}
	for _, p := range profiles {
		for _, lang := range general.Languages {
			bySurface := p.Surfaces[lang]
			for _, surface := range sortedKeys(bySurface) {
				register(surface, bySurface[surface], p.Name)
			}
		}
	}

	for _, src := range general.Sources {
		s.sources[src.ID] = src
	}
	cueTable := map[string]string{}
	for _, cue := range general.UrgencyCues {
		cue = Fold(cue)
		s.urgencyCues = append(s.urgencyCues, cue)
		cueTable[cue] = cue
	}

	emergencySurfaces := map[string]string{}
	for surface, tag := range s.surfaces {
		if s.emergency[tag] {
			emergencySurfaces[surface] = tag
		}
	}

	var err error
	if s.all, err = NewMatcher(s.surfaces); err != nil {
		return nil, err
	}
	if s.emergencyOnly, err = NewMatcher(emergencySurfaces); err != nil {
		return nil, err
	}
	if s.cues, err = NewMatcher(cueTable); err != nil {
		return nil, err
	}
	return s, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Canonicalize maps any known surface form, in any language, to its
// canonical English tag. Canonical tags map to themselves.
func (s *Store) Canonicalize(term string) (string, bool) {
	tag, ok := s.surfaces[Fold(term)]
	return tag, ok
}

// IsCanonical reports whether tag is a canonical tag.
func (s *Store) IsCanonical(tag string) bool {
	return s.canonical[tag]
}

// IsEmergency reports whether tag belongs to any emergency partition.
func (s *Store) IsEmergency(tag string) bool {
	return s.emergency[tag]
}

// MatchSymptoms scans folded text for every known surface.
func (s *Store) MatchSymptoms(folded string) []Match {
	return s.all.FindAll(folded)
}

// MatchEmergency scans folded text for emergency-tier surfaces only.
func (s *Store) MatchEmergency(folded string) []Match {
	return s.emergencyOnly.FindAll(folded)
}

// MatchUrgencyCues scans folded text for urgency cue phrases. Cues are not
// clinical tags.
func (s *Store) MatchUrgencyCues(folded string) []Match {
	return s.cues.FindAll(folded)
}

// Disease returns the named profile.
func (s *Store) Disease(name string) (*DiseaseProfile, bool) {
	p, ok := s.diseases[name]
	return p, ok
}

// Diseases returns the profiles in load order.
func (s *Store) Diseases() []*DiseaseProfile {
	out := make([]*DiseaseProfile, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.diseases[name])
	}
	return out
}

// DiseaseNames returns the profile names in load order.
func (s *Store) DiseaseNames() []string {
	return append([]string(nil), s.order...)
}

// Languages returns the languages with text banks.
func (s *Store) Languages() []string {
	return append([]string(nil), s.languages...)
}

// Disclaimer keys.
const (
	DisclaimerKeyGeneral   = "general"
	DisclaimerKeyEmergency = "emergency"
	DisclaimerKeyPregnancy = "pregnancy"
	DisclaimerKeyWarning   = "warning"
)

// Disclaimer returns the general-bank disclaimer for (language, situation),
// falling back to English.
func (s *Store) Disclaimer(lang, situation string) string {
	if text, ok := s.disclaimers[lang][situation]; ok {
		return text
	}
	return s.disclaimers["en"][situation]
}

// DiseaseDisclaimer prefers the disease's own bank and falls back to the
// general bank.
func (s *Store) DiseaseDisclaimer(disease, lang, situation string) string {
	if p, ok := s.diseases[disease]; ok {
		if text, ok := p.Disclaimers[lang][situation]; ok {
			return text
		}
	}
	if text := s.Disclaimer(lang, situation); text != "" {
		return text
	}
	return s.Disclaimer(lang, DisclaimerKeyGeneral)
}

// Source returns the attribution record for a source id.
func (s *Store) Source(id string) (SourceInfo, bool) {
	src, ok := s.sources[id]
	return src, ok
}

// Recommendations returns the recommendation bank.
func (s *Store) Recommendations() RecommendationBank {
	return s.recs
}

// UrgencyCues returns the folded urgency cue phrases.
func (s *Store) UrgencyCues() []string {
	return append([]string(nil), s.urgencyCues...)
}

// Conflicts lists surfaces dropped because an earlier disease claimed them.
func (s *Store) Conflicts() []Conflict {
	return append([]Conflict(nil), s.conflicts...)
}

// SurfaceCount is the number of registered surface forms.
func (s *Store) SurfaceCount() int {
	return len(s.surfaces)
}
