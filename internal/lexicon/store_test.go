package lexicon

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadStore(t *testing.T) *Store {
	t.Helper()
	store, err := Load()
	require.NoError(t, err)
	return store
}

// ==========================
// Loading
// ==========================

func TestLoad_EmbeddedData(t *testing.T) {
	store := loadStore(t)

	assert.Equal(t, []string{"malaria", "dengue", "tuberculosis", "viral_flu"}, store.DiseaseNames())
	assert.Equal(t, []string{"en", "hi", "bn"}, store.Languages())
	assert.Greater(t, store.SurfaceCount(), 200)

	for _, p := range store.Diseases() {
		assert.NotEmpty(t, p.EmergencyTags(), p.Name)
		assert.Equal(t, PartitionEmergency, p.PartitionNames()[0], p.Name)
		assert.NotEmpty(t, p.Rules, p.Name)
	}
}

func TestLoadFS_Validation(t *testing.T) {
	general := `
languages: [en]
diseases: [demo]
disclaimers:
  en:
    general: Educational only.
`
	tests := []struct {
		name    string
		disease string
		wantErr string
	}{
		{
			name: "missing emergency partition",
			disease: `
name: demo
tiers:
  - name: early
    tags: [fever]
emergencyConfidence: 0.9
fallback: {tier: unclear, confidence: 0.3}
`,
			wantErr: "missing \"emergency\" partition",
		},
		{
			name: "rule references unknown partition",
			disease: `
name: demo
tiers:
  - name: emergency
    tags: [coma]
emergencyConfidence: 0.9
rules:
  - tier: possible
    confidence: 0.5
    anyOf:
      - min: {warning: 1}
fallback: {tier: unclear, confidence: 0.3}
`,
			wantErr: "unknown partition \"warning\"",
		},
		{
			name: "name mismatch",
			disease: `
name: other
tiers:
  - name: emergency
    tags: [coma]
emergencyConfidence: 0.9
fallback: {tier: unclear, confidence: 0.3}
`,
			wantErr: "declares name",
		},
		{
			name: "missing fallback",
			disease: `
name: demo
tiers:
  - name: emergency
    tags: [coma]
emergencyConfidence: 0.9
`,
			wantErr: "fallback tier is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fsys := fstest.MapFS{
				"general.yaml":       {Data: []byte(general)},
				"diseases/demo.yaml": {Data: []byte(tt.disease)},
			}
			_, err := LoadFS(fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFS_MissingFile(t *testing.T) {
	fsys := fstest.MapFS{
		"general.yaml": {Data: []byte("languages: [en]\ndiseases: [ghost]\ndisclaimers:\n  en:\n    general: x\n")},
	}
	_, err := LoadFS(fsys)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "diseases/ghost.yaml")
}

// ==========================
// Canonicalization
// ==========================

func TestCanonicalize(t *testing.T) {
	store := loadStore(t)

	tests := []struct {
		term string
		want string
	}{
		{"fever", "fever"},
		{"FEVER", "fever"},
		{"  High Fever ", "high fever"},
		{"जी मिचलाना", "nausea"},
		{"बुखार", "fever"},
		{"জ্বর", "fever"},
		{"মাথাব্যথা", "headache"},
		{"প্রচণ্ড জ্বর", "high fever"},
		{"can't breathe", "difficulty breathing"},
		{"passed out", "unconscious"},
		{"सांस लेने में तकलीफ", "difficulty breathing"},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			got, ok := store.Canonicalize(tt.term)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := store.Canonicalize("sunburn from the beach")
	assert.False(t, ok)
}

func TestCanonicalize_Idempotent(t *testing.T) {
	store := loadStore(t)

	for _, p := range store.Diseases() {
		for _, tier := range p.Tiers {
			for _, tag := range tier.Tags {
				once, ok := store.Canonicalize(tag)
				require.True(t, ok, tag)
				twice, ok := store.Canonicalize(once)
				require.True(t, ok, once)
				assert.Equal(t, tag, once)
				assert.Equal(t, once, twice)
				assert.True(t, store.IsCanonical(once))
			}
		}
	}
}

func TestConflicts_FirstDiseaseWins(t *testing.T) {
	store := loadStore(t)

	// malaria loads before dengue and maps অজ্ঞান to unconsciousness
	got, ok := store.Canonicalize("অজ্ঞান")
	require.True(t, ok)
	assert.Equal(t, "unconsciousness", got)

	var found bool
	for _, c := range store.Conflicts() {
		if c.Surface == "অজ্ঞান" {
			found = true
			assert.Equal(t, "unconsciousness", c.Kept)
			assert.Equal(t, "unconscious", c.Dropped)
			assert.Equal(t, "dengue", c.Disease)
		}
	}
	assert.True(t, found)
}

func TestEmergencySubset(t *testing.T) {
	store := loadStore(t)

	for _, tag := range []string{"unconscious", "high fever", "seizures", "severe pain", "coughing up blood"} {
		assert.True(t, store.IsEmergency(tag), tag)
	}
	for _, tag := range []string{"fever", "headache", "cough", "sneezing"} {
		assert.False(t, store.IsEmergency(tag), tag)
	}
}

// ==========================
// Text banks
// ==========================

func TestDisclaimers(t *testing.T) {
	store := loadStore(t)

	assert.Contains(t, store.Disclaimer("en", DisclaimerKeyGeneral), "educational purposes")
	assert.Contains(t, store.Disclaimer("bn", DisclaimerKeyGeneral), "শিক্ষামূলক")
	assert.Contains(t, store.Disclaimer("hi", DisclaimerKeyPregnancy), "गर्भावस्था")
	assert.Equal(t, store.Disclaimer("en", DisclaimerKeyEmergency), store.Disclaimer("fr", DisclaimerKeyEmergency))

	assert.Contains(t, store.DiseaseDisclaimer("dengue", "hi", DisclaimerKeyWarning), "डेंगू")
	// no english warning text exists anywhere, so the general disclaimer is used
	assert.Equal(t, store.Disclaimer("en", DisclaimerKeyGeneral), store.DiseaseDisclaimer("viral_flu", "en", DisclaimerKeyWarning))
}

func TestSourcesAndRecommendations(t *testing.T) {
	store := loadStore(t)

	who, ok := store.Source("who")
	require.True(t, ok)
	assert.Equal(t, "World Health Organization", who.Name)
	assert.InDelta(t, 0.15, who.Authority, 1e-9)

	_, ok = store.Source("blog")
	assert.False(t, ok)

	recs := store.Recommendations()
	assert.Contains(t, recs.ByType["emergency_alert"], "Seek immediate emergency medical care")
	assert.NotEmpty(t, recs.Triggers)
	assert.Contains(t, store.UrgencyCues(), "getting worse")
}
