// internal/workers/triage/retrieve-documents/handler_test.go
package retrievedocuments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		TopK:              10,
		MinScore:          0,
		EmergencyMinScore: 0.6,
		Timeout:           time.Second,
		PoolSize:          2,
		QueueSize:         4,
	}
}

type fakeSearcher struct {
	mu     sync.Mutex
	calls  int
	docs   []models.RetrievedDocument
	err    error
	delay  time.Duration
	active int32
	peak   int32
}

func (f *fakeSearcher) Name() string { return "fake" }

func (f *fakeSearcher) Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	n := atomic.AddInt32(&f.active, 1)
	defer atomic.AddInt32(&f.active, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.docs, f.err
}

func (f *fakeSearcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func seedSearcher(t *testing.T) *MemorySearcher {
	t.Helper()
	s, err := NewSeedSearcher()
	require.NoError(t, err)
	return s
}

func ids(docs []models.RetrievedDocument) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = d.ID
	}
	return out
}

// ==========================
// BuildRequest Tests
// ==========================

func TestBuildRequest(t *testing.T) {
	h := NewHandler(createTestConfig(), &fakeSearcher{}, logger.NewTestLogger(t))

	tests := []struct {
		name         string
		query        *models.NormalizedQuery
		wantHint     string
		wantMin      float64
		wantSymptoms []string
	}{
		{
			name: "emergency query uses the emergency threshold",
			query: &models.NormalizedQuery{
				CleanedText: "unconscious with high fever",
				SymptomTags: []string{"high fever"},
				EmergencyIndicators: []models.EmergencyIndicator{
					{Tag: "unconscious", Phrase: "unconscious"},
					{Tag: "high fever", Phrase: "high fever"},
				},
				QueryType: models.QueryTypeEmergency,
			},
			wantHint:     models.SectionEmergency,
			wantMin:      0.6,
			wantSymptoms: []string{"high fever", "unconscious"},
		},
		{
			name: "symptom inquiry",
			query: &models.NormalizedQuery{
				CleanedText: "fever and headache",
				SymptomTags: []string{"fever", "headache"},
				QueryType:   models.QueryTypeSymptomInquiry,
			},
			wantHint:     models.SectionSymptoms,
			wantSymptoms: []string{"fever", "headache"},
		},
		{
			name: "prevention inquiry",
			query: &models.NormalizedQuery{
				CleanedText: "how to prevent malaria",
				QueryType:   models.QueryTypePreventionInquiry,
			},
			wantHint: models.SectionPrevention,
		},
		{
			name: "medical question has no hint",
			query: &models.NormalizedQuery{
				CleanedText: "what is tuberculosis",
				QueryType:   models.QueryTypeMedicalQuestion,
			},
			wantHint: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := h.BuildRequest(tt.query)
			assert.Equal(t, tt.query.CleanedText, req.Query)
			assert.Equal(t, 10, req.TopK)
			assert.Equal(t, tt.wantHint, req.ContextHint)
			assert.Equal(t, tt.wantMin, req.MinScore)
			assert.Equal(t, tt.wantSymptoms, req.Symptoms)
		})
	}
}

// ==========================
// Memory Searcher Tests
// ==========================

func TestMemorySearcher_SymptomQuery(t *testing.T) {
	s := seedSearcher(t)

	docs, err := s.Search(context.Background(), models.SearchRequest{
		Query:       "fever and chills",
		TopK:        10,
		ContextHint: models.SectionSymptoms,
		Symptoms:    []string{"fever", "chills"},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(docs), 2)

	assert.Equal(t, "malaria-symptoms-001", docs[0].ID)
	assert.InDelta(t, 1.0, docs[0].RawScore, 1e-9)
	assert.Equal(t, "malaria-symptoms-002", docs[1].ID)
	assert.InDelta(t, 0.75, docs[1].RawScore, 1e-9)

	for i, d := range docs {
		assert.Contains(t, []string{models.SectionSymptoms, models.SectionGeneral}, d.SectionType)
		if i > 0 {
			assert.LessOrEqual(t, d.RawScore, docs[i-1].RawScore)
		}
	}
}

func TestMemorySearcher_Filters(t *testing.T) {
	s := seedSearcher(t)
	ctx := context.Background()

	t.Run("min score", func(t *testing.T) {
		docs, err := s.Search(ctx, models.SearchRequest{
			Query:       "fever and chills",
			ContextHint: models.SectionSymptoms,
			MinScore:    0.6,
			Symptoms:    []string{"fever", "chills"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"malaria-symptoms-001", "malaria-symptoms-002"}, ids(docs))
	})

	t.Run("top k", func(t *testing.T) {
		docs, err := s.Search(ctx, models.SearchRequest{
			Query:    "fever and chills",
			TopK:     3,
			Symptoms: []string{"fever", "chills"},
		})
		require.NoError(t, err)
		assert.Len(t, docs, 3)
	})

	t.Run("prevention hint", func(t *testing.T) {
		docs, err := s.Search(ctx, models.SearchRequest{
			Query:       "how to prevent malaria",
			TopK:        10,
			ContextHint: models.SectionPrevention,
		})
		require.NoError(t, err)
		require.NotEmpty(t, docs)
		assert.Equal(t, "malaria-prevention-001", docs[0].ID)
		assert.Equal(t, "nhp", docs[0].SourceID)
	})

	t.Run("nothing matches", func(t *testing.T) {
		docs, err := s.Search(ctx, models.SearchRequest{Query: "xyzzy", TopK: 10})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := s.Search(cctx, models.SearchRequest{Query: "fever"})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

// ==========================
// Pool Tests
// ==========================

func TestPool_Search(t *testing.T) {
	fake := &fakeSearcher{docs: []models.RetrievedDocument{{ID: "a", Content: "x"}}}
	pool := NewPool(fake, 2, 4, time.Second, logger.NewTestLogger(t))
	defer pool.Close()

	docs, err := pool.Search(context.Background(), models.SearchRequest{Query: "fever"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(docs))
	assert.Equal(t, 1, fake.Calls())
	assert.Equal(t, "fake", pool.Name())
}

func TestPool_BoundsConcurrency(t *testing.T) {
	fake := &fakeSearcher{delay: 20 * time.Millisecond}
	pool := NewPool(fake, 3, 16, time.Second, logger.NewTestLogger(t))
	defer pool.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 9)
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pool.Search(context.Background(), models.SearchRequest{Query: "fever"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 9, fake.Calls())
	assert.LessOrEqual(t, atomic.LoadInt32(&fake.peak), int32(3))
}

func TestPool_Errors(t *testing.T) {
	tests := []struct {
		name     string
		searcher *fakeSearcher
		timeout  time.Duration
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "single attempt times out",
			searcher: &fakeSearcher{delay: time.Second},
			timeout:  30 * time.Millisecond,
			wantCode: apperrors.ErrCodeRetrievalTimeout,
		},
		{
			name:     "plain backend error",
			searcher: &fakeSearcher{err: errors.New("connection refused")},
			timeout:  time.Second,
			wantCode: apperrors.ErrCodeUpstreamRetrieval,
		},
		{
			name:     "typed backend error passes through",
			searcher: &fakeSearcher{err: apperrors.NewIndexNotFoundError("medical-knowledge")},
			timeout:  time.Second,
			wantCode: apperrors.ErrCodeIndexNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool := NewPool(tt.searcher, 1, 1, tt.timeout, logger.NewTestLogger(t))
			defer pool.Close()

			docs, err := pool.Search(context.Background(), models.SearchRequest{Query: "fever"})
			require.Error(t, err)
			assert.Nil(t, docs)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Equal(t, 1, tt.searcher.Calls())
		})
	}
}

func TestPool_Closed(t *testing.T) {
	pool := NewPool(&fakeSearcher{}, 1, 1, time.Second, logger.NewTestLogger(t))
	pool.Close()
	pool.Close()

	_, err := pool.Search(context.Background(), models.SearchRequest{Query: "fever"})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeRetrievalPoolClosed))
}

// ==========================
// Execute Tests
// ==========================

func TestExecute(t *testing.T) {
	h := NewHandler(createTestConfig(), seedSearcher(t), logger.NewTestLogger(t))

	t.Run("retrieves candidates", func(t *testing.T) {
		output, err := h.Execute(context.Background(), &Input{
			NormalizedQuery: &models.NormalizedQuery{
				CleanedText: "fever and chills",
				SymptomTags: []string{"fever", "chills"},
				QueryType:   models.QueryTypeSymptomInquiry,
			},
			TopK: 2,
		})
		require.NoError(t, err)
		assert.Equal(t, BackendMemory, output.Backend)
		assert.Equal(t, 2, output.Request.TopK)
		assert.Equal(t, []string{"malaria-symptoms-001", "malaria-symptoms-002"}, ids(output.Candidates))
	})

	t.Run("missing query", func(t *testing.T) {
		_, err := h.Execute(context.Background(), &Input{})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInputError))
	})

	t.Run("retrieve returns empty list without error", func(t *testing.T) {
		docs, err := h.Retrieve(context.Background(), &models.NormalizedQuery{CleanedText: "xyzzy"})
		require.NoError(t, err)
		assert.Empty(t, docs)
	})
}
