// internal/workers/triage/retrieve-documents/searcher.go
package retrievedocuments

import (
	"context"

	"medical-triage/internal/models"
)

// Searcher is a knowledge-base search backend.
type Searcher interface {
	Name() string
	Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error)
}

// Embedder turns query text into a vector for kNN search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
