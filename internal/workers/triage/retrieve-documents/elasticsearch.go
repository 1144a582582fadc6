// internal/workers/triage/retrieve-documents/elasticsearch.go
package retrievedocuments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	apperrors "medical-triage/internal/common/errors"
	"medical-triage/internal/common/logger"
	"medical-triage/internal/knowledge"
	"medical-triage/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const BackendElasticsearch = "elasticsearch"

// ElasticsearchSearcher runs BM25 search over the knowledge index, with an
// optional kNN clause when an embedder is configured.
type ElasticsearchSearcher struct {
	client      *elasticsearch.Client
	index       string
	vectorField string
	embedder    Embedder
	logger      logger.Logger
}

func NewElasticsearchSearcher(client *elasticsearch.Client, index, vectorField string, embedder Embedder, log logger.Logger) *ElasticsearchSearcher {
	return &ElasticsearchSearcher{
		client:      client,
		index:       index,
		vectorField: vectorField,
		embedder:    embedder,
		logger:      log.WithFields(map[string]interface{}{"backend": BackendElasticsearch, "index": index}),
	}
}

func (s *ElasticsearchSearcher) Name() string { return BackendElasticsearch }

func (s *ElasticsearchSearcher) Search(ctx context.Context, req models.SearchRequest) ([]models.RetrievedDocument, error) {
	body := BuildSearchBody(req)

	if s.embedder != nil && s.vectorField != "" && req.Query != "" {
		vector, err := s.embedder.Embed(ctx, req.Query)
		if err != nil {
			// BM25 alone still answers the query.
			s.logger.Warn("query embedding failed, using keyword search only", map[string]interface{}{
				"errorCode": apperrors.ErrCodeEmbeddingFailed,
				"error":     err.Error(),
			})
		} else {
			body["knn"] = knnClause(s.vectorField, vector, req)
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	size := req.TopK
	searchReq := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
		Size:  &size,
	}

	res, err := searchReq.Do(ctx, s.client)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, apperrors.NewUpstreamRetrievalError(BackendElasticsearch, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, apperrors.NewIndexNotFoundError(s.index)
	}
	if res.IsError() {
		return nil, apperrors.NewUpstreamRetrievalError(BackendElasticsearch, fmt.Errorf("search failed: %s", res.Status()))
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, apperrors.NewUpstreamRetrievalError(BackendElasticsearch, fmt.Errorf("decode response: %w", err))
	}

	out := make([]models.RetrievedDocument, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		doc := hit.Source
		if doc.ID == "" {
			doc.ID = hit.ID
		}
		if strings.TrimSpace(doc.Content) == "" {
			s.logger.Warn("skipping document without content", map[string]interface{}{
				"errorCode":  apperrors.ErrCodeMalformedDocument,
				"documentId": doc.ID,
			})
			continue
		}
		score := NormalizeScore(hit.Score)
		if score < req.MinScore {
			continue
		}
		out = append(out, doc.Retrieved(score))
	}
	return out, nil
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string             `json:"_id"`
			Score  float64            `json:"_score"`
			Source knowledge.Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// NormalizeScore maps an unbounded relevance score into [0,1).
func NormalizeScore(score float64) float64 {
	if score <= 0 {
		return 0
	}
	return score / (score + 1)
}

// rawMinScore inverts NormalizeScore so Elasticsearch can drop weak hits
// server-side.
func rawMinScore(min float64) float64 {
	if min <= 0 || min >= 1 {
		return 0
	}
	return min / (1 - min)
}

// BuildSearchBody builds the bool query: the query text must match title or
// content, symptom tags boost, and the context hint filters by section.
func BuildSearchBody(req models.SearchRequest) map[string]interface{} {
	boolQuery := map[string]interface{}{}

	if req.Query != "" {
		boolQuery["must"] = []interface{}{
			map[string]interface{}{
				"multi_match": map[string]interface{}{
					"query":  req.Query,
					"fields": []string{"title^2", "content"},
					"type":   "best_fields",
				},
			},
		}
	}

	if len(req.Symptoms) > 0 {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{"terms": map[string]interface{}{"symptom_tags": req.Symptoms, "boost": 2.0}},
			map[string]interface{}{"terms": map[string]interface{}{"emergency_tags": req.Symptoms, "boost": 2.0}},
		}
		if req.Query == "" {
			boolQuery["minimum_should_match"] = 1
		}
	}

	if filter := sectionFilter(req.ContextHint); filter != nil {
		boolQuery["filter"] = []interface{}{filter}
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
	if min := rawMinScore(req.MinScore); min > 0 {
		body["min_score"] = min
	}
	return body
}

func sectionFilter(hint string) map[string]interface{} {
	if hint == "" {
		return nil
	}
	return map[string]interface{}{
		"terms": map[string]interface{}{"section_type": []string{hint, models.SectionGeneral}},
	}
}

func knnClause(field string, vector []float32, req models.SearchRequest) map[string]interface{} {
	k := req.TopK
	if k <= 0 {
		k = 10
	}
	clause := map[string]interface{}{
		"field":          field,
		"query_vector":   vector,
		"k":              k,
		"num_candidates": k * 10,
	}
	if filter := sectionFilter(req.ContextHint); filter != nil {
		clause["filter"] = filter
	}
	return clause
}

// EnsureIndex creates the knowledge index when it does not exist. dims sizes
// the vector field; zero leaves it out of the mapping.
func (s *ElasticsearchSearcher) EnsureIndex(ctx context.Context, dims int) (bool, error) {
	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return false, nil
	}

	properties := map[string]interface{}{
		"id":             map[string]interface{}{"type": "keyword"},
		"title":          map[string]interface{}{"type": "text"},
		"content":        map[string]interface{}{"type": "text"},
		"section_type":   map[string]interface{}{"type": "keyword"},
		"source":         map[string]interface{}{"type": "keyword"},
		"symptom_tags":   map[string]interface{}{"type": "keyword"},
		"emergency_tags": map[string]interface{}{"type": "keyword"},
	}
	if dims > 0 && s.vectorField != "" {
		properties[s.vectorField] = map[string]interface{}{
			"type":       "dense_vector",
			"dims":       dims,
			"index":      true,
			"similarity": "cosine",
		}
	}
	mapping, _ := json.Marshal(map[string]interface{}{
		"mappings": map[string]interface{}{"properties": properties},
	})

	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithBody(bytes.NewReader(mapping)),
		s.client.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return false, fmt.Errorf("create index: %s", res.String())
	}
	return true, nil
}

// IndexDocuments bulk-loads documents. When an embedder is configured each
// document is stored with its content vector.
func (s *ElasticsearchSearcher) IndexDocuments(ctx context.Context, docs []knowledge.Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, d := range docs {
		source := map[string]interface{}{
			"id":             d.ID,
			"title":          d.Title,
			"content":        d.Content,
			"section_type":   d.Section,
			"source":         d.Source,
			"symptom_tags":   d.Symptoms,
			"emergency_tags": d.EmergencyTags,
		}
		if s.embedder != nil && s.vectorField != "" {
			vector, err := s.embedder.Embed(ctx, d.Title+"\n"+d.Content)
			if err != nil {
				return 0, apperrors.NewEmbeddingFailedError(err)
			}
			source[s.vectorField] = vector
		}
		if err := enc.Encode(map[string]interface{}{"index": map[string]interface{}{"_id": d.ID}}); err != nil {
			return 0, err
		}
		if err := enc.Encode(source); err != nil {
			return 0, err
		}
	}

	res, err := s.client.Bulk(
		&buf,
		s.client.Bulk.WithIndex(s.index),
		s.client.Bulk.WithRefresh("true"),
		s.client.Bulk.WithContext(ctx),
	)
	if err != nil {
		return 0, fmt.Errorf("bulk index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, fmt.Errorf("bulk index: %s", res.String())
	}

	var r struct {
		Errors bool                              `json:"errors"`
		Items  []map[string]struct{ Status int } `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, fmt.Errorf("decode bulk response: %w", err)
	}
	indexed := 0
	for _, item := range r.Items {
		for _, result := range item {
			if result.Status >= 200 && result.Status < 300 {
				indexed++
			}
		}
	}
	if r.Errors {
		s.logger.Warn("some documents failed to index", map[string]interface{}{
			"indexed": indexed,
			"total":   len(docs),
		})
	}
	return indexed, nil
}
