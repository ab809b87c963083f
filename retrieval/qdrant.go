package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsightai/finsight/types"
)

// QdrantConfig configures the Qdrant VectorStore implementation.
//
// Chunk ids are already UUIDs, so they are used directly as point ids. Chunk
// content and metadata live in the payload; statement, kind and document id
// are stored as flat payload fields so Qdrant can filter on them server-side.
type QdrantConfig struct {
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	BaseURL    string        `json:"base_url,omitempty"`
	APIKey     string        `json:"api_key,omitempty"`
	Collection string        `json:"collection"`
	Timeout    time.Duration `json:"timeout,omitempty"`

	AutoCreateCollection bool   `json:"auto_create_collection,omitempty"`
	Distance             string `json:"distance,omitempty"` // Cosine (default), Dot, Euclid
	VectorSize           int    `json:"vector_size,omitempty"`
}

// QdrantStore implements VectorStore using Qdrant's REST API.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a Qdrant-backed VectorStore.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}

		endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.cfg.Collection))
		reqBody, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			s.ensureErr = err
			return
		}
		s.applyHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			s.ensureErr = err
			return
		}
		defer resp.Body.Close()

		// Qdrant returns 409 if collection exists.
		if resp.StatusCode == http.StatusConflict {
			s.ensureErr = nil
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			s.ensureErr = fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
			return
		}
		s.ensureErr = nil
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type qdrantCondition struct {
	Key   string `json:"key"`
	Match struct {
		Value string `json:"value"`
	} `json:"match"`
}

func matchCondition(key, value string) qdrantCondition {
	c := qdrantCondition{Key: key}
	c.Match.Value = value
	return c
}

func (f StoreFilter) qdrant() map[string]any {
	var must []qdrantCondition
	if f.DocumentID != "" {
		must = append(must, matchCondition("document_id", f.DocumentID))
	}
	if f.Statement != "" && f.Statement != types.StatementUnknown {
		must = append(must, matchCondition("statement", string(f.Statement)))
	}
	if f.Kind != "" {
		must = append(must, matchCondition("kind", string(f.Kind)))
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// AddChunks upserts embedded chunks as Qdrant points.
func (s *QdrantStore) AddChunks(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	vectorSize := s.cfg.VectorSize
	for i, c := range chunks {
		if c.Chunk.ID == "" {
			return fmt.Errorf("chunk[%d] has empty id", i)
		}
		if len(c.Embedding) == 0 {
			return fmt.Errorf("chunk[%d] has no embedding", i)
		}
		if vectorSize == 0 {
			vectorSize = len(c.Embedding)
		}
		if len(c.Embedding) != vectorSize {
			return fmt.Errorf("chunk[%d] embedding dimension mismatch: got=%d want=%d", i, len(c.Embedding), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload,omitempty"`
	}

	points := make([]point, 0, len(chunks))
	for _, c := range chunks {
		metaJSON, _ := json.Marshal(c.Chunk.Metadata)
		payload := map[string]any{
			"document_id": c.Chunk.DocumentID,
			"statement":   string(c.Chunk.Metadata.Statement),
			"kind":        string(c.Chunk.Kind),
			"content":     c.Chunk.Content,
			"token_count": c.Chunk.TokenCount,
			"metadata":    json.RawMessage(metaJSON),
		}
		points = append(points, point{
			ID:      c.Chunk.ID,
			Vector:  c.Embedding,
			Payload: payload,
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	if err := s.doJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(chunks)))
	return nil
}

// Search runs a filtered nearest-neighbor query.
func (s *QdrantStore) Search(ctx context.Context, queryEmbedding []float64, topK int, filter StoreFilter) ([]SearchHit, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if topK <= 0 {
		return []SearchHit{}, nil
	}
	if len(queryEmbedding) == 0 {
		return nil, fmt.Errorf("query embedding is required")
	}

	req := map[string]any{
		"vector":       queryEmbedding,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := filter.qdrant(); f != nil {
		req["filter"] = f
	}

	type qdrantResult struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	}
	var resp struct {
		Result []qdrantResult `json:"result"`
		Status string         `json:"status"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := types.Chunk{ID: fmt.Sprint(r.ID)}
		if r.Payload != nil {
			if v, ok := r.Payload["document_id"].(string); ok {
				chunk.DocumentID = v
			}
			if v, ok := r.Payload["content"].(string); ok {
				chunk.Content = v
			}
			if v, ok := r.Payload["kind"].(string); ok {
				chunk.Kind = types.ChunkKind(v)
			}
			if v, ok := r.Payload["token_count"].(float64); ok {
				chunk.TokenCount = int(v)
			}
			if v, ok := r.Payload["metadata"]; ok {
				raw, err := json.Marshal(v)
				if err == nil {
					_ = json.Unmarshal(raw, &chunk.Metadata)
				}
			}
		}
		out = append(out, SearchHit{Chunk: chunk, Score: r.Score})
	}
	return out, nil
}

// DeleteByDocument removes every point whose payload carries the document id.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, documentID string) error {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if strings.TrimSpace(documentID) == "" {
		return nil
	}

	req := map[string]any{
		"filter": map[string]any{
			"must": []qdrantCondition{matchCondition("document_id", documentID)},
		},
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	return s.doJSON(ctx, http.MethodPost, path, req, &resp)
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, fmt.Errorf("qdrant collection is required")
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}

var _ VectorStore = (*QdrantStore)(nil)
