package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/sadjad6/personal-knowledge-agent/internal/model"
)

const (
	defaultQdrantURL   = "http://localhost:6333"
	qdrantContentKey   = "page_content"
	qdrantMetadataKey  = "metadata"
	qdrantMetadataPath = qdrantMetadataKey + "."
)

type qdrantConfig struct {
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

// QdrantStore is a REST client for one Qdrant collection. Payloads follow the
// {"page_content": ..., "metadata": {...}} layout, so filters address
// metadata.<key>.
type QdrantStore struct {
	baseURL    string
	apiKey     string
	collection string
	client     *http.Client
}

type qdrantError struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

func NewQdrantStore(baseURL, apiKey, collection string, timeout time.Duration) *QdrantStore {
	if baseURL == "" {
		baseURL = defaultQdrantURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &QdrantStore{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

func init() {
	Register("qdrant", func(args Args) (Store, error) {
		cfg := &qdrantConfig{}
		if err := decodeConfig(args.Data, cfg); err != nil {
			return nil, err
		}
		return NewQdrantStore(strings.TrimSpace(cfg.URL), strings.TrimSpace(cfg.APIKey), args.Collection, args.Timeout), nil
	})
}

func (s *QdrantStore) Type() string {
	return "qdrant"
}

func (s *QdrantStore) collectionURL(suffix string) string {
	return s.baseURL + "/collections/" + url.PathEscape(s.collection) + suffix
}

type qdrantCollectionResponse struct {
	Result struct {
		Status              string `json:"status"`
		PointsCount         *int64 `json:"points_count"`
		VectorsCount        *int64 `json:"vectors_count"`
		IndexedVectorsCount *int64 `json:"indexed_vectors_count"`
		Config              struct {
			Params struct {
				Vectors json.RawMessage `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("collection", s.collection))
	var info qdrantCollectionResponse
	status, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	if err == nil {
		if size := vectorSize(info.Result.Config.Params.Vectors); size > 0 && size != dimension {
			return fmt.Errorf("collection %s has vector size %d, embedder produces %d", s.collection, size, dimension)
		}
		logger.Debug("collection exists")
		return nil
	}
	if status != http.StatusNotFound {
		return fmt.Errorf("check collection %s: %w", s.collection, err)
	}
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if _, err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
		return fmt.Errorf("create collection %s: %w", s.collection, err)
	}
	indexes := []struct {
		field  string
		schema string
	}{
		{field: model.MetaSource, schema: "keyword"},
		{field: model.MetaIngestionTime, schema: "datetime"},
		{field: model.MetaLastModified, schema: "datetime"},
	}
	for _, idx := range indexes {
		req := map[string]interface{}{"field_name": qdrantMetadataPath + idx.field, "field_schema": idx.schema}
		if _, err := s.do(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), req, nil); err != nil {
			return fmt.Errorf("create payload index %s: %w", idx.field, err)
		}
	}
	logger.Info("collection created", zap.Int("dimension", dimension))
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := validatePoints(points); err != nil {
		return err
	}
	items := make([]map[string]interface{}, 0, len(points))
	for _, p := range points {
		items = append(items, map[string]interface{}{
			"id":     p.ID,
			"vector": p.Vector,
			"payload": map[string]interface{}{
				qdrantContentKey:  p.Chunk.Text,
				qdrantMetadataKey: p.Chunk.Metadata.Payload(),
			},
		})
	}
	_, err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), map[string]interface{}{"points": items}, nil)
	return err
}

func (s *QdrantStore) Delete(ctx context.Context, filter *model.Filter) error {
	if filter.IsEmpty() {
		return fmt.Errorf("delete requires a filter")
	}
	body := map[string]interface{}{"filter": qdrantFilter(filter)}
	_, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), body, nil)
	return err
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      interface{}            `json:"id"`
		Score   float32                `json:"score"`
		Payload map[string]interface{} `json:"payload"`
	} `json:"result"`
}

func (s *QdrantStore) Search(ctx context.Context, vector []float32, k int, filter *model.Filter) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}
	body := map[string]interface{}{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	if !filter.IsEmpty() {
		body["filter"] = qdrantFilter(filter)
	}
	var resp qdrantSearchResponse
	if _, err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), body, &resp); err != nil {
		return nil, err
	}
	results := make([]model.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		content, _ := r.Payload[qdrantContentKey].(string)
		var md model.Metadata
		if raw, ok := r.Payload[qdrantMetadataKey].(map[string]interface{}); ok {
			md = model.MetadataFromPayload(raw)
		}
		results = append(results, model.SearchResult{Content: content, Metadata: md, Score: r.Score})
	}
	return results, nil
}

func (s *QdrantStore) Info(ctx context.Context) (*model.CollectionInfo, error) {
	var resp qdrantCollectionResponse
	if _, err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, &resp); err != nil {
		return nil, err
	}
	info := &model.CollectionInfo{Name: s.collection, Status: resp.Result.Status}
	if resp.Result.PointsCount != nil {
		info.PointsCount = *resp.Result.PointsCount
	}
	switch {
	case resp.Result.VectorsCount != nil:
		info.VectorsCount = *resp.Result.VectorsCount
	case resp.Result.IndexedVectorsCount != nil:
		info.VectorsCount = *resp.Result.IndexedVectorsCount
	}
	return info, nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// do sends a JSON request and decodes the response into out. The returned
// status is 0 when the request never got a response.
func (s *QdrantStore) do(ctx context.Context, method, endpoint string, body interface{}, out interface{}) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		msg := strings.TrimSpace(string(raw))
		var qe qdrantError
		if json.Unmarshal(raw, &qe) == nil && qe.Status.Error != "" {
			msg = qe.Status.Error
		}
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s: %s", method, req.URL.Path, resp.Status, msg)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode qdrant response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func qdrantFilter(f *model.Filter) map[string]interface{} {
	must := make([]map[string]interface{}, 0, len(f.Conditions))
	for _, c := range f.Conditions {
		key := qdrantMetadataPath + c.Key
		switch {
		case c.IsRange():
			must = append(must, map[string]interface{}{
				"key":   key,
				"range": map[string]interface{}{"gt": model.FormatTime(*c.After)},
			})
		case len(c.Values) == 1:
			must = append(must, map[string]interface{}{
				"key":   key,
				"match": map[string]interface{}{"value": qdrantValue(c.Values[0])},
			})
		default:
			values := make([]interface{}, 0, len(c.Values))
			for _, v := range c.Values {
				values = append(values, qdrantValue(v))
			}
			must = append(must, map[string]interface{}{
				"key":   key,
				"match": map[string]interface{}{"any": values},
			})
		}
	}
	return map[string]interface{}{"must": must}
}

// qdrantValue converts a filter value into one Qdrant can match on: keyword,
// integer or bool.
func qdrantValue(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return model.FormatTime(t)
	case float64:
		if t == float64(int64(t)) {
			return int64(t)
		}
		return fmt.Sprint(t)
	case float32:
		if t == float32(int64(t)) {
			return int64(t)
		}
		return fmt.Sprint(t)
	case string, bool, int, int32, int64:
		return t
	}
	return fmt.Sprint(v)
}

// vectorSize reads the size of the unnamed vector config, 0 if unknown.
func vectorSize(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var params struct {
		Size int `json:"size"`
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return 0
	}
	return params.Size
}
