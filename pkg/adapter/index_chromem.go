package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/philippgille/chromem-go"
)

// ChromemIndex is an embedded vector index for local use. Each index name maps to a chromem
// collection and the document body is kept as JSON content.
type ChromemIndex struct {
	db *chromem.DB
}

// NewChromemIndex opens a persistent database at path, or an in-memory one when path is empty
func NewChromemIndex(path string) (*ChromemIndex, error) {
	if path == "" {
		return &ChromemIndex{db: chromem.NewDB()}, nil
	}

	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open chromem database", goerr.V("path", path))
	}
	return &ChromemIndex{db: db}, nil
}

func (x *ChromemIndex) collection(index string) (*chromem.Collection, error) {
	col, err := x.db.GetOrCreateCollection(index, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open collection", goerr.V("index", index))
	}
	return col, nil
}

func (x *ChromemIndex) Search(ctx context.Context, index string, vector []float32, k int) ([]*model.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	col, err := x.collection(index)
	if err != nil {
		return nil, err
	}

	// chromem rejects a result count larger than the collection
	n := min(k, col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query collection", goerr.V("index", index))
	}

	hits := make([]*model.Hit, 0, len(results))
	for _, r := range results {
		source, err := decodeSource(r.Content)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to decode document", goerr.V("index", index), goerr.V("id", r.ID))
		}
		source[model.FieldEmbedding] = r.Embedding

		hits = append(hits, &model.Hit{
			ID:     r.ID,
			Score:  float64(r.Similarity),
			Source: source,
		})
	}
	return hits, nil
}

func (x *ChromemIndex) Upsert(ctx context.Context, index, id string, doc map[string]any) *model.UpsertResult {
	result := &model.UpsertResult{Index: index, ID: id}

	vector, ok := doc[model.FieldEmbedding].([]float32)
	if !ok || len(vector) == 0 {
		result.StatusCode = http.StatusBadRequest
		result.Err = goerr.New("document has no embedding", goerr.V("index", index), goerr.V("id", id))
		return result
	}

	body := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != model.FieldEmbedding {
			body[k] = v
		}
	}
	content, err := json.Marshal(body)
	if err != nil {
		result.StatusCode = http.StatusBadRequest
		result.Err = goerr.Wrap(err, "failed to encode document", goerr.V("index", index), goerr.V("id", id))
		return result
	}

	col, err := x.collection(index)
	if err != nil {
		result.StatusCode = http.StatusInternalServerError
		result.Err = err
		return result
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Content:   string(content),
		Embedding: vector,
	})
	if err != nil {
		result.StatusCode = http.StatusInternalServerError
		result.Err = goerr.Wrap(err, "failed to add document", goerr.V("index", index), goerr.V("id", id))
		return result
	}

	result.StatusCode = http.StatusOK
	return result
}

// decodeSource keeps integers such as epoch milliseconds exact
func decodeSource(content string) (map[string]any, error) {
	decoder := json.NewDecoder(bytes.NewReader([]byte(content)))
	decoder.UseNumber()

	source := map[string]any{}
	if err := decoder.Decode(&source); err != nil {
		return nil, err
	}
	return source, nil
}
