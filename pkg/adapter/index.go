package adapter

import (
	"context"

	"github.com/m-mizutani/mnemo/pkg/model"
)

// VectorIndex is a k-nearest-neighbor document index addressed by index name
type VectorIndex interface {
	// Search returns at most k hits nearest to vector, most similar first
	Search(ctx context.Context, index string, vector []float32, k int) ([]*model.Hit, error)
	// Upsert creates or replaces the document id. Failures are reported in the result, not raised.
	Upsert(ctx context.Context, index, id string, doc map[string]any) *model.UpsertResult
}
