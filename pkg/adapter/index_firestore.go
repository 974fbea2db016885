package adapter

import (
	"context"
	"net/http"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const distanceField = "_distance"

// FirestoreIndex stores documents in a collection named after the index and searches them with
// Firestore vector search. The collection needs a vector index on the embedding field.
type FirestoreIndex struct {
	client *firestore.Client
}

func NewFirestoreIndex(client *firestore.Client) *FirestoreIndex {
	return &FirestoreIndex{client: client}
}

func (x *FirestoreIndex) Search(ctx context.Context, index string, vector []float32, k int) ([]*model.Hit, error) {
	if k <= 0 {
		return nil, nil
	}

	vq := x.client.Collection(index).FindNearest(
		model.FieldEmbedding,
		firestore.Vector32(vector),
		k,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{DistanceResultField: distanceField},
	)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	var hits []*model.Hit
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to search vector index", goerr.V("index", index))
		}

		source := doc.Data()
		score := 0.0
		if distance, ok := source[distanceField].(float64); ok {
			score = 1 - distance
		}
		delete(source, distanceField)

		hits = append(hits, &model.Hit{
			ID:     doc.Ref.ID,
			Score:  score,
			Source: source,
		})
	}

	return hits, nil
}

func (x *FirestoreIndex) Upsert(ctx context.Context, index, id string, doc map[string]any) *model.UpsertResult {
	result := &model.UpsertResult{Index: index, ID: id}

	data := make(map[string]any, len(doc))
	for k, v := range doc {
		data[k] = v
	}
	if vector, ok := data[model.FieldEmbedding].([]float32); ok {
		data[model.FieldEmbedding] = firestore.Vector32(vector)
	}

	if _, err := x.client.Collection(index).Doc(id).Set(ctx, data); err != nil {
		result.StatusCode = httpStatusFromCode(status.Code(err))
		result.Err = goerr.Wrap(err, "failed to upsert document", goerr.V("index", index), goerr.V("id", id))
		return result
	}

	result.StatusCode = http.StatusOK
	return result
}

func httpStatusFromCode(code codes.Code) int {
	switch code {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
