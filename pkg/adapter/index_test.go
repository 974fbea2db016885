package adapter_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
)

func testVectorIndex(t *testing.T, idx adapter.VectorIndex, index string) {
	ctx := context.Background()

	records := []*model.MemoryRecord{
		{SessionID: "s-east", Embedding: []float32{1, 0, 0}, CreatedAt: time.UnixMilli(100), SummaryText: "east"},
		{SessionID: "s-north", Embedding: []float32{0, 1, 0}, CreatedAt: time.UnixMilli(200), SummaryText: "north"},
		{SessionID: "s-northeast", Embedding: []float32{0.7, 0.7, 0}, CreatedAt: time.UnixMilli(300), SummaryText: "northeast"},
	}
	for _, r := range records {
		result := idx.Upsert(ctx, index, string(r.SessionID), r.Document())
		gt.NoError(t, result.Err)
		gt.True(t, result.OK())
	}

	t.Run("nearest first", func(t *testing.T) {
		hits, err := idx.Search(ctx, index, []float32{1, 0.1, 0}, 2)
		gt.NoError(t, err)
		gt.A(t, hits).Length(2)
		gt.Equal(t, hits[0].ID, "s-east")
		gt.Equal(t, hits[1].ID, "s-northeast")
		gt.Equal(t, hits[0].Source[model.FieldSummaryText], any("east"))
	})

	t.Run("k larger than index", func(t *testing.T) {
		hits, err := idx.Search(ctx, index, []float32{0, 1, 0}, 10)
		gt.NoError(t, err)
		gt.A(t, hits).Length(3)
		gt.Equal(t, hits[0].ID, "s-north")
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		updated := &model.MemoryRecord{SessionID: "s-east", Embedding: []float32{1, 0, 0}, CreatedAt: time.UnixMilli(100), SummaryText: "east again"}
		gt.True(t, idx.Upsert(ctx, index, "s-east", updated.Document()).OK())

		hits, err := idx.Search(ctx, index, []float32{1, 0, 0}, 10)
		gt.NoError(t, err)
		gt.A(t, hits).Length(3)
		gt.Equal(t, hits[0].Source[model.FieldSummaryText], any("east again"))
	})

	t.Run("k zero", func(t *testing.T) {
		hits, err := idx.Search(ctx, index, []float32{1, 0, 0}, 0)
		gt.NoError(t, err)
		gt.A(t, hits).Length(0)
	})
}

func TestChromemIndex(t *testing.T) {
	idx, err := adapter.NewChromemIndex("")
	gt.NoError(t, err)
	testVectorIndex(t, idx, "conversations")
}

func TestChromemIndexPersistent(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	idx, err := adapter.NewChromemIndex(dir)
	gt.NoError(t, err)
	record := &model.MemoryRecord{SessionID: "s1", Embedding: []float32{0, 0, 1}, CreatedAt: time.UnixMilli(1700000000123), SummaryText: "kept"}
	gt.True(t, idx.Upsert(ctx, "conversations", "s1", record.Document()).OK())

	reopened, err := adapter.NewChromemIndex(dir)
	gt.NoError(t, err)
	hits, err := reopened.Search(ctx, "conversations", []float32{0, 0, 1}, 1)
	gt.NoError(t, err)
	gt.A(t, hits).Length(1)
	gt.Equal(t, hits[0].Source[model.FieldCreatedAt], any(json.Number("1700000000123")))
}

func TestChromemIndexEmpty(t *testing.T) {
	idx, err := adapter.NewChromemIndex("")
	gt.NoError(t, err)

	hits, err := idx.Search(context.Background(), "nothing-here", []float32{1, 0}, 3)
	gt.NoError(t, err)
	gt.A(t, hits).Length(0)
}

func TestChromemIndexRejectsMissingEmbedding(t *testing.T) {
	idx, err := adapter.NewChromemIndex("")
	gt.NoError(t, err)

	result := idx.Upsert(context.Background(), "conversations", "s1", map[string]any{"summary_text": "x"})
	gt.False(t, result.OK())
	gt.Equal(t, result.StatusCode, 400)
}

func TestFirestoreIndex(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	if projectID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID is not set")
	}
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if databaseID == "" {
		databaseID = "(default)"
	}

	ctx := context.Background()
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	gt.NoError(t, err)
	defer client.Close()

	// A vector index on "embedding" with dimension 3 must exist for this collection group
	index := "test_conversations_" + uuid.NewString()[:8]
	testVectorIndex(t, adapter.NewFirestoreIndex(client), index)
}
