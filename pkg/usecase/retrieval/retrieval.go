package retrieval

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/m-mizutani/mnemo/pkg/usecase/retrieval")

const (
	DefaultMemoryIndex  = "conversations"
	DefaultPassageIndex = "passages"
	DefaultTopK         = 3
)

// UseCase answers long term memory queries from the vector index
type UseCase struct {
	embedder adapter.Embedder
	index    adapter.VectorIndex
	gen      adapter.Generator

	memoryIndex     string
	passageIndex    string
	topK            int
	location        *time.Location
	passageDecoding model.DecodingParams
}

// Option is a functional option for UseCase
type Option func(*UseCase)

func WithMemoryIndex(name string) Option {
	return func(uc *UseCase) {
		uc.memoryIndex = name
	}
}

func WithPassageIndex(name string) Option {
	return func(uc *UseCase) {
		uc.passageIndex = name
	}
}

// WithTopK sets the number of neighbors fetched per query
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		uc.topK = k
	}
}

// WithLocation sets the time zone used to display past conversation dates
func WithLocation(loc *time.Location) Option {
	return func(uc *UseCase) {
		uc.location = loc
	}
}

func WithPassageDecoding(params model.DecodingParams) Option {
	return func(uc *UseCase) {
		uc.passageDecoding = params
	}
}

// New creates a new retrieval UseCase instance
func New(embedder adapter.Embedder, index adapter.VectorIndex, gen adapter.Generator, opts ...Option) *UseCase {
	uc := &UseCase{
		embedder:        embedder,
		index:           index,
		gen:             gen,
		memoryIndex:     DefaultMemoryIndex,
		passageIndex:    DefaultPassageIndex,
		topK:            DefaultTopK,
		location:        time.Local,
		passageDecoding: model.PassageDecoding(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// search embeds the query and returns its nearest neighbors in index
func (u *UseCase) search(ctx context.Context, index, query string) ([]*model.Hit, error) {
	ctx, span := tracer.Start(ctx, "retrieval.search", trace.WithAttributes(
		attribute.String("index", index),
		attribute.Int("top_k", u.topK),
	))
	defer span.End()

	vector, err := adapter.EmbedOne(ctx, u.embedder, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, goerr.Wrap(err, "failed to embed query", goerr.V("index", index))
	}

	hits, err := u.index.Search(ctx, index, vector, u.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, goerr.Wrap(err, "failed to search index", goerr.V("index", index))
	}

	span.SetAttributes(attribute.Int("hits", len(hits)))
	logging.From(ctx).Debug("vector search done", "index", index, "hits", len(hits))
	return hits, nil
}
