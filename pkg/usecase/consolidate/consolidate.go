package consolidate

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/prompt"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/m-mizutani/mnemo/pkg/usecase/consolidate")

const DefaultIndex = "conversations"

// UseCase turns an ended session into a long term memory record:
// turns are flattened, summarized, embedded and upserted into the memory index
type UseCase struct {
	repo     repository.Repository
	gen      adapter.Generator
	embedder adapter.Embedder
	index    adapter.VectorIndex

	indexName string
	template  *prompt.SummaryTemplate
	decoding  model.DecodingParams
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithIndex sets the memory index records are written to
func WithIndex(name string) Option {
	return func(uc *UseCase) {
		uc.indexName = name
	}
}

// WithTemplate replaces the summary prompt template
func WithTemplate(t *prompt.SummaryTemplate) Option {
	return func(uc *UseCase) {
		uc.template = t
	}
}

func WithDecoding(params model.DecodingParams) Option {
	return func(uc *UseCase) {
		uc.decoding = params
	}
}

// New creates a new consolidation UseCase instance
func New(repo repository.Repository, gen adapter.Generator, embedder adapter.Embedder, index adapter.VectorIndex, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:      repo,
		gen:       gen,
		embedder:  embedder,
		index:     index,
		indexName: DefaultIndex,
		template:  prompt.DefaultSummary(),
		decoding:  model.SummaryDecoding(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Result describes one consolidation run
type Result struct {
	SessionID model.SessionID
	Record    *model.MemoryRecord
	Upsert    *model.UpsertResult
	// Skipped is set when the session has no turns and nothing was written
	Skipped bool
}

// Flatten joins turns into the single line form the summary prompt expects
func Flatten(turns []*model.Turn) string {
	var b strings.Builder
	for _, turn := range turns {
		b.WriteString(turn.UserText + " " + turn.BotText + " ")
	}
	return b.String()
}

// Consolidate writes the memory record of a session ended at endTime. Running it again for the
// same session replaces the record. A rejected write is reported in Result.Upsert, not as an error.
func (u *UseCase) Consolidate(ctx context.Context, id model.SessionID, endTime time.Time) (*Result, error) {
	ctx, span := tracer.Start(ctx, "consolidate", trace.WithAttributes(
		attribute.String("session_id", id.String()),
	))
	defer span.End()

	logger := logging.From(ctx).With("session_id", id)
	result := &Result{SessionID: id}

	turns, err := u.repo.ListTurns(ctx, id, model.Ascending)
	if err != nil {
		span.SetStatus(codes.Error, "listing turns failed")
		return nil, goerr.Wrap(err, "failed to list turns", goerr.V("session_id", id))
	}
	if len(turns) == 0 {
		logger.Info("skip consolidation of empty session")
		result.Skipped = true
		return result, nil
	}

	conversation := Flatten(turns)
	summaryPrompt := u.template.Render(conversation)
	logger.Debug("summary prompt", "prompt", summaryPrompt)

	summary, err := adapter.GenerateOne(ctx, u.gen, summaryPrompt, u.decoding)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "summarization failed")
		return nil, goerr.Wrap(err, "failed to summarize conversation", goerr.V("session_id", id))
	}
	summary = strings.TrimSpace(summary)

	embedding, err := adapter.EmbedOne(ctx, u.embedder, summary)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return nil, goerr.Wrap(err, "failed to embed summary", goerr.V("session_id", id))
	}

	result.Record = &model.MemoryRecord{
		SessionID:   id,
		Embedding:   embedding,
		CreatedAt:   endTime,
		SummaryText: summary,
	}
	result.Upsert = u.index.Upsert(ctx, u.indexName, id.String(), result.Record.Document())

	if !result.Upsert.OK() {
		span.SetStatus(codes.Error, "upsert failed")
		logger.Error("failed to write memory record",
			"index", u.indexName,
			"status", result.Upsert.StatusCode,
			"error", result.Upsert.Err,
		)
		return result, nil
	}

	logger.Info("session consolidated",
		"index", u.indexName,
		"num_turns", len(turns),
		"summary_len", len(summary),
	)
	return result, nil
}

// Handle consolidates the session of a session end event. Events other than a modification
// carrying an end time are ignored and yield a nil result.
func (u *UseCase) Handle(ctx context.Context, event *model.SessionEndEvent) (*Result, error) {
	if event == nil || event.EventName != model.EventModify || event.EndTime.IsZero() {
		logging.From(ctx).Debug("ignore event", "event", event)
		return nil, nil
	}
	return u.Consolidate(ctx, event.SessionID, event.EndTime)
}
