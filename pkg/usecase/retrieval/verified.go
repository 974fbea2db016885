package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/prompt"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Passages returns the passages nearest to query in index order
func (u *UseCase) Passages(ctx context.Context, query string) ([]*model.Passage, error) {
	hits, err := u.search(ctx, u.passageIndex, query)
	if err != nil {
		return nil, err
	}

	passages := make([]*model.Passage, 0, len(hits))
	for _, hit := range hits {
		text, ok := hit.Source[model.FieldPassageText].(string)
		if !ok {
			logging.From(ctx).Warn("skip passage without text", "id", hit.ID)
			continue
		}
		passages = append(passages, &model.Passage{
			DocID:     sourceString(hit.Source[model.FieldDocID]),
			PassageID: sourceString(hit.Source[model.FieldPassageID]),
			Text:      text,
		})
	}
	return passages, nil
}

// CollateAnswers answers query once per passage and joins the answers with their citations.
// A passage that cannot be answered gets a placeholder; the call fails only when every passage fails.
func (u *UseCase) CollateAnswers(ctx context.Context, query string, passages []*model.Passage) (string, error) {
	if len(passages) == 0 {
		return "", nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.collate", trace.WithAttributes(
		attribute.Int("passages", len(passages)),
	))
	defer span.End()

	blocks := make([]string, len(passages))
	var lastErr error
	failed := 0
	for i, p := range passages {
		answer, err := adapter.GenerateOne(ctx, u.gen, prompt.Passage(p.Text, query), u.passageDecoding)
		if err != nil {
			logging.From(ctx).Warn("failed to answer from passage",
				"doc_id", p.DocID,
				"passage_id", p.PassageID,
				"error", err,
			)
			lastErr = err
			failed++
			answer = "[answer unavailable: " + err.Error() + "]"
		}
		blocks[i] = FormatCitation(strings.TrimSpace(answer), p)
	}

	if failed == len(passages) {
		span.RecordError(lastErr)
		return "", goerr.Wrap(lastErr, "failed to answer from any passage", goerr.V("passages", len(passages)))
	}

	collated := strings.Join(blocks, "\n\n")
	logging.From(ctx).Debug("answers collated", "answers", collated)
	return collated, nil
}

// FormatCitation renders an answer followed by the passage it came from
func FormatCitation(answer string, p *model.Passage) string {
	return answer + "\n\n[doc = " + p.DocID + " | passage = " + p.PassageID + "]"
}

// sourceString renders identifiers that may be stored as strings or numbers
func sourceString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// VerifiedSources answers query from the verified passage corpus
func (u *UseCase) VerifiedSources(ctx context.Context, query string) (string, error) {
	passages, err := u.Passages(ctx, query)
	if err != nil {
		return "", err
	}
	return u.CollateAnswers(ctx, query, passages)
}
