package retrieval

import (
	"context"
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

type pastConversation struct {
	createdAt time.Time
	summary   string
}

// PastConversations returns summaries of the sessions most similar to query, formatted as
// "[YYYY-MM-DD][HH:MM:SS] summary" and ordered from the most recent session
func (u *UseCase) PastConversations(ctx context.Context, query string) ([]string, error) {
	hits, err := u.search(ctx, u.memoryIndex, query)
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx)
	found := make([]pastConversation, 0, len(hits))
	for _, hit := range hits {
		summary, ok := hit.Source[model.FieldSummaryText].(string)
		if !ok {
			logger.Warn("skip memory without summary", "id", hit.ID)
			continue
		}
		createdAt, ok := toTime(hit.Source[model.FieldCreatedAt])
		if !ok {
			logger.Warn("skip memory without valid created_at", "id", hit.ID, "created_at", hit.Source[model.FieldCreatedAt])
			continue
		}
		found = append(found, pastConversation{createdAt: createdAt, summary: summary})
	}

	slices.SortStableFunc(found, func(a, b pastConversation) int {
		return b.createdAt.Compare(a.createdAt)
	})

	results := make([]string, len(found))
	for i, c := range found {
		results[i] = FormatPastConversation(c.createdAt, c.summary, u.location)
	}
	return results, nil
}

// FormatPastConversation renders one remembered session for display
func FormatPastConversation(createdAt time.Time, summary string, loc *time.Location) string {
	t := createdAt.In(loc)
	return "[" + t.Format(time.DateOnly) + "][" + t.Format(time.TimeOnly) + "] " + summary
}

// toTime reads an epoch millisecond value as decoded by any of the index backends
func toTime(v any) (time.Time, bool) {
	switch x := v.(type) {
	case int64:
		return time.UnixMilli(x), true
	case int:
		return time.UnixMilli(int64(x)), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(x)), true
	case json.Number:
		ms, err := x.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.UnixMilli(ms), true
	case time.Time:
		return x, true
	default:
		return time.Time{}, false
	}
}
