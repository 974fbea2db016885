package model_test

import (
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/model"
)

func TestSessionState(t *testing.T) {
	now := time.Now()

	s := &model.Session{ID: model.NewSessionID(), StartTime: now}
	gt.Equal(t, s.State(), model.SessionStateCreated)
	gt.False(t, s.Ended())

	s.LastTurnAt = now.Add(time.Second)
	gt.Equal(t, s.State(), model.SessionStateActive)

	end := now.Add(time.Minute)
	s.EndTime = &end
	gt.Equal(t, s.State(), model.SessionStateEnded)
	gt.True(t, s.Ended())
}

func TestNewSessionIDUnique(t *testing.T) {
	gt.NotEqual(t, model.NewSessionID(), model.NewSessionID())
}

func TestUpsertResultOK(t *testing.T) {
	var nilResult *model.UpsertResult
	gt.False(t, nilResult.OK())

	gt.True(t, (&model.UpsertResult{StatusCode: 200}).OK())
	gt.True(t, (&model.UpsertResult{StatusCode: 201}).OK())
	gt.False(t, (&model.UpsertResult{StatusCode: 400}).OK())
	gt.False(t, (&model.UpsertResult{StatusCode: 503}).OK())
	gt.False(t, (&model.UpsertResult{StatusCode: 200, Err: errors.New("boom")}).OK())
}

func TestMemoryRecordDocument(t *testing.T) {
	createdAt := time.UnixMilli(1700000000123)
	r := &model.MemoryRecord{
		SessionID:   "s1",
		Embedding:   []float32{0.1, 0.2},
		CreatedAt:   createdAt,
		SummaryText: "talked about the weather",
	}

	doc := r.Document()
	gt.Equal(t, doc[model.FieldSessionID], any("s1"))
	gt.Equal(t, doc[model.FieldCreatedAt], any(int64(1700000000123)))
	gt.Equal(t, doc[model.FieldSummaryText], any("talked about the weather"))
	gt.Equal(t, doc[model.FieldEmbedding], any([]float32{0.1, 0.2}))
}

func TestDecodingParamsValidate(t *testing.T) {
	gt.NoError(t, model.ChatDecoding().Validate())
	gt.NoError(t, model.PassageDecoding().Validate())
	gt.NoError(t, model.SummaryDecoding().Validate())
	gt.Equal(t, model.SummaryDecoding().MaxLength, 512)

	testCases := map[string]func(p *model.DecodingParams){
		"zero max length":      func(p *model.DecodingParams) { p.MaxLength = 0 },
		"negative temperature": func(p *model.DecodingParams) { p.Temperature = -0.1 },
		"top_p above one":      func(p *model.DecodingParams) { p.TopP = 1.1 },
		"negative top_k":       func(p *model.DecodingParams) { p.TopK = -1 },
		"no sequences":         func(p *model.DecodingParams) { p.NumReturnSequences = 0 },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			p := model.ChatDecoding()
			mutate(&p)
			gt.Error(t, p.Validate())
		})
	}
}
