package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/usecase/retrieval"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

const DefaultMaxTurns = 10

// SessionContext is the conversation state owned by one client. The zero value has no session;
// one is started on the first query.
type SessionContext struct {
	SessionID model.SessionID
}

func (c *SessionContext) Active() bool {
	return c.SessionID != ""
}

// Reply is the answer to one query together with the turn it was recorded as
type Reply struct {
	Intent model.Intent
	Text   string
	Turn   *model.Turn
}

// UseCase answers queries by routing them to short term chat or long term memory retrieval
type UseCase struct {
	sessions  *session.UseCase
	retriever *retrieval.UseCase
	gen       adapter.Generator

	maxTurns int
	decoding model.DecodingParams
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithMaxTurns sets how many recent turns are shown to the model
func WithMaxTurns(n int) Option {
	return func(uc *UseCase) {
		uc.maxTurns = n
	}
}

// WithDecoding overrides the decoding parameters of chat replies
func WithDecoding(params model.DecodingParams) Option {
	return func(uc *UseCase) {
		uc.decoding = params
	}
}

// New creates a new chat UseCase instance
func New(sessions *session.UseCase, retriever *retrieval.UseCase, gen adapter.Generator, opts ...Option) *UseCase {
	uc := &UseCase{
		sessions:  sessions,
		retriever: retriever,
		gen:       gen,
		maxTurns:  DefaultMaxTurns,
		decoding:  model.ChatDecoding(),
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// Ask answers query within the session held by sc and records the exchange as a turn
func (u *UseCase) Ask(ctx context.Context, sc *SessionContext, query string) (*Reply, error) {
	if !sc.Active() {
		s, err := u.sessions.Start(ctx)
		if err != nil {
			return nil, err
		}
		sc.SessionID = s.ID
	} else {
		s, err := u.sessions.Get(ctx, sc.SessionID)
		if err != nil {
			return nil, err
		}
		if s.Ended() {
			return nil, goerr.Wrap(model.ErrSessionEnded, "cannot answer in ended session", goerr.V("session_id", sc.SessionID))
		}
	}
	ctx = logging.With(ctx, logging.From(ctx).With("session_id", sc.SessionID))

	intent := Classify(query)
	logging.From(ctx).Info("intent chosen", "intent", intent)

	text, err := u.answer(ctx, sc.SessionID, intent, query)
	if err != nil {
		return nil, err
	}

	turn, err := u.sessions.AppendTurn(ctx, sc.SessionID, query, text)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to record turn")
	}

	return &Reply{
		Intent: intent,
		Text:   text,
		Turn:   turn,
	}, nil
}

func (u *UseCase) answer(ctx context.Context, id model.SessionID, intent model.Intent, query string) (string, error) {
	switch intent {
	case model.IntentPastConversations:
		results, err := u.retriever.PastConversations(ctx, StripMarker(query))
		if err != nil {
			return "", goerr.Wrap(err, "failed to retrieve past conversations")
		}
		return strings.Join(results, "\n\n"), nil

	case model.IntentVerifiedSources:
		answer, err := u.retriever.VerifiedSources(ctx, StripMarker(query))
		if err != nil {
			return "", goerr.Wrap(err, "failed to answer from verified sources")
		}
		return answer, nil

	default:
		turns, err := u.sessions.Turns(ctx, id)
		if err != nil {
			return "", goerr.Wrap(err, "failed to load history")
		}
		return respond(ctx, u.gen, u.decoding, query, BuildWindow(turns, u.maxTurns))
	}
}

// NewSession ends the session held by sc, if any. The next query starts a fresh one.
func (u *UseCase) NewSession(ctx context.Context, sc *SessionContext) (*model.Session, error) {
	if !sc.Active() {
		return nil, nil
	}

	ended, err := u.sessions.End(ctx, sc.SessionID)
	if err != nil {
		return nil, err
	}
	sc.SessionID = ""
	return ended, nil
}
