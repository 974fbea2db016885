package session

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

// Start creates and stores a new session with no turns
func (u *UseCase) Start(ctx context.Context) (*model.Session, error) {
	session := &model.Session{
		ID:        model.NewSessionID(),
		StartTime: u.now(),
	}

	if err := u.repo.PutSession(ctx, session); err != nil {
		return nil, goerr.Wrap(err, "failed to start session")
	}

	logging.From(ctx).Debug("session started", "session_id", session.ID)
	return session, nil
}

// AppendTurn records one exchange in an open session. Timestamps strictly increase within a
// session even when the clock does not.
func (u *UseCase) AppendTurn(ctx context.Context, id model.SessionID, userText, botText string) (*model.Turn, error) {
	session, err := u.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return nil, goerr.Wrap(model.ErrSessionEnded, "cannot append turn", goerr.V("session_id", id))
	}

	ts := u.now()
	if !session.LastTurnAt.IsZero() && !ts.After(session.LastTurnAt) {
		ts = session.LastTurnAt.Add(time.Millisecond)
	}

	turn := &model.Turn{
		SessionID: id,
		Timestamp: ts,
		UserText:  userText,
		BotText:   botText,
	}
	if err := u.repo.PutTurn(ctx, turn); err != nil {
		return nil, goerr.Wrap(err, "failed to append turn", goerr.V("session_id", id))
	}
	if err := u.repo.UpdateSession(ctx, id, &model.SessionUpdate{LastTurnAt: &ts}); err != nil {
		return nil, goerr.Wrap(err, "failed to record last turn", goerr.V("session_id", id))
	}

	return turn, nil
}

// End closes the session, records its turn count and duration and notifies the publisher.
// Ending an already ended session returns the stored record and publishes nothing.
func (u *UseCase) End(ctx context.Context, id model.SessionID) (*model.Session, error) {
	session, err := u.repo.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session.Ended() {
		return session, nil
	}

	turns, err := u.repo.ListTurns(ctx, id, model.Ascending)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count turns", goerr.V("session_id", id))
	}

	end := u.now()
	duration := max(end.Sub(session.StartTime), 0)
	numTurns := len(turns)

	if err := u.repo.UpdateSession(ctx, id, &model.SessionUpdate{
		EndTime:  &end,
		NumTurns: &numTurns,
		Duration: &duration,
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to end session", goerr.V("session_id", id))
	}

	session.EndTime = &end
	session.NumTurns = numTurns
	session.Duration = duration

	logging.From(ctx).Info("session ended",
		"session_id", id,
		"num_turns", numTurns,
		"duration", duration,
	)

	if u.publisher != nil {
		event := &model.SessionEndEvent{
			EventName: model.EventModify,
			SessionID: id,
			EndTime:   end,
		}
		if err := u.publisher.Publish(ctx, event); err != nil {
			logging.From(ctx).Error("failed to publish session end event", "session_id", id, "error", err)
		}
	}

	return session, nil
}
