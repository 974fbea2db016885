package session

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
)

func (u *UseCase) Get(ctx context.Context, id model.SessionID) (*model.Session, error) {
	return u.repo.GetSession(ctx, id)
}

// Turns returns every turn of the session in chronological order
func (u *UseCase) Turns(ctx context.Context, id model.SessionID) ([]*model.Turn, error) {
	if _, err := u.repo.GetSession(ctx, id); err != nil {
		return nil, err
	}

	turns, err := u.repo.ListTurns(ctx, id, model.Ascending)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list turns", goerr.V("session_id", id))
	}
	return turns, nil
}

// List returns sessions, newest first
func (u *UseCase) List(ctx context.Context, offset, limit int) ([]*model.Session, error) {
	sessions, err := u.repo.ListSessions(ctx, offset, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sessions")
	}
	return sessions, nil
}
