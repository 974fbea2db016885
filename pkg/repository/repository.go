package repository

import (
	"context"
	"time"

	"github.com/m-mizutani/mnemo/pkg/model"
)

// Repository persists conversation sessions and their turns
type Repository interface {
	// PutSession creates or replaces a session record
	PutSession(ctx context.Context, session *model.Session) error

	// GetSession retrieves a session by ID. It returns model.ErrSessionNotFound when missing.
	GetSession(ctx context.Context, id model.SessionID) (*model.Session, error)

	// UpdateSession changes the non-nil fields of update on an existing session
	UpdateSession(ctx context.Context, id model.SessionID, update *model.SessionUpdate) error

	// ListSessions returns sessions, most recently started first
	ListSessions(ctx context.Context, offset, limit int) ([]*model.Session, error)

	// PutTurn appends a turn. Turns are never overwritten.
	PutTurn(ctx context.Context, turn *model.Turn) error

	// ListTurns returns all turns of a session ordered by timestamp
	ListTurns(ctx context.Context, id model.SessionID, order model.SortOrder) ([]*model.Turn, error)
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
