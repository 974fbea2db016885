package model

import (
	"time"

	"github.com/google/uuid"
)

type SessionID string

// NewSessionID generates a new unique SessionID
func NewSessionID() SessionID {
	return SessionID(uuid.New().String())
}

func (x SessionID) String() string {
	return string(x)
}

type SessionState string

const (
	SessionStateCreated SessionState = "created"
	SessionStateActive  SessionState = "active"
	SessionStateEnded   SessionState = "ended"
)

// Session is one conversation between a user and the assistant.
// EndTime, NumTurns and Duration are set once when the session ends.
type Session struct {
	ID         SessionID
	StartTime  time.Time
	EndTime    *time.Time
	NumTurns   int
	Duration   time.Duration
	LastTurnAt time.Time
}

// Ended reports whether the session reached its terminal state
func (s *Session) Ended() bool {
	return s.EndTime != nil
}

// State derives the lifecycle state of the session
func (s *Session) State() SessionState {
	switch {
	case s.Ended():
		return SessionStateEnded
	case !s.LastTurnAt.IsZero():
		return SessionStateActive
	default:
		return SessionStateCreated
	}
}

// SessionUpdate holds fields to be changed on a stored session. Nil fields are left as they are.
type SessionUpdate struct {
	EndTime    *time.Time
	NumTurns   *int
	Duration   *time.Duration
	LastTurnAt *time.Time
}

// Turn is one user utterance and the assistant response to it
type Turn struct {
	SessionID SessionID
	Timestamp time.Time
	UserText  string
	BotText   string
}

// SortOrder controls the order of turns returned from a repository
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)
