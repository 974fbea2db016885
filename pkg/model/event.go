package model

import "time"

// EventModify is the event name of a changed session record
const EventModify = "MODIFY"

// SessionEndEvent notifies that a session record was modified. It is delivered at least once.
type SessionEndEvent struct {
	EventName string
	SessionID SessionID
	EndTime   time.Time
}
