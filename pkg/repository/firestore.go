package repository

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionSessions = "sessions"
	collectionTurns    = "turns"
)

// sessionDoc is the stored shape of a session. Times are epoch milliseconds and end_time stays
// null until the session ends.
type sessionDoc struct {
	SessionID  string `firestore:"session_id"`
	StartTime  int64  `firestore:"start_time"`
	EndTime    *int64 `firestore:"end_time"`
	NumTurns   int    `firestore:"num_turns"`
	Duration   int64  `firestore:"conversation_duration"`
	LastTurnAt int64  `firestore:"last_turn_at"`
}

type turnDoc struct {
	SessionID string `firestore:"session_id"`
	Timestamp int64  `firestore:"timestamp"`
	UserText  string `firestore:"Me"`
	BotText   string `firestore:"AI"`
}

func newSessionDoc(s *model.Session) *sessionDoc {
	doc := &sessionDoc{
		SessionID:  s.ID.String(),
		StartTime:  toMillis(s.StartTime),
		NumTurns:   s.NumTurns,
		Duration:   s.Duration.Milliseconds(),
		LastTurnAt: toMillis(s.LastTurnAt),
	}
	if s.EndTime != nil {
		end := toMillis(*s.EndTime)
		doc.EndTime = &end
	}
	return doc
}

func (d *sessionDoc) toModel() *model.Session {
	s := &model.Session{
		ID:         model.SessionID(d.SessionID),
		StartTime:  fromMillis(d.StartTime),
		NumTurns:   d.NumTurns,
		Duration:   time.Duration(d.Duration) * time.Millisecond,
		LastTurnAt: fromMillis(d.LastTurnAt),
	}
	if d.EndTime != nil {
		end := fromMillis(*d.EndTime)
		s.EndTime = &end
	}
	return s
}

// SessionFromSnapshot decodes a document of the sessions collection
func SessionFromSnapshot(snap *firestore.DocumentSnapshot) (*model.Session, error) {
	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode session", goerr.V("doc_id", snap.Ref.ID))
	}
	if doc.SessionID == "" {
		doc.SessionID = snap.Ref.ID
	}
	return doc.toModel(), nil
}

// Firestore implements Repository. Sessions live in the "sessions" collection and turns in a
// "turns" subcollection keyed by timestamp.
type Firestore struct {
	client *firestore.Client
}

func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client}
}

// SessionsCollection exposes the collection that session end events are observed on
func (r *Firestore) SessionsCollection() *firestore.CollectionRef {
	return r.client.Collection(collectionSessions)
}

func (r *Firestore) turns(id model.SessionID) *firestore.CollectionRef {
	return r.SessionsCollection().Doc(id.String()).Collection(collectionTurns)
}

func (r *Firestore) PutSession(ctx context.Context, session *model.Session) error {
	if _, err := r.SessionsCollection().Doc(session.ID.String()).Set(ctx, newSessionDoc(session)); err != nil {
		return goerr.Wrap(err, "failed to put session", goerr.V("session_id", session.ID))
	}
	return nil
}

func (r *Firestore) GetSession(ctx context.Context, id model.SessionID) (*model.Session, error) {
	snap, err := r.SessionsCollection().Doc(id.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrSessionNotFound, "session does not exist", goerr.V("session_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get session", goerr.V("session_id", id))
	}
	return SessionFromSnapshot(snap)
}

func (r *Firestore) UpdateSession(ctx context.Context, id model.SessionID, update *model.SessionUpdate) error {
	var updates []firestore.Update
	if update.EndTime != nil {
		updates = append(updates, firestore.Update{Path: "end_time", Value: toMillis(*update.EndTime)})
	}
	if update.NumTurns != nil {
		updates = append(updates, firestore.Update{Path: "num_turns", Value: *update.NumTurns})
	}
	if update.Duration != nil {
		updates = append(updates, firestore.Update{Path: "conversation_duration", Value: update.Duration.Milliseconds()})
	}
	if update.LastTurnAt != nil {
		updates = append(updates, firestore.Update{Path: "last_turn_at", Value: toMillis(*update.LastTurnAt)})
	}
	if len(updates) == 0 {
		return nil
	}

	if _, err := r.SessionsCollection().Doc(id.String()).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(model.ErrSessionNotFound, "session does not exist", goerr.V("session_id", id))
		}
		return goerr.Wrap(err, "failed to update session", goerr.V("session_id", id))
	}
	return nil
}

func (r *Firestore) ListSessions(ctx context.Context, offset, limit int) ([]*model.Session, error) {
	query := r.SessionsCollection().OrderBy("start_time", firestore.Desc).Offset(offset)
	if limit > 0 {
		query = query.Limit(limit)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var sessions []*model.Session
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list sessions")
		}

		session, err := SessionFromSnapshot(snap)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (r *Firestore) PutTurn(ctx context.Context, turn *model.Turn) error {
	ts := toMillis(turn.Timestamp)
	doc := &turnDoc{
		SessionID: turn.SessionID.String(),
		Timestamp: ts,
		UserText:  turn.UserText,
		BotText:   turn.BotText,
	}

	// Create fails on an existing key, which keeps turns append-only
	if _, err := r.turns(turn.SessionID).Doc(turnKey(ts)).Create(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put turn", goerr.V("session_id", turn.SessionID), goerr.V("timestamp", ts))
	}
	return nil
}

func (r *Firestore) ListTurns(ctx context.Context, id model.SessionID, order model.SortOrder) ([]*model.Turn, error) {
	dir := firestore.Asc
	if order == model.Descending {
		dir = firestore.Desc
	}

	iter := r.turns(id).OrderBy("timestamp", dir).Documents(ctx)
	defer iter.Stop()

	var turns []*model.Turn
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list turns", goerr.V("session_id", id))
		}

		var doc turnDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode turn", goerr.V("session_id", id), goerr.V("doc_id", snap.Ref.ID))
		}
		turns = append(turns, &model.Turn{
			SessionID: id,
			Timestamp: fromMillis(doc.Timestamp),
			UserText:  doc.UserText,
			BotText:   doc.BotText,
		})
	}
	return turns, nil
}

// turnKey pads the timestamp so document IDs sort the same way as time
func turnKey(ms int64) string {
	return fmt.Sprintf("%013d", ms)
}
