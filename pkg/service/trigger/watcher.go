package trigger

import (
	"context"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Watcher listens to the sessions collection and publishes an event whenever a stored session
// is modified into the ended state
type Watcher struct {
	sessions  *firestore.CollectionRef
	publisher session.Publisher
}

func New(sessions *firestore.CollectionRef, publisher session.Publisher) *Watcher {
	return &Watcher{
		sessions:  sessions,
		publisher: publisher,
	}
}

// Run blocks until ctx is canceled or the listener fails
func (w *Watcher) Run(ctx context.Context) error {
	iter := w.sessions.Snapshots(ctx)
	defer iter.Stop()

	logger := logging.From(ctx)
	logger.Info("watching session changes", "collection", w.sessions.ID)

	for {
		snap, err := iter.Next()
		if err != nil {
			if ctx.Err() != nil || status.Code(err) == codes.Canceled {
				return nil
			}
			return goerr.Wrap(err, "failed to receive session changes", goerr.V("collection", w.sessions.ID))
		}

		for _, change := range snap.Changes {
			if change.Kind != firestore.DocumentModified {
				continue
			}

			s, err := repository.SessionFromSnapshot(change.Doc)
			if err != nil {
				logger.Warn("skip undecodable session", "doc_id", change.Doc.Ref.ID, "error", err)
				continue
			}

			event, ok := eventFromSession(change.Kind, s)
			if !ok {
				continue
			}
			if err := w.publisher.Publish(ctx, event); err != nil {
				logger.Error("failed to publish session end event", "session_id", s.ID, "error", err)
			}
		}
	}
}

// eventFromSession maps a changed session to a session end event. Only modifications of
// ended sessions produce one.
func eventFromSession(kind firestore.DocumentChangeKind, s *model.Session) (*model.SessionEndEvent, bool) {
	if kind != firestore.DocumentModified || !s.Ended() {
		return nil, false
	}
	return &model.SessionEndEvent{
		EventName: model.EventModify,
		SessionID: s.ID,
		EndTime:   *s.EndTime,
	}, true
}

// EventFromSessionForTest is a test helper that exposes eventFromSession
func EventFromSessionForTest(kind firestore.DocumentChangeKind, s *model.Session) (*model.SessionEndEvent, bool) {
	return eventFromSession(kind, s)
}
