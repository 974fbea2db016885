package trigger_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/service/trigger"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
)

func TestEventFromSession(t *testing.T) {
	end := time.UnixMilli(1_700_000_000_000)
	ended := &model.Session{ID: "s1", StartTime: time.UnixMilli(1), EndTime: &end}
	open := &model.Session{ID: "s2", StartTime: time.UnixMilli(1), LastTurnAt: time.UnixMilli(2)}

	t.Run("modified ended session", func(t *testing.T) {
		event, ok := trigger.EventFromSessionForTest(firestore.DocumentModified, ended)
		gt.True(t, ok)
		gt.Equal(t, event.EventName, model.EventModify)
		gt.Equal(t, event.SessionID, model.SessionID("s1"))
		gt.True(t, event.EndTime.Equal(end))
	})

	t.Run("modified open session", func(t *testing.T) {
		_, ok := trigger.EventFromSessionForTest(firestore.DocumentModified, open)
		gt.False(t, ok)
	})

	t.Run("added ended session", func(t *testing.T) {
		_, ok := trigger.EventFromSessionForTest(firestore.DocumentAdded, ended)
		gt.False(t, ok)
	})

	t.Run("removed session", func(t *testing.T) {
		_, ok := trigger.EventFromSessionForTest(firestore.DocumentRemoved, ended)
		gt.False(t, ok)
	})
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*model.SessionEndEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, event *model.SessionEndEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) find(id model.SessionID) *model.SessionEndEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.events {
		if e.SessionID == id {
			return e
		}
	}
	return nil
}

func TestWatcher(t *testing.T) {
	projectID := os.Getenv("TEST_FIRESTORE_PROJECT_ID")
	databaseID := os.Getenv("TEST_FIRESTORE_DATABASE_ID")
	if projectID == "" || databaseID == "" {
		t.Skip("TEST_FIRESTORE_PROJECT_ID and TEST_FIRESTORE_DATABASE_ID must be set to run Firestore tests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	gt.NoError(t, err)
	defer client.Close()

	repo := repository.NewFirestore(client)
	pub := &recordingPublisher{}
	w := trigger.New(repo.SessionsCollection(), pub)

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// let the listener deliver its initial snapshot
	time.Sleep(2 * time.Second)

	uc := session.New(repo)
	s, err := uc.Start(ctx)
	gt.NoError(t, err)
	_, err = uc.AppendTurn(ctx, s.ID, "hi", "hello")
	gt.NoError(t, err)
	ended, err := uc.End(ctx, s.ID)
	gt.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	var event *model.SessionEndEvent
	for time.Now().Before(deadline) {
		if event = pub.find(s.ID); event != nil {
			break
		}
		time.Sleep(200 * time.Millisecond)
	}
	gt.True(t, event != nil)
	gt.True(t, event.EndTime.Equal(*ended.EndTime))

	cancel()
	gt.NoError(t, <-done)
}
