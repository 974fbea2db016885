package session_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/repository"
	"github.com/m-mizutani/mnemo/pkg/usecase/session"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

type mockPublisher struct {
	events []*model.SessionEndEvent
	err    error
}

func (m *mockPublisher) Publish(ctx context.Context, event *model.SessionEndEvent) error {
	m.events = append(m.events, event)
	return m.err
}

type mockStorage struct {
	objects map[string]string
}

func (m *mockStorage) Put(ctx context.Context, key, contentType string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = string(data)
	return nil
}

func setup(t *testing.T, opts ...session.Option) (*session.UseCase, *fakeClock) {
	t.Helper()
	repo, err := repository.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "sessions.db"))
	gt.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	opts = append([]session.Option{session.WithClock(clock.Now)}, opts...)
	return session.New(repo, opts...), clock
}

func TestStart(t *testing.T) {
	uc, clock := setup(t)
	ctx := context.Background()

	s1, err := uc.Start(ctx)
	gt.NoError(t, err)
	s2, err := uc.Start(ctx)
	gt.NoError(t, err)

	gt.NotEqual(t, s1.ID, s2.ID)
	gt.True(t, s1.StartTime.Equal(clock.now))
	gt.True(t, s1.EndTime == nil)
	gt.Equal(t, s1.NumTurns, 0)
	gt.Equal(t, s1.State(), model.SessionStateCreated)

	stored, err := uc.Get(ctx, s1.ID)
	gt.NoError(t, err)
	gt.True(t, stored.StartTime.Equal(s1.StartTime))
}

func TestAppendTurn(t *testing.T) {
	t.Run("timestamps strictly increase", func(t *testing.T) {
		uc, _ := setup(t)
		ctx := context.Background()
		s, err := uc.Start(ctx)
		gt.NoError(t, err)

		// the clock does not move between turns
		t1, err := uc.AppendTurn(ctx, s.ID, "hi", "hello")
		gt.NoError(t, err)
		t2, err := uc.AppendTurn(ctx, s.ID, "bye", "goodbye")
		gt.NoError(t, err)
		gt.True(t, t2.Timestamp.After(t1.Timestamp))

		turns, err := uc.Turns(ctx, s.ID)
		gt.NoError(t, err)
		gt.A(t, turns).Length(2)
		gt.Equal(t, turns[0].UserText, "hi")
		gt.Equal(t, turns[1].BotText, "goodbye")

		stored, err := uc.Get(ctx, s.ID)
		gt.NoError(t, err)
		gt.Equal(t, stored.State(), model.SessionStateActive)
	})

	t.Run("missing session", func(t *testing.T) {
		uc, _ := setup(t)
		_, err := uc.AppendTurn(context.Background(), model.NewSessionID(), "hi", "hello")
		gt.True(t, errors.Is(err, model.ErrSessionNotFound))
	})

	t.Run("ended session", func(t *testing.T) {
		uc, _ := setup(t)
		ctx := context.Background()
		s, err := uc.Start(ctx)
		gt.NoError(t, err)
		_, err = uc.End(ctx, s.ID)
		gt.NoError(t, err)

		_, err = uc.AppendTurn(ctx, s.ID, "hi", "hello")
		gt.True(t, errors.Is(err, model.ErrSessionEnded))
	})
}

func TestEnd(t *testing.T) {
	t.Run("records turn count and duration", func(t *testing.T) {
		pub := &mockPublisher{}
		uc, clock := setup(t, session.WithPublisher(pub))
		ctx := context.Background()

		s, err := uc.Start(ctx)
		gt.NoError(t, err)
		for range 3 {
			clock.Advance(time.Second)
			_, err := uc.AppendTurn(ctx, s.ID, "q", "a")
			gt.NoError(t, err)
		}
		clock.Advance(90 * time.Second)

		ended, err := uc.End(ctx, s.ID)
		gt.NoError(t, err)
		gt.True(t, ended.Ended())
		gt.Equal(t, ended.NumTurns, 3)
		gt.Equal(t, ended.Duration, 93*time.Second)

		stored, err := uc.Get(ctx, s.ID)
		gt.NoError(t, err)
		gt.Equal(t, stored.State(), model.SessionStateEnded)
		gt.Equal(t, stored.NumTurns, 3)
		gt.Equal(t, stored.Duration, 93*time.Second)

		gt.A(t, pub.events).Length(1)
		gt.Equal(t, pub.events[0].EventName, model.EventModify)
		gt.Equal(t, pub.events[0].SessionID, s.ID)
		gt.True(t, pub.events[0].EndTime.Equal(*ended.EndTime))
	})

	t.Run("ending twice keeps the first record", func(t *testing.T) {
		pub := &mockPublisher{}
		uc, clock := setup(t, session.WithPublisher(pub))
		ctx := context.Background()

		s, err := uc.Start(ctx)
		gt.NoError(t, err)
		first, err := uc.End(ctx, s.ID)
		gt.NoError(t, err)

		clock.Advance(time.Hour)
		second, err := uc.End(ctx, s.ID)
		gt.NoError(t, err)
		gt.True(t, second.EndTime.Equal(*first.EndTime))
		gt.Equal(t, second.NumTurns, 0)
		gt.A(t, pub.events).Length(1)
	})

	t.Run("missing session", func(t *testing.T) {
		uc, _ := setup(t)
		_, err := uc.End(context.Background(), model.NewSessionID())
		gt.True(t, errors.Is(err, model.ErrSessionNotFound))
	})

	t.Run("publish failure does not fail end", func(t *testing.T) {
		pub := &mockPublisher{err: errors.New("queue closed")}
		uc, _ := setup(t, session.WithPublisher(pub))
		ctx := context.Background()

		s, err := uc.Start(ctx)
		gt.NoError(t, err)
		ended, err := uc.End(ctx, s.ID)
		gt.NoError(t, err)
		gt.True(t, ended.Ended())
	})
}

func TestList(t *testing.T) {
	uc, clock := setup(t)
	ctx := context.Background()

	older, err := uc.Start(ctx)
	gt.NoError(t, err)
	clock.Advance(time.Minute)
	newer, err := uc.Start(ctx)
	gt.NoError(t, err)

	sessions, err := uc.List(ctx, 0, 10)
	gt.NoError(t, err)
	gt.A(t, sessions).Length(2)
	gt.Equal(t, sessions[0].ID, newer.ID)
	gt.Equal(t, sessions[1].ID, older.ID)
}

func TestExport(t *testing.T) {
	storage := &mockStorage{objects: map[string]string{}}
	uc, _ := setup(t, session.WithStorage(storage))
	ctx := context.Background()

	s, err := uc.Start(ctx)
	gt.NoError(t, err)
	_, err = uc.AppendTurn(ctx, s.ID, "hi", "hello")
	gt.NoError(t, err)
	_, err = uc.AppendTurn(ctx, s.ID, "bye", "goodbye")
	gt.NoError(t, err)

	var buf bytes.Buffer
	gt.NoError(t, uc.Export(ctx, s.ID, &buf))
	gt.Equal(t, buf.String(), "Human: hi\nAI: hello\nHuman: bye\nAI: goodbye")

	key, err := uc.Upload(ctx, s.ID)
	gt.NoError(t, err)
	gt.Equal(t, key, s.ID.String()+".txt")
	gt.Equal(t, storage.objects[key], buf.String())
}

func TestUploadWithoutStorage(t *testing.T) {
	uc, _ := setup(t)
	ctx := context.Background()

	s, err := uc.Start(ctx)
	gt.NoError(t, err)
	_, err = uc.Upload(ctx, s.ID)
	gt.Error(t, err)
}
