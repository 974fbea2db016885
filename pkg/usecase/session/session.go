package session

import (
	"context"
	"time"

	"github.com/m-mizutani/mnemo/pkg/adapter"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/repository"
)

// Publisher receives an event every time a session ends
type Publisher interface {
	Publish(ctx context.Context, event *model.SessionEndEvent) error
}

// UseCase manages the lifecycle of conversation sessions and their turns
type UseCase struct {
	repo      repository.Repository
	clock     func() time.Time
	publisher Publisher
	storage   adapter.Storage
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithClock replaces the time source
func WithClock(clock func() time.Time) Option {
	return func(uc *UseCase) {
		uc.clock = clock
	}
}

// WithPublisher delivers session end events to p
func WithPublisher(p Publisher) Option {
	return func(uc *UseCase) {
		uc.publisher = p
	}
}

// WithStorage enables transcript export to object storage
func WithStorage(s adapter.Storage) Option {
	return func(uc *UseCase) {
		uc.storage = s
	}
}

// New creates a new session UseCase instance
func New(repo repository.Repository, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:  repo,
		clock: time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// now is truncated to the precision stored by repositories
func (u *UseCase) now() time.Time {
	return u.clock().Truncate(time.Millisecond)
}
