package consolidate

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/mnemo/pkg/model"
	"github.com/m-mizutani/mnemo/pkg/utils/logging"
)

var ErrDispatcherClosed = goerr.New("dispatcher is closed")

// Dispatcher consolidates sessions in the background. It receives session end events through
// Publish and hands them to a fixed number of workers.
type Dispatcher struct {
	uc    *UseCase
	queue chan *model.SessionEndEvent
	wg    sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts workers that run until Close. Values of ctx are used for every
// consolidation, but its cancellation is not: queued events are still handled after ctx is done.
func NewDispatcher(ctx context.Context, uc *UseCase, workers, queueSize int) *Dispatcher {
	ctx = context.WithoutCancel(ctx)
	d := &Dispatcher{
		uc:    uc,
		queue: make(chan *model.SessionEndEvent, max(queueSize, 0)),
	}

	for range max(workers, 1) {
		d.wg.Add(1)
		go d.work(ctx)
	}
	return d
}

func (d *Dispatcher) work(ctx context.Context) {
	defer d.wg.Done()
	for event := range d.queue {
		if _, err := d.uc.Handle(ctx, event); err != nil {
			logging.From(ctx).Error("failed to consolidate session",
				"session_id", event.SessionID,
				"error", err,
			)
		}
	}
}

// Publish queues event. It blocks while the queue is full until ctx is done.
func (d *Dispatcher) Publish(ctx context.Context, event *model.SessionEndEvent) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return goerr.Wrap(ErrDispatcherClosed, "cannot publish event", goerr.V("session_id", event.SessionID))
	}

	select {
	case d.queue <- event:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "event not queued", goerr.V("session_id", event.SessionID))
	}
}

// Close stops accepting events and waits until every queued event is handled
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
