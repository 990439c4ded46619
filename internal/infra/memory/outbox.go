package memory

import (
	"context"
	"errors"

	"event-trivia-service/internal/app"
	"golang.org/x/sync/errgroup"
)

// ErrOutboxFull is returned by Emit when the buffer has no room left.
var ErrOutboxFull = errors.New("outbox buffer full")

// Outbox is an in-process app.Outbox and app.EventSource backed by a buffered
// channel. Emit never blocks the caller.
type Outbox struct {
	events  chan app.Event
	workers int
}

func NewOutbox(buffer, workers int) *Outbox {
	if buffer <= 0 {
		buffer = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Outbox{events: make(chan app.Event, buffer), workers: workers}
}

func (o *Outbox) Emit(_ context.Context, ev app.Event) error {
	select {
	case o.events <- ev:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Consume runs the configured number of workers until ctx is done. Handler
// errors are the handler's concern; the event is not redelivered.
func (o *Outbox) Consume(ctx context.Context, handle func(context.Context, app.Event) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case ev := <-o.events:
					_ = handle(ctx, ev)
				}
			}
		})
	}
	return g.Wait()
}

// Pending reports how many events are waiting to be consumed.
func (o *Outbox) Pending() int {
	return len(o.events)
}

// Drain synchronously hands every buffered event to handle.
func (o *Outbox) Drain(ctx context.Context, handle func(context.Context, app.Event) error) {
	for {
		select {
		case ev := <-o.events:
			_ = handle(ctx, ev)
		default:
			return
		}
	}
}
