package async

import (
	"context"
	"fmt"

	"github.com/alanbriolat/media-resolver/generic"
	"github.com/alanbriolat/media-resolver/internal/sync_"
)

// Task is a single-assignment future: it is either pending, or it holds a value or an error forever.
//
// Tasks are started at construction and never retried. Any number of goroutines may Wait on the same Task and all
// observe the same outcome.
type Task[T any] struct {
	done   sync_.Event
	result generic.Result[T]
}

// Go starts f in a new goroutine and returns the Task that will hold its outcome. The context passed to f is
// independent of any waiter's context, so a waiter giving up never cancels the work for other waiters.
func Go[T any](ctx context.Context, f func(ctx context.Context) (T, error)) *Task[T] {
	t := &Task[T]{}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				t.set(generic.NewResult(zero, fmt.Errorf("task panicked: %v", r)))
			}
		}()
		t.set(generic.NewResult(f(ctx)))
	}()
	return t
}

// Done returns an already-resolved Task holding value.
func Done[T any](value T) *Task[T] {
	t := &Task[T]{}
	t.set(generic.Ok(value))
	return t
}

// Failed returns an already-resolved Task holding err.
func Failed[T any](err error) *Task[T] {
	t := &Task[T]{}
	t.set(generic.Err[T](err))
	return t
}

func (t *Task[T]) set(r generic.Result[T]) {
	// Event.Set is the publication point; result must be written before it.
	if t.done.IsSet() {
		return
	}
	t.result = r
	t.done.Set()
}

// IsDone reports whether the Task has an outcome yet.
func (t *Task[T]) IsDone() bool {
	return t.done.IsSet()
}

// Wait blocks until the Task has an outcome or ctx is done. Giving up on ctx does not affect the Task.
func (t *Task[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-t.done.Wait():
		return t.result.Value, t.result.Error
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
