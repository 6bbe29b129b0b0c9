// Package lpc stands for "Local Procedure Call". It's a typed request/response handoff between goroutines, used to
// pair a request sent over some connection with the response that a separate read loop receives for it.
package lpc

import (
	"context"
	"errors"
	"sync"

	"github.com/alanbriolat/media-resolver/generic"
	"github.com/alanbriolat/media-resolver/internal/sync_"
)

var (
	ErrClosed     = errors.New("command response already sent")
	ErrNoResponse = errors.New("no response")
)

type Command[Arg any, Response any] struct {
	arg      Arg
	mu       sync.Mutex
	response generic.Result[Response]
	done     sync_.Event
}

func New[Arg any, Response any](arg Arg) *Command[Arg, Response] {
	return &Command[Arg, Response]{
		arg:      arg,
		response: generic.Err[Response](ErrNoResponse), // Default error if closed with no response
	}
}

func (c *Command[Arg, Response]) Arg() Arg {
	return c.arg
}

func (c *Command[Arg, Response]) Respond(response Response) error {
	return c.settle(generic.Ok[Response](response))
}

func (c *Command[Arg, Response]) RespondError(err error) error {
	return c.settle(generic.Err[Response](err))
}

func (c *Command[Arg, Response]) settle(r generic.Result[Response]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done.IsSet() {
		return ErrClosed
	}
	c.response = r
	c.done.Set()
	return nil
}

// Wait blocks until there is a response or ctx is done.
func (c *Command[Arg, Response]) Wait(ctx context.Context) (Response, error) {
	select {
	case <-c.done.Wait():
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.response.Parts()
	case <-ctx.Done():
		var zero Response
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the command has a response.
func (c *Command[Arg, Response]) Done() <-chan struct{} {
	return c.done.Wait()
}

// Close ends the command without a response, so Wait returns ErrNoResponse. Idempotent.
func (c *Command[Arg, Response]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done.Set()
}
