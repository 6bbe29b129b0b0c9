package lpc

import (
	"context"
	"errors"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

type ExampleCommand = Command[int, int]

func TestCommand_Close(t *testing.T) {
	assert := assert_.New(t)

	// If command is prematurely closed, then the response is an error
	c := New[int, int](1)
	c.Close()
	c.Close()
	_, err := c.Wait(context.Background())
	assert.ErrorIs(err, ErrNoResponse)
	assert.ErrorIs(c.Respond(3), ErrClosed)
}

func TestCommand_Respond(t *testing.T) {
	assert := assert_.New(t)
	exampleError := errors.New("example error")

	a := New[int, int](1)
	assert.Equal(1, a.Arg())
	// First response gets sent
	assert.Nil(a.Respond(3))
	v, err := a.Wait(context.Background())
	assert.Nil(err)
	assert.Equal(3, v)
	// Any further attempts to respond will fail
	assert.ErrorIs(a.Respond(4), ErrClosed)
	assert.ErrorIs(a.RespondError(exampleError), ErrClosed)

	b := New[int, int](1)
	// First error gets sent
	assert.Nil(b.RespondError(exampleError))
	_, err = b.Wait(context.Background())
	assert.ErrorIs(err, exampleError)
	assert.ErrorIs(b.Respond(4), ErrClosed)
	select {
	case <-b.Done():
	default:
		assert.Fail("Done not closed after response")
	}
}

func TestCommand_WaitContext(t *testing.T) {
	assert := assert_.New(t)
	c := New[int, int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := c.Wait(ctx)
	assert.ErrorIs(err, context.DeadlineExceeded)
	// A late response is still accepted
	assert.Nil(c.Respond(2))
}

func BenchmarkCommand_New_Respond_Wait(b *testing.B) {
	commands := make(chan *ExampleCommand, 1)
	go func() {
		for c := range commands {
			_ = c.Respond(c.Arg())
		}
	}()
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		c := New[int, int](i)
		commands <- c
		_, _ = c.Wait(ctx)
	}
	close(commands)
}
