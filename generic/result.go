package generic

import "fmt"

// Result is a (T, error) pair that can be stored and passed around as one value, e.g. the settled outcome of a task.
type Result[T any] struct {
	Value T
	Error error
}

// NewResult wraps a (T, error) return value from another function call.
func NewResult[T any](value T, err error) Result[T] {
	return Result[T]{Value: value, Error: err}
}

// Parts splits the Result[T] back into a (T, error) pair.
func (r Result[T]) Parts() (T, error) {
	return r.Value, r.Error
}

func (r *Result[T]) IsErr() bool {
	return r.Error != nil
}

func (r *Result[T]) IsOk() bool {
	return r.Error == nil
}

// Expect returns the contained value, or panics with msg wrapping the contained error.
func (r Result[T]) Expect(msg string) T {
	if r.Error != nil {
		panic(fmt.Errorf("%s: %w", msg, r.Error))
	}
	return r.Value
}

func Ok[T any](value T) Result[T] {
	return Result[T]{Value: value}
}

func Err[T any](err error) Result[T] {
	return Result[T]{Error: err}
}

// Unwrap_ panics if err is not nil; for setup calls that cannot reasonably fail.
func Unwrap_(err error) {
	NewResult(NewVoid(), err).Expect("tried to Unwrap() an Err")
}
