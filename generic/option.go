package generic

// Option holds a value that may be absent, e.g. an author's avatar or a result's rendered card.
type Option[T any] struct {
	Value    T
	hasValue bool
}

// Expect returns the contained value, or panics with msg if there is none.
func (o Option[T]) Expect(msg string) T {
	if !o.hasValue {
		panic(msg)
	}
	return o.Value
}

func (o *Option[T]) IsNone() bool {
	return !o.hasValue
}

func (o *Option[T]) IsSome() bool {
	return o.hasValue
}

// Unwrap returns the contained value, or panics if there is none.
func (o Option[T]) Unwrap() T {
	return o.Expect("tried to Unwrap() a None")
}

// UnwrapOr returns the contained value, or other if there is none.
func (o Option[T]) UnwrapOr(other T) T {
	if o.hasValue {
		return o.Value
	}
	return other
}

// UnwrapOrDefault returns the contained value, or the zero value of T.
func (o Option[T]) UnwrapOrDefault() T {
	var zero T
	return o.UnwrapOr(zero)
}

func Some[T any](value T) Option[T] {
	return Option[T]{Value: value, hasValue: true}
}

// OptionOf builds an Option[T] from a "comma ok" pair.
func OptionOf[T any](value T, ok bool) Option[T] {
	if ok {
		return Some(value)
	}
	return None[T]()
}

// NonZero is Some(value) unless value is the zero value of T.
func NonZero[T comparable](value T) Option[T] {
	var zero T
	return OptionOf(value, value != zero)
}

func None[T any]() Option[T] {
	return Option[T]{}
}
