package pubsub

// Filter decides whether a message is passed on to a subscriber.
type Filter[T any] func(T) bool

// NewFilteredSender wraps s so that messages rejected by f are dropped. A dropped message still counts as sent while s
// is open. A nil filter passes everything through.
func NewFilteredSender[T any](s SenderCloser[T], f Filter[T]) SenderCloser[T] {
	if f == nil {
		return s
	}
	return &filteredSender[T]{SenderCloser: s, accept: f}
}

type filteredSender[T any] struct {
	SenderCloser[T]
	accept Filter[T]
}

func (s *filteredSender[T]) Send(msg T) bool {
	if s.accept(msg) {
		return s.SenderCloser.Send(msg)
	}
	select {
	case <-s.Closed():
		return false
	default:
		return true
	}
}
