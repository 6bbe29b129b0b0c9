package pubsub

import (
	"errors"
	"sync"

	"github.com/alanbriolat/media-resolver/internal/sync_"
)

const (
	DefaultPublisherBufSize  = 16
	DefaultSubscriberBufSize = 16
)

var (
	ErrPublisherClosed = errors.New("publisher closed")
)

// Publisher fans every sent value out to all of its subscribers.
type Publisher[T any] interface {
	SenderCloser[T]
	// AddSubscriber attaches an existing sender; if close is true it is closed along with the Publisher.
	AddSubscriber(s SenderCloser[T], close bool) error
	Subscribe() (ReceiverCloser[T], error)
	SubscribeBufSize(int) (ReceiverCloser[T], error)
}

// Subscribers are stored with their "close with publisher" flag.
type subscriberMap[T any] map[SenderCloser[T]]bool

type publisher[T any] struct {
	mu          sync.Mutex
	ch          Channel[T]
	running     sync.WaitGroup // Goroutines in progress
	pending     sync.WaitGroup // Messages not yet sent to all subscribers
	subscribers *sync_.Mutexed[subscriberMap[T]]
	closed      bool
}

func NewPublisher[T any]() Publisher[T] {
	return NewPublisherBufSize[T](DefaultPublisherBufSize)
}

func NewPublisherBufSize[T any](bufSize int) Publisher[T] {
	p := &publisher[T]{
		ch:          NewChannel[T](bufSize),
		subscribers: sync_.NewMutexed(make(subscriberMap[T])),
	}
	p.running.Add(1)
	go func() {
		defer p.running.Done()
		for v := range p.ch.Receive() {
			// Snapshot the subscribers so Send on a slow subscriber never blocks AddSubscriber
			for _, s := range p.snapshot() {
				if ok := s.Send(v); !ok {
					p.unsubscribe(s)
				}
			}
			p.pending.Done()
		}
	}()
	return p
}

// Send will publish the value to all subscribers.
func (p *publisher[T]) Send(msg T) bool {
	p.pending.Add(1)
	if ok := p.ch.Send(msg); !ok {
		// Message was not sent, so don't wait for it
		p.pending.Done()
		return false
	}
	return true
}

func (p *publisher[T]) Subscribe() (ReceiverCloser[T], error) {
	return p.SubscribeBufSize(DefaultSubscriberBufSize)
}

func (p *publisher[T]) SubscribeBufSize(bufSize int) (ReceiverCloser[T], error) {
	s := NewChannel[T](bufSize)
	if err := p.AddSubscriber(s, true); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *publisher[T]) AddSubscriber(s SenderCloser[T], close bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPublisherClosed
	}
	return p.subscribers.Locked(func(subscribers *subscriberMap[T]) error {
		(*subscribers)[s] = close
		return nil
	})
}

func (p *publisher[T]) snapshot() []SenderCloser[T] {
	var result []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers *subscriberMap[T]) error {
		result = make([]SenderCloser[T], 0, len(*subscribers))
		for s := range *subscribers {
			result = append(result, s)
		}
		return nil
	})
	return result
}

func (p *publisher[T]) unsubscribe(s SenderCloser[T]) {
	_ = p.subscribers.Locked(func(subscribers *subscriberMap[T]) error {
		delete(*subscribers, s)
		return nil
	})
}

// Close idempotently shuts down the publisher, closing subscribers that asked for it.
func (p *publisher[T]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	// Close the send channel, and wait for the channel to be flushed
	p.ch.Close()
	p.pending.Wait()
	p.running.Wait()
	var toClose []SenderCloser[T]
	_ = p.subscribers.Locked(func(subscribers *subscriberMap[T]) error {
		for s, close := range *subscribers {
			if close {
				toClose = append(toClose, s)
			}
		}
		*subscribers = make(subscriberMap[T])
		return nil
	})
	for _, s := range toClose {
		s.Close()
	}
	p.closed = true
}

func (p *publisher[T]) Closed() <-chan struct{} {
	return p.ch.Closed()
}
