package message

import (
	"context"
	"sync"
)

// Recorder is a Conversation that keeps everything sent to it.
type Recorder struct {
	mu        sync.Mutex
	messages  []Message
	reactions []Reaction
	// SendErr, if set, is returned by every Send after recording the message.
	SendErr error
}

func (r *Recorder) Send(ctx context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return r.SendErr
}

func (r *Recorder) React(ctx context.Context, reaction Reaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reactions = append(r.reactions, reaction)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

func (r *Recorder) Reactions() []Reaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reaction(nil), r.reactions...)
}
