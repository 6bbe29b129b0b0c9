// Package render turns a ParseResult into the messages sent to a conversation.
package render

import (
	"context"
	"fmt"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/message"
)

// DefaultForwardThreshold is the number of image-like items above which they are bundled into a forward.
const DefaultForwardThreshold = 4

// Emit delivers one rendered message.
type Emit func(ctx context.Context, m message.Message) error

// A Renderer emits the messages for a result in order. Per-item download failures are reported after every
// successful item has been emitted.
type Renderer interface {
	Render(ctx context.Context, result *media_resolver.ParseResult, emit Emit) error
}

// Options shared by all renderers.
type Options struct {
	// ForwardContents always bundles image-like items into a forward.
	ForwardContents  bool
	ForwardThreshold int
	// AppendURL adds the result's links to the summary.
	AppendURL bool
}

func (o Options) threshold() int {
	if o.ForwardThreshold <= 0 {
		return DefaultForwardThreshold
	}
	return o.ForwardThreshold
}

const (
	StyleDefault  = "default"
	StyleCard     = "card"
	StyleCardOnly = "card_only"
)

// Select builds the renderer for a configured style. Card styles need cardFunc.
func Select(style string, options Options, cacheDir string, cardFunc CardFunc) (Renderer, error) {
	switch style {
	case "", StyleDefault:
		return &Default{Options: options}, nil
	case StyleCard, StyleCardOnly:
		if cardFunc == nil {
			return nil, fmt.Errorf("renderer %q needs a card backend", style)
		}
		return &Card{Options: options, Backend: cardFunc, CacheDir: cacheDir, CardOnly: style == StyleCardOnly}, nil
	default:
		return nil, fmt.Errorf("unknown renderer %q", style)
	}
}

// ToConversation adapts a Conversation to an Emit.
func ToConversation(conv message.Conversation) Emit {
	return conv.Send
}
