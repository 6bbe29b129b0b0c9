package dispatch

import (
	"github.com/alanbriolat/media-resolver"
)

type Event interface {
	// The Match this event relates to.
	Match() *media_resolver.Match
}

type matchEvent struct {
	match *media_resolver.Match
}

func (e matchEvent) Match() *media_resolver.Match {
	return e.match
}

type MatchFound struct {
	matchEvent
}
type CacheHit struct {
	matchEvent
	Result *media_resolver.ParseResult
}
type Parsed struct {
	matchEvent
	Result *media_resolver.ParseResult
	// Shared is true if the result came from a concurrent parse of the same match.
	Shared bool
	Err    error
}
type Rendered struct {
	matchEvent
	Err error
}
