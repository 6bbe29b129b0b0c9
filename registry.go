package media_resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver/generic"
)

var (
	ErrDuplicatePlatform = errors.New("duplicate platform name")
	ErrInvalidParser     = errors.New("invalid parser")
	ErrUnknownPlatform   = errors.New("unknown platform")
)

// HandlerFunc builds a ParseResult from a successful match.
type HandlerFunc = func(ctx context.Context, m *Match) (*ParseResult, error)

// A Handler associates a cheap literal keyword pre-filter and a regular expression with the function that handles
// matching input.
type Handler struct {
	Keyword string
	Pattern *regexp.Regexp
	Handle  HandlerFunc
}

// A Parser is one platform's plugin: a Platform and an explicit handler table built by its constructor.
type Parser interface {
	Platform() Platform
	Handlers() []Handler
}

// SortHandlers stable-sorts handlers by descending keyword length, so more specific keywords are tried first.
func SortHandlers(handlers []Handler) {
	sort.SliceStable(handlers, func(i, j int) bool {
		return len(handlers[i].Keyword) > len(handlers[j].Keyword)
	})
}

// A Match is the result of a Handler successfully matching some input.
type Match struct {
	Input    string
	Keyword  string
	Platform Platform

	indices []int
	names   []string
	handle  func(ctx context.Context, m *Match) (*ParseResult, error)
}

// Raw is the whole matched substring; it identifies the match for caching purposes.
func (m *Match) Raw() string {
	return m.Group(0)
}

// Group returns capture group i, or "" if it did not participate in the match.
func (m *Match) Group(i int) string {
	if i < 0 || 2*i+1 >= len(m.indices) || m.indices[2*i] < 0 {
		return ""
	}
	return m.Input[m.indices[2*i]:m.indices[2*i+1]]
}

// Named returns the named capture group, or "" if absent.
func (m *Match) Named(name string) string {
	for i, n := range m.names {
		if n == name && n != "" {
			return m.Group(i)
		}
	}
	return ""
}

type candidate struct {
	platform Platform
	handler  Handler
}

// MatchHandlers applies the keyword/regexp algorithm to a single parser's handlers, in the order given.
func MatchHandlers(platform Platform, handlers []Handler, text string) (*Match, error) {
	candidates := make([]candidate, 0, len(handlers))
	for _, h := range handlers {
		candidates = append(candidates, candidate{platform, h})
	}
	return matchCandidates(candidates, text)
}

func matchCandidates(candidates []candidate, text string) (*Match, error) {
	log := zap.S().Named("registry")
	for _, c := range candidates {
		if !strings.Contains(text, c.handler.Keyword) {
			continue
		}
		indices := c.handler.Pattern.FindStringSubmatchIndex(text)
		if indices == nil {
			log.Debugw("keyword matched but pattern did not", "platform", c.platform.Name, "keyword", c.handler.Keyword, "pattern", c.handler.Pattern.String())
			continue
		}
		return &Match{
			Input:    text,
			Keyword:  c.handler.Keyword,
			Platform: c.platform,
			indices:  indices,
			names:    c.handler.Pattern.SubexpNames(),
			handle:   c.handler.Handle,
		}, nil
	}
	return nil, ErrNoMatch
}

// A Registry is the collection of enabled parsers used to dispatch input text.
type Registry struct {
	disabled   generic.Set[string]
	parsers    []Parser
	parserMap  map[string]Parser
	candidates []candidate
}

// NewRegistry creates an empty Registry. Parsers for the named platforms will be skipped by Add.
func NewRegistry(disabled ...string) *Registry {
	return &Registry{
		disabled:  generic.NewSet(disabled...),
		parserMap: make(map[string]Parser),
	}
}

// Add registers a parser. Platform names must be unique and every parser needs at least one handler. Disabled
// platforms are accepted but contribute nothing to dispatch.
func (r *Registry) Add(p Parser) error {
	if p == nil {
		return ErrInvalidParser
	}
	platform := p.Platform()
	handlers := p.Handlers()
	if platform.Name == "" || len(handlers) == 0 {
		return fmt.Errorf("%w: %q", ErrInvalidParser, platform.Name)
	}
	for _, h := range handlers {
		if h.Keyword == "" || h.Pattern == nil || h.Handle == nil {
			return fmt.Errorf("%w: %q has an incomplete handler", ErrInvalidParser, platform.Name)
		}
	}
	if _, ok := r.parserMap[platform.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePlatform, platform.Name)
	}
	if r.disabled.Contains(platform.Name) {
		zap.S().Named("registry").Infow("platform disabled", "platform", platform.Name)
		return nil
	}
	r.parserMap[platform.Name] = p
	r.parsers = append(r.parsers, p)
	for _, h := range handlers {
		r.candidates = append(r.candidates, candidate{platform, h})
	}
	// Stable, so ties keep registration order and then declaration order
	sort.SliceStable(r.candidates, func(i, j int) bool {
		return len(r.candidates[i].handler.Keyword) > len(r.candidates[j].handler.Keyword)
	})
	return nil
}

// MustAdd wraps Add but panics if there is an error.
func (r *Registry) MustAdd(p Parser) {
	generic.Unwrap_(r.Add(p))
}

// Match finds the first handler, longest keyword first, whose keyword occurs in text and whose pattern matches it.
// Returns ErrNoMatch if there is none.
func (r *Registry) Match(text string) (*Match, error) {
	return matchCandidates(r.candidates, text)
}

// Parse invokes the handler bound to m. Handler failures are reported as *ParseError.
func (r *Registry) Parse(ctx context.Context, m *Match) (*ParseResult, error) {
	if m == nil || m.handle == nil {
		return nil, ErrNoMatch
	}
	return InvokeHandler(ctx, m)
}

// InvokeHandler runs the handler bound to m, wrapping unexpected errors in a *ParseError.
func InvokeHandler(ctx context.Context, m *Match) (*ParseResult, error) {
	result, err := m.handle(ctx, m)
	if err != nil {
		var parseErr *ParseError
		if errors.As(err, &parseErr) {
			return nil, err
		}
		return nil, &ParseError{Platform: m.Platform.Name, Message: fmt.Sprintf("failed to parse %q", m.Raw()), Err: err}
	}
	if result == nil {
		return nil, NewParseError(m.Platform.Name, "handler returned no result for %q", m.Raw())
	}
	return result, nil
}

// Get returns the named parser if it is registered and enabled.
func (r *Registry) Get(name string) (Parser, error) {
	if p, ok := r.parserMap[name]; ok {
		return p, nil
	}
	return nil, ErrUnknownPlatform
}

// Platforms lists enabled platforms in registration order.
func (r *Registry) Platforms() []Platform {
	platforms := make([]Platform, 0, len(r.parsers))
	for _, p := range r.parsers {
		platforms = append(platforms, p.Platform())
	}
	return platforms
}

// Keywords lists "platform: keyword" pairs in dispatch order.
func (r *Registry) Keywords() []string {
	keywords := make([]string, 0, len(r.candidates))
	for _, c := range r.candidates {
		keywords = append(keywords, fmt.Sprintf("%s: %s", c.platform.Name, c.handler.Keyword))
	}
	return keywords
}
