// Package dispatch turns inbound chat messages into rendered results: match, parse (cached and de-duplicated),
// render, react.
package dispatch

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/internal/history"
	"github.com/alanbriolat/media-resolver/internal/pubsub"
	"github.com/alanbriolat/media-resolver/message"
	"github.com/alanbriolat/media-resolver/render"
)

// History receives one record per handled match.
type History interface {
	Add(ctx context.Context, r *history.Record) error
}

// DefaultParseTimeout bounds a shared parse, which outlives any one caller's context.
const DefaultParseTimeout = 5 * time.Minute

type Config struct {
	Registry     *media_resolver.Registry
	Renderer     render.Renderer
	CacheSize    int
	ParseTimeout time.Duration
	// Optional.
	History History
}

type Service struct {
	config Config
	log    *zap.SugaredLogger

	cache  *media_resolver.ResultCache
	flight singleflight.Group
	events pubsub.Publisher[Event]
}

func New(config Config) *Service {
	if config.CacheSize <= 0 {
		config.CacheSize = media_resolver.DefaultCacheSize
	}
	if config.ParseTimeout <= 0 {
		config.ParseTimeout = DefaultParseTimeout
	}
	return &Service{
		config: config,
		log:    zap.S().Named("dispatch"),
		cache:  media_resolver.NewResultCache(config.CacheSize),
		events: pubsub.NewPublisher[Event](),
	}
}

func (s *Service) Subscribe() (pubsub.ReceiverCloser[Event], error) {
	return s.events.Subscribe()
}

// SubscribeFiltered only receives events for which filter returns true.
func (s *Service) SubscribeFiltered(filter func(Event) bool) (pubsub.ReceiverCloser[Event], error) {
	ch := pubsub.NewChannel[Event](pubsub.DefaultSubscriberBufSize)
	if err := s.events.AddSubscriber(pubsub.NewFilteredSender[Event](ch, filter), true); err != nil {
		return nil, err
	}
	return ch, nil
}

func (s *Service) Close() {
	s.events.Close()
}

// Cache exposes the result cache, keyed by Match.Raw.
func (s *Service) Cache() *media_resolver.ResultCache {
	return s.cache
}

// Handle resolves the first supported link in the inbound message and renders it to conv. Input without a supported
// link returns media_resolver.ErrNoMatch without touching conv.
func (s *Service) Handle(ctx context.Context, in Inbound, conv message.Conversation) error {
	text := ExtractText(in)
	if text == "" {
		return media_resolver.ErrNoMatch
	}
	m, err := s.config.Registry.Match(text)
	if err != nil {
		return err
	}
	return s.HandleMatch(ctx, m, conv)
}

// HandleMatch resolves and renders an already matched link.
func (s *Service) HandleMatch(ctx context.Context, m *media_resolver.Match, conv message.Conversation) error {
	start := time.Now()
	logger := media_resolver.Logger(ctx).Named("dispatch").With(zap.String("platform", m.Platform.Name), zap.String("keyword", m.Keyword))
	ctx = media_resolver.WithLogger(ctx, logger)
	log := logger.Sugar()
	log.Infow("matched", "input", m.Raw())
	s.events.Send(MatchFound{matchEvent{m}})
	conv.React(ctx, message.Resolving)

	result, cached, err := s.Resolve(ctx, m)
	if err == nil {
		err = s.config.Renderer.Render(ctx, result, render.ToConversation(conv))
		s.events.Send(Rendered{matchEvent{m}, err})
		if err == nil {
			s.cache.Put(m.Raw(), result)
		}
	}

	if err != nil {
		log.Errorw("failed to resolve", "error", err)
		conv.React(ctx, message.Fail)
	} else {
		log.Infow("resolved", "cached", cached, "duration", time.Since(start))
		conv.React(ctx, message.Done)
	}
	s.record(ctx, m, result, cached, err, time.Since(start))
	return err
}

// Resolve returns the cached result for m, or parses it. Concurrent calls for the same match share one parse, which
// keeps running when the caller that started it gives up.
func (s *Service) Resolve(ctx context.Context, m *media_resolver.Match) (result *media_resolver.ParseResult, cached bool, err error) {
	key := m.Raw()
	if result, ok := s.cache.Get(key); ok {
		media_resolver.Logger(ctx).Sugar().Debugw("cache hit", "key", key)
		s.events.Send(CacheHit{matchEvent{m}, result})
		return result, true, nil
	}
	ch := s.flight.DoChan(key, func() (any, error) {
		parseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.config.ParseTimeout)
		defer cancel()
		return s.config.Registry.Parse(parseCtx, m)
	})
	var shared bool
	select {
	case r := <-ch:
		err, shared = r.Err, r.Shared
		if err == nil {
			result = r.Val.(*media_resolver.ParseResult)
		}
	case <-ctx.Done():
		err = ctx.Err()
	}
	s.events.Send(Parsed{matchEvent{m}, result, shared, err})
	return result, false, err
}

func (s *Service) record(ctx context.Context, m *media_resolver.Match, result *media_resolver.ParseResult, cached bool, err error, d time.Duration) {
	if s.config.History == nil {
		return
	}
	r := &history.Record{
		Platform: m.Platform.Name,
		Keyword:  m.Keyword,
		Input:    m.Raw(),
		Cached:   cached,
		Duration: d,
	}
	if result != nil {
		r.URL = result.URL
		r.Title = result.Title
		if result.Author != nil {
			r.Author = result.Author.Name
		}
	}
	if err != nil {
		r.Error = err.Error()
	}
	// Recording must not be cut short by the request being cancelled
	if hErr := s.config.History.Add(context.WithoutCancel(ctx), r); hErr != nil && !errors.Is(hErr, history.ErrClosed) {
		s.log.Warnw("failed to record history", "error", hErr)
	}
}
