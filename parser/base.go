// Package parser holds the machinery shared by every platform plugin: the handler table, the media policy, content
// constructors that start their downloads immediately, and redirect handling.
package parser

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/async"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/generic"
	"github.com/alanbriolat/media-resolver/util"
)

// MediaMode restricts which kinds of media parsers are allowed to download.
type MediaMode string

const (
	MediaAll       MediaMode = "all"
	MediaImageOnly MediaMode = "image_only"
	MediaNone      MediaMode = "none"
)

// Options are the policy settings shared by all parsers.
type Options struct {
	MediaMode MediaMode
	// MaxDuration is the longest video or audio that will be downloaded; 0 means unlimited.
	MaxDuration time.Duration
}

// Base is embedded by platform parsers. Handlers are registered in the platform's constructor with Handle.
type Base struct {
	Headers    http.Header
	Downloader *download.Downloader

	platform media_resolver.Platform
	options  Options
	handlers []media_resolver.Handler
	redirect generic.Set[string]
	log      *zap.SugaredLogger
}

func NewBase(platform media_resolver.Platform, downloader *download.Downloader, options Options) *Base {
	if options.MediaMode == "" {
		options.MediaMode = MediaAll
	}
	return &Base{
		Headers:    CommonHeaders(),
		Downloader: downloader,
		platform:   platform,
		options:    options,
		redirect:   generic.NewSet[string](),
		log:        zap.S().Named(platform.Name),
	}
}

func (b *Base) Platform() media_resolver.Platform {
	return b.platform
}

func (b *Base) Handlers() []media_resolver.Handler {
	return append([]media_resolver.Handler(nil), b.handlers...)
}

func (b *Base) Log() *zap.SugaredLogger {
	return b.log
}

// Handle registers f for input containing keyword and matching pattern, keeping the table sorted by descending
// keyword length.
func (b *Base) Handle(keyword string, pattern string, f media_resolver.HandlerFunc) {
	b.handlers = append(b.handlers, media_resolver.Handler{
		Keyword: keyword,
		Pattern: regexp.MustCompile(pattern),
		Handle:  f,
	})
	media_resolver.SortHandlers(b.handlers)
}

// HandleRedirect registers a short-link handler: the matched text is redirected once and the result parsed by this
// platform's other handlers. Matches without a scheme are treated as https.
func (b *Base) HandleRedirect(keyword string, pattern string) {
	b.redirect.Add(keyword)
	b.Handle(keyword, pattern, func(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
		url := m.Raw()
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://" + url
		}
		return b.ParseWithRedirect(ctx, url)
	})
}

// ParseWithRedirect resolves one redirect hop and dispatches the target through this platform's handlers. No
// redirect is a parse failure, and redirect handlers are not considered again, so there is no loop.
func (b *Base) ParseWithRedirect(ctx context.Context, url string) (*media_resolver.ParseResult, error) {
	target, err := b.Downloader.RedirectURL(ctx, url, b.Headers)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: b.platform.Name, Message: "redirect failed", Err: err}
	}
	if target == url {
		return nil, media_resolver.NewParseError(b.platform.Name, "no redirect for %s", url)
	}
	return b.ParseURL(ctx, target)
}

// ParseURL dispatches url through this platform's non-redirect handlers.
func (b *Base) ParseURL(ctx context.Context, url string) (*media_resolver.ParseResult, error) {
	var handlers []media_resolver.Handler
	for _, h := range b.handlers {
		if !b.redirect.Contains(h.Keyword) {
			handlers = append(handlers, h)
		}
	}
	m, err := media_resolver.MatchHandlers(b.platform, handlers, url)
	if err != nil {
		return nil, media_resolver.NewParseError(b.platform.Name, "no handler for %s", url)
	}
	b.log.Debugw("dispatching resolved url", "url", url, "keyword", m.Keyword)
	return media_resolver.InvokeHandler(ctx, m)
}

// GetJSON fetches url with the platform headers and decodes the response.
func (b *Base) GetJSON(ctx context.Context, url string, out any) error {
	return b.Downloader.GetJSON(ctx, url, b.Headers, out)
}

// Allows applies the media policy.
func (b *Base) Allows(kind media_resolver.MediaKind) bool {
	switch b.options.MediaMode {
	case MediaAll:
		return true
	case MediaImageOnly:
		return kind == media_resolver.KindImage || kind == media_resolver.KindGraphics
	default:
		return false
	}
}

// Result builds a ParseResult for this platform.
func (b *Base) Result(opts media_resolver.ResultOptions) *media_resolver.ParseResult {
	return media_resolver.NewResult(b.platform, opts)
}

// Author starts the avatar download, if there is an avatar.
func (b *Base) Author(name string, avatarURL string, description string) *media_resolver.Author {
	var avatar media_resolver.FetchHandle
	if avatarURL != "" {
		avatar = b.Downloader.Image(avatarURL, b.Headers)
	}
	return media_resolver.NewAuthor(name, avatar, description)
}

// Video creates a video whose file is produced by fetch. If duration is over the limit, fetch is never called and
// the content fails with ErrDurationLimit. Returns nil if videos are not allowed.
func (b *Base) Video(fetch func(ctx context.Context) (string, error), coverURL string, duration time.Duration) *media_resolver.VideoContent {
	if !b.Allows(media_resolver.KindVideo) {
		return nil
	}
	var cover media_resolver.FetchHandle
	if coverURL != "" {
		cover = b.Downloader.Image(coverURL, b.Headers)
	}
	return media_resolver.NewVideoContent(b.limited(media_resolver.KindVideo, duration, func() media_resolver.FetchHandle {
		return b.Downloader.Go(fetch)
	}), cover, duration)
}

// limited calls start unless duration is over the limit, in which case the content fails with ErrDurationLimit and
// nothing is downloaded.
func (b *Base) limited(kind media_resolver.MediaKind, duration time.Duration, start func() media_resolver.FetchHandle) media_resolver.FetchHandle {
	if b.options.MaxDuration > 0 && duration > b.options.MaxDuration {
		b.log.Infow("media exceeds duration limit", "kind", kind, "duration", duration, "limit", b.options.MaxDuration)
		return async.Failed[string](fmt.Errorf("%w: %s > %s", media_resolver.ErrDurationLimit, duration, b.options.MaxDuration))
	}
	return start()
}

// VideoURL is Video for a plain progressive download.
func (b *Base) VideoURL(url string, coverURL string, duration time.Duration) *media_resolver.VideoContent {
	return b.Video(func(ctx context.Context) (string, error) {
		return b.Downloader.StreamVideo(ctx, url, util.CacheFileName(url, ".mp4"), b.Headers)
	}, coverURL, duration)
}

// Audio creates an audio item whose file is produced by fetch, under the same duration limit as Video. Returns nil if
// audio is not allowed.
func (b *Base) Audio(fetch func(ctx context.Context) (string, error), duration time.Duration) *media_resolver.AudioContent {
	if !b.Allows(media_resolver.KindAudio) {
		return nil
	}
	return media_resolver.NewAudioContent(b.limited(media_resolver.KindAudio, duration, func() media_resolver.FetchHandle {
		return b.Downloader.Go(fetch)
	}), duration)
}

func (b *Base) AudioURL(url string, duration time.Duration) *media_resolver.AudioContent {
	if !b.Allows(media_resolver.KindAudio) {
		return nil
	}
	return media_resolver.NewAudioContent(b.limited(media_resolver.KindAudio, duration, func() media_resolver.FetchHandle {
		return b.Downloader.Audio(url, b.Headers)
	}), duration)
}

// Images starts a download per URL. Returns nothing if images are not allowed.
func (b *Base) Images(urls ...string) []media_resolver.MediaContent {
	if !b.Allows(media_resolver.KindImage) {
		return nil
	}
	contents := make([]media_resolver.MediaContent, 0, len(urls))
	for _, url := range urls {
		contents = append(contents, media_resolver.NewImageContent(b.Downloader.Image(url, b.Headers)))
	}
	return contents
}

// Dynamics starts a download per animated image, delivered as video.
func (b *Base) Dynamics(urls ...string) []media_resolver.MediaContent {
	if !b.Allows(media_resolver.KindDynamic) {
		return nil
	}
	contents := make([]media_resolver.MediaContent, 0, len(urls))
	for _, url := range urls {
		contents = append(contents, media_resolver.NewDynamicContent(b.Downloader.Video(url, b.Headers)))
	}
	return contents
}

// Graphics creates an image with caption text before it and alt text after it. Returns nil if not allowed.
func (b *Base) Graphics(imageURL string, text string, alt string) *media_resolver.GraphicsContent {
	if !b.Allows(media_resolver.KindGraphics) {
		return nil
	}
	return media_resolver.NewGraphicsContent(b.Downloader.Image(imageURL, b.Headers), text, alt)
}
