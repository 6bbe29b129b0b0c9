package media_resolver

import (
	"context"
	"time"

	"github.com/alanbriolat/media-resolver/generic"
	"github.com/alanbriolat/media-resolver/internal/sync_"
)

// ParseResult is the uniform output of every platform handler.
//
// A ParseResult is read-only once constructed, except for the rendered-card slot, which is set at most once (see
// SetRenderedImage) and reused by later renders of the same result.
type ParseResult struct {
	Platform Platform
	URL      string
	Title    string
	Author   *Author
	// Unix seconds; 0 when unknown.
	Timestamp int64
	Text      string
	Contents  []MediaContent
	// Repost is the post being shared or quoted by this one.
	Repost *ParseResult
	Extra  map[string]string

	renderedImage sync_.Mutexed[string]
}

// ResultOptions are the optional fields of a ParseResult.
type ResultOptions struct {
	URL       string
	Title     string
	Author    *Author
	Timestamp int64
	Text      string
	Contents  []MediaContent
	Repost    *ParseResult
	Extra     map[string]string
}

// NewResult builds a ParseResult, filtering out nil contents left by policy-disabled constructors.
func NewResult(platform Platform, opts ResultOptions) *ParseResult {
	return &ParseResult{
		Platform:  platform,
		URL:       opts.URL,
		Title:     opts.Title,
		Author:    opts.Author,
		Timestamp: opts.Timestamp,
		Text:      opts.Text,
		Contents:  CompactContents(opts.Contents...),
		Repost:    opts.Repost,
		Extra:     opts.Extra,
	}
}

// RenderedImage returns the path of a previously rendered card, if any.
func (r *ParseResult) RenderedImage() generic.Option[string] {
	return generic.NonZero(r.renderedImage.Get())
}

// SetRenderedImage stores path only if no card has been stored yet, and returns the stored path.
func (r *ParseResult) SetRenderedImage(path string) string {
	return sync_.SetIfZero[string](&r.renderedImage, path)
}

// Header is the "author - title" line used by text renderers.
func (r *ParseResult) Header() string {
	header := ""
	if r.Author != nil && r.Author.Name != "" {
		header = r.Author.Name
	}
	if r.Title != "" {
		if header != "" {
			header += " - "
		}
		header += r.Title
	}
	return header
}

func (r *ParseResult) DisplayURL() string {
	if r.URL == "" {
		return ""
	}
	return "Link: " + r.URL
}

func (r *ParseResult) RepostDisplayURL() string {
	if r.Repost == nil || r.Repost.URL == "" {
		return ""
	}
	return "Original: " + r.Repost.URL
}

// FormattedTime renders Timestamp in local time, or "" if unknown.
func (r *ParseResult) FormattedTime() string {
	if r.Timestamp <= 0 {
		return ""
	}
	return time.Unix(r.Timestamp, 0).Local().Format("2006-01-02 15:04:05")
}

func (r *ParseResult) ExtraInfo() string {
	if r.Extra == nil {
		return ""
	}
	return r.Extra["info"]
}

// CoverPath resolves the cover of the first video that has one.
func (r *ParseResult) CoverPath(ctx context.Context) (generic.Option[string], error) {
	for _, v := range r.VideoContents() {
		if v.Cover != nil {
			return v.CoverPath(ctx)
		}
	}
	return generic.None[string](), nil
}

func (r *ParseResult) VideoContents() []*VideoContent {
	return contentsOf[*VideoContent](r.Contents)
}

func (r *ParseResult) ImageContents() []*ImageContent {
	return contentsOf[*ImageContent](r.Contents)
}

func (r *ParseResult) GraphicsContents() []*GraphicsContent {
	return contentsOf[*GraphicsContent](r.Contents)
}

// AllContents is Contents followed by the repost's Contents.
func (r *ParseResult) AllContents() []MediaContent {
	all := make([]MediaContent, 0, len(r.Contents))
	all = append(all, r.Contents...)
	if r.Repost != nil {
		all = append(all, r.Repost.Contents...)
	}
	return all
}

func contentsOf[T MediaContent](contents []MediaContent) []T {
	var result []T
	for _, c := range contents {
		if t, ok := c.(T); ok {
			result = append(result, t)
		}
	}
	return result
}
