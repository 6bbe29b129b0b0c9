package media_resolver

import (
	"context"
	"reflect"
	"time"

	"github.com/alanbriolat/media-resolver/async"
	"github.com/alanbriolat/media-resolver/generic"
)

// Platform identifies which parser produced a result.
type Platform struct {
	Name        string
	DisplayName string
}

func (p Platform) String() string {
	return p.Name
}

type MediaKind string

const (
	KindVideo    MediaKind = "video"
	KindAudio    MediaKind = "audio"
	KindImage    MediaKind = "image"
	KindDynamic  MediaKind = "dynamic"
	KindGraphics MediaKind = "graphics"
)

// A FetchHandle resolves to the local path of a downloaded file.
type FetchHandle = *async.Task[string]

// MediaContent is a lazily resolved, memoized handle to a downloadable media artifact. The fetch is started when the
// content is constructed, and Path awaits the same fetch every time.
type MediaContent interface {
	Kind() MediaKind
	Path(ctx context.Context) (string, error)
}

type media struct {
	fetch FetchHandle
}

func (m media) Path(ctx context.Context) (string, error) {
	return m.fetch.Wait(ctx)
}

type VideoContent struct {
	media
	// Cover is an optional fetch of the thumbnail image.
	Cover    FetchHandle
	Duration time.Duration
}

func NewVideoContent(fetch FetchHandle, cover FetchHandle, duration time.Duration) *VideoContent {
	return &VideoContent{media: media{fetch}, Cover: cover, Duration: duration}
}

func (*VideoContent) Kind() MediaKind { return KindVideo }

// CoverPath resolves the cover image, or None if the video has no cover.
func (v *VideoContent) CoverPath(ctx context.Context) (generic.Option[string], error) {
	if v.Cover == nil {
		return generic.None[string](), nil
	}
	path, err := v.Cover.Wait(ctx)
	if err != nil {
		return generic.None[string](), err
	}
	return generic.Some(path), nil
}

type AudioContent struct {
	media
	Duration time.Duration
}

func NewAudioContent(fetch FetchHandle, duration time.Duration) *AudioContent {
	return &AudioContent{media: media{fetch}, Duration: duration}
}

func (*AudioContent) Kind() MediaKind { return KindAudio }

type ImageContent struct {
	media
}

func NewImageContent(fetch FetchHandle) *ImageContent {
	return &ImageContent{media{fetch}}
}

func (*ImageContent) Kind() MediaKind { return KindImage }

// DynamicContent is an animated image delivered as a short video.
type DynamicContent struct {
	media
}

func NewDynamicContent(fetch FetchHandle) *DynamicContent {
	return &DynamicContent{media{fetch}}
}

func (*DynamicContent) Kind() MediaKind { return KindDynamic }

// GraphicsContent is an image with optional caption text rendered before it and alt text after it.
type GraphicsContent struct {
	media
	Text string
	Alt  string
}

func NewGraphicsContent(fetch FetchHandle, text string, alt string) *GraphicsContent {
	return &GraphicsContent{media: media{fetch}, Text: text, Alt: alt}
}

func (*GraphicsContent) Kind() MediaKind { return KindGraphics }

// Author of a post. The avatar fetch, if any, follows the same contract as MediaContent.
type Author struct {
	Name        string
	Description string
	avatar      FetchHandle
}

func NewAuthor(name string, avatar FetchHandle, description string) *Author {
	return &Author{Name: name, Description: description, avatar: avatar}
}

// HasAvatar reports whether an avatar fetch exists.
func (a *Author) HasAvatar() bool {
	return a != nil && a.avatar != nil
}

// AvatarPath resolves the avatar image, or None without fetching anything if there is no avatar.
func (a *Author) AvatarPath(ctx context.Context) (generic.Option[string], error) {
	if !a.HasAvatar() {
		return generic.None[string](), nil
	}
	path, err := a.avatar.Wait(ctx)
	if err != nil {
		return generic.None[string](), err
	}
	return generic.Some(path), nil
}

// isNil catches both untyped nil and typed nil pointers stored in an interface.
func isNil(c MediaContent) bool {
	if c == nil {
		return true
	}
	v := reflect.ValueOf(c)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// CompactContents drops nil entries, preserving order.
func CompactContents(contents ...MediaContent) []MediaContent {
	result := make([]MediaContent, 0, len(contents))
	for _, c := range contents {
		if !isNil(c) {
			result = append(result, c)
		}
	}
	return result
}
