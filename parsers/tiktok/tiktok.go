// Package tiktok parses TikTok videos with yt-dlp. It is only registered when yt-dlp is installed.
package tiktok

import (
	"context"
	"strings"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

var Platform = media_resolver.Platform{Name: "tiktok", DisplayName: "TikTok"}

type Parser struct {
	*parser.Base
	ytdlp *ytdlp.Downloader
}

func New(deps parser.Deps) *Parser {
	p := &Parser{Base: deps.Base(Platform), ytdlp: deps.YTDLP}
	p.Handle("tiktok.com", `(?:https?://)?(?P<prefix>www|vt|vm)\.tiktok\.com/[A-Za-z0-9._?%&+\-=/#@]*`, p.handleVideo)
	return p
}

// Available reports whether the yt-dlp backend is usable.
func (p *Parser) Available() bool {
	return p.ytdlp != nil && p.ytdlp.Available()
}

func (p *Parser) handleVideo(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	if !p.Available() {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "yt-dlp is required", Err: ytdlp.ErrUnavailable}
	}
	videoURL := m.Raw()
	switch m.Named("prefix") {
	case "vt", "vm":
		if !strings.HasPrefix(videoURL, "http") {
			videoURL = "https://" + videoURL
		}
		target, err := p.Downloader.RedirectURL(ctx, videoURL, p.Headers)
		if err != nil {
			return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "redirect failed", Err: err}
		}
		videoURL = target
	}

	info, err := p.ytdlp.ExtractInfo(ctx, videoURL)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get video info", Err: err}
	}
	var contents []media_resolver.MediaContent
	if p.Allows(media_resolver.KindVideo) {
		contents = append(contents, p.Video(func(ctx context.Context) (string, error) {
			return p.ytdlp.Video(ctx, videoURL)
		}, info.Thumbnail, info.DurationValue()))
	} else if info.Thumbnail != "" {
		contents = p.Images(info.Thumbnail)
	}
	var author *media_resolver.Author
	if name := info.Author(); name != "" {
		author = p.Author(name, "", "")
	}
	return p.Result(media_resolver.ResultOptions{
		URL:       videoURL,
		Title:     info.Title,
		Author:    author,
		Timestamp: info.Timestamp,
		Text:      info.Description,
		Contents:  contents,
	}), nil
}
