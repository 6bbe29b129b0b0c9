// Package youtube parses YouTube videos with kkdai/youtube, falling back to yt-dlp when it is installed.
package youtube

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

var Platform = media_resolver.Platform{Name: "youtube", DisplayName: "YouTube"}

// MaxHeight caps the resolution of adaptive video streams.
const MaxHeight = 1080

type Parser struct {
	*parser.Base
	client *youtube.Client
	ytdlp  *ytdlp.Downloader
}

func New(deps parser.Deps) *Parser {
	p := &Parser{
		Base:   deps.Base(Platform),
		client: &youtube.Client{},
		ytdlp:  deps.YTDLP,
	}
	p.Handle("youtu.be", `https?://(?:www\.)?youtu\.be/[A-Za-z\d._?%&+\-=/#]+`, p.handleVideo)
	p.Handle("youtube.com", `https?://(?:www\.|m\.)?youtube\.com/(?:watch|shorts|v)(?:/[A-Za-z\d_\-]+|\?[A-Za-z\d._%&+\-=]*v=[A-Za-z\d_\-]+)`, p.handleVideo)
	p.Handle("music.youtube.com", `https?://music\.youtube\.com/watch\?[A-Za-z\d._%&+\-=]*v=[A-Za-z\d_\-]+`, p.handleAudio)
	return p
}

func (p *Parser) handleVideo(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	return p.parse(ctx, m.Raw(), false)
}

func (p *Parser) handleAudio(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	return p.parse(ctx, m.Raw(), true)
}

func (p *Parser) parse(ctx context.Context, rawURL string, audioOnly bool) (*media_resolver.ParseResult, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	videoID, err := extractVideoID(parsedURL)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "invalid url", Err: err}
	}
	video, err := p.client.GetVideoContext(ctx, videoID)
	if err != nil {
		if p.ytdlp != nil && p.ytdlp.Available() {
			p.Log().Infow("falling back to yt-dlp", "id", videoID, "error", err)
			return p.parseWithYTDLP(ctx, canonicalURL(videoID), audioOnly)
		}
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get video info", Err: err}
	}

	thumbnail := bestThumbnail(video.Thumbnails)
	var contents []media_resolver.MediaContent
	if audioOnly {
		contents = append(p.thumbnail(thumbnail), p.Audio(func(ctx context.Context) (string, error) {
			return p.downloadAudio(ctx, video)
		}, video.Duration))
	} else {
		v := p.Video(func(ctx context.Context) (string, error) {
			return p.downloadVideo(ctx, video)
		}, thumbnail, video.Duration)
		contents = append(contents, v)
		if v == nil {
			contents = append(contents, p.thumbnail(thumbnail)...)
		}
	}

	var timestamp int64
	if !video.PublishDate.IsZero() {
		timestamp = video.PublishDate.Unix()
	}
	return p.Result(media_resolver.ResultOptions{
		URL:       canonicalURL(video.ID),
		Title:     video.Title,
		Author:    p.Author(video.Author, "", ""),
		Timestamp: timestamp,
		Text:      video.Description,
		Contents:  contents,
	}), nil
}

func (p *Parser) parseWithYTDLP(ctx context.Context, videoURL string, audioOnly bool) (*media_resolver.ParseResult, error) {
	info, err := p.ytdlp.ExtractInfo(ctx, videoURL)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "yt-dlp failed", Err: err}
	}
	var contents []media_resolver.MediaContent
	if audioOnly {
		contents = append(p.thumbnail(info.Thumbnail), p.Audio(func(ctx context.Context) (string, error) {
			return p.ytdlp.Audio(ctx, videoURL)
		}, info.DurationValue()))
	} else {
		contents = append(contents, p.Video(func(ctx context.Context) (string, error) {
			return p.ytdlp.Video(ctx, videoURL)
		}, info.Thumbnail, info.DurationValue()))
	}
	return p.Result(media_resolver.ResultOptions{
		URL:       videoURL,
		Title:     info.Title,
		Author:    p.Author(info.Author(), "", ""),
		Timestamp: info.Timestamp,
		Text:      info.Description,
		Contents:  contents,
	}), nil
}

func (p *Parser) downloadVideo(ctx context.Context, video *youtube.Video) (string, error) {
	name := video.ID + ".mp4"
	if path, ok := p.Downloader.Cached(name); ok {
		return path, nil
	}
	progressive, videoOnly, audio := selectFormats(video.Formats)
	switch {
	case progressive != nil:
		streamURL, err := p.client.GetStreamURLContext(ctx, video, progressive)
		if err != nil {
			return "", &media_resolver.DownloadError{URL: video.ID, Err: err}
		}
		return p.Downloader.StreamVideo(ctx, streamURL, name, p.Headers)
	case videoOnly != nil && audio != nil:
		videoURL, err := p.client.GetStreamURLContext(ctx, video, videoOnly)
		if err != nil {
			return "", &media_resolver.DownloadError{URL: video.ID, Err: err}
		}
		audioURL, err := p.client.GetStreamURLContext(ctx, video, audio)
		if err != nil {
			return "", &media_resolver.DownloadError{URL: video.ID, Err: err}
		}
		return p.Downloader.MergeAV(ctx, videoURL, audioURL, name, p.Headers)
	default:
		return "", &media_resolver.DownloadError{URL: video.ID, Err: fmt.Errorf("no mp4 formats available")}
	}
}

func (p *Parser) downloadAudio(ctx context.Context, video *youtube.Video) (string, error) {
	_, _, audio := selectFormats(video.Formats)
	if audio == nil {
		return "", &media_resolver.DownloadError{URL: video.ID, Err: fmt.Errorf("no audio formats available")}
	}
	streamURL, err := p.client.GetStreamURLContext(ctx, video, audio)
	if err != nil {
		return "", &media_resolver.DownloadError{URL: video.ID, Err: err}
	}
	return p.Downloader.Stream(ctx, streamURL, video.ID+".m4a", p.Headers)
}

// selectFormats picks the best progressive mp4 (video with audio), the best adaptive mp4 video no taller than
// MaxHeight, and the best mp4 audio stream. Any of them may be nil.
func selectFormats(formats youtube.FormatList) (progressive *youtube.Format, video *youtube.Format, audio *youtube.Format) {
	for i := range formats {
		f := &formats[i]
		switch {
		case strings.HasPrefix(f.MimeType, "video/mp4") && f.AudioChannels > 0:
			if progressive == nil || f.Height > progressive.Height {
				progressive = f
			}
		case strings.HasPrefix(f.MimeType, "video/mp4") && f.Height <= MaxHeight:
			if video == nil || f.Height > video.Height || (f.Height == video.Height && f.Bitrate > video.Bitrate) {
				video = f
			}
		case strings.HasPrefix(f.MimeType, "audio/mp4"):
			if audio == nil || f.Bitrate > audio.Bitrate {
				audio = f
			}
		}
	}
	return progressive, video, audio
}

func (p *Parser) thumbnail(u string) []media_resolver.MediaContent {
	if u == "" {
		return nil
	}
	return p.Images(u)
}

func bestThumbnail(thumbnails youtube.Thumbnails) string {
	var best youtube.Thumbnail
	for _, t := range thumbnails {
		if t.Width*t.Height >= best.Width*best.Height {
			best = t
		}
	}
	return best.URL
}

func canonicalURL(videoID string) string {
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", videoID)
}

// Extract video ID from YouTube URL.
//
// Allowed URL formats:
//		http(s?)://(www|m|music).youtube.com/(watch|details)?v={VIDEO_ID}
//		http(s?)://(www|m).youtube.com/(v|shorts)/{VIDEO_ID}
//		http(s?)://youtu.be/{VIDEO_ID}
func extractVideoID(url *url.URL) (string, error) {
	var id string
	switch url.Hostname() {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com":
		if strings.HasPrefix(url.Path, "/v/") || strings.HasPrefix(url.Path, "/shorts/") {
			id = strings.SplitN(url.Path, "/", 4)[2]
		} else if url.Path == "/watch" || url.Path == "/details" {
			if url.Query().Has("v") {
				id = url.Query().Get("v")
			} else {
				return "", fmt.Errorf("missing ?v= query parameter")
			}
		}
	case "youtu.be", "www.youtu.be":
		id = strings.SplitN(strings.Trim(url.Path, "/"), "/", 2)[0]
	default:
		return "", fmt.Errorf("unrecognised hostname")
	}
	if id == "" {
		return "", fmt.Errorf("could not extract video ID")
	}
	return id, nil
}
