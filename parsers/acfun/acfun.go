// Package acfun parses acfun.cn videos, which are served as HLS playlists.
package acfun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
)

var Platform = media_resolver.Platform{Name: "acfun", DisplayName: "AcFun"}

// MaxHeight is the tallest representation downloaded.
const MaxHeight = 720

var videoInfoPattern = regexp.MustCompile(`(?s)window\.videoInfo\s*=\s*(.*?);?\s*</script>`)

type Config struct {
	WebBase string
}

type Parser struct {
	*parser.Base
	config Config
}

func New(deps parser.Deps, config Config) *Parser {
	if config.WebBase == "" {
		config.WebBase = "https://www.acfun.cn"
	}
	p := &Parser{Base: deps.Base(Platform), config: config}
	p.Headers.Set("Referer", "https://www.acfun.cn/")
	p.Handle("acfun.cn", `(?:ac=|/ac)(?P<acid>\d+)`, p.handleVideo)
	return p
}

type representation struct {
	URL          string `json:"url"`
	QualityLabel string `json:"qualityLabel"`
	Height       int    `json:"height"`
}

type videoInfo struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	CreateTime       string `json:"createTime"`
	CreateTimeMillis int64  `json:"createTimeMillis"`
	CoverURL         string `json:"coverUrl"`
	User             struct {
		Name    string `json:"name"`
		HeadURL string `json:"headUrl"`
	} `json:"user"`
	CurrentVideoInfo struct {
		DurationMillis int64  `json:"durationMillis"`
		KsPlayJSON     string `json:"ksPlayJson"`
	} `json:"currentVideoInfo"`
}

func (v *videoInfo) timestamp() int64 {
	if v.CreateTimeMillis > 0 {
		return v.CreateTimeMillis / 1000
	}
	if t, err := time.ParseInLocation("2006-1-2", v.CreateTime, time.Local); err == nil {
		return t.Unix()
	}
	return 0
}

// playlistURL picks the tallest representation no taller than MaxHeight, or the shortest if all are taller.
func (v *videoInfo) playlistURL() (string, error) {
	var ksPlay struct {
		AdaptationSet []struct {
			Representation []representation `json:"representation"`
		} `json:"adaptationSet"`
	}
	if err := json.Unmarshal([]byte(v.CurrentVideoInfo.KsPlayJSON), &ksPlay); err != nil {
		return "", fmt.Errorf("invalid ksPlayJson: %w", err)
	}
	if len(ksPlay.AdaptationSet) == 0 || len(ksPlay.AdaptationSet[0].Representation) == 0 {
		return "", fmt.Errorf("no representations")
	}
	var chosen, shortest *representation
	for i := range ksPlay.AdaptationSet[0].Representation {
		r := &ksPlay.AdaptationSet[0].Representation[i]
		if shortest == nil || r.Height < shortest.Height {
			shortest = r
		}
		if r.Height <= MaxHeight && (chosen == nil || r.Height > chosen.Height) {
			chosen = r
		}
	}
	if chosen == nil {
		chosen = shortest
	}
	return chosen.URL, nil
}

// decodeVideoInfo extracts the JSON assigned to window.videoInfo, which the ajaxpipe response escapes.
func decodeVideoInfo(page string) (*videoInfo, error) {
	matched := videoInfoPattern.FindStringSubmatch(page)
	if matched == nil {
		return nil, fmt.Errorf("videoInfo not found")
	}
	raw := strings.TrimSpace(matched[1])
	var info videoInfo
	if err := json.Unmarshal([]byte(raw), &info); err != nil {
		raw = strings.ReplaceAll(strings.ReplaceAll(raw, `\\"`, `\"`), `\"`, `"`)
		if err := json.Unmarshal([]byte(raw), &info); err != nil {
			return nil, fmt.Errorf("invalid videoInfo: %w", err)
		}
	}
	return &info, nil
}

func (p *Parser) handleVideo(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	acid := m.Named("acid")
	pageURL := fmt.Sprintf("%s/v/ac%s?quickViewId=videoInfo_new&ajaxpipe=1", p.config.WebBase, acid)
	body, err := p.Downloader.Fetch(ctx, http.MethodGet, pageURL, p.Headers, nil)
	if err != nil {
		return nil, err
	}
	info, err := decodeVideoInfo(string(body))
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to parse video page", Err: err}
	}
	playlist, err := info.playlistURL()
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "no playable stream", Err: err}
	}

	video := p.Video(func(ctx context.Context) (string, error) {
		return p.download(ctx, playlist, fmt.Sprintf("acfun_%s.mp4", acid))
	}, info.CoverURL, time.Duration(info.CurrentVideoInfo.DurationMillis)*time.Millisecond)

	var author *media_resolver.Author
	if info.User.Name != "" {
		author = p.Author(info.User.Name, info.User.HeadURL, "")
	}
	var text string
	if info.Description != "" {
		text = "Description: " + info.Description
	}
	return p.Result(media_resolver.ResultOptions{
		URL:       "https://www.acfun.cn/v/ac" + acid,
		Title:     info.Title,
		Author:    author,
		Timestamp: info.timestamp(),
		Text:      text,
		Contents:  []media_resolver.MediaContent{video},
	}), nil
}

func (p *Parser) download(ctx context.Context, playlistURL string, name string) (string, error) {
	if path, ok := p.Downloader.Cached(name); ok {
		return path, nil
	}
	body, err := p.Downloader.Fetch(ctx, http.MethodGet, playlistURL, p.Headers, nil)
	if err != nil {
		return "", &media_resolver.DownloadError{URL: playlistURL, Err: err}
	}
	segments, err := download.ParsePlaylist(string(body), playlistURL)
	if err != nil {
		return "", &media_resolver.DownloadError{URL: playlistURL, Err: err}
	}
	return p.Downloader.Segments(ctx, segments, name, p.Headers)
}
