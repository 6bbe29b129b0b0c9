// Package twitter parses X/Twitter posts through the xdown.app download service, enriched with the public oEmbed
// endpoint for author and text.
package twitter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/parser"
)

var Platform = media_resolver.Platform{Name: "twitter", DisplayName: "X"}

type Config struct {
	XDownBase  string
	OEmbedBase string
	AvatarBase string
}

func DefaultConfig() Config {
	return Config{
		XDownBase:  "https://xdown.app",
		OEmbedBase: "https://publish.twitter.com",
		AvatarBase: "https://unavatar.io/x",
	}
}

type Parser struct {
	*parser.Base
	config Config
}

func New(deps parser.Deps, config Config) *Parser {
	defaults := DefaultConfig()
	if config.XDownBase == "" {
		config.XDownBase = defaults.XDownBase
	}
	if config.OEmbedBase == "" {
		config.OEmbedBase = defaults.OEmbedBase
	}
	if config.AvatarBase == "" {
		config.AvatarBase = defaults.AvatarBase
	}
	p := &Parser{Base: deps.Base(Platform), config: config}
	p.Handle("x.com", `https?://(?:www\.)?x\.com/[0-9a-zA-Z_-]{1,20}/status/(?P<id>[0-9]+)`, p.handleStatus)
	p.Handle("twitter.com", `https?://(?:www\.|mobile\.)?twitter\.com/[0-9a-zA-Z_-]{1,20}/status/(?P<id>[0-9]+)`, p.handleStatus)
	return p
}

type xdownResponse struct {
	Status string `json:"status"`
	Data   string `json:"data"`
}

type oEmbed struct {
	AuthorName string `json:"author_name"`
	AuthorURL  string `json:"author_url"`
	HTML       string `json:"html"`
}

func (p *Parser) handleStatus(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	statusURL := m.Raw()
	page, err := p.search(ctx, statusURL)
	if err != nil {
		return nil, err
	}
	opts, err := p.parsePage(page)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to read xdown response", Err: err}
	}
	opts.URL = statusURL

	// Media is all xdown provides, so oEmbed failures only lose the author and text
	if embed, err := p.oEmbed(ctx, statusURL); err != nil {
		p.Log().Debugw("oEmbed unavailable", "url", statusURL, "error", err)
	} else {
		p.enrich(&opts, embed)
	}
	return p.Result(opts), nil
}

func (p *Parser) search(ctx context.Context, statusURL string) (string, error) {
	headers := p.Headers.Clone()
	headers.Set("Accept", "application/json, text/plain, */*")
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Origin", p.config.XDownBase)
	headers.Set("Referer", p.config.XDownBase+"/")
	form := url.Values{"q": {statusURL}, "lang": {"zh-cn"}}
	body, err := p.Downloader.Fetch(ctx, http.MethodPost, p.config.XDownBase+"/api/ajaxSearch", headers, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	var resp xdownResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("invalid xdown response: %w", err)
	}
	if resp.Status != "ok" {
		return "", media_resolver.NewParseError(Platform.Name, "xdown returned status %q", resp.Status)
	}
	if resp.Data == "" {
		return "", media_resolver.NewParseError(Platform.Name, "xdown returned no data")
	}
	return resp.Data, nil
}

// parsePage reads the first image as the video cover, the download buttons as media, and the heading as the title.
func (p *Parser) parsePage(page string) (media_resolver.ResultOptions, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return media_resolver.ResultOptions{}, err
	}
	cover, _ := doc.Find("img").First().Attr("src")

	var videoURL string
	var images, dynamics []string
	doc.Find("a.tw-button-dl, a.abutton").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		label := strings.TrimSpace(s.Text())
		switch {
		case strings.Contains(label, "下载 MP4"):
			videoURL = href
			return false
		case strings.Contains(label, "下载图片"):
			images = append(images, href)
		case strings.Contains(label, "下载 gif"):
			dynamics = append(dynamics, href)
		}
		return true
	})

	var contents []media_resolver.MediaContent
	if videoURL != "" {
		contents = append(contents, p.VideoURL(videoURL, cover, 0))
	}
	contents = append(contents, p.Images(images...)...)
	contents = append(contents, p.Dynamics(dynamics...)...)
	return media_resolver.ResultOptions{
		Title:    strings.TrimSpace(doc.Find("h3").First().Text()),
		Contents: contents,
	}, nil
}

func (p *Parser) oEmbed(ctx context.Context, statusURL string) (*oEmbed, error) {
	headers := p.Headers.Clone()
	headers.Set("Accept", "application/json")
	headers.Set("Referer", "https://publish.twitter.com/")
	var embed oEmbed
	u := p.config.OEmbedBase + "/oembed?" + url.Values{"url": {statusURL}}.Encode()
	if err := p.Downloader.GetJSON(ctx, u, headers, &embed); err != nil {
		return nil, err
	}
	return &embed, nil
}

func (p *Parser) enrich(opts *media_resolver.ResultOptions, embed *oEmbed) {
	name := strings.TrimSpace(embed.AuthorName)
	var screenName string
	if authorURL := strings.TrimSpace(embed.AuthorURL); strings.Contains(authorURL, "/") {
		screenName = authorURL[strings.LastIndex(authorURL, "/")+1:]
	}
	switch {
	case screenName != "":
		display := name
		if display == "" {
			display = screenName
		}
		if !strings.EqualFold(display, screenName) {
			display = fmt.Sprintf("%s (@%s)", display, screenName)
		}
		opts.Author = p.Author(display, p.config.AvatarBase+"/"+screenName, "")
	case name != "":
		opts.Author = p.Author(name, "", "")
	}
	if opts.Text == "" && embed.HTML != "" {
		opts.Text = embedText(embed.HTML)
	}
	if opts.Title == "" {
		opts.Title = name
		if opts.Title == "" {
			opts.Title = screenName
		}
	}
}

// embedText extracts the post text from the first paragraph of the oEmbed blockquote.
func embedText(html string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(html)))
	if err != nil {
		return ""
	}
	p := doc.Find("p").First()
	if p.Length() == 0 {
		return ""
	}
	return strings.Join(strings.Fields(p.Text()), " ")
}
