// Package bilibili parses videos, dynamics, articles, live rooms and favourite lists from bilibili.com.
package bilibili

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/internal/credstore"
	"github.com/alanbriolat/media-resolver/parser"
)

var Platform = media_resolver.Platform{Name: "bilibili", DisplayName: "哔哩哔哩"}

type Config struct {
	// Cookie is saved to the credential store when set; otherwise the stored cookie is used.
	Cookie string
	// VideoCodec is the preferred DASH codec prefix: "avc", "hev" or "av01".
	VideoCodec  string
	APIBase     string
	LiveAPIBase string
	WebBase     string
}

func DefaultConfig() Config {
	return Config{
		VideoCodec:  "avc",
		APIBase:     "https://api.bilibili.com",
		LiveAPIBase: "https://api.live.bilibili.com",
		WebBase:     "https://www.bilibili.com",
	}
}

type Parser struct {
	*parser.Base
	config Config
}

func New(deps parser.Deps, config Config) *Parser {
	defaults := DefaultConfig()
	if config.APIBase == "" {
		config.APIBase = defaults.APIBase
	}
	if config.LiveAPIBase == "" {
		config.LiveAPIBase = defaults.LiveAPIBase
	}
	if config.WebBase == "" {
		config.WebBase = defaults.WebBase
	}
	p := &Parser{Base: deps.Base(Platform), config: config}
	p.Headers.Set("Referer", "https://www.bilibili.com/")
	p.Headers.Set("Origin", "https://www.bilibili.com")
	if cookie := p.loadCookie(deps.CredentialStore()); cookie != "" {
		p.Headers.Set("Cookie", cookie)
	}

	p.HandleRedirect("b23.tv", `b23\.tv/[A-Za-z\d._?%&+\-=/#]+`)
	p.HandleRedirect("bili2233", `bili2233\.cn/[A-Za-z\d._?%&+\-=/#]+`)
	p.Handle("BV", `^(?P<bvid>BV[0-9a-zA-Z]{10})(?:\s)?(?P<page>\d{1,3})?$`, p.handleBV)
	p.Handle("/BV", `bilibili\.com(?:/video)?/(?P<bvid>BV[0-9a-zA-Z]{10})(?:/?\?(?:\S*&)?p=(?P<page>\d{1,3}))?`, p.handleBV)
	p.Handle("av", `^av(?P<aid>\d{6,})(?:\s)?(?P<page>\d{1,3})?$`, p.handleAV)
	p.Handle("/av", `bilibili\.com(?:/video)?/av(?P<aid>\d{6,})(?:/?\?(?:\S*&)?p=(?P<page>\d{1,3}))?`, p.handleAV)
	p.Handle("/dynamic/", `bilibili\.com/dynamic/(?P<id>\d+)`, p.handleDynamic)
	p.Handle("t.bili", `t\.bilibili\.com/(?P<id>\d+)`, p.handleDynamic)
	p.Handle("live.bili", `live\.bilibili\.com/(?P<id>\d+)`, p.handleLive)
	p.Handle("/favlist", `favlist\?fid=(?P<id>\d+)`, p.handleFavList)
	p.Handle("/read/", `bilibili\.com/read/cv(?P<id>\d+)`, p.handleRead)
	p.Handle("/opus/", `bilibili\.com/opus/(?P<id>\d+)`, p.handleOpus)
	return p
}

func (p *Parser) loadCookie(store credstore.Store) string {
	if p.config.Cookie != "" {
		if err := store.Save(Platform.Name, p.config.Cookie); err != nil {
			p.Log().Warnw("failed to save cookie", "error", err)
		}
		return p.config.Cookie
	}
	cred, err := store.Load(Platform.Name)
	if err == nil {
		p.Log().Infow("using stored cookie", "saved_at", cred.SavedAt)
		return cred.Cookie
	} else if !errors.Is(err, credstore.ErrNotFound) {
		p.Log().Warnw("failed to load cookie", "error", err)
	}
	p.Log().Warn("no cookie configured, streams above 480p are unavailable")
	return ""
}

func (p *Parser) api(ctx context.Context, path string, query url.Values, data any) error {
	return p.GetJSON(ctx, p.config.APIBase+path+"?"+query.Encode(), data)
}

func pageNumber(m *media_resolver.Match) int {
	if n, err := strconv.Atoi(m.Named("page")); err == nil && n > 0 {
		return n
	}
	return 1
}

func (p *Parser) handleBV(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	return p.parseVideo(ctx, url.Values{"bvid": {m.Named("bvid")}}, pageNumber(m))
}

func (p *Parser) handleAV(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	return p.parseVideo(ctx, url.Values{"aid": {m.Named("aid")}}, pageNumber(m))
}

func (p *Parser) parseVideo(ctx context.Context, query url.Values, pageNum int) (*media_resolver.ParseResult, error) {
	var resp response[videoInfo]
	if err := p.api(ctx, "/x/web-interface/view", query, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get video info", Err: err}
	}
	info := &resp.Data
	index, page := info.page(pageNum)

	title := info.Title
	displayURL := "https://www.bilibili.com/video/" + info.BVID
	if len(info.Pages) > 1 {
		title = fmt.Sprintf("%s [P%d] %s", info.Title, index+1, page.Part)
	}
	if index > 0 {
		displayURL += fmt.Sprintf("?p=%d", index+1)
	}
	cover := page.FirstFrame
	if cover == "" {
		cover = info.Pic
	}

	name := fmt.Sprintf("%s-%d.mp4", info.BVID, index+1)
	video := p.Video(func(ctx context.Context) (string, error) {
		return p.downloadVideo(ctx, info.BVID, page.CID, name)
	}, cover, time.Duration(page.Duration)*time.Second)

	return p.Result(media_resolver.ResultOptions{
		URL:       displayURL,
		Title:     title,
		Author:    p.Author(info.Owner.Name, info.Owner.Face, ""),
		Timestamp: info.PubDate,
		Text:      info.Desc,
		Contents:  []media_resolver.MediaContent{video},
		Extra:     map[string]string{"info": info.statInfo()},
	}), nil
}

func (p *Parser) downloadVideo(ctx context.Context, bvid string, cid int64, name string) (string, error) {
	if path, ok := p.Downloader.Cached(name); ok {
		return path, nil
	}
	query := url.Values{
		"bvid":  {bvid},
		"cid":   {strconv.FormatInt(cid, 10)},
		"fnval": {"4048"},
		"fourk": {"1"},
	}
	var resp response[playURL]
	if err := p.api(ctx, "/x/player/playurl", query, &resp); err != nil {
		return "", &media_resolver.DownloadError{URL: bvid, Err: err}
	}
	if err := resp.Err(); err != nil {
		return "", &media_resolver.DownloadError{URL: bvid, Err: err}
	}
	if dash := resp.Data.Dash; dash != nil {
		if v, ok := bestVideo(dash.Video, p.config.VideoCodec); ok {
			p.Log().Debugw("selected stream", "bvid", bvid, "quality", v.ID, "codecs", v.Codecs)
			if a, ok := bestAudio(dash.Audio); ok {
				return p.Downloader.MergeAV(ctx, v.BaseURL, a.BaseURL, name, p.Headers)
			}
			return p.Downloader.StreamVideo(ctx, v.BaseURL, name, p.Headers)
		}
	}
	if len(resp.Data.Durl) > 0 {
		return p.Downloader.StreamVideo(ctx, resp.Data.Durl[0].URL, name, p.Headers)
	}
	return "", &media_resolver.DownloadError{URL: bvid, Err: errors.New("no playable stream")}
}

func (p *Parser) handleDynamic(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	var resp response[dynamicDetail]
	query := url.Values{"id": {m.Named("id")}, "features": {"itemOpusStyle"}}
	if err := p.api(ctx, "/x/polymer/web-dynamic/v1/detail", query, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get dynamic", Err: err}
	}
	item := &resp.Data.Item
	result := p.dynamicResult(item)
	if item.Orig != nil {
		result.Repost = p.dynamicResult(item.Orig)
	}
	return result, nil
}

func (p *Parser) dynamicResult(item *dynamicItem) *media_resolver.ParseResult {
	var images, gifs []string
	for _, u := range item.imageURLs() {
		if strings.HasSuffix(strings.ToLower(u), ".gif") {
			gifs = append(gifs, u)
		} else {
			images = append(images, u)
		}
	}
	contents := append(p.Images(images...), p.Dynamics(gifs...)...)
	author := item.Modules.Author
	return p.Result(media_resolver.ResultOptions{
		URL:       "https://t.bilibili.com/" + item.IDStr,
		Title:     item.title(),
		Author:    p.Author(author.Name, author.Face, ""),
		Timestamp: author.PubTS,
		Text:      item.text(),
		Contents:  contents,
	})
}

func (p *Parser) handleLive(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	var room response[roomInfo]
	liveURL := p.config.LiveAPIBase + "/room/v1/Room/get_info?" + url.Values{"room_id": {m.Named("id")}}.Encode()
	if err := p.GetJSON(ctx, liveURL, &room); err != nil {
		return nil, err
	}
	if err := room.Err(); err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get live room", Err: err}
	}
	var author *media_resolver.Author
	var master response[masterInfo]
	masterURL := p.config.LiveAPIBase + "/live_user/v1/Master/info?" + url.Values{"uid": {strconv.FormatInt(room.Data.UID, 10)}}.Encode()
	if err := p.GetJSON(ctx, masterURL, &master); err != nil || master.Err() != nil {
		p.Log().Infow("failed to get live room owner", "uid", room.Data.UID, "error", err)
	} else {
		author = p.Author(master.Data.Info.Uname, master.Data.Info.Face, "")
	}
	var images []string
	for _, u := range []string{room.Data.UserCover, room.Data.Keyframe} {
		if u != "" {
			images = append(images, u)
		}
	}
	return p.Result(media_resolver.ResultOptions{
		URL:      fmt.Sprintf("https://live.bilibili.com/%d", room.Data.RoomID),
		Title:    room.Data.Title,
		Author:   author,
		Text:     room.Data.Description,
		Contents: p.Images(images...),
	}), nil
}

func (p *Parser) handleFavList(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	var resp response[favList]
	query := url.Values{"media_id": {m.Named("id")}, "pn": {"1"}, "ps": {"20"}}
	if err := p.api(ctx, "/x/v3/fav/resource/list", query, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get favourite list", Err: err}
	}
	if resp.Data.Medias == nil {
		return nil, media_resolver.NewParseError(Platform.Name, "favourite list is empty or restricted")
	}
	var contents []media_resolver.MediaContent
	for _, media := range resp.Data.Medias {
		contents = append(contents, p.Graphics(media.Cover, media.Title, media.Intro))
	}
	upper := resp.Data.Info.Upper
	return p.Result(media_resolver.ResultOptions{
		Title:     resp.Data.Info.Title,
		Author:    p.Author(upper.Name, upper.Face, ""),
		Timestamp: resp.Data.Info.Ctime,
		Contents:  contents,
	}), nil
}

func (p *Parser) handleRead(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	pageURL := fmt.Sprintf("%s/read/cv%s", p.config.WebBase, m.Named("id"))
	body, err := p.Downloader.Fetch(ctx, http.MethodGet, pageURL, p.Headers, nil)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "invalid article page", Err: err}
	}
	article := doc.Find("#read-article-holder, .article-content").First()
	if article.Length() == 0 {
		return nil, media_resolver.NewParseError(Platform.Name, "article content not found in cv%s", m.Named("id"))
	}
	title := strings.TrimSpace(doc.Find("h1.title").First().Text())
	if title == "" {
		title, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
	}
	authorName := strings.TrimSpace(doc.Find(".up-name").First().Text())
	authorFace, _ := doc.Find(".up-face img, .up-avatar img").Attr("data-src")

	contents, trailing := p.BuildGraphics(parser.ArticleNodes(article.Nodes[0]))
	var author *media_resolver.Author
	if authorName != "" {
		author = p.Author(authorName, absoluteURL(authorFace), "")
	}
	return p.Result(media_resolver.ResultOptions{
		URL:      "https://www.bilibili.com/read/cv" + m.Named("id"),
		Title:    title,
		Author:   author,
		Text:     trailing,
		Contents: contents,
	}), nil
}

func (p *Parser) handleOpus(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	var resp response[opusDetail]
	if err := p.api(ctx, "/x/polymer/web-dynamic/v1/opus/detail", url.Values{"id": {m.Named("id")}}, &resp); err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "failed to get opus", Err: err}
	}
	var title string
	var author *media_resolver.Author
	var timestamp int64
	var nodes []parser.Node
	for _, module := range resp.Data.Item.Modules {
		switch {
		case module.Title != nil:
			title = module.Title.Text
		case module.Author != nil:
			author = p.Author(module.Author.Name, module.Author.Face, "")
			timestamp = module.Author.PubTS
		case module.Content != nil:
			nodes = append(nodes, opusNodes(module.Content.Paragraphs)...)
		}
	}
	contents, trailing := p.BuildGraphics(nodes)
	return p.Result(media_resolver.ResultOptions{
		URL:       "https://www.bilibili.com/opus/" + m.Named("id"),
		Title:     title,
		Author:    author,
		Timestamp: timestamp,
		Text:      trailing,
		Contents:  contents,
	}), nil
}

func opusNodes(paragraphs []opusParagraph) []parser.Node {
	var nodes []parser.Node
	for _, para := range paragraphs {
		if para.Text != nil {
			var text strings.Builder
			for _, n := range para.Text.Nodes {
				if n.Word != nil {
					text.WriteString(n.Word.Words)
				}
			}
			nodes = append(nodes, parser.Node{Text: text.String()})
		}
		if para.Pic != nil {
			for _, pic := range para.Pic.Pics {
				nodes = append(nodes, parser.Node{ImageURL: pic.URL})
			}
		}
	}
	return nodes
}

func absoluteURL(u string) string {
	if strings.HasPrefix(u, "//") {
		return "https:" + u
	}
	return u
}
