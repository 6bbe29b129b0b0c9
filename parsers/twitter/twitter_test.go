package twitter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
)

const statusURL = "https://x.com/someone/status/1234567890"

type fakeServices struct {
	*httptest.Server
	oEmbedStatus int
	searches     atomic.Int32
}

func newFakeServices(t *testing.T, page string) *fakeServices {
	f := &fakeServices{oEmbedStatus: http.StatusOK}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/ajaxSearch":
			f.searches.Add(1)
			_ = r.ParseForm()
			if r.Method != http.MethodPost || r.PostForm.Get("q") != statusURL {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok", "data": strings.ReplaceAll(page, "{base}", f.URL)})
		case r.URL.Path == "/oembed":
			if f.oEmbedStatus != http.StatusOK {
				w.WriteHeader(f.oEmbedStatus)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{
				"author_name": "Some One",
				"author_url":  "https://twitter.com/someone",
				"html":        `<blockquote class="twitter-tweet"><p lang="en">hello <a href="#">world</a></p>&mdash; Some One</blockquote>`,
			})
		case strings.HasPrefix(r.URL.Path, "/media/"):
			_, _ = fmt.Fprint(w, "media")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

func newTestParser(t *testing.T, f *fakeServices, options parser.Options) *Parser {
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return New(parser.Deps{Downloader: d, Options: options}, Config{XDownBase: f.URL, OEmbedBase: f.URL, AvatarBase: f.URL + "/media/avatar"})
}

func parse(p *Parser, text string) (*media_resolver.ParseResult, error) {
	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), text)
	if err != nil {
		return nil, err
	}
	return media_resolver.InvokeHandler(context.Background(), m)
}

const videoPage = `<div><img src="{base}/media/thumb.jpg"><h3>A video post</h3>
<a class="tw-button-dl" href="{base}/media/video.mp4">下载 MP4 (720p)</a>
<a class="tw-button-dl" href="{base}/media/video-low.mp4">下载 MP4 (360p)</a></div>`

const imagePage = `<div><img src="{base}/media/thumb.jpg">
<a class="abutton" href="{base}/media/1.jpg">下载图片</a>
<a class="abutton" href="{base}/media/2.jpg">下载图片</a>
<a class="abutton" href="{base}/media/anim.mp4">下载 gif</a></div>`

func TestParseVideo(t *testing.T) {
	assert := assert_.New(t)
	f := newFakeServices(t, videoPage)
	p := newTestParser(t, f, parser.Options{})

	result, err := parse(p, "look at this "+statusURL+"?s=20")
	assert.NoError(err)
	assert.Equal(statusURL, result.URL)
	assert.Equal("A video post", result.Title)
	assert.Equal("hello world", result.Text)
	if assert.NotNil(result.Author) {
		assert.Equal("Some One (@someone)", result.Author.Name)
		assert.True(result.Author.HasAvatar())
	}
	videos := result.VideoContents()
	if assert.Len(videos, 1) {
		assert.NotNil(videos[0].Cover)
		_, err := videos[0].Path(context.Background())
		assert.NoError(err)
	}
}

func TestParseImages(t *testing.T) {
	assert := assert_.New(t)
	f := newFakeServices(t, imagePage)
	p := newTestParser(t, f, parser.Options{})

	result, err := parse(p, statusURL)
	assert.NoError(err)
	assert.Len(result.ImageContents(), 2)
	if assert.Len(result.Contents, 3) {
		assert.Equal(media_resolver.KindDynamic, result.Contents[2].Kind())
	}
	// No heading, so the title falls back to the author name
	assert.Equal("Some One", result.Title)
}

func TestParseWithoutOEmbed(t *testing.T) {
	assert := assert_.New(t)
	f := newFakeServices(t, imagePage)
	f.oEmbedStatus = http.StatusNotFound
	p := newTestParser(t, f, parser.Options{MediaMode: parser.MediaImageOnly})

	result, err := parse(p, statusURL)
	assert.NoError(err)
	assert.Nil(result.Author)
	assert.Equal("", result.Text)
	// Dynamic images are disallowed in image-only mode
	assert.Len(result.Contents, 2)
}

func TestKeywords(t *testing.T) {
	assert := assert_.New(t)
	f := newFakeServices(t, videoPage)
	p := newTestParser(t, f, parser.Options{})
	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://twitter.com/a_b/status/42")
	if assert.NoError(err) {
		assert.Equal("twitter.com", m.Keyword)
		assert.Equal("42", m.Named("id"))
	}
	_, err = media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://x.com/home")
	assert.ErrorIs(err, media_resolver.ErrNoMatch)
	assert.Equal(int32(0), f.searches.Load())
}

func TestEmbedText(t *testing.T) {
	assert := assert_.New(t)
	assert.Equal("", embedText("<blockquote>no paragraph</blockquote>"))
	assert.Equal("multi line text", embedText("<p>multi\n  line <br>text</p>"))
}
