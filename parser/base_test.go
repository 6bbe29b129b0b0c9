package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
	"golang.org/x/net/html"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
)

var testPlatform = media_resolver.Platform{Name: "test", DisplayName: "Test"}

type testServer struct {
	*httptest.Server
	requests atomic.Int32
}

func newTestServer(t *testing.T) *testServer {
	s := &testServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		switch {
		case r.URL.Path == "/s/abc":
			http.Redirect(w, r, "/video/abc", http.StatusFound)
		case r.URL.Path == "/s/loop":
			http.Redirect(w, r, "/s/abc", http.StatusFound)
		case r.URL.Path == "/s/same":
			_, _ = w.Write([]byte("not a redirect"))
		case strings.HasPrefix(r.URL.Path, "/img/"):
			_, _ = w.Write([]byte("image"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func newTestBase(t *testing.T, options Options) *Base {
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	b := NewBase(testPlatform, d, options)
	b.HandleRedirect("/s/", `https?://\S+/s/\w+`)
	b.Handle("/video/", `/video/(?P<id>\w+)`, func(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
		return b.Result(media_resolver.ResultOptions{Title: m.Named("id")}), nil
	})
	return b
}

func TestHandlersSorted(t *testing.T) {
	assert := assert_.New(t)
	b := newTestBase(t, Options{})
	handlers := b.Handlers()
	assert.Len(handlers, 2)
	assert.Equal("/video/", handlers[0].Keyword)
	assert.Equal("/s/", handlers[1].Keyword)
}

func TestParseWithRedirect(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{})

	m, err := media_resolver.MatchHandlers(b.Platform(), b.Handlers(), "look at "+s.URL+"/s/abc please")
	assert.NoError(err)
	assert.Equal("/s/", m.Keyword)
	result, err := media_resolver.InvokeHandler(context.Background(), m)
	assert.NoError(err)
	assert.Equal("abc", result.Title)
}

func TestParseWithRedirectNoRedirect(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{})
	_, err := b.ParseWithRedirect(context.Background(), s.URL+"/s/same")
	assert.ErrorIs(err, media_resolver.ErrParse)
}

func TestParseWithRedirectSingleHop(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{})
	// /s/loop redirects to another short link, which is not followed again
	_, err := b.ParseWithRedirect(context.Background(), s.URL+"/s/loop")
	assert.ErrorIs(err, media_resolver.ErrParse)
	assert.ErrorContains(err, "no handler")
	assert.Equal(int32(1), s.requests.Load())
}

func TestVideoDurationLimit(t *testing.T) {
	assert := assert_.New(t)
	b := newTestBase(t, Options{MaxDuration: time.Minute})
	var calls atomic.Int32
	video := b.Video(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "never", nil
	}, "", 2*time.Minute)
	_, err := video.Path(context.Background())
	assert.ErrorIs(err, media_resolver.ErrDurationLimit)
	assert.Equal(int32(0), calls.Load())

	ok := b.Video(func(ctx context.Context) (string, error) {
		return "/tmp/ok.mp4", nil
	}, "", 30*time.Second)
	path, err := ok.Path(context.Background())
	assert.NoError(err)
	assert.Equal("/tmp/ok.mp4", path)
}

func TestAudioDurationLimit(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{MaxDuration: time.Minute})
	var calls atomic.Int32
	audio := b.Audio(func(ctx context.Context) (string, error) {
		calls.Add(1)
		return "never", nil
	}, 2*time.Hour)
	_, err := audio.Path(context.Background())
	assert.ErrorIs(err, media_resolver.ErrDurationLimit)
	assert.Equal(int32(0), calls.Load())

	direct := b.AudioURL(s.URL+"/img/track.mp3", 2*time.Hour)
	_, err = direct.Path(context.Background())
	assert.ErrorIs(err, media_resolver.ErrDurationLimit)
	assert.Equal(int32(0), s.requests.Load())

	short := b.AudioURL(s.URL+"/img/track.mp3", 30*time.Second)
	path, err := short.Path(context.Background())
	assert.NoError(err)
	assert.FileExists(path)
	assert.Equal(int32(1), s.requests.Load())
}

func TestMediaPolicy(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)

	imageOnly := newTestBase(t, Options{MediaMode: MediaImageOnly})
	assert.Nil(imageOnly.VideoURL(s.URL+"/video.mp4", "", 0))
	assert.Nil(imageOnly.AudioURL(s.URL+"/a.mp3", 0))
	assert.Empty(imageOnly.Dynamics(s.URL + "/img/1.gif"))
	assert.Len(imageOnly.Images(s.URL+"/img/1.jpg", s.URL+"/img/2.jpg"), 2)

	none := newTestBase(t, Options{MediaMode: MediaNone})
	assert.Empty(none.Images(s.URL + "/img/1.jpg"))
	assert.Nil(none.Graphics(s.URL+"/img/1.jpg", "caption", ""))

	// Disallowed content disappears from results
	result := none.Result(media_resolver.ResultOptions{
		Contents: []media_resolver.MediaContent{none.VideoURL(s.URL+"/v.mp4", "", 0)},
	})
	assert.Empty(result.Contents)
}

func TestAuthor(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{})

	assert.False(b.Author("nobody", "", "").HasAvatar())
	author := b.Author("somebody", s.URL+"/img/avatar.png", "bio")
	avatar, err := author.AvatarPath(context.Background())
	assert.NoError(err)
	assert.True(avatar.IsSome())
}

func TestBuildGraphics(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	b := newTestBase(t, Options{})

	contents, trailing := b.BuildGraphics([]Node{
		{Text: "first"},
		{Text: "second"},
		{ImageURL: s.URL + "/img/1.png", Alt: "one"},
		{ImageURL: s.URL + "/img/2.png"},
		{Text: "after"},
		{ImageURL: s.URL + "/img/3.png"},
		{Text: "the end"},
	})
	assert.Len(contents, 3)
	g := contents[0].(*media_resolver.GraphicsContent)
	assert.Equal("first\nsecond", g.Text)
	assert.Equal("one", g.Alt)
	assert.Equal("", contents[1].(*media_resolver.GraphicsContent).Text)
	assert.Equal("after", contents[2].(*media_resolver.GraphicsContent).Text)
	assert.Equal("the end", trailing)
}

func TestArticleNodes(t *testing.T) {
	assert := assert_.New(t)
	doc, err := html.Parse(strings.NewReader(`<div><h1>Title</h1><p>Hello <b>world</b></p>` +
		`<script>var x = 1;</script><figure><img data-src="//i0.example.com/a.png" src="placeholder.gif" alt="a"></figure>` +
		`<p>More</p><img src="https://i0.example.com/b.png"></div>`))
	assert.NoError(err)
	nodes := ArticleNodes(doc)
	assert.Equal([]Node{
		{Text: "Title"},
		{Text: "Hello world"},
		{ImageURL: "https://i0.example.com/a.png", Alt: "a"},
		{Text: "More"},
		{ImageURL: "https://i0.example.com/b.png"},
	}, nodes)
}

func TestCommonHeaders(t *testing.T) {
	assert := assert_.New(t)
	h := CommonHeaders()
	assert.Equal(UserAgent, h.Get("User-Agent"))
	h2 := WithHeader(h, "Referer", "https://example.com")
	assert.Equal("", h.Get("Referer"))
	assert.Equal("https://example.com", h2.Get("Referer"))
	assert.Equal(UserAgent, h2.Get("user-agent"))
}
