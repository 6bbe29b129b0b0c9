package raw

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
)

func TestConfigMatch(t *testing.T) {
	assert := assert_.New(t)
	config := NewConfig()
	kinds := map[string]media_resolver.MediaKind{
		"https://example.com/a/video.mp4":          media_resolver.KindVideo,
		"http://example.com/clip.WEBM?token=1":     media_resolver.KindVideo,
		"https://example.com/pic.jpeg#frag":        media_resolver.KindImage,
		"https://cdn.example.com/music/track.flac": media_resolver.KindAudio,
	}
	for s, kind := range kinds {
		l, err := config.Match(s)
		if assert.NoError(err, s) {
			assert.Equal(kind, l.kind, s)
		}
	}
	for _, s := range []string{
		"ftp://example.com/video.mp4",
		"https://example.com/",
		"https://example.com/readme",
		"https://example.com/archive.zip",
	} {
		_, err := config.Match(s)
		assert.Error(err, s)
	}
}

func TestParseLink(t *testing.T) {
	assert := assert_.New(t)
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, r.URL.Path)
	}))
	t.Cleanup(s.Close)
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	assert.NoError(err)
	p := New(parser.Deps{Downloader: d}, Config{})

	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "check "+s.URL+"/media/cat.png?size=large please")
	if !assert.NoError(err) {
		return
	}
	assert.Equal(".png", m.Keyword)
	result, err := media_resolver.InvokeHandler(context.Background(), m)
	assert.NoError(err)
	assert.Equal(s.URL+"/media/cat.png?size=large", result.URL)
	assert.Equal("cat.png", result.Title)
	images := result.ImageContents()
	if assert.Len(images, 1) {
		_, err := images[0].Path(context.Background())
		assert.NoError(err)
	}

	m, err = media_resolver.MatchHandlers(p.Platform(), p.Handlers(), s.URL+"/song.mp3")
	if assert.NoError(err) {
		result, err := media_resolver.InvokeHandler(context.Background(), m)
		assert.NoError(err)
		if assert.Len(result.Contents, 1) {
			assert.Equal(media_resolver.KindAudio, result.Contents[0].Kind())
		}
	}

	_, err = media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://example.com/video.mp4.html")
	assert.ErrorIs(err, media_resolver.ErrNoMatch)
}

func TestParseLinkPolicy(t *testing.T) {
	assert := assert_.New(t)
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	assert.NoError(err)
	p := New(parser.Deps{Downloader: d, Options: parser.Options{MediaMode: parser.MediaImageOnly}}, Config{})
	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://example.com/video.mp4")
	if assert.NoError(err) {
		result, err := media_resolver.InvokeHandler(context.Background(), m)
		assert.NoError(err)
		assert.Empty(result.Contents)
	}
}
