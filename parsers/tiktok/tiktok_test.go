package tiktok

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

const fakeYTDLP = `#!/bin/sh
echo "$@" >> "$0.log"
for a in "$@"; do
  if [ "$a" = "-J" ]; then
    echo '{"id":"1","title":"Dance","uploader":"dancer","duration":12.5,"timestamp":1700000000}'
    exit 0
  fi
done
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then printf video > "$a"; fi
  prev="$a"
done
`

// writeFakeYTDLP installs a shell script standing in for yt-dlp, returning its path.
func writeFakeYTDLP(t *testing.T) string {
	if runtime.GOOS == "windows" {
		t.Skip("fake yt-dlp is a shell script")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte(fakeYTDLP), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// shortLinkClient answers every request with a redirect to a full video page.
func shortLinkClient() *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusFound,
			Header:     http.Header{"Location": {"https://www.tiktok.com/@dancer/video/1"}},
			Body:       http.NoBody,
			Request:    req,
		}, nil
	})}
}

func newTestParser(t *testing.T, ytdlpPath string, options parser.Options) *Parser {
	cacheDir := t.TempDir()
	d, err := download.New(download.Config{CacheDir: cacheDir}, download.WithHTTPClient(shortLinkClient()))
	if err != nil {
		t.Fatal(err)
	}
	y := ytdlp.New(ytdlp.Config{Path: ytdlpPath, CacheDir: cacheDir})
	return New(parser.Deps{Downloader: d, YTDLP: y, Options: options})
}

func parse(p *Parser, text string) (*media_resolver.ParseResult, error) {
	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), text)
	if err != nil {
		return nil, err
	}
	return media_resolver.InvokeHandler(context.Background(), m)
}

func TestParseShortLink(t *testing.T) {
	assert := assert_.New(t)
	path := writeFakeYTDLP(t)
	p := newTestParser(t, path, parser.Options{})
	assert.True(p.Available())

	result, err := parse(p, "vt.tiktok.com/ZSabc123/")
	assert.NoError(err)
	assert.Equal("https://www.tiktok.com/@dancer/video/1", result.URL)
	assert.Equal("Dance", result.Title)
	assert.Equal("dancer", result.Author.Name)
	assert.Equal(int64(1700000000), result.Timestamp)
	videos := result.VideoContents()
	if assert.Len(videos, 1) {
		assert.Equal(12500*time.Millisecond, videos[0].Duration)
		file, err := videos[0].Path(context.Background())
		assert.NoError(err)
		data, _ := os.ReadFile(file)
		assert.Equal("video", string(data))
	}
	log, _ := os.ReadFile(path + ".log")
	assert.Contains(string(log), "-J https://www.tiktok.com/@dancer/video/1")
	assert.NotContains(string(log), "vt.tiktok.com")
}

func TestParseDurationLimit(t *testing.T) {
	assert := assert_.New(t)
	path := writeFakeYTDLP(t)
	p := newTestParser(t, path, parser.Options{MaxDuration: 10 * time.Second})

	result, err := parse(p, "https://www.tiktok.com/@dancer/video/1")
	assert.NoError(err)
	videos := result.VideoContents()
	if assert.Len(videos, 1) {
		_, err := videos[0].Path(context.Background())
		assert.ErrorIs(err, media_resolver.ErrDurationLimit)
	}
	log, _ := os.ReadFile(path + ".log")
	// Only the metadata call, never a download
	assert.Equal(1, strings.Count(string(log), "\n"))
}

func TestUnavailable(t *testing.T) {
	assert := assert_.New(t)
	p := newTestParser(t, "no-such-yt-dlp-binary", parser.Options{})
	assert.False(p.Available())
	_, err := parse(p, "https://www.tiktok.com/@dancer/video/1")
	assert.ErrorIs(err, media_resolver.ErrParse)
	assert.ErrorIs(err, ytdlp.ErrUnavailable)
}
