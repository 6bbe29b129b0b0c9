package acfun

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
)

func newTestServer(t *testing.T) *httptest.Server {
	var s *httptest.Server
	s = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/v/ac123":
			ksPlay, _ := json.Marshal(map[string]any{"adaptationSet": []map[string]any{{"representation": []map[string]any{
				{"url": s.URL + "/hls/1080.m3u8", "height": 1080},
				{"url": s.URL + "/hls/720.m3u8", "height": 720},
				{"url": s.URL + "/hls/360.m3u8", "height": 360},
			}}}})
			info, _ := json.Marshal(map[string]any{
				"title":            "Acfun video",
				"description":      "about it",
				"createTimeMillis": 1700000000000,
				"user":             map[string]any{"name": "uploader"},
				"currentVideoInfo": map[string]any{"durationMillis": 90000, "ksPlayJson": string(ksPlay)},
			})
			_, _ = fmt.Fprintf(w, "<html><script>window.videoInfo = %s;</script></html>", info)
		case r.URL.Path == "/hls/720.m3u8":
			_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:5.000000,\nseg0.ts\n#EXTINF:5.000000,\nseg1.ts\n#EXTINF:5.000000,\nseg2.ts\n#EXT-X-ENDLIST\n"))
		case strings.HasPrefix(r.URL.Path, "/hls/seg"):
			_, _ = w.Write([]byte(strings.Repeat("s", 10)))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func TestParseVideo(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d, err := download.New(download.Config{CacheDir: t.TempDir(), MaxSize: 15})
	assert.NoError(err)
	p := New(parser.Deps{Downloader: d}, Config{WebBase: s.URL})

	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://www.acfun.cn/v/ac123")
	assert.NoError(err)
	result, err := media_resolver.InvokeHandler(context.Background(), m)
	assert.NoError(err)
	assert.Equal("Acfun video", result.Title)
	assert.Equal("Description: about it", result.Text)
	assert.Equal(int64(1700000000), result.Timestamp)
	assert.Equal("uploader", result.Author.Name)

	videos := result.VideoContents()
	if assert.Len(videos, 1) {
		assert.Equal(90*time.Second, videos[0].Duration)
		path, err := videos[0].Path(context.Background())
		assert.NoError(err)
		assert.Equal("acfun_123.mp4", filepath.Base(path))
		data, _ := os.ReadFile(path)
		// Truncated at the size ceiling rather than failing
		assert.Len(data, 15)
	}
}

func TestParseVideoMissingInfo(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	assert.NoError(err)
	p := New(parser.Deps{Downloader: d}, Config{WebBase: s.URL})

	m, err := media_resolver.MatchHandlers(p.Platform(), p.Handlers(), "https://m.acfun.cn/v/?ac=999")
	assert.NoError(err)
	_, err = media_resolver.InvokeHandler(context.Background(), m)
	assert.Error(err)
	assert.ErrorIs(err, media_resolver.ErrParse)
}

func TestDecodeVideoInfoEscaped(t *testing.T) {
	assert := assert_.New(t)
	page := `<script>window.videoInfo = {\"title\":\"escaped\",\"currentVideoInfo\":{\"ksPlayJson\":\"{}\"}};</script>`
	info, err := decodeVideoInfo(page)
	assert.NoError(err)
	assert.Equal("escaped", info.Title)

	_, err = decodeVideoInfo("<html></html>")
	assert.Error(err)
}

func TestPlaylistURL(t *testing.T) {
	assert := assert_.New(t)
	info := &videoInfo{}
	info.CurrentVideoInfo.KsPlayJSON = `{"adaptationSet":[{"representation":[{"url":"a","height":2160},{"url":"b","height":1080}]}]}`
	u, err := info.playlistURL()
	assert.NoError(err)
	assert.Equal("b", u)

	info.CurrentVideoInfo.KsPlayJSON = `{"adaptationSet":[]}`
	_, err = info.playlistURL()
	assert.Error(err)
}
