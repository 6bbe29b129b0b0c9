package download

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
)

type testServer struct {
	*httptest.Server
	requests atomic.Int32
}

// newTestServer serves /size/<n> as n bytes, /empty as nothing and /status/<code> as that status.
func newTestServer(t *testing.T) *testServer {
	s := &testServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Add(1)
		var n, code int
		switch {
		case strings.HasPrefix(r.URL.Path, "/size/"):
			fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/size/"), "%d", &n)
			w.Header().Set("Content-Length", fmt.Sprint(n))
			_, _ = w.Write([]byte(strings.Repeat("x", n)))
		case strings.HasPrefix(r.URL.Path, "/chunked/"):
			// No Content-Length, so the limit has to be enforced while streaming
			fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/chunked/"), "%d", &n)
			flusher := w.(http.Flusher)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte("y"))
				flusher.Flush()
			}
		case r.URL.Path == "/empty":
		case strings.HasPrefix(r.URL.Path, "/status/"):
			fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/status/"), "%d", &code)
			w.WriteHeader(code)
		case r.URL.Path == "/redirect":
			http.Redirect(w, r, "/redirect2", http.StatusFound)
		case r.URL.Path == "/redirect2":
			http.Redirect(w, r, "/size/1", http.StatusFound)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

type fakeRemuxer struct {
	mu    sync.Mutex
	calls [][]string
	err   error
	seen  []bool
}

func (f *fakeRemuxer) Run(ctx context.Context, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	// Record whether the inputs existed at the time of the call
	for i, a := range args {
		if a == "-i" && i+1 < len(args) {
			_, err := os.Stat(args[i+1])
			f.seen = append(f.seen, err == nil)
		}
	}
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(args[len(args)-1], []byte("merged"), 0644)
}

func newTestDownloader(t *testing.T, maxSize int64, opts ...Option) *Downloader {
	d, err := New(Config{CacheDir: t.TempDir(), MaxSize: maxSize}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func listDir(t *testing.T, dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStream(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 100)

	path, err := d.Video(s.URL+"/size/10", nil).Wait(context.Background())
	assert.NoError(err)
	data, _ := os.ReadFile(path)
	assert.Len(data, 10)
	assert.Equal(filepath.Dir(path), d.Config().CacheDir)

	// Same URL again is served from the cache without another request
	path2, err := d.Video(s.URL+"/size/10", nil).Wait(context.Background())
	assert.NoError(err)
	assert.Equal(path, path2)
	assert.Equal(int32(1), s.requests.Load())
}

func TestStreamSizeLimit(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 100)

	_, err := d.Video(s.URL+"/size/101", nil).Wait(context.Background())
	assert.ErrorIs(err, media_resolver.ErrSizeLimit)
	assert.True(media_resolver.IsSuppressed(err))

	_, err = d.Video(s.URL+"/chunked/150", nil).Wait(context.Background())
	assert.ErrorIs(err, media_resolver.ErrSizeLimit)
	// Nothing left behind
	assert.Empty(listDir(t, d.Config().CacheDir))

	// Exactly at the limit is fine
	_, err = d.Video(s.URL+"/chunked/100", nil).Wait(context.Background())
	assert.NoError(err)
}

func TestStreamZeroSize(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 0)
	_, err := d.Image(s.URL+"/empty", nil).Wait(context.Background())
	assert.ErrorIs(err, media_resolver.ErrZeroSize)
	assert.Empty(listDir(t, d.Config().CacheDir))
}

func TestStreamHTTPError(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 0)
	_, err := d.Image(s.URL+"/status/404", nil).Wait(context.Background())
	assert.ErrorIs(err, media_resolver.ErrDownload)
	assert.False(media_resolver.IsSuppressed(err))
}

func TestStreamProgress(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	var last atomic.Int64
	d := newTestDownloader(t, 0, WithProgress(func(name string, downloaded, expected int64) {
		last.Store(downloaded)
	}))
	_, err := d.Audio(s.URL+"/size/64", nil).Wait(context.Background())
	assert.NoError(err)
	assert.Equal(int64(64), last.Load())
}

func TestSegmentsTruncate(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 25)

	urls := []string{s.URL + "/size/10", s.URL + "/size/10", s.URL + "/size/10", s.URL + "/size/10"}
	path, err := d.Segments(context.Background(), urls, "clip.mp4", nil)
	assert.NoError(err)
	data, _ := os.ReadFile(path)
	// Truncated at the ceiling instead of failing
	assert.Len(data, 25)
	assert.Equal(int32(3), s.requests.Load())
}

func TestSegmentsFailure(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 0)
	_, err := d.Segments(context.Background(), []string{s.URL + "/size/10", s.URL + "/status/500"}, "clip.mp4", nil)
	assert.ErrorIs(err, media_resolver.ErrDownload)
	assert.Empty(listDir(t, d.Config().CacheDir))
}

func TestMergeAV(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{}
	d := newTestDownloader(t, 100, WithRemuxer(remuxer))

	path, err := d.MergeAV(context.Background(), s.URL+"/size/20", s.URL+"/size/30", "BV1xx411c7mD.mp4", nil)
	assert.NoError(err)
	assert.Equal(d.CachePath("BV1xx411c7mD.mp4"), path)
	assert.Len(remuxer.calls, 1)
	assert.Equal([]bool{true, true}, remuxer.seen)
	assert.Contains(remuxer.calls[0], "copy")
	// Only the merged file remains
	assert.Equal([]string{"BV1xx411c7mD.mp4"}, listDir(t, d.Config().CacheDir))
}

func TestMergeAVRemuxFailure(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{err: &RemuxError{ExitCode: 1, Stderr: "bad input"}}
	d := newTestDownloader(t, 100, WithRemuxer(remuxer))

	_, err := d.MergeAV(context.Background(), s.URL+"/size/20", s.URL+"/size/30", "out.mp4", nil)
	var remuxErr *RemuxError
	assert.True(errors.As(err, &remuxErr))
	assert.False(errors.Is(err, media_resolver.ErrDownload))
	// Sources are deleted even though the merge failed
	assert.Empty(listDir(t, d.Config().CacheDir))
}

func TestMergeAVSizeLimit(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{}
	d := newTestDownloader(t, 100, WithRemuxer(remuxer))

	_, err := d.MergeAV(context.Background(), s.URL+"/size/200", s.URL+"/size/30", "out.mp4", nil)
	assert.ErrorIs(err, media_resolver.ErrSizeLimit)
	assert.Empty(remuxer.calls)
	assert.Empty(listDir(t, d.Config().CacheDir))
}

func TestMergeAVForceH264(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{}
	d, err := New(Config{CacheDir: t.TempDir(), ForceH264: true}, WithRemuxer(remuxer))
	assert.NoError(err)
	_, err = d.MergeAV(context.Background(), s.URL+"/size/20", s.URL+"/size/30", "out.mp4", nil)
	assert.NoError(err)
	assert.Contains(remuxer.calls[0], "libx264")
}

func TestStreamVideoForceH264(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{}
	d, err := New(Config{CacheDir: t.TempDir(), ForceH264: true}, WithRemuxer(remuxer))
	assert.NoError(err)

	path, err := d.StreamVideo(context.Background(), s.URL+"/size/10", "clip.mp4", nil)
	assert.NoError(err)
	assert.Equal(d.CachePath("clip_h264.mp4"), path)
	if assert.Len(remuxer.calls, 1) {
		assert.Contains(remuxer.calls[0], "libx264")
		assert.Equal([]bool{true}, remuxer.seen)
	}

	// An existing encode is reused
	path2, err := d.StreamVideo(context.Background(), s.URL+"/size/10", "clip.mp4", nil)
	assert.NoError(err)
	assert.Equal(path, path2)
	assert.Len(remuxer.calls, 1)
	assert.Equal(int32(1), s.requests.Load())
}

func TestStreamVideoPassthrough(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	remuxer := &fakeRemuxer{}
	d := newTestDownloader(t, 100, WithRemuxer(remuxer))

	path, err := d.StreamVideo(context.Background(), s.URL+"/size/10", "clip.mp4", nil)
	assert.NoError(err)
	assert.Equal(d.CachePath("clip.mp4"), path)
	assert.Empty(remuxer.calls)
}

func TestEncodeH264Failure(t *testing.T) {
	assert := assert_.New(t)
	remuxer := &fakeRemuxer{err: &RemuxError{ExitCode: 1, Stderr: "unsupported codec"}}
	d := newTestDownloader(t, 100, WithRemuxer(remuxer))
	source := d.CachePath("clip.mp4")
	assert.NoError(os.WriteFile(source, []byte("video"), 0644))

	_, err := d.EncodeH264(context.Background(), source)
	var remuxErr *RemuxError
	assert.True(errors.As(err, &remuxErr))
	assert.Equal([]string{"clip.mp4"}, listDir(t, d.Config().CacheDir))
}

func TestExecRemuxerMissing(t *testing.T) {
	assert := assert_.New(t)
	r := &ExecRemuxer{Path: "definitely-not-a-real-ffmpeg"}
	assert.False(r.Available())
	err := r.Run(context.Background(), "-version")
	assert.ErrorIs(err, ErrRemuxerMissing)
}

func TestRedirects(t *testing.T) {
	assert := assert_.New(t)
	s := newTestServer(t)
	d := newTestDownloader(t, 0)

	next, err := d.RedirectURL(context.Background(), s.URL+"/redirect", nil)
	assert.NoError(err)
	assert.Equal(s.URL+"/redirect2", next)

	same, err := d.RedirectURL(context.Background(), s.URL+"/size/1", nil)
	assert.NoError(err)
	assert.Equal(s.URL+"/size/1", same)

	final, err := d.FinalURL(context.Background(), s.URL+"/redirect", nil)
	assert.NoError(err)
	assert.Equal(s.URL+"/size/1", final)
}

func TestParsePlaylist(t *testing.T) {
	assert := assert_.New(t)
	playlist := "#EXTM3U\n#EXT-X-TARGETDURATION:10\n#EXTINF:10,\nseg0.ts\n#EXTINF:10,\nhttps://cdn.example.com/seg1.ts\n#EXT-X-ENDLIST\n"
	segments, err := ParsePlaylist(playlist, "https://example.com/hls/index.m3u8")
	assert.NoError(err)
	assert.Equal([]string{"https://example.com/hls/seg0.ts", "https://cdn.example.com/seg1.ts"}, segments)
}
