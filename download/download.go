// Package download fetches media into a shared cache directory, enforcing size limits and merging separate audio and
// video streams with an external remuxer.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/async"
	"github.com/alanbriolat/media-resolver/util"
)

const (
	DefaultTimeout      = 5 * time.Minute
	DefaultQuickTimeout = 15 * time.Second
	DefaultMaxSize      = 100 << 20
)

// Config controls where files go and how much of them we are willing to fetch.
type Config struct {
	CacheDir string
	// MaxSize is the byte ceiling for a single file; 0 means unlimited.
	MaxSize int64
	// Timeout bounds a whole bulk download.
	Timeout time.Duration
	// QuickTimeout bounds metadata requests and redirect resolution.
	QuickTimeout time.Duration
	FFmpegPath   string
	// ForceH264 makes MergeAV re-encode to H.264/AAC instead of copying streams.
	ForceH264 bool
}

// ProgressFunc is called as bytes arrive for a named file. expected is -1 when unknown.
type ProgressFunc func(name string, downloaded int64, expected int64)

type Option func(*Downloader)

func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) {
		d.client = client
	}
}

func WithRemuxer(r Remuxer) Option {
	return func(d *Downloader) {
		d.remuxer = r
	}
}

func WithProgress(f ProgressFunc) Option {
	return func(d *Downloader) {
		d.progress = f
	}
}

// Downloader produces fetch handles for media URLs.
type Downloader struct {
	config   Config
	client   *http.Client
	remuxer  Remuxer
	progress ProgressFunc
	log      *zap.SugaredLogger
}

func New(config Config, opts ...Option) (*Downloader, error) {
	if config.CacheDir == "" {
		config.CacheDir = filepath.Join(os.TempDir(), "media-resolver")
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.QuickTimeout <= 0 {
		config.QuickTimeout = DefaultQuickTimeout
	}
	if config.FFmpegPath == "" {
		config.FFmpegPath = "ffmpeg"
	}
	if err := os.MkdirAll(config.CacheDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}
	d := &Downloader{
		config: config,
		client: &http.Client{},
		log:    zap.S().Named("download"),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.remuxer == nil {
		d.remuxer = &ExecRemuxer{Path: config.FFmpegPath}
	}
	return d, nil
}

func (d *Downloader) Config() Config {
	return d.config
}

// CachePath is the location of name inside the cache directory.
func (d *Downloader) CachePath(name string) string {
	return filepath.Join(d.config.CacheDir, name)
}

// Go wraps a platform-specific download function as a fetch handle, bounded by the bulk timeout.
func (d *Downloader) Go(f func(ctx context.Context) (string, error)) *async.Task[string] {
	return async.Go(context.Background(), func(ctx context.Context) (string, error) {
		ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
		return f(ctx)
	})
}

func (d *Downloader) Image(url string, headers http.Header) *async.Task[string] {
	return d.cached(url, ".jpg", headers)
}

func (d *Downloader) Video(url string, headers http.Header) *async.Task[string] {
	return d.cached(url, ".mp4", headers)
}

func (d *Downloader) Audio(url string, headers http.Header) *async.Task[string] {
	return d.cached(url, ".mp3", headers)
}

func (d *Downloader) cached(url string, defaultExt string, headers http.Header) *async.Task[string] {
	name := util.CacheFileName(url, defaultExt)
	return d.Go(func(ctx context.Context) (string, error) {
		return d.Stream(ctx, url, name, headers)
	})
}

// Cached returns the path of name in the cache directory, and whether a non-empty file is already there.
func (d *Downloader) Cached(name string) (string, bool) {
	path := d.CachePath(name)
	if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() && info.Size() > 0 {
		return path, true
	}
	return path, false
}

// Stream downloads url into the cache as name. Exceeding MaxSize is a hard failure: the partial file is deleted and
// ErrSizeLimit returned. A file that already exists is reused without any request.
func (d *Downloader) Stream(ctx context.Context, url string, name string, headers http.Header) (string, error) {
	target, ok := d.Cached(name)
	if ok {
		d.log.Debugw("cache hit", "name", name)
		return target, nil
	}
	f, err := os.CreateTemp(d.config.CacheDir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()
	n, err := d.streamTo(ctx, f, url, name, headers, d.config.MaxSize, true)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = media_resolver.ErrZeroSize
	}
	if err != nil {
		removeQuietly(tempPath)
		return "", wrapDownloadError(url, err)
	}
	if err := os.Rename(tempPath, target); err != nil {
		removeQuietly(tempPath)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	d.log.Infow("downloaded", "url", url, "path", target, "size", n)
	return target, nil
}

// streamTo copies the response body for url into w. With strict set, more than limit bytes is ErrSizeLimit; otherwise
// the copy silently stops after limit bytes.
func (d *Downloader) streamTo(ctx context.Context, w io.Writer, url string, name string, headers http.Header, limit int64, strict bool) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("unexpected status: %s", resp.Status)
	}
	if strict && limit > 0 && resp.ContentLength > limit {
		return 0, fmt.Errorf("%w: %d > %d bytes", media_resolver.ErrSizeLimit, resp.ContentLength, limit)
	}

	progress := newProgressWriter(name, resp.ContentLength, d.progress)
	var body io.Reader = media_resolver.NewReaderContext(ctx, resp.Body)
	if limit > 0 && strict {
		// One extra byte tells "exactly at the limit" apart from "over the limit"
		body = io.LimitReader(body, limit+1)
	} else if limit > 0 {
		body = io.LimitReader(body, limit)
	}
	// progress goes last so failed writes are not counted
	n, err := io.Copy(io.MultiWriter(w, progress), body)
	if err != nil {
		return n, err
	}
	if strict && limit > 0 && n > limit {
		return n, fmt.Errorf("%w: more than %d bytes", media_resolver.ErrSizeLimit, limit)
	}
	return n, nil
}

func wrapDownloadError(url string, err error) error {
	var downloadErr *media_resolver.DownloadError
	if errors.As(err, &downloadErr) {
		return err
	}
	return &media_resolver.DownloadError{URL: url, Err: err}
}

func removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		zap.S().Named("download").Warnw("failed to remove file", "path", path, "error", err)
	}
}
