// Package ytdlp wraps the yt-dlp executable as a secondary downloader for platforms without a usable streaming API.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/util"
)

var ErrUnavailable = errors.New("yt-dlp is not available")

type Config struct {
	Path     string
	CacheDir string
	// MaxSize is passed as --max-filesize; 0 means unlimited.
	MaxSize int64
	Timeout time.Duration
	// Proxy and CookiesFile are passed through when set.
	Proxy       string
	CookiesFile string
}

// Info is the subset of `yt-dlp -J` output that parsers use.
type Info struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Thumbnail   string  `json:"thumbnail"`
	Duration    float64 `json:"duration"`
	Timestamp   int64   `json:"timestamp"`
	WebpageURL  string  `json:"webpage_url"`
}

func (i *Info) Author() string {
	if i.Uploader != "" {
		return i.Uploader
	}
	return i.Channel
}

func (i *Info) DurationValue() time.Duration {
	return time.Duration(i.Duration * float64(time.Second))
}

type Downloader struct {
	config Config
	log    *zap.SugaredLogger
}

func New(config Config) *Downloader {
	if config.Path == "" {
		config.Path = "yt-dlp"
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Minute
	}
	return &Downloader{config: config, log: zap.S().Named("ytdlp")}
}

// Available reports whether the executable can be found; platforms that depend on it are only registered if so.
func (d *Downloader) Available() bool {
	_, err := exec.LookPath(d.config.Path)
	return err == nil
}

func (d *Downloader) baseArgs() []string {
	args := []string{"--no-playlist", "--no-warnings", "--no-progress", "-q"}
	if d.config.Proxy != "" {
		args = append(args, "--proxy", d.config.Proxy)
	}
	if d.config.CookiesFile != "" {
		args = append(args, "--cookies", d.config.CookiesFile)
	}
	return args
}

func (d *Downloader) run(ctx context.Context, args ...string) ([]byte, error) {
	if !d.Available() {
		return nil, ErrUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, d.config.Path, append(d.baseArgs(), args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("yt-dlp timed out: %s", strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("yt-dlp failed: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// ExtractInfo fetches metadata without downloading anything.
func (d *Downloader) ExtractInfo(ctx context.Context, url string) (*Info, error) {
	out, err := d.run(ctx, "-J", url)
	if err != nil {
		return nil, err
	}
	var info Info
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("failed to decode yt-dlp output: %w", err)
	}
	return &info, nil
}

// Video downloads the best mp4-compatible format into the cache.
func (d *Downloader) Video(ctx context.Context, url string) (string, error) {
	return d.download(ctx, url, ".mp4", "-f", "bv*[ext=mp4]+ba[ext=m4a]/b[ext=mp4]/b", "--merge-output-format", "mp4")
}

// Audio downloads the best audio-only format into the cache.
func (d *Downloader) Audio(ctx context.Context, url string) (string, error) {
	return d.download(ctx, url, ".m4a", "-f", "ba[ext=m4a]/ba")
}

func (d *Downloader) download(ctx context.Context, url string, ext string, formatArgs ...string) (string, error) {
	target := filepath.Join(d.config.CacheDir, util.URLHash(url)+ext)
	if info, err := os.Stat(target); err == nil && info.Size() > 0 {
		return target, nil
	}
	args := append([]string{}, formatArgs...)
	if d.config.MaxSize > 0 {
		args = append(args, "--max-filesize", fmt.Sprint(d.config.MaxSize))
	}
	args = append(args, "-o", target, url)
	if _, err := d.run(ctx, args...); err != nil {
		return "", &media_resolver.DownloadError{URL: url, Err: err}
	}
	info, err := os.Stat(target)
	if err != nil {
		// yt-dlp exits successfully but writes nothing when --max-filesize rejects every format
		return "", &media_resolver.DownloadError{URL: url, Err: media_resolver.ErrSizeLimit}
	}
	if info.Size() == 0 {
		_ = os.Remove(target)
		return "", &media_resolver.DownloadError{URL: url, Err: media_resolver.ErrZeroSize}
	}
	d.log.Infow("downloaded", "url", url, "path", target, "size", info.Size())
	return target, nil
}
