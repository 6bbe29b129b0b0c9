package download

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alanbriolat/media-resolver"
)

// MergeAV downloads separate video-only and audio-only streams and remuxes them into the cache as name. Each stream
// is subject to the hard size limit. Both source files are deleted after the remux attempt whatever its outcome, and
// a remuxer failure is returned as a fatal *RemuxError.
func (d *Downloader) MergeAV(ctx context.Context, videoURL string, audioURL string, name string, headers http.Header) (string, error) {
	target, ok := d.Cached(name)
	if ok {
		return target, nil
	}
	tempDir, err := os.MkdirTemp(d.config.CacheDir, "merge-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			d.log.Warnw("failed to clean up merge dir", "dir", tempDir, "error", err)
		}
	}()

	videoPath := filepath.Join(tempDir, "video"+extOr(videoURL, ".m4s"))
	audioPath := filepath.Join(tempDir, "audio"+extOr(audioURL, ".m4s"))
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.fetchFile(gctx, videoURL, videoPath, name+" (video)", headers)
	})
	g.Go(func() error {
		return d.fetchFile(gctx, audioURL, audioPath, name+" (audio)", headers)
	})
	if err := g.Wait(); err != nil {
		return "", err
	}

	output := filepath.Join(tempDir, "merged"+filepath.Ext(name))
	args := copyArgs(videoPath, audioPath, output)
	if d.config.ForceH264 {
		args = h264MergeArgs(videoPath, audioPath, output)
	}
	d.log.Infow("merging", "video", videoURL, "audio", audioURL, "name", name, "h264", d.config.ForceH264)
	err = d.remuxer.Run(ctx, args...)
	removeQuietly(videoPath)
	removeQuietly(audioPath)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(output); err != nil {
		return "", fmt.Errorf("remuxer produced no output: %w", err)
	} else if info.Size() == 0 {
		return "", &media_resolver.DownloadError{URL: videoURL, Err: media_resolver.ErrZeroSize}
	}
	if err := os.Rename(output, target); err != nil {
		return "", fmt.Errorf("failed to move merged file into place: %w", err)
	}
	return target, nil
}

// fetchFile downloads url to path with the hard size limit, deleting partial output on failure.
func (d *Downloader) fetchFile(ctx context.Context, url string, path string, label string, headers http.Header) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := d.streamTo(ctx, f, url, label, headers, d.config.MaxSize, true)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = media_resolver.ErrZeroSize
	}
	if err != nil {
		removeQuietly(path)
		return wrapDownloadError(url, err)
	}
	return nil
}

// StreamVideo is Stream for a playable video. With ForceH264 the stream is re-encoded, since progressive sources
// may use codecs chat clients cannot play.
func (d *Downloader) StreamVideo(ctx context.Context, url string, name string, headers http.Header) (string, error) {
	path, err := d.Stream(ctx, url, name, headers)
	if err != nil || !d.config.ForceH264 {
		return path, err
	}
	return d.EncodeH264(ctx, path)
}

// EncodeH264 re-encodes a video to H.264/AAC next to the original as <stem>_h264<ext>, reusing an existing result.
func (d *Downloader) EncodeH264(ctx context.Context, path string) (string, error) {
	ext := filepath.Ext(path)
	output := strings.TrimSuffix(path, ext) + "_h264" + ext
	if info, err := os.Stat(output); err == nil && info.Size() > 0 {
		return output, nil
	}
	partial := output + ".part" + ext
	if err := d.remuxer.Run(ctx, h264EncodeArgs(path, partial)...); err != nil {
		removeQuietly(partial)
		return "", err
	}
	if err := os.Rename(partial, output); err != nil {
		removeQuietly(partial)
		return "", err
	}
	return output, nil
}

func extOr(url string, fallback string) string {
	name := filepathFromURL(url)
	if ext := filepath.Ext(name); ext != "" && len(ext) <= 6 {
		return ext
	}
	return fallback
}
