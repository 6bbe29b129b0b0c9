package download

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/alanbriolat/media-resolver"
)

// Segments concatenates HLS segments into the cache as name. Unlike Stream, reaching MaxSize is not a failure: the
// download stops at the ceiling and whatever was fetched so far is kept.
func (d *Downloader) Segments(ctx context.Context, urls []string, name string, headers http.Header) (string, error) {
	target, ok := d.Cached(name)
	if ok {
		return target, nil
	}
	if len(urls) == 0 {
		return "", &media_resolver.DownloadError{Err: fmt.Errorf("no segments for %s", name)}
	}
	f, err := os.CreateTemp(d.config.CacheDir, name+".*.part")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tempPath := f.Name()

	var total int64
	var failed error
	for i, u := range urls {
		remaining := int64(0)
		if d.config.MaxSize > 0 {
			remaining = d.config.MaxSize - total
		}
		n, err := d.streamTo(ctx, f, u, name, headers, remaining, false)
		total += n
		if err != nil {
			failed = wrapDownloadError(u, err)
			break
		}
		if d.config.MaxSize > 0 && total >= d.config.MaxSize {
			d.log.Infow("segment download truncated at size limit", "name", name, "segments", i+1, "of", len(urls), "size", total)
			break
		}
	}
	if closeErr := f.Close(); failed == nil && closeErr != nil {
		failed = closeErr
	}
	if failed == nil && total == 0 {
		failed = &media_resolver.DownloadError{URL: urls[0], Err: media_resolver.ErrZeroSize}
	}
	if failed != nil {
		removeQuietly(tempPath)
		return "", failed
	}
	if err := os.Rename(tempPath, target); err != nil {
		removeQuietly(tempPath)
		return "", fmt.Errorf("failed to move download into place: %w", err)
	}
	return target, nil
}

// ParsePlaylist extracts segment URLs from an m3u8 media playlist, resolving them against base.
func ParsePlaylist(playlist string, base string) ([]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, err
	}
	var segments []string
	scanner := bufio.NewScanner(strings.NewReader(playlist))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ref, err := url.Parse(line)
		if err != nil {
			return nil, fmt.Errorf("bad segment %q: %w", line, err)
		}
		segments = append(segments, baseURL.ResolveReference(ref).String())
	}
	return segments, scanner.Err()
}
