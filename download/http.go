package download

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"

	"github.com/alanbriolat/media-resolver/util"
)

// Fetch performs a quick request with headers, returning the body. Status codes >= 400 are errors.
func (d *Downloader) Fetch(ctx context.Context, method string, url string, headers http.Header, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.QuickTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s %s: unexpected status: %s", method, url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// GetJSON performs a quick GET and decodes the JSON response into out.
func (d *Downloader) GetJSON(ctx context.Context, url string, headers http.Header, out any) error {
	data, err := d.Fetch(ctx, http.MethodGet, url, headers, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", url, err)
	}
	return nil
}

// RedirectURL follows exactly one redirect, returning the Location, or url itself if there was no redirect.
func (d *Downloader) RedirectURL(ctx context.Context, url string, headers http.Header) (string, error) {
	client := *d.client
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := d.quickGet(ctx, &client, url, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("redirect %s: unexpected status: %s", url, resp.Status)
	}
	if location, err := resp.Location(); err == nil {
		return location.String(), nil
	} else if !errors.Is(err, http.ErrNoLocation) {
		return "", err
	}
	return url, nil
}

// FinalURL follows every redirect and returns the last URL.
func (d *Downloader) FinalURL(ctx context.Context, url string, headers http.Header) (string, error) {
	resp, err := d.quickGet(ctx, d.client, url, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("redirect %s: unexpected status: %s", url, resp.Status)
	}
	return resp.Request.URL.String(), nil
}

func (d *Downloader) quickGet(ctx context.Context, client *http.Client, url string, headers http.Header) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, d.config.QuickTimeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, err
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}

func filepathFromURL(s string) string {
	if name, err := util.FilenameFromURLString(s); err == nil {
		return name
	}
	if u, err := url.Parse(s); err == nil {
		return path.Base(u.Path)
	}
	return ""
}
