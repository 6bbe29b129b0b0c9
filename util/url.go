package util

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"
)

var (
	ErrNoFilename = errors.New("cannot extract valid filename")
)

func FilenameFromURL(url *url.URL) (string, error) {
	if url == nil {
		return "", ErrNoFilename
	}
	path := strings.Trim(url.Path, "/")
	if path == "" {
		return "", ErrNoFilename
	}
	pathElements := strings.Split(path, "/")
	filename := pathElements[len(pathElements)-1]
	if filename == "" {
		return "", ErrNoFilename
	}
	// Don't allow "filenames" that are just ".", "..", etc.
	if strings.ReplaceAll(filename, ".", "") == "" {
		return "", ErrNoFilename
	}
	return filename, nil
}

func FilenameFromURLString(s string) (string, error) {
	if parsedURL, err := url.Parse(s); err != nil {
		return "", err
	} else {
		return FilenameFromURL(parsedURL)
	}
}

// ExtensionFromURL returns the lower-cased extension (including the dot) of the last path element, or "".
func ExtensionFromURL(s string) string {
	filename, err := FilenameFromURLString(s)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(path.Ext(filename))
	// Reject things that are clearly not extensions, e.g. "/video/BV1.abcdefghijklmnop"
	if len(ext) < 2 || len(ext) > 6 {
		return ""
	}
	return ext
}

// CacheFileName derives a deterministic file name from a URL: the first 16 hex digits of its MD5, followed by the
// URL's extension or defaultExt if it has none. Identical URLs therefore share one cache file.
func CacheFileName(s string, defaultExt string) string {
	ext := ExtensionFromURL(s)
	if ext == "" {
		ext = defaultExt
	}
	return URLHash(s) + ext
}

// URLHash is the first 16 hex digits of the MD5 of s.
func URLHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:16]
}
