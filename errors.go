package media_resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrNoMatch means no registered handler accepted the input; callers should ignore the message.
	ErrNoMatch = errors.New("no parser matched the input")
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("parse failed")
	// ErrDownload is matched by every *DownloadError.
	ErrDownload = errors.New("download failed")
	// ErrZeroSize means a download produced an empty file.
	ErrZeroSize = errors.New("downloaded file is empty")
	// ErrSizeLimit means a download exceeded the configured size ceiling.
	ErrSizeLimit = errors.New("download exceeds size limit")
	// ErrDurationLimit means the known media duration exceeds the configured ceiling, so no download was attempted.
	ErrDurationLimit = errors.New("media exceeds duration limit")
)

// ParseError describes content that a platform handler could not understand or extract.
type ParseError struct {
	Platform string
	Message  string
	Err      error
}

func NewParseError(platform string, format string, args ...any) *ParseError {
	return &ParseError{Platform: platform, Message: fmt.Sprintf(format, args...)}
}

func (e *ParseError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = ErrParse.Error()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Platform != "" {
		return fmt.Sprintf("[%s] %s", e.Platform, msg)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// DownloadError describes a single media item that failed to fetch.
type DownloadError struct {
	URL string
	Err error
}

func (e *DownloadError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%v: %v", ErrDownload, e.Err)
	}
	return fmt.Sprintf("%v: %s: %v", ErrDownload, e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

func (e *DownloadError) Is(target error) bool {
	return target == ErrDownload
}

// IsSuppressed reports whether err describes an item that legitimately has nothing to show.
func IsSuppressed(err error) bool {
	return errors.Is(err, ErrZeroSize) || errors.Is(err, ErrSizeLimit)
}
