package ytdlp

import (
	"context"
	"testing"
	"time"

	assert_ "github.com/stretchr/testify/assert"
)

func TestUnavailable(t *testing.T) {
	assert := assert_.New(t)
	d := New(Config{Path: "no-such-yt-dlp-binary", CacheDir: t.TempDir()})
	assert.False(d.Available())
	_, err := d.ExtractInfo(context.Background(), "https://www.tiktok.com/@a/video/1")
	assert.ErrorIs(err, ErrUnavailable)
	_, err = d.Video(context.Background(), "https://www.tiktok.com/@a/video/1")
	assert.ErrorIs(err, ErrUnavailable)
}

func TestInfo(t *testing.T) {
	assert := assert_.New(t)
	info := Info{Channel: "chan", Duration: 1.5}
	assert.Equal("chan", info.Author())
	info.Uploader = "up"
	assert.Equal("up", info.Author())
	assert.Equal(1500*time.Millisecond, info.DurationValue())
}

func TestBaseArgs(t *testing.T) {
	assert := assert_.New(t)
	d := New(Config{Proxy: "socks5://127.0.0.1:1080", CookiesFile: "/tmp/cookies.txt"})
	args := d.baseArgs()
	assert.Contains(args, "--proxy")
	assert.Contains(args, "socks5://127.0.0.1:1080")
	assert.Contains(args, "--cookies")
}
