package parsers

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

func newDeps(t *testing.T) parser.Deps {
	d, err := download.New(download.Config{CacheDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return parser.Deps{Downloader: d, YTDLP: ytdlp.New(ytdlp.Config{Path: "no-such-yt-dlp-binary"})}
}

func TestRegister(t *testing.T) {
	assert := assert_.New(t)
	registry := media_resolver.NewRegistry()
	assert.NoError(Register(registry, newDeps(t), Configs{}))

	var names []string
	for _, p := range registry.Platforms() {
		names = append(names, p.Name)
	}
	assert.Equal([]string{"bilibili", "youtube", "acfun", "twitter", "raw"}, names)

	cases := map[string]string{
		"BV1xx411c7mD":                                 "bilibili",
		"https://www.bilibili.com/video/BV1xx411c7mD":  "bilibili",
		"https://youtu.be/dQw4w9WgXcQ":                 "youtube",
		"https://www.acfun.cn/v/ac4213":                "acfun",
		"https://x.com/someone/status/1":               "twitter",
		"https://example.com/files/picture.png":        "raw",
		"https://www.tiktok.com/@someone/video/123456": "",
	}
	for text, platform := range cases {
		m, err := registry.Match(text)
		if platform == "" {
			assert.ErrorIs(err, media_resolver.ErrNoMatch, text)
			continue
		}
		if assert.NoError(err, text) {
			assert.Equal(platform, m.Platform.Name, text)
		}
	}
}

func TestRegisterTwice(t *testing.T) {
	assert := assert_.New(t)
	deps := newDeps(t)
	registry := media_resolver.NewRegistry("raw")
	assert.NoError(Register(registry, deps, Configs{}))
	err := Register(registry, deps, Configs{})
	assert.ErrorIs(err, media_resolver.ErrDuplicatePlatform)
	assert.Len(registry.Platforms(), 4)
}
