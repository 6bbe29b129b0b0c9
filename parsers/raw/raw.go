// Package raw handles direct links to media files, recognised by their file extension.
package raw

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/generic"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/util"
)

var Platform = media_resolver.Platform{Name: "raw", DisplayName: "Direct link"}

type Config struct {
	Protocols       generic.Set[string]
	VideoExtensions generic.Set[string]
	ImageExtensions generic.Set[string]
	AudioExtensions generic.Set[string]
}

func NewConfig() Config {
	return Config{
		Protocols: generic.NewSet(
			"http",
			"https",
		),
		VideoExtensions: generic.NewSet(
			"flv",
			"m4v",
			"mkv",
			"mov",
			"mp4",
			"webm",
		),
		ImageExtensions: generic.NewSet(
			"gif",
			"jpeg",
			"jpg",
			"png",
			"webp",
		),
		AudioExtensions: generic.NewSet(
			"flac",
			"m4a",
			"mp3",
			"ogg",
			"wav",
		),
	}
}

// A link is a URL that Config.Match accepted.
type link struct {
	url      string
	filename string
	kind     media_resolver.MediaKind
}

func (c *Config) Match(s string) (*link, error) {
	// Expect string to be a URL
	parsedURL, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	// Check that scheme/protocol is valid
	if !c.Protocols.Contains(parsedURL.Scheme) {
		return nil, fmt.Errorf("unknown URL scheme %v", parsedURL.Scheme)
	}
	// Attempt to extract filename and extension
	filename, err := util.FilenameFromURL(parsedURL)
	if err != nil {
		return nil, err
	}
	extension := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	if extension == "" {
		return nil, fmt.Errorf("no file extension found")
	}
	res := link{url: s, filename: filename}
	switch {
	case c.VideoExtensions.Contains(extension):
		res.kind = media_resolver.KindVideo
	case c.ImageExtensions.Contains(extension):
		res.kind = media_resolver.KindImage
	case c.AudioExtensions.Contains(extension):
		res.kind = media_resolver.KindAudio
	default:
		return nil, fmt.Errorf("unknown file extension %v", extension)
	}
	return &res, nil
}

type Parser struct {
	*parser.Base
	config Config
}

func New(deps parser.Deps, config Config) *Parser {
	defaults := NewConfig()
	if config.Protocols == nil {
		config.Protocols = defaults.Protocols
	}
	if config.VideoExtensions == nil {
		config.VideoExtensions = defaults.VideoExtensions
	}
	if config.ImageExtensions == nil {
		config.ImageExtensions = defaults.ImageExtensions
	}
	if config.AudioExtensions == nil {
		config.AudioExtensions = defaults.AudioExtensions
	}
	p := &Parser{Base: deps.Base(Platform), config: config}
	var extensions []string
	for _, set := range []generic.Set[string]{config.VideoExtensions, config.ImageExtensions, config.AudioExtensions} {
		extensions = append(extensions, set.ToSlice()...)
	}
	// Map iteration order is random; keep handler order reproducible
	sort.Strings(extensions)
	for _, ext := range extensions {
		keyword := "." + ext
		p.Handle(keyword, fmt.Sprintf(`(?i)https?://[^\s"'<>]+?\.%s(?:[?#][^\s"'<>]*)?(?:$|[\s"'<>])`, regexp.QuoteMeta(ext)), p.handleLink)
	}
	return p
}

func (p *Parser) handleLink(ctx context.Context, m *media_resolver.Match) (*media_resolver.ParseResult, error) {
	s := strings.TrimRight(m.Raw(), " \t\r\n\"'<>")
	l, err := p.config.Match(s)
	if err != nil {
		return nil, &media_resolver.ParseError{Platform: Platform.Name, Message: "not a media link", Err: err}
	}
	var contents []media_resolver.MediaContent
	switch l.kind {
	case media_resolver.KindVideo:
		contents = append(contents, p.VideoURL(l.url, "", 0))
	case media_resolver.KindImage:
		contents = p.Images(l.url)
	case media_resolver.KindAudio:
		contents = append(contents, p.AudioURL(l.url, 0))
	}
	return p.Result(media_resolver.ResultOptions{
		URL:      l.url,
		Title:    l.filename,
		Contents: contents,
	}), nil
}
