// Package parsers wires every platform plugin into a Registry at startup.
package parsers

import (
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/parser"
	"github.com/alanbriolat/media-resolver/parsers/acfun"
	"github.com/alanbriolat/media-resolver/parsers/bilibili"
	"github.com/alanbriolat/media-resolver/parsers/raw"
	"github.com/alanbriolat/media-resolver/parsers/tiktok"
	"github.com/alanbriolat/media-resolver/parsers/twitter"
	"github.com/alanbriolat/media-resolver/parsers/youtube"
)

// Configs holds the platform-specific settings; zero values mean defaults.
type Configs struct {
	Bilibili bilibili.Config
	Acfun    acfun.Config
	Twitter  twitter.Config
	Raw      raw.Config
}

// All constructs every platform parser. TikTok is left out when yt-dlp is not available.
func All(deps parser.Deps, configs Configs) []media_resolver.Parser {
	parsers := []media_resolver.Parser{
		bilibili.New(deps, configs.Bilibili),
		youtube.New(deps),
		acfun.New(deps, configs.Acfun),
		twitter.New(deps, configs.Twitter),
	}
	if tt := tiktok.New(deps); tt.Available() {
		parsers = append(parsers, tt)
	} else {
		zap.S().Named("parsers").Warnw("yt-dlp not found, tiktok disabled")
	}
	return append(parsers, raw.New(deps, configs.Raw))
}

// Register adds every parser from All to registry, reporting all failures together.
func Register(registry *media_resolver.Registry, deps parser.Deps, configs Configs) error {
	var result error
	for _, p := range All(deps, configs) {
		if err := registry.Add(p); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result
}
