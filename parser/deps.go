package parser

import (
	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/download"
	"github.com/alanbriolat/media-resolver/internal/credstore"
	"github.com/alanbriolat/media-resolver/ytdlp"
)

// Deps are the shared services handed to every platform constructor.
type Deps struct {
	Downloader *download.Downloader
	// YTDLP is nil when yt-dlp is not installed.
	YTDLP       *ytdlp.Downloader
	Credentials credstore.Store
	Options     Options
}

// Base creates the embedded Base for platform.
func (d Deps) Base(platform media_resolver.Platform) *Base {
	return NewBase(platform, d.Downloader, d.Options)
}

// CredentialStore never returns nil.
func (d Deps) CredentialStore() credstore.Store {
	if d.Credentials == nil {
		return credstore.NilStore{}
	}
	return d.Credentials
}
