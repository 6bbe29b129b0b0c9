// Package card draws a ParseResult as a PNG summary card.
package card

import (
	"context"

	"github.com/alanbriolat/media-resolver"
)

// MaxImages is how many image thumbnails a card shows.
const MaxImages = 4

// Data is everything a card backend needs, with media already resolved to local files.
type Data struct {
	Platform   string
	Title      string
	AuthorName string
	AvatarPath string
	Time       string
	Text       string
	Extra      string
	CoverPath  string
	ImagePaths []string
	Repost     *Data
}

// Build resolves the avatar, cover and first few images of result. Media that fails to resolve is left out of the
// card; the content renderer reports it separately.
func Build(ctx context.Context, result *media_resolver.ParseResult) *Data {
	data := &Data{
		Platform: result.Platform.DisplayName,
		Title:    result.Title,
		Time:     result.FormattedTime(),
		Text:     result.Text,
		Extra:    result.ExtraInfo(),
	}
	if data.Platform == "" {
		data.Platform = result.Platform.Name
	}
	if result.Author != nil {
		data.AuthorName = result.Author.Name
		if avatar, err := result.Author.AvatarPath(ctx); err == nil {
			data.AvatarPath = avatar.UnwrapOrDefault()
		}
	}
	if cover, err := result.CoverPath(ctx); err == nil {
		data.CoverPath = cover.UnwrapOrDefault()
	}
	for _, c := range result.Contents {
		if len(data.ImagePaths) >= MaxImages {
			break
		}
		switch c.(type) {
		case *media_resolver.ImageContent, *media_resolver.GraphicsContent:
			if path, err := c.Path(ctx); err == nil {
				data.ImagePaths = append(data.ImagePaths, path)
			}
		}
	}
	if result.Repost != nil {
		data.Repost = Build(ctx, result.Repost)
	}
	return data
}
