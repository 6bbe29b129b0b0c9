package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/message"
	"github.com/alanbriolat/media-resolver/render/card"
)

// CardFunc draws a card as PNG bytes.
type CardFunc func(ctx context.Context, data *card.Data) ([]byte, error)

// Card renders the result as an image card, followed by the contents unless CardOnly is set.
type Card struct {
	Options  Options
	Backend  CardFunc
	CacheDir string
	CardOnly bool
}

func (c *Card) Render(ctx context.Context, result *media_resolver.ParseResult, emit Emit) error {
	path, err := c.cardImage(ctx, result)
	if err != nil {
		return err
	}
	segments := []message.Segment{message.Image(path)}
	if c.Options.AppendURL {
		var urls []string
		for _, u := range []string{result.DisplayURL(), result.RepostDisplayURL()} {
			if u != "" {
				urls = append(urls, u)
			}
		}
		if len(urls) > 0 {
			segments = append(segments, message.Text(strings.Join(urls, "\n")))
		}
	}
	if err := emit(ctx, message.New(segments...)); err != nil {
		return err
	}
	if c.CardOnly {
		return nil
	}
	return emitContents(ctx, result, c.Options, emit)
}

// cardImage reuses the card already rendered for result, or renders and saves a new one.
func (c *Card) cardImage(ctx context.Context, result *media_resolver.ParseResult) (string, error) {
	if existing := result.RenderedImage(); existing.IsSome() {
		return existing.Unwrap(), nil
	}
	png, err := c.Backend(ctx, card.Build(ctx, result))
	if err != nil {
		return "", fmt.Errorf("failed to render card: %w", err)
	}
	path := filepath.Join(c.CacheDir, uuid.NewString()+".png")
	if err := os.WriteFile(path, png, 0644); err != nil {
		return "", fmt.Errorf("failed to save card: %w", err)
	}
	return result.SetRenderedImage(path), nil
}
