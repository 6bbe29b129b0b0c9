package render

import (
	"context"
	"unicode/utf8"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/message"
)

// LongTextThreshold is the summary length, in characters, above which the summary is sent as a forward.
const LongTextThreshold = 300

// Default renders a text summary with the cover image, followed by the contents.
type Default struct {
	Options Options
}

func (d *Default) Render(ctx context.Context, result *media_resolver.ParseResult, emit Emit) error {
	if summary := d.summary(ctx, result); !summary.IsEmpty() {
		if err := emit(ctx, summary); err != nil {
			return err
		}
	}
	return emitContents(ctx, result, d.Options, emit)
}

func (d *Default) summary(ctx context.Context, result *media_resolver.ParseResult) message.Message {
	texts := []string{result.Header(), result.Text, result.ExtraInfo()}
	if d.Options.AppendURL {
		texts = append(texts, result.DisplayURL(), result.RepostDisplayURL())
	}
	var segments []message.Segment
	total := 0
	for _, text := range texts {
		if text == "" {
			continue
		}
		total += utf8.RuneCountInString(text)
		segments = append(segments, message.Text(text))
	}
	for i := 0; i < len(segments)-1; i++ {
		segments[i].Text += "\n"
	}

	cover, err := result.CoverPath(ctx)
	if err != nil {
		media_resolver.Logger(ctx).Sugar().Named("render").Debugw("cover unavailable", "url", result.URL, "error", err)
	} else if cover.IsSome() {
		// After the header line
		at := min(1, len(segments))
		segments = append(segments[:at], append([]message.Segment{message.Image(cover.Unwrap())}, segments[at:]...)...)
	}

	if total > LongTextThreshold {
		nodes := make([]message.Node, 0, len(segments))
		for _, s := range segments {
			nodes = append(nodes, message.Node{s})
		}
		return message.Forward(nodes...)
	}
	return message.New(segments...)
}
