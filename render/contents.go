package render

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/alanbriolat/media-resolver"
	"github.com/alanbriolat/media-resolver/message"
)

const durationNotice = "Video exceeds the duration limit and was not downloaded"

type resolved struct {
	content media_resolver.MediaContent
	path    string
	err     error
}

// resolveAll waits for every content concurrently, keeping the original order.
func resolveAll(ctx context.Context, contents []media_resolver.MediaContent) []resolved {
	results := make([]resolved, len(contents))
	var g errgroup.Group
	for i, c := range contents {
		i, c := i, c
		results[i].content = c
		g.Go(func() error {
			results[i].path, results[i].err = c.Path(ctx)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// FailureNotice is the trailing message for n failed downloads.
func FailureNotice(n int) string {
	if n == 1 {
		return "1 media item failed to download"
	}
	return fmt.Sprintf("%d media items failed to download", n)
}

// emitContents resolves the contents of result and its repost, then emits image-like items (with the result text)
// as one message or one forward, each video and audio on its own, a notice for over-duration videos, and finally a
// notice counting failed downloads.
func emitContents(ctx context.Context, result *media_resolver.ParseResult, options Options, emit Emit) error {
	log := media_resolver.Logger(ctx).Sugar().Named("render")
	var errs error
	send := func(m message.Message) {
		if err := emit(ctx, m); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("send failed: %w", err))
		}
	}

	var forwardable []message.Node
	var dynamics []message.Node
	var standalone []message.Message
	var failed int
	var overDuration bool
	for _, r := range resolveAll(ctx, result.AllContents()) {
		if r.err != nil {
			switch {
			case media_resolver.IsSuppressed(r.err):
				log.Debugw("skipping media", "kind", r.content.Kind(), "error", r.err)
			case errors.Is(r.err, media_resolver.ErrDurationLimit):
				overDuration = true
			case errors.Is(r.err, media_resolver.ErrDownload):
				log.Warnw("media download failed", "kind", r.content.Kind(), "error", r.err)
				failed++
			default:
				errs = multierror.Append(errs, r.err)
			}
			continue
		}
		switch c := r.content.(type) {
		case *media_resolver.VideoContent:
			standalone = append(standalone, message.New(message.VideoSegment(r.path)))
		case *media_resolver.AudioContent:
			standalone = append(standalone, message.New(message.Audio(r.path)))
		case *media_resolver.ImageContent:
			forwardable = append(forwardable, message.Node{message.Image(r.path)})
		case *media_resolver.DynamicContent:
			dynamics = append(dynamics, message.Node{message.VideoSegment(r.path)})
		case *media_resolver.GraphicsContent:
			var node message.Node
			if c.Text != "" {
				node = append(node, message.Text(c.Text))
			}
			node = append(node, message.Image(r.path))
			if c.Alt != "" {
				node = append(node, message.Text(c.Alt))
			}
			forwardable = append(forwardable, node)
		}
	}

	if len(forwardable) > 0 {
		if result.Text != "" {
			forwardable = append(forwardable, message.Node{message.Text(result.Text)})
		}
		if options.ForwardContents || len(forwardable) > options.threshold() {
			send(message.Forward(append(forwardable, dynamics...)...))
			dynamics = nil
		} else {
			var segments []message.Segment
			for _, node := range forwardable {
				segments = append(segments, node...)
			}
			send(message.New(segments...))
		}
	}
	if len(dynamics) > 0 {
		send(message.Forward(dynamics...))
	}
	for _, m := range standalone {
		send(m)
	}
	if overDuration {
		send(message.New(message.Text(durationNotice)))
	}
	if failed > 0 {
		notice := FailureNotice(failed)
		send(message.New(message.Text(notice)))
		errs = multierror.Append(errs, fmt.Errorf("%w: %s", media_resolver.ErrDownload, notice))
	}
	return errs
}
