// Package dir is a local message sink: media is copied into a directory and text is appended to a transcript.
package dir

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver/message"
)

const TranscriptName = "messages.txt"

type Conversation struct {
	Dir string
	log *zap.SugaredLogger
}

func New(dir string) (*Conversation, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Conversation{Dir: dir, log: zap.S().Named("sink")}, nil
}

func (c *Conversation) Send(ctx context.Context, m message.Message) error {
	c.log.Infof("message:\n%s", m.String())
	var result *multierror.Error
	for _, s := range m.AllSegments() {
		if s.Kind == message.KindText {
			continue
		}
		name := s.Name
		if name == "" {
			name = filepath.Base(s.Path)
		}
		target := filepath.Join(c.Dir, name)
		if err := copyFile(s.Path, target); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to save %s: %w", s.Path, err))
			continue
		}
		c.log.Infow("saved", "kind", s.Kind, "path", target)
	}
	if err := c.appendTranscript(m.String()); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (c *Conversation) React(ctx context.Context, r message.Reaction) {
	c.log.Debugw("reaction", "reaction", r)
}

func (c *Conversation) appendTranscript(text string) error {
	f, err := os.OpenFile(filepath.Join(c.Dir, TranscriptName), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintf(f, "%s\n\n", text)
	return err
}

func copyFile(src string, dst string) error {
	if abs, err := filepath.Abs(src); err == nil {
		if absDst, err := filepath.Abs(dst); err == nil && abs == absDst {
			return nil
		}
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
