// Package message is the outbound payload model shared by renderers and chat sinks.
package message

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LargeVideoSize is the size above which videos are sent as files.
const LargeVideoSize = 100 << 20

type SegmentKind string

const (
	KindText  SegmentKind = "text"
	KindImage SegmentKind = "image"
	KindVideo SegmentKind = "video"
	KindAudio SegmentKind = "audio"
	KindFile  SegmentKind = "file"
)

// A Segment is one piece of a message. Media segments refer to local files by Path.
type Segment struct {
	Kind SegmentKind
	Text string
	Path string
	// Name is the display name of a file segment.
	Name string
}

func Text(s string) Segment {
	return Segment{Kind: KindText, Text: s}
}

func Image(path string) Segment {
	return Segment{Kind: KindImage, Path: path}
}

func Video(path string) Segment {
	return Segment{Kind: KindVideo, Path: path}
}

func Audio(path string) Segment {
	return Segment{Kind: KindAudio, Path: path}
}

func File(path string, name string) Segment {
	if name == "" {
		name = filepath.Base(path)
	}
	return Segment{Kind: KindFile, Path: path, Name: name}
}

// VideoSegment picks how a downloaded video is sent: a notice if it is empty, a file if it is too large to send as
// a video, and a video segment otherwise.
func VideoSegment(path string) Segment {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return Text(fmt.Sprintf("Video file unavailable: %v", err))
	case info.Size() == 0:
		return Text("Video file is empty")
	case info.Size() > LargeVideoSize:
		return File(path, filepath.Base(path))
	default:
		return Video(path)
	}
}

func (s Segment) String() string {
	switch s.Kind {
	case KindText:
		return s.Text
	case KindFile:
		return fmt.Sprintf("[file %s]", s.Name)
	default:
		return fmt.Sprintf("[%s %s]", s.Kind, filepath.Base(s.Path))
	}
}

// A Node is one entry of a forwarded bundle.
type Node []Segment

// Message is either a list of segments sent together, or a forwarded bundle of nodes.
type Message struct {
	Segments []Segment
	Forward  []Node
}

func New(segments ...Segment) Message {
	return Message{Segments: segments}
}

// Forward bundles nodes into a single forwarded message.
func Forward(nodes ...Node) Message {
	return Message{Forward: nodes}
}

func (m Message) IsForward() bool {
	return len(m.Forward) > 0
}

func (m Message) IsEmpty() bool {
	return len(m.Segments) == 0 && len(m.Forward) == 0
}

// AllSegments flattens a forwarded bundle.
func (m Message) AllSegments() []Segment {
	if !m.IsForward() {
		return m.Segments
	}
	var segments []Segment
	for _, node := range m.Forward {
		segments = append(segments, node...)
	}
	return segments
}

func (m Message) String() string {
	var b strings.Builder
	if m.IsForward() {
		b.WriteString("[forward]")
		for _, node := range m.Forward {
			b.WriteString("\n> ")
			for _, s := range node {
				b.WriteString(s.String())
			}
		}
		return b.String()
	}
	for _, s := range m.Segments {
		b.WriteString(s.String())
	}
	return b.String()
}

// Reaction is the status indicator attached to the message being resolved.
type Reaction string

const (
	Resolving Reaction = "resolving"
	Done      Reaction = "done"
	Fail      Reaction = "fail"
)

// Conversation is where rendered messages go. React is best-effort and never fails.
type Conversation interface {
	Send(ctx context.Context, m Message) error
	React(ctx context.Context, r Reaction)
}
