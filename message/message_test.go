package message

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestVideoSegment(t *testing.T) {
	assert := assert_.New(t)
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty.mp4")
	assert.NoError(os.WriteFile(empty, nil, 0644))
	assert.Equal(Text("Video file is empty"), VideoSegment(empty))

	small := filepath.Join(dir, "small.mp4")
	assert.NoError(os.WriteFile(small, []byte("video"), 0644))
	assert.Equal(Video(small), VideoSegment(small))

	// Sparse file, so nothing large is actually written
	large := filepath.Join(dir, "large.mp4")
	f, err := os.Create(large)
	assert.NoError(err)
	assert.NoError(f.Truncate(LargeVideoSize + 1))
	assert.NoError(f.Close())
	assert.Equal(File(large, "large.mp4"), VideoSegment(large))

	assert.Equal(KindText, VideoSegment(filepath.Join(dir, "missing.mp4")).Kind)
}

func TestMessage(t *testing.T) {
	assert := assert_.New(t)
	m := New(Text("hello "), Image("/cache/a.jpg"))
	assert.False(m.IsForward())
	assert.Equal("hello [image a.jpg]", m.String())

	f := Forward(Node{Text("one")}, Node{Image("/cache/b.png"), Text("two")})
	assert.True(f.IsForward())
	assert.Len(f.AllSegments(), 3)
	assert.Equal("[forward]\n> one\n> [image b.png]two", f.String())

	assert.True(Message{}.IsEmpty())
}

func TestRecorder(t *testing.T) {
	assert := assert_.New(t)
	var r Recorder
	var conv Conversation = &r
	conv.React(context.Background(), Resolving)
	assert.NoError(conv.Send(context.Background(), New(Text("x"))))
	conv.React(context.Background(), Done)
	assert.Len(r.Messages(), 1)
	assert.Equal([]Reaction{Resolving, Done}, r.Reactions())
}
