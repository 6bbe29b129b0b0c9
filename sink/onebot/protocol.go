package onebot

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alanbriolat/media-resolver/dispatch"
	"github.com/alanbriolat/media-resolver/message"
)

// Action is an API request; Echo pairs it with its response.
type Action struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// frame is every field the read loop needs to route an incoming websocket message.
type frame struct {
	Echo     string `json:"echo"`
	PostType string `json:"post_type"`
	Response
}

type Response struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Msg     string          `json:"msg"`
	Wording string          `json:"wording"`
}

func (r *Response) err(action string) error {
	if r.Status == "ok" || r.Status == "async" {
		return nil
	}
	detail := r.Wording
	if detail == "" {
		detail = r.Msg
	}
	return fmt.Errorf("%w: %s returned %s (retcode %d) %s", ErrAction, action, r.Status, r.Retcode, detail)
}

// Segment is the wire form of one message segment.
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageEvent is an incoming group or private message.
type MessageEvent struct {
	MessageType string    `json:"message_type"`
	MessageID   int64     `json:"message_id"`
	UserID      int64     `json:"user_id"`
	GroupID     int64     `json:"group_id"`
	SelfID      int64     `json:"self_id"`
	Message     []Segment `json:"message"`
	RawMessage  string    `json:"raw_message"`
}

func (e *MessageEvent) IsGroup() bool {
	return e.MessageType == "group"
}

// Inbound extracts the plain text and the first JSON card of the message.
func (e *MessageEvent) Inbound() dispatch.Inbound {
	var in dispatch.Inbound
	var text strings.Builder
	for _, s := range e.Message {
		switch s.Type {
		case "text":
			if t, ok := s.Data["text"].(string); ok {
				text.WriteString(t)
			}
		case "json":
			if in.Card == "" {
				in.Card, _ = s.Data["data"].(string)
			}
		}
	}
	in.Text = text.String()
	if in.Text == "" && in.Card == "" {
		in.Text = e.RawMessage
	}
	return in
}

// LoginInfo identifies the bot account, used for forward nodes.
type LoginInfo struct {
	UserID   int64  `json:"user_id"`
	Nickname string `json:"nickname"`
}

var reactionEmoji = map[message.Reaction]string{
	message.Resolving: "424",
	message.Done:      "144",
	message.Fail:      "10060",
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + filepath.ToSlash(path)
}

// segments converts everything but file segments, which have to be uploaded separately.
func segments(in []message.Segment) (out []Segment, files []message.Segment) {
	for _, s := range in {
		switch s.Kind {
		case message.KindText:
			out = append(out, Segment{Type: "text", Data: map[string]any{"text": s.Text}})
		case message.KindImage:
			out = append(out, Segment{Type: "image", Data: map[string]any{"file": fileURI(s.Path)}})
		case message.KindVideo:
			out = append(out, Segment{Type: "video", Data: map[string]any{"file": fileURI(s.Path)}})
		case message.KindAudio:
			out = append(out, Segment{Type: "record", Data: map[string]any{"file": fileURI(s.Path)}})
		case message.KindFile:
			files = append(files, s)
		}
	}
	return out, files
}

func forwardNodes(nodes []message.Node, self LoginInfo) (out []Segment, files []message.Segment) {
	uin := strconv.FormatInt(self.UserID, 10)
	for _, n := range nodes {
		content, nodeFiles := segments(n)
		files = append(files, nodeFiles...)
		if len(content) == 0 {
			continue
		}
		out = append(out, Segment{Type: "node", Data: map[string]any{
			"user_id":  uin,
			"nickname": self.Nickname,
			"content":  content,
		}})
	}
	return out, files
}
