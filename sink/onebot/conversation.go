package onebot

import (
	"context"
	"path/filepath"

	"github.com/hashicorp/go-multierror"

	"github.com/alanbriolat/media-resolver/message"
)

// Conversation replies to the chat that ev came from.
type Conversation struct {
	client *Client
	event  *MessageEvent
}

func (c *Client) Conversation(ev *MessageEvent) *Conversation {
	return &Conversation{client: c, event: ev}
}

func (c *Conversation) target() (key string, id int64) {
	if c.event.IsGroup() {
		return "group_id", c.event.GroupID
	}
	return "user_id", c.event.UserID
}

func (c *Conversation) Send(ctx context.Context, m message.Message) error {
	key, id := c.target()
	var files []message.Segment
	var err error
	if m.IsForward() {
		var nodes []Segment
		nodes, files = forwardNodes(m.Forward, c.client.self)
		if len(nodes) > 0 {
			action := "send_private_forward_msg"
			if c.event.IsGroup() {
				action = "send_group_forward_msg"
			}
			_, err = c.client.Call(ctx, action, map[string]any{key: id, "messages": nodes})
		}
	} else {
		var segs []Segment
		segs, files = segments(m.Segments)
		if len(segs) > 0 {
			action := "send_private_msg"
			if c.event.IsGroup() {
				action = "send_group_msg"
			}
			_, err = c.client.Call(ctx, action, map[string]any{key: id, "message": segs})
		}
	}
	var result *multierror.Error
	if err != nil {
		result = multierror.Append(result, err)
	}
	for _, f := range files {
		if err := c.upload(ctx, f); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func (c *Conversation) upload(ctx context.Context, f message.Segment) error {
	key, id := c.target()
	action := "upload_private_file"
	if c.event.IsGroup() {
		action = "upload_group_file"
	}
	path, err := filepath.Abs(f.Path)
	if err != nil {
		return err
	}
	name := f.Name
	if name == "" {
		name = filepath.Base(path)
	}
	_, err = c.client.Call(ctx, action, map[string]any{key: id, "file": path, "name": name})
	return err
}

// React sets an emoji reaction on the original message. Failures are only logged, as not every implementation
// supports reactions.
func (c *Conversation) React(ctx context.Context, r message.Reaction) {
	emoji, ok := reactionEmoji[r]
	if !ok {
		return
	}
	params := map[string]any{"message_id": c.event.MessageID, "emoji_id": emoji}
	if _, err := c.client.Call(ctx, "set_msg_emoji_like", params); err != nil {
		c.client.log.Warnw("failed to react", "reaction", r, "message_id", c.event.MessageID, "error", err)
	}
}
