// Package onebot implements a OneBot v11 forward websocket client: it receives chat messages and sends rendered
// results and reactions back.
package onebot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/alanbriolat/media-resolver/internal/lpc"
	"github.com/alanbriolat/media-resolver/internal/sync_"
)

var (
	ErrAction       = errors.New("onebot action failed")
	ErrDisconnected = errors.New("onebot connection closed")
)

const DefaultTimeout = 60 * time.Second

type Config struct {
	URL   string
	Token string
	// Timeout bounds each action; uploads of large videos are the slowest.
	Timeout time.Duration
}

type call = lpc.Command[Action, Response]

type Client struct {
	config Config
	log    *zap.SugaredLogger
	conn   *websocket.Conn
	self   LoginInfo

	writeMu   sync.Mutex
	pending   *sync_.RWMutexed[map[string]*call]
	messages  chan *MessageEvent
	closed    sync_.Event
	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// Dial connects to the OneBot implementation and identifies the bot account.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	header := http.Header{}
	if config.Token != "" {
		header.Set("Authorization", "Bearer "+config.Token)
	}
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	conn, _, err := dialer.DialContext(ctx, config.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.URL, err)
	}
	c := &Client{
		config:   config,
		log:      zap.S().Named("onebot"),
		conn:     conn,
		pending:  sync_.NewRWMutexed(make(map[string]*call)),
		messages: make(chan *MessageEvent, 16),
		done:     make(chan struct{}),
	}
	go c.readLoop()

	data, err := c.Call(ctx, "get_login_info", struct{}{})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := json.Unmarshal(data, &c.self); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("unexpected login info: %w", err)
	}
	c.log.Infow("connected", "url", config.URL, "user_id", c.self.UserID, "nickname", c.self.Nickname)
	return c, nil
}

func (c *Client) Self() LoginInfo {
	return c.self
}

// Messages yields incoming messages until the connection ends, then is closed.
func (c *Client) Messages() <-chan *MessageEvent {
	return c.messages
}

// Done is closed once the read loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Call sends an action and waits for its response data.
func (c *Client) Call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	if c.closed.IsSet() {
		return nil, ErrDisconnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req := Action{Action: action, Params: params, Echo: uuid.NewString()}
	cmd := lpc.New[Action, Response](req)
	_ = c.pending.Locked(func(m *map[string]*call) error {
		(*m)[req.Echo] = cmd
		return nil
	})
	defer c.pending.Locked(func(m *map[string]*call) error {
		delete(*m, req.Echo)
		return nil
	})

	if err := c.write(req); err != nil {
		return nil, err
	}
	select {
	case <-cmd.Done():
	case <-c.done:
		_ = cmd.RespondError(ErrDisconnected)
	case <-ctx.Done():
	}
	resp, err := cmd.Wait(ctx)
	if errors.Is(err, lpc.ErrNoResponse) {
		return nil, ErrDisconnected
	} else if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	if err := resp.err(action); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *Client) write(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", ErrDisconnected, err)
	}
	return nil
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Set()
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.closeErr = c.conn.Close()
	})
	<-c.done
	return c.closeErr
}

func (c *Client) readLoop() {
	defer close(c.done)
	defer close(c.messages)
	defer func() {
		// Fail everything still waiting
		_ = c.pending.Locked(func(m *map[string]*call) error {
			for _, cmd := range *m {
				cmd.Close()
			}
			return nil
		})
		c.closed.Set()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.IsSet() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warnw("connection lost", "error", err)
			}
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warnw("failed to decode frame", "error", err)
			continue
		}
		switch {
		case f.Echo != "":
			var cmd *call
			_ = c.pending.RLocked(func(m *map[string]*call) error {
				cmd = (*m)[f.Echo]
				return nil
			})
			if cmd == nil {
				c.log.Debugw("response for unknown action", "echo", f.Echo)
				continue
			}
			_ = cmd.Respond(f.Response)
		case f.PostType == "message":
			var ev MessageEvent
			if err := json.Unmarshal(data, &ev); err != nil {
				c.log.Warnw("failed to decode message event", "error", err)
				continue
			}
			if ev.UserID == ev.SelfID && ev.SelfID != 0 {
				continue
			}
			select {
			case c.messages <- &ev:
			case <-c.closed.Wait():
				return
			}
		default:
			c.log.Debugw("ignoring event", "post_type", f.PostType)
		}
	}
}
