package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClientClosed the connection is gone
var ErrClientClosed = errors.New("websocket client closed")

type wireResponse struct {
	Action    string          `json:"action"`
	RequestID string          `json:"request_id,omitempty"`
	Success   bool            `json:"success"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
}

// Client websocket client of the chat service, implements Appender and Pager
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu       sync.Mutex
	inflight map[string]chan wireResponse
	closed   bool

	messages chan domain.Event
	rooms    chan domain.RoomEvent
	done     chan struct{}
}

// Dial connect to url (ws://host/ws) with a bearer token
func Dial(ctx context.Context, url, token string) (*Client, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, errprocess.Transient("dial chat service", err)
	}

	c := &Client{
		conn:     conn,
		inflight: make(map[string]chan wireResponse),
		messages: make(chan domain.Event, 256),
		rooms:    make(chan domain.RoomEvent, 256),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// MessageEvents message pushes of every entered room
func (c *Client) MessageEvents() <-chan domain.Event { return c.messages }

// RoomEvents membership pushes of the caller
func (c *Client) RoomEvents() <-chan domain.RoomEvent { return c.rooms }

// Done closed when the read loop stops
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer func() {
		c.mu.Lock()
		c.closed = true
		for id, ch := range c.inflight {
			close(ch)
			delete(c.inflight, id)
		}
		c.mu.Unlock()
		close(c.messages)
		close(c.rooms)
		close(c.done)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log.Debug("chat client read err", zap.Error(err))
			}
			return
		}
		var resp wireResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			logger.Log.Warn("chat client bad frame", zap.Error(err))
			continue
		}

		switch domain.Action(resp.Action) {
		case domain.NotifyMessageEvent:
			var msg domain.Message
			if err := json.Unmarshal(resp.Payload, &msg); err == nil {
				c.push(func() bool {
					select {
					case c.messages <- domain.NewMessageEvent(msg):
						return true
					default:
						return false
					}
				})
			}
			continue
		case domain.NotifyRoomEvent:
			var ev domain.RoomEvent
			if err := json.Unmarshal(resp.Payload, &ev); err == nil {
				c.push(func() bool {
					select {
					case c.rooms <- ev:
						return true
					default:
						return false
					}
				})
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.inflight[resp.RequestID]
		delete(c.inflight, resp.RequestID)
		c.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// push drop the event when the consumer is not keeping up, page reconciles the gap
func (c *Client) push(try func() bool) {
	if !try() {
		logger.Log.Warn("chat client event dropped, consumer too slow")
	}
}

// Call send req and wait for the matching response
func (c *Client) Call(ctx context.Context, req domain.WSRequest, out interface{}) error {
	if req.RequestID == "" {
		req.RequestID = uuid.New().String()
	}
	ch := make(chan wireResponse, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.inflight[req.RequestID] = ch
	c.mu.Unlock()

	b, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, b)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(req.RequestID)
		return errprocess.Transient("write request", err)
	}

	select {
	case <-ctx.Done():
		c.forget(req.RequestID)
		return errprocess.Transient("request "+req.Action, ctx.Err())
	case resp, ok := <-ch:
		if !ok {
			return ErrClientClosed
		}
		if !resp.Success {
			return &errprocess.Error{Kind: errprocess.Kind(resp.ErrorKind), Msg: resp.Error}
		}
		if out != nil && len(resp.Payload) > 0 {
			return json.Unmarshal(resp.Payload, out)
		}
		return nil
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.inflight, id)
	c.mu.Unlock()
}

// Append send_message
func (c *Client) Append(ctx context.Context, roomID, content, clientMsgID string) (*domain.Message, error) {
	var msg domain.Message
	err := c.Call(ctx, domain.WSRequest{
		Action:      string(domain.SendMessage),
		RoomID:      roomID,
		Content:     content,
		ClientMsgID: clientMsgID,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Page load_older, a zero cursor returns the newest page
func (c *Client) Page(ctx context.Context, roomID string, cursor domain.PageCursor, limit int) (*domain.MessagePage, error) {
	var page domain.MessagePage
	err := c.Call(ctx, domain.WSRequest{
		Action:    string(domain.LoadOlder),
		RoomID:    roomID,
		BeforeSeq: cursor.BeforeSeq,
		Before:    cursor.Before,
		Limit:     limit,
	}, &page)
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// EnterRoom subscribe to the room's messages and return its newest page
func (c *Client) EnterRoom(ctx context.Context, roomID string, limit int) (*domain.MessagePage, error) {
	var page domain.MessagePage
	if err := c.Call(ctx, domain.WSRequest{Action: string(domain.EnterRoom), RoomID: roomID, Limit: limit}, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// ExitView stop the room's message stream
func (c *Client) ExitView(ctx context.Context, roomID string) error {
	return c.Call(ctx, domain.WSRequest{Action: string(domain.ExitView), RoomID: roomID}, nil)
}

// Heartbeat presence heartbeat, false when throttled by the server
func (c *Client) Heartbeat(ctx context.Context) (bool, error) {
	var out struct {
		Written bool `json:"written"`
	}
	if err := c.Call(ctx, domain.WSRequest{Action: string(domain.Heartbeat)}, &out); err != nil {
		return false, err
	}
	return out.Written, nil
}

// Close send a close frame and drop the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}
