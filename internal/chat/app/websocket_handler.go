package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"
	"realtime_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

// ChatWebsocketHandler 可包含所有需要的 UseCase
type ChatWebsocketHandler struct {
	roomUC       *RoomUseCase
	messageUC    *MessageUseCase
	presenceUC   *PresenceUseCase
	hub          *Hub
	pingInterval time.Duration
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	roomUC *RoomUseCase,
	messageUC *MessageUseCase,
	presenceUC *PresenceUseCase,
	hub *Hub,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		roomUC:       roomUC,
		messageUC:    messageUC,
		presenceUC:   presenceUC,
		hub:          hub,
		pingInterval: time.Minute,
	}
}

// wsClient one connection: a room-event stream plus one message stream per entered room
type wsClient struct {
	conn   *websocket.Conn
	userID string

	writeMu sync.Mutex

	mu       sync.Mutex
	roomSub  *Subscription
	roomSubs map[string]*Subscription
}

// HandleConnection 是 WebSocket 連線的進入點
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	memberID, _ := conn.Locals(middlewares.TokenMemberID).(string)
	c := &wsClient{conn: conn, userID: memberID, roomSubs: make(map[string]*Subscription)}
	if memberID == "" {
		c.send(domain.WSResponse{Action: "error", Error: "missing identity", ErrorKind: string(errprocess.KindPermission)})
		conn.Close()
		return
	}
	logger.Log.Info("websocket handle memberID", zap.String("userID", memberID))
	wsConnections.Inc()

	ticker := time.NewTicker(h.pingInterval)
	ctxClose, cancel := context.WithCancel(ctx)

	defer func() {
		ticker.Stop()
		cancel()
		c.closeAll()
		wsConnections.Dec()
		logger.Log.Info("websocket close", zap.String("userID", memberID))
		conn.Close()
	}()

	//server發出ping之後client連線正常會回pong
	conn.SetPongHandler(func(appData string) error {
		logger.Log.Debug("Received PONG", zap.String("userID", memberID))
		return nil
	})

	//client發出ping
	conn.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
	})

	// 連線時即訂閱自己的成員變更
	c.roomSub = h.hub.SubscribeRoomEvents(memberID)
	go c.forward(c.roomSub, domain.NotifyRoomEvent)

	// 定期發送 Ping
	go func() {
		for {
			select {
			case <-ticker.C:
				c.writeMu.Lock()
				err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
				c.writeMu.Unlock()
				if err != nil {
					logger.Log.Warn("Ping error", zap.String("userID", memberID), zap.Error(err))
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Log.Info("Connection closed", zap.String("userID", memberID))
			} else {
				//直接斷線 1006
				logger.Log.Warn("websocket read error", zap.String("userID", memberID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage {
			c.send(domain.WSResponse{Action: "error", Error: "only text messages are supported", ErrorKind: string(errprocess.KindValidation)})
			continue
		}
		h.textMessageAction(ctxClose, c, message)
	}
}

func (h *ChatWebsocketHandler) textMessageAction(ctx context.Context, c *wsClient, msg []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		c.send(domain.WSResponse{Action: "error", Error: "invalid json", ErrorKind: string(errprocess.KindValidation)})
		return
	}

	payload, err := h.dispatch(ctx, c, req)
	resp := domain.WSResponse{Action: req.Action, RequestID: req.RequestID, Success: err == nil}
	if err == nil {
		resp.Payload = payload
	} else {
		resp.Error = err.Error()
		resp.ErrorKind = string(errprocess.KindOf(err))
		logger.Log.Error("websocket err ",
			zap.String("MemberID", c.userID),
			zap.String("Action", req.Action),
			zap.String("kind", resp.ErrorKind),
			zap.Error(err))
	}
	c.send(resp)
}

func (h *ChatWebsocketHandler) dispatch(ctx context.Context, c *wsClient, req domain.WSRequest) (interface{}, error) {
	userID := c.userID
	switch domain.Action(req.Action) {
	case domain.ListRooms:
		return h.roomUC.ListRooms(ctx, userID)

	case domain.GetRoom:
		return h.roomUC.GetRoom(ctx, req.RoomID, userID)

	case domain.CreateDirect:
		return h.roomUC.CreateDirectRoom(ctx, userID, req.OtherUserID)

	case domain.CreateGroup:
		return h.roomUC.CreateGroupRoom(ctx, userID, req.Name, req.MemberIDs)

	case domain.AddMembers:
		added, err := h.roomUC.AddMembers(ctx, req.RoomID, userID, req.MemberIDs)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"room_id": req.RoomID, "added": added}, nil

	case domain.LeaveRoom:
		if err := h.roomUC.RemoveMember(ctx, req.RoomID, userID); err != nil {
			return nil, err
		}
		c.exitRoom(req.RoomID)
		return map[string]interface{}{"room_id": req.RoomID}, nil

	case domain.DeleteRoom:
		if err := h.roomUC.DeleteRoom(ctx, req.RoomID, userID); err != nil {
			return nil, err
		}
		c.exitRoom(req.RoomID)
		return map[string]interface{}{"room_id": req.RoomID}, nil

	case domain.MarkRead:
		if err := h.roomUC.MarkRead(ctx, req.RoomID, userID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"room_id": req.RoomID}, nil

	//進入聊天室：先訂閱再載入第一頁，重疊的訊息由 client 以 id 去重
	case domain.EnterRoom:
		sub := h.hub.SubscribeMessageEvents(req.RoomID)
		page, err := h.messageUC.Page(ctx, req.RoomID, userID, domain.PageCursor{}, req.Limit)
		if err != nil {
			sub.Close()
			return nil, err
		}
		next := int64(1)
		if n := len(page.Messages); n > 0 {
			next = page.Messages[n-1].Seq + 1
		}
		h.hub.SeedRoom(req.RoomID, next)
		c.enterRoom(req.RoomID, sub)
		if err := h.roomUC.MarkRead(ctx, req.RoomID, userID); err != nil {
			logger.Log.Warn("mark read on enter err", zap.String("room_id", req.RoomID), zap.Error(err))
		}
		return page, nil

	case domain.ExitView:
		c.exitRoom(req.RoomID)
		return map[string]interface{}{"room_id": req.RoomID}, nil

	case domain.LoadOlder:
		return h.messageUC.Page(ctx, req.RoomID, userID, req.Cursor(), req.Limit)

	case domain.SendMessage:
		return h.messageUC.Append(ctx, AppendRequest{
			RoomID:      req.RoomID,
			SenderID:    userID,
			Content:     req.Content,
			ClientMsgID: req.ClientMsgID,
		})

	case domain.Heartbeat:
		written, err := h.presenceUC.Heartbeat(ctx, userID)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"written": written}, nil

	case domain.ListUsers:
		return h.presenceUC.ListProfiles(ctx, userID, req.Query, req.ExcludeRoom)

	case domain.UpdateProfile:
		return h.presenceUC.UpdateProfile(ctx, userID, req.Username, req.AvatarURL)

	default:
		return nil, errprocess.Validation("unknown action %q", req.Action)
	}
}

// forward push every event of sub to the socket until the subscription closes
func (c *wsClient) forward(sub *Subscription, action domain.Action) {
	for ev := range sub.Events() {
		resp := domain.WSResponse{Action: string(action), Success: true}
		switch ev.Kind {
		case domain.EventMessage:
			resp.Payload = ev.Message
		case domain.EventMembership:
			resp.Payload = ev.Membership
		default:
			continue
		}
		c.send(resp)
	}
}

func (c *wsClient) enterRoom(roomID string, sub *Subscription) {
	c.mu.Lock()
	old := c.roomSubs[roomID]
	c.roomSubs[roomID] = sub
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	go c.forward(sub, domain.NotifyMessageEvent)
}

// exitRoom cancel the message stream of roomID, all rooms when roomID is empty
func (c *wsClient) exitRoom(roomID string) {
	c.mu.Lock()
	var subs []*Subscription
	for id, sub := range c.roomSubs {
		if roomID == "" || id == roomID {
			subs = append(subs, sub)
			delete(c.roomSubs, id)
		}
	}
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

func (c *wsClient) closeAll() {
	c.exitRoom("")
	if c.roomSub != nil {
		c.roomSub.Close()
	}
}

// send - 發送 JSON 給前端
func (c *wsClient) send(resp domain.WSResponse) {
	b, err := json.Marshal(resp)
	if err != nil {
		logger.Log.Error("marshal response error", zap.Error(err))
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		logger.Log.Warn("write message error", zap.String("userID", c.userID), zap.Error(err))
	}
}
