package app

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"realtime_chat_service/internal/chat/domain"
	errprocess "realtime_chat_service/pkg/err"
	"realtime_chat_service/pkg/logger"
	"realtime_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatRESTHandler 处理聊天相关的 HTTP 请求，與 websocket action 一一對應
type ChatRESTHandler struct {
	roomUC     *RoomUseCase
	messageUC  *MessageUseCase
	presenceUC *PresenceUseCase
}

// NewChatRESTHandler create ChatRESTHandler
func NewChatRESTHandler(roomUC *RoomUseCase, messageUC *MessageUseCase, presenceUC *PresenceUseCase) *ChatRESTHandler {
	return &ChatRESTHandler{roomUC: roomUC, messageUC: messageUC, presenceUC: presenceUC}
}

// ErrorResponse error body
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func fail(c *fiber.Ctx, err error) error {
	kind := errprocess.KindOf(err)
	status := errprocess.HTTPStatus(kind)
	if status >= fiber.StatusInternalServerError {
		logger.Log.Error("rest err", zap.String("path", c.Path()), zap.String("kind", string(kind)), zap.Error(err))
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Kind: string(kind)})
}

func badRequest(c *fiber.Ctx) error {
	return fail(c, errprocess.Validation("invalid request"))
}

// ConnectCheck check chat service start
// @Summary Check chat service status
// @Tags Shared
// @Success 200 {string} string "chat service start!"
// @Router / [get]
func ConnectCheck(c *fiber.Ctx) error {
	return c.SendString("chat service start!")
}

// DebugLogFlag toggle debug log flag
// @Summary Toggle Debug Log Flag
// @Tags Shared
// @Param status query bool true "Debug status"
// @Success 200 {string} string "debug mode updated"
// @Failure 400 {string} string "Invalid status value"
// @Router /debug [post]
func DebugLogFlag(c *fiber.Ctx) error {
	query, err := url.ParseQuery(string(c.Context().QueryArgs().QueryString()))
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	statusStr := query.Get("status")
	logger.Log.Info("debug", zap.String("status", statusStr))
	status, err := strconv.ParseBool(statusStr)
	if err != nil {
		return c.SendStatus(fiber.StatusBadRequest)
	}
	logger.Log.SetDebugMode(status)
	return c.SendString(fmt.Sprintf("debug mode is : %t", status))
}

// ListRooms 列出使用者的聊天室
// @Summary List rooms of the caller
// @Tags Rooms
// @Produce json
// @Success 200 {array} domain.RoomSummary
// @Failure 503 {object} ErrorResponse
// @Router /api/v1/rooms [get]
func (h *ChatRESTHandler) ListRooms(c *fiber.Ctx) error {
	rooms, err := h.roomUC.ListRooms(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(rooms)
}

// GetRoom 取得單一聊天室
// @Summary Get one room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} domain.RoomSummary
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/rooms/{id} [get]
func (h *ChatRESTHandler) GetRoom(c *fiber.Ctx) error {
	room, err := h.roomUC.GetRoom(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(room)
}

type createDirectRequest struct {
	OtherUserID string `json:"other_user_id"`
}

// CreateDirect 取得或建立 1對1 聊天室
// @Summary Get or create the direct room with another user
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body createDirectRequest true "other user"
// @Success 200 {object} domain.Room
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/rooms/direct [post]
func (h *ChatRESTHandler) CreateDirect(c *fiber.Ctx) error {
	var req createDirectRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	room, err := h.roomUC.CreateDirectRoom(c.UserContext(), middlewares.MemberID(c), req.OtherUserID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(room)
}

type createGroupRequest struct {
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
}

// CreateGroup 建立群組
// @Summary Create a group room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param request body createGroupRequest true "group"
// @Success 201 {object} domain.Room
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/rooms/group [post]
func (h *ChatRESTHandler) CreateGroup(c *fiber.Ctx) error {
	var req createGroupRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	room, err := h.roomUC.CreateGroupRoom(c.UserContext(), middlewares.MemberID(c), req.Name, req.MemberIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(room)
}

type addMembersRequest struct {
	MemberIDs []string `json:"member_ids"`
}

// AddMembers 加入群組成員
// @Summary Add members to a group room
// @Tags Rooms
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param request body addMembersRequest true "members"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{id}/members [post]
func (h *ChatRESTHandler) AddMembers(c *fiber.Ctx) error {
	var req addMembersRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	roomID := c.Params("id")
	added, err := h.roomUC.AddMembers(c.UserContext(), roomID, middlewares.MemberID(c), req.MemberIDs)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"room_id": roomID, "added": added})
}

// ListMembers 成員 id
// @Summary List member ids of a room
// @Tags Rooms
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {array} string
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{id}/members [get]
func (h *ChatRESTHandler) ListMembers(c *fiber.Ctx) error {
	ids, err := h.roomUC.MemberIDs(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(ids)
}

// LeaveRoom 離開群組
// @Summary Leave a group room
// @Tags Rooms
// @Param id path string true "Room ID"
// @Success 204
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/rooms/{id}/members/me [delete]
func (h *ChatRESTHandler) LeaveRoom(c *fiber.Ctx) error {
	if err := h.roomUC.RemoveMember(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// DeleteRoom 刪除聊天室，只有建立者可以
// @Summary Delete a room
// @Tags Rooms
// @Param id path string true "Room ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{id} [delete]
func (h *ChatRESTHandler) DeleteRoom(c *fiber.Ctx) error {
	if err := h.roomUC.DeleteRoom(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkRead 已讀
// @Summary Clear awaiting and set last_read_at
// @Tags Rooms
// @Param id path string true "Room ID"
// @Success 204
// @Router /api/v1/rooms/{id}/read [post]
func (h *ChatRESTHandler) MarkRead(c *fiber.Ctx) error {
	if err := h.roomUC.MarkRead(c.UserContext(), c.Params("id"), middlewares.MemberID(c)); err != nil {
		return fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ListMessages 分頁讀取
// @Summary Page of messages older than the cursor, oldest first
// @Tags Messages
// @Produce json
// @Param id path string true "Room ID"
// @Param before_seq query int false "exclusive seq cursor"
// @Param before query string false "exclusive RFC3339 timestamp cursor"
// @Param limit query int false "page size"
// @Success 200 {object} domain.MessagePage
// @Failure 403 {object} ErrorResponse
// @Router /api/v1/rooms/{id}/messages [get]
func (h *ChatRESTHandler) ListMessages(c *fiber.Ctx) error {
	cursor := domain.PageCursor{BeforeSeq: int64(c.QueryInt("before_seq", 0))}
	if s := c.Query("before"); s != "" {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fail(c, errprocess.Validation("invalid before cursor %q", s))
		}
		cursor.Before = &t
	}
	page, err := h.messageUC.Page(c.UserContext(), c.Params("id"), middlewares.MemberID(c), cursor, c.QueryInt("limit", 0))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(page)
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	ClientMsgID string `json:"client_msg_id"`
}

// SendMessage 送出訊息
// @Summary Append a message to a room
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param request body sendMessageRequest true "message"
// @Success 201 {object} domain.Message
// @Failure 400 {object} ErrorResponse
// @Failure 429 {object} ErrorResponse
// @Router /api/v1/rooms/{id}/messages [post]
func (h *ChatRESTHandler) SendMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	msg, err := h.messageUC.Append(c.UserContext(), AppendRequest{
		RoomID:      c.Params("id"),
		SenderID:    middlewares.MemberID(c),
		Content:     req.Content,
		ClientMsgID: req.ClientMsgID,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetMessage 單一訊息
// @Summary Get one message
// @Tags Messages
// @Produce json
// @Param id path string true "Message ID"
// @Success 200 {object} domain.Message
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/messages/{id} [get]
func (h *ChatRESTHandler) GetMessage(c *fiber.Ctx) error {
	msg, err := h.messageUC.GetByID(c.UserContext(), c.Params("id"), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(msg)
}

// Heartbeat 更新 last_seen
// @Summary Presence heartbeat
// @Tags Presence
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /api/v1/presence/heartbeat [post]
func (h *ChatRESTHandler) Heartbeat(c *fiber.Ctx) error {
	written, err := h.presenceUC.Heartbeat(c.UserContext(), middlewares.MemberID(c))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"written": written})
}

// ListUsers 使用者目錄
// @Summary User directory with online state
// @Tags Presence
// @Produce json
// @Param q query string false "username search"
// @Param exclude_room_id query string false "drop current members of this room"
// @Success 200 {array} domain.ProfileView
// @Router /api/v1/users [get]
func (h *ChatRESTHandler) ListUsers(c *fiber.Ctx) error {
	users, err := h.presenceUC.ListProfiles(c.UserContext(), middlewares.MemberID(c), c.Query("q"), c.Query("exclude_room_id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(users)
}

// GetUser 單一使用者
// @Summary Get one profile with online state
// @Tags Presence
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} domain.ProfileView
// @Failure 404 {object} ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *ChatRESTHandler) GetUser(c *fiber.Ctx) error {
	p, err := h.presenceUC.GetProfile(c.UserContext(), c.Params("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}

type updateProfileRequest struct {
	Username  *string `json:"username"`
	AvatarURL *string `json:"avatar_url"`
}

// UpdateProfile 修改自己的 profile
// @Summary Update username and/or avatar url of the caller
// @Tags Presence
// @Accept json
// @Produce json
// @Param request body updateProfileRequest true "profile"
// @Success 200 {object} domain.Profile
// @Failure 400 {object} ErrorResponse
// @Router /api/v1/users/me [patch]
func (h *ChatRESTHandler) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c)
	}
	p, err := h.presenceUC.UpdateProfile(c.UserContext(), middlewares.MemberID(c), req.Username, req.AvatarURL)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(p)
}
