package router

import (
	"context"

	"realtime_chat_service/internal/chat/app"
	"realtime_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册聊天相关的路由
// @title Realtime Chat Service API
// @version 1.0
// @description Rooms, messages and presence for the realtime chat service
// @host localhost:8082
// @BasePath /
func RegisterRoutes(ctx context.Context, r *fiber.App, chatWebsocket *app.ChatWebsocketHandler, rest *app.ChatRESTHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)
	r.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	r.Get("/", app.ConnectCheck)
	r.Post("/debug", app.DebugLogFlag)

	ws := r.Group("/ws", middlewares.JWTMiddleware(), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/", websocket.New(func(c *websocket.Conn) {
		chatWebsocket.HandleConnection(ctx, c)
	}))

	api := r.Group("/api/v1", middlewares.JWTMiddleware())

	rooms := api.Group("/rooms")
	rooms.Get("/", rest.ListRooms)
	rooms.Post("/direct", rest.CreateDirect)
	rooms.Post("/group", rest.CreateGroup)
	rooms.Get("/:id", rest.GetRoom)
	rooms.Delete("/:id", rest.DeleteRoom)
	rooms.Get("/:id/members", rest.ListMembers)
	rooms.Post("/:id/members", rest.AddMembers)
	rooms.Delete("/:id/members/me", rest.LeaveRoom)
	rooms.Post("/:id/read", rest.MarkRead)
	rooms.Get("/:id/messages", rest.ListMessages)
	rooms.Post("/:id/messages", rest.SendMessage)

	api.Get("/messages/:id", rest.GetMessage)

	api.Post("/presence/heartbeat", rest.Heartbeat)
	api.Get("/users", rest.ListUsers)
	api.Patch("/users/me", rest.UpdateProfile)
	api.Get("/users/:id", rest.GetUser)
}
