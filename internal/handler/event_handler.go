package handler

import (
	"docchat-be/internal/pkg/logger"
	"docchat-be/internal/pkg/serverutils"
	internalWS "docchat-be/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// EventHandler streams store events to websocket clients.
type EventHandler struct {
	hub    *internalWS.Hub
	logger logger.ILogger
}

func NewEventHandler(hub *internalWS.Hub, log logger.ILogger) *EventHandler {
	return &EventHandler{hub: hub, logger: log}
}

// ServeWs upgrades the request and attaches the connection to the hub.
func (h *EventHandler) ServeWs(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("EventHandler", "Starting WebSocket session", map[string]interface{}{"remote": conn.RemoteAddr().String()})
		internalWS.ServeWs(h.hub, conn)
		h.logger.Info("EventHandler", "WebSocket session ended", map[string]interface{}{"remote": conn.RemoteAddr().String()})
	})(c)
}

// Status reports how many clients this instance is streaming to.
func (h *EventHandler) Status(c *fiber.Ctx) error {
	return c.JSON(serverutils.SuccessResponse("Event stream status", fiber.Map{
		"clients": h.hub.ClientCount(),
	}))
}

func (h *EventHandler) RegisterRoutes(r fiber.Router) {
	ws := r.Group("/ws/v1")
	ws.Get("/status", h.Status)
	ws.Get("/", h.ServeWs)
}
