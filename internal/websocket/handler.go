package websocket

import (
	"github.com/gofiber/websocket/v2"
)

// ServeWs attaches a connection to the hub and blocks until it closes.
func ServeWs(hub *Hub, c *websocket.Conn) {
	client := NewClient(hub, c)
	client.Hub.register <- client

	go client.writePump()
	client.readPump()
}
