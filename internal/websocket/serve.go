package websocket

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Devices connect directly, not from browsers.
		return true
	},
}

// HandleWebSocket upgrades the request and runs the device session until it
// closes. authDeviceID is the identity proven by the request credentials.
func HandleWebSocket(w http.ResponseWriter, r *http.Request, hub *Hub, authDeviceID string, deps Deps) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade connection: %w", err)
	}
	ServeConn(conn, hub, authDeviceID, deps)
	return nil
}
