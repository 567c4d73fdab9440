package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dicematch/internal/liveness"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// GET /ws (JWT middleware injects participantId)
// Every frame or pong from the socket doubles as a liveness heartbeat.
func ServeWS(hub *Hub, tracker *liveness.Tracker) gin.HandlerFunc {
	return func(c *gin.Context) {
		pid := c.GetString("participantId")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		client := &Client{
			ParticipantID: pid,
			Conn:          conn,
			Send:          make(chan OutgoingMessage, 32),
			Hub:           hub,
			OnAlive: func() {
				tracker.Heartbeat(pid, tracker.SessionOf(pid))
			},
		}

		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
