package websocket

// OutgoingMessage is pushed to connected participants; session_update events
// carry the full session record after every accepted store mutation.
type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

type IncomingMessage struct {
	From      string      `json:"from"`
	Event     string      `json:"event"`
	SessionID string      `json:"sessionId"`
	Data      interface{} `json:"data"`
}
