package websocket

import (
	"sync"

	"dicematch/internal/utils"
)

type HubInterface interface {
	BroadcastToParticipants(ids []string, msg OutgoingMessage)
	SendToParticipant(id string, msg OutgoingMessage)
	Close()
}

// Hub routes outgoing messages to connected participants. It runs a single
// goroutine; all mutation of the client map happens on its loop.
type Hub struct {
	clients    map[string]*Client // participant id -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan broadcastReq
	sendOne    chan sendReq
	incoming   chan IncomingMessage
	OnIncoming func(IncomingMessage)
	quit       chan struct{}
	mu         sync.RWMutex
}

type broadcastReq struct {
	IDs     []string
	Message OutgoingMessage
}

type sendReq struct {
	ID      string
	Message OutgoingMessage
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan broadcastReq),
		sendOne:    make(chan sendReq),
		incoming:   make(chan IncomingMessage),
		quit:       make(chan struct{}),
	}
}

func (h *Hub) Run() {
	utils.Info.Printf("websocket hub started")

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ParticipantID] = c
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[c.ParticipantID]; ok && cur == c {
				delete(h.clients, c.ParticipantID)
				close(c.Send)
			}
			h.mu.Unlock()

		case req := <-h.broadcast:
			h.mu.RLock()
			for _, id := range req.IDs {
				if client, ok := h.clients[id]; ok {
					select {
					case client.Send <- req.Message:
					default:
						// slow consumer; drop rather than stall the hub
					}
				}
			}
			h.mu.RUnlock()

		case req := <-h.sendOne:
			h.mu.RLock()
			if client, ok := h.clients[req.ID]; ok {
				select {
				case client.Send <- req.Message:
				default:
				}
			}
			h.mu.RUnlock()

		case req := <-h.incoming:
			if h.OnIncoming != nil {
				h.OnIncoming(req)
			}

		case <-h.quit:
			h.mu.Lock()
			for _, c := range h.clients {
				close(c.Send)
			}
			h.clients = make(map[string]*Client)
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) BroadcastToParticipants(ids []string, msg OutgoingMessage) {
	h.broadcast <- broadcastReq{IDs: ids, Message: msg}
}

func (h *Hub) SendToParticipant(id string, msg OutgoingMessage) {
	h.sendOne <- sendReq{ID: id, Message: msg}
}

func (h *Hub) Close() {
	close(h.quit)
}
