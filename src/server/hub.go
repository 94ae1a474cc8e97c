package server

import (
	"encoding/json"
	"net/http"

	"stock-charter/src/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// runHub is the main hub loop. It owns the clients map; registration,
// teardown and fan-out all go through its channels.
func (s *APIServer) runHub() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}

		case event := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- event:
				default:
					// Client too slow, disconnect to prevent the hub blocking
					delete(s.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Update Notifier Implementation
// -----------------------------------------------------------------------------

// NotifyUpdated pushes a refresh event to every connected chart. The send
// is non-blocking: if the broadcast buffer is full the event is dropped,
// since clients re-fetch through the REST API anyway.
func (s *APIServer) NotifyUpdated(event models.MUpdateEvent) {
	select {
	case s.broadcast <- &event:
	default:
		s.Logger.Warning("Broadcast buffer full, dropping %s event for %s", event.UpdateType, event.Symbol)
	}
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		// Buffered channel to prevent blocking the hub loop
		send: make(chan interface{}, 64),
	}

	s.register <- client

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

// HandleClientMessage serves the one command charts send over the socket:
// a watch request, which registers the symbol and queues a refresh so the
// first paint does not wait on upstream.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MWatchCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "watch" || cmd.Symbol == "" {
		return
	}

	if err := s.Tracker.RegisterSymbol(cmd.Symbol, interactiveWatchPriority); err != nil {
		s.Logger.Error("Failed to register %s from websocket: %v", cmd.Symbol, err)
		return
	}
	if s.Markets != nil {
		s.Markets.TrackSymbol(cmd.Symbol)
	}
	s.Runner.Enqueue(cmd.Symbol, models.UpdateTypePrice, interactiveWatchPriority)
}

// interactiveWatchPriority matches the tier given to symbols a user is
// actively looking at.
const interactiveWatchPriority = 2
