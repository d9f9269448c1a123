// Package ws fans session and transaction state changes out to every
// connected websocket client. The hub is a stateless relay: it keeps no
// history and newly connected clients get no replay of past events.
package ws

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/kas-flash/stream-server-go/internal/model"
)

const clientBufferSize = 100

// Client is one connected websocket consumer. Events is drained by the
// connection's writer loop; Done is closed when the hub shuts down.
type Client struct {
	Events chan Event
	Done   chan struct{}
}

// Hub maintains the set of connected clients and broadcasts every event to
// all of them. There is no per-client filtering: every client sees every
// session's activity.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
	}
}

func (h *Hub) Subscribe() *Client {
	client := &Client{
		Events: make(chan Event, clientBufferSize),
		Done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mu.Unlock()

	log.Info().Int("clientCount", clientCount).Msg("ws client subscribed")

	return client
}

func (h *Hub) Unsubscribe(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client] {
		delete(h.clients, client)
		close(client.Done)

		log.Info().Int("clientCount", len(h.clients)).Msg("ws client unsubscribed")
	}
}

// Broadcast delivers an event to every connected client. A client whose
// buffer is full has the event dropped rather than blocking the caller.
func (h *Hub) Broadcast(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Events <- event:
		default:
			log.Warn().
				Str("eventType", string(event.Type)).
				Msg("client event buffer full, dropping event")
		}
	}
}

// BroadcastSession is called when a session is created, paused, resumed or
// ended.
func (h *Hub) BroadcastSession(session model.Session) {
	log.Debug().
		Str("sessionId", session.ID).
		Str("status", string(session.Status)).
		Msg("broadcasting session update")

	h.Broadcast(NewEvent(EventSessionUpdated, map[string]any{"session": session}))
}

// BroadcastTransaction is called when a transaction is created or changes
// status; the event type follows the transaction's current status.
func (h *Hub) BroadcastTransaction(tx model.Transaction) {
	log.Debug().
		Str("transactionId", tx.ID).
		Str("status", string(tx.Status)).
		Msg("broadcasting transaction")

	h.Broadcast(NewEvent(transactionEventType(tx.Status), map[string]any{"transaction": tx}))
}

func (h *Hub) BroadcastBalance(address string, balance float64) {
	h.Broadcast(NewEvent(EventBalanceUpdated, map[string]any{
		"address": address,
		"balance": balance,
	}))
}

func (h *Hub) BroadcastError(message string, details any) {
	h.Broadcast(NewEvent(EventError, map[string]any{
		"message": message,
		"details": details,
	}))
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Shutdown disconnects every client and empties the broadcast set.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Done)
	}
	h.clients = make(map[*Client]bool)
}
