package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog/log"
)

// Handler upgrades HTTP requests to websocket connections and streams hub
// events to them until the client disconnects.
type Handler struct {
	hub            *Hub
	originPatterns []string
}

func NewHandler(hub *Hub, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		originPatterns: originPatterns,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := h.hub.Subscribe()
	defer h.hub.Unsubscribe(client)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	welcome := NewEvent(EventSessionCreated, map[string]any{
		"message": "Connected to KAS-FLASH",
	})
	if err := writeEvent(ctx, conn, welcome); err != nil {
		log.Debug().Err(err).Msg("failed to send welcome event")
		return
	}

	// Inbound messages are logged but not acted upon.
	go h.readLoop(ctx, conn, cancel)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("ws connection closed by client")
			return

		case <-client.Done:
			log.Info().Msg("ws connection closed by hub")
			return

		case event := <-client.Events:
			if err := writeEvent(ctx, conn, event); err != nil {
				log.Debug().Err(err).Msg("ws write failed, dropping client")
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				log.Debug().Err(err).Msg("ws read error")
			}
			return
		}

		log.Debug().Str("message", string(data)).Msg("ws message received")
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
