package ws

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"

	redisstore "github.com/rfpflow/rfpflow/internal/store/redis"
	"github.com/rfpflow/rfpflow/internal/workflow"
)

// Hub manages WebSocket connections backed by Redis pub/sub.
type Hub struct {
	pubsub *redisstore.Client
}

// NewHub creates a new WebSocket hub.
func NewHub(pubsub *redisstore.Client) *Hub {
	return &Hub{pubsub: pubsub}
}

// ServeChat handles WebSocket connections for live workflow updates.
// Subscribes to Redis channel "chat:<sessionID>" and streams assistant
// replies and step transitions to connected clients.
func (h *Hub) ServeChat(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket accept")
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	channel := workflow.ChatChannel(sessionID)

	messages, cleanup, err := h.pubsub.Subscribe(ctx, channel)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("websocket subscribe")
		_ = conn.Close(websocket.StatusInternalError, "subscribe failed")
		return
	}
	defer cleanup()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "connection closed")
			return
		case msg, msgOK := <-messages:
			if !msgOK {
				_ = conn.Close(websocket.StatusNormalClosure, "channel closed")
				return
			}
			if writeErr := conn.Write(ctx, websocket.MessageText, msg); writeErr != nil {
				log.Debug().Err(writeErr).Msg("websocket write")
				return
			}
		}
	}
}

// Publish sends an event payload to a Redis channel. Convenience wrapper for
// handlers that mutate workflow state outside the engine.
func (h *Hub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := h.pubsub.Publish(ctx, channel, payload); err != nil {
		return fmt.Errorf("ws.Hub.Publish: %w", err)
	}
	return nil
}
