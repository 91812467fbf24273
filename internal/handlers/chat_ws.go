package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/whisperline/whisperline-backend/internal/middleware"
	"github.com/whisperline/whisperline-backend/internal/models"
	"github.com/whisperline/whisperline-backend/internal/services"
)

var chatUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS for WebSocket is handled at the HTTP layer already.
		return true
	},
}

// wsClient wraps a gorilla connection with a write mutex. The presence router
// delivers from many goroutines; gorilla connections allow one writer at a
// time, and the mutex also preserves per-connection delivery order.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) Close() error {
	return c.conn.Close()
}

// ChatClientEvent represents messages coming from the frontend over WebSocket.
type ChatClientEvent struct {
	Type       string `json:"type"` // "join_room", "exchange_keys", "secure_message", "ping"
	ConvID     string `json:"conv_id,omitempty"`
	To         string `json:"to,omitempty"`
	PubKey     string `json:"pub_key,omitempty"`
	Seq        int64  `json:"seq,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
	Ciphertext string `json:"ciphertext,omitempty"`
}

// ChatWebSocket is the realtime gateway. The connection is bound to the
// user's room immediately after the upgrade; joining a conversation then
// triggers replay of queued packets, so replay always runs strictly after
// the room binding and cannot race a concurrent submit.
func ChatWebSocket(w http.ResponseWriter, r *http.Request) {
	token := middleware.ExtractBearerToken(r)
	if token == "" {
		http.Error(w, "missing session token", http.StatusUnauthorized)
		return
	}

	userID, ok, err := services.ValidateSession(token)
	if err != nil || !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	user, err := services.GetUserByID(r.Context(), userID)
	if err != nil || user == nil {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}
	username := user.Username

	conn, err := chatUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := &wsClient{conn: conn}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Bind to the user's room before anything else; unbind is idempotent and
	// only removes this connection, other tabs stay bound.
	unbind := presence.Bind(username, client)
	defer unbind()

	services.SetUserPresence(ctx, username)

	conn.SetReadLimit(64 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Unbind runs via defer; the Redis presence marker ages out.
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var msg ChatClientEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "join_room":
			handleJoinRoom(ctx, userID, username, msg)
		case "exchange_keys":
			if _, err := keyRelay.RelayPublicKey(username, msg.To, msg.PubKey); err != nil {
				log.Printf("key exchange from %s rejected: %v", username, err)
			}
		case "secure_message":
			handleSecureMessage(ctx, userID, username, msg)
		case "ping":
			services.SetUserPresence(ctx, username)
		default:
			// Ignore unknown types
		}
	}
}

// handleJoinRoom replays queued packets for the joined conversation. The
// caller's connection is already bound, so anything submitted from here on is
// either delivered live or visible to this replay's queue read.
func handleJoinRoom(ctx context.Context, userID uuid.UUID, username string, msg ChatClientEvent) {
	convID, err := uuid.Parse(msg.ConvID)
	if err != nil {
		return
	}

	member, err := services.IsParticipant(ctx, convID, userID)
	if err != nil || !member {
		return
	}

	n, err := custody.Replay(ctx, userID, username, convID)
	if err != nil {
		log.Printf("replay for %s in %s failed: %v", username, convID, err)
		return
	}
	if n > 0 {
		log.Printf("replayed %d queued packets to %s", n, username)
	}
}

// handleSecureMessage records the opaque packet in history and routes it:
// live when the recipient has a bound connection, queued otherwise.
func handleSecureMessage(ctx context.Context, userID uuid.UUID, username string, msg ChatClientEvent) {
	if msg.To == "" || msg.Ciphertext == "" {
		return
	}

	convID, err := uuid.Parse(msg.ConvID)
	if err != nil {
		return
	}

	member, err := services.IsParticipant(ctx, convID, userID)
	if err != nil || !member {
		return
	}

	recipient, err := services.FindUserByUsername(ctx, msg.To)
	if err != nil || recipient == nil {
		log.Printf("secure message from %s to unknown user %q dropped", username, msg.To)
		return
	}

	stored, err := services.RecordPacket(ctx, convID.String(), username, msg.Seq, msg.Nonce, msg.Ciphertext)
	if err != nil {
		log.Printf("failed to record packet from %s: %v", username, err)
		return
	}

	packet := models.EncryptedPacket{
		Type:           "secure_message_client",
		From:           username,
		ConversationID: convID.String(),
		Seq:            msg.Seq,
		Nonce:          msg.Nonce,
		Ciphertext:     msg.Ciphertext,
		Timestamp:      stored.CreatedAt.UTC().Format(time.RFC3339),
	}

	if _, err := custody.Submit(ctx, convID, recipient.ID, recipient.Username, packet); err != nil {
		log.Printf("failed to queue packet for %s: %v", recipient.Username, err)
	}
}
