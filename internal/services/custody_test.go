package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisperline/whisperline-backend/internal/models"
)

// memQueueStore is an in-memory QueueStore with the same visibility
// semantics as the Postgres table: one consistent delivered-flag store.
type memQueueStore struct {
	mu   sync.Mutex
	rows []*models.QueuedMessage
}

func (s *memQueueStore) Enqueue(ctx context.Context, conversationID, recipientID uuid.UUID, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, &models.QueuedMessage{
		ID:             uuid.New(),
		ConversationID: conversationID,
		RecipientID:    recipientID,
		Payload:        payload,
		CreatedAt:      time.Now().Add(time.Duration(len(s.rows)) * time.Millisecond),
	})
	return nil
}

func (s *memQueueStore) ListUndelivered(ctx context.Context, recipientID, conversationID uuid.UUID) ([]models.QueuedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.QueuedMessage
	for _, row := range s.rows {
		if row.RecipientID == recipientID && row.ConversationID == conversationID && !row.Delivered {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memQueueStore) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.ID == id {
			row.Delivered = true
		}
	}
	return nil
}

func packetWithCiphertext(conv uuid.UUID, ciphertext string) models.EncryptedPacket {
	return models.EncryptedPacket{
		Type:           "secure_message_client",
		From:           "alice",
		ConversationID: conv.String(),
		Nonce:          "nonce",
		Ciphertext:     ciphertext,
	}
}

func TestSubmitDeliversLiveWhenRecipientOnline(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conn := &fakeConn{}
	unbind := presence.Bind("bob", conn)
	defer unbind()

	conv := uuid.New()
	bob := uuid.New()
	delivered, err := custody.Submit(context.Background(), conv, bob, "bob", packetWithCiphertext(conv, "ct1"))
	require.NoError(t, err)
	assert.True(t, delivered)
	assert.Len(t, conn.received(), 1)
	assert.Empty(t, store.rows, "live delivery must not queue")
}

func TestSubmitQueuesWhenRecipientOffline(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	delivered, err := custody.Submit(context.Background(), conv, bob, "bob", packetWithCiphertext(conv, "ct1"))
	require.NoError(t, err)
	assert.False(t, delivered)

	require.Len(t, store.rows, 1)
	assert.False(t, store.rows[0].Delivered)
}

func TestReplayDeliversQueuedPacketsInOrder(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	for _, ct := range []string{"ct1", "ct2", "ct3"} {
		_, err := custody.Submit(ctx, conv, bob, "bob", packetWithCiphertext(conv, ct))
		require.NoError(t, err)
	}

	conn := &fakeConn{}
	unbind := presence.Bind("bob", conn)
	defer unbind()

	n, err := custody.Replay(ctx, bob, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := conn.received()
	require.Len(t, got, 3)
	for i, want := range []string{"ct1", "ct2", "ct3"} {
		pkt, ok := got[i].(models.EncryptedPacket)
		require.True(t, ok)
		assert.Equal(t, want, pkt.Ciphertext)
	}

	for _, row := range store.rows {
		assert.True(t, row.Delivered)
	}
}

func TestReplayIsIdempotent(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	_, err := custody.Submit(ctx, conv, bob, "bob", packetWithCiphertext(conv, "ct1"))
	require.NoError(t, err)

	conn := &fakeConn{}
	unbind := presence.Bind("bob", conn)
	defer unbind()

	n, err := custody.Replay(ctx, bob, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// A second join with no intervening submit delivers nothing.
	n, err = custody.Replay(ctx, bob, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Len(t, conn.received(), 1)
}

func TestReplaySkipsMalformedItems(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	_, err := custody.Submit(ctx, conv, bob, "bob", packetWithCiphertext(conv, "ct1"))
	require.NoError(t, err)
	require.NoError(t, store.Enqueue(ctx, conv, bob, []byte("{not json")))
	_, err = custody.Submit(ctx, conv, bob, "bob", packetWithCiphertext(conv, "ct3"))
	require.NoError(t, err)

	conn := &fakeConn{}
	unbind := presence.Bind("bob", conn)
	defer unbind()

	// The malformed middle item must not abort the rest of the replay.
	n, err := custody.Replay(ctx, bob, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, conn.received(), 2)
}

func TestReplayLeavesUndeliveredWhenRecipientOffline(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	_, err := custody.Submit(ctx, conv, bob, "bob", packetWithCiphertext(conv, "ct1"))
	require.NoError(t, err)

	// Nobody bound: nothing is handed off, nothing flips delivered.
	n, err := custody.Replay(ctx, bob, "bob", conv)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, store.rows[0].Delivered)
}

func TestQueuedPayloadRoundTrips(t *testing.T) {
	presence := NewPresenceRouter()
	store := &memQueueStore{}
	custody := NewMessageCustody(store, presence)

	conv := uuid.New()
	bob := uuid.New()
	ctx := context.Background()

	original := models.EncryptedPacket{
		Type:           "secure_message_client",
		From:           "alice",
		ConversationID: conv.String(),
		Seq:            7,
		Nonce:          "n7",
		Ciphertext:     "ct7",
		Timestamp:      "2026-08-30T12:00:00Z",
	}
	_, err := custody.Submit(ctx, conv, bob, "bob", original)
	require.NoError(t, err)

	var stored models.EncryptedPacket
	require.NoError(t, json.Unmarshal(store.rows[0].Payload, &stored))
	assert.Equal(t, original, stored)
}
