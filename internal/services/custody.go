package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/models"
)

// Deliverer is the slice of the presence router custody needs.
type Deliverer interface {
	Deliver(username string, event interface{}) bool
}

// QueueStore persists packets for offline recipients. Enqueue and
// ListUndelivered read the same delivered-flag store, so a packet queued
// between a connection binding and its replay is visible to that replay.
type QueueStore interface {
	Enqueue(ctx context.Context, conversationID, recipientID uuid.UUID, payload []byte) error
	ListUndelivered(ctx context.Context, recipientID, conversationID uuid.UUID) ([]models.QueuedMessage, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}

// MessageCustody routes encrypted packets: live to the recipient's room when
// possible, otherwise into the durable queue for replay on the next join.
type MessageCustody struct {
	queue    QueueStore
	presence Deliverer
}

func NewMessageCustody(queue QueueStore, presence Deliverer) *MessageCustody {
	return &MessageCustody{queue: queue, presence: presence}
}

// Submit attempts live delivery of packet to recipientUsername. On a miss the
// packet is persisted with delivered=false. An offline recipient is not an
// error; the bool reports whether delivery was live.
func (c *MessageCustody) Submit(ctx context.Context, conversationID, recipientID uuid.UUID, recipientUsername string, packet models.EncryptedPacket) (bool, error) {
	if c.presence.Deliver(recipientUsername, packet) {
		return true, nil
	}

	payload, err := json.Marshal(packet)
	if err != nil {
		return false, err
	}
	if err := c.queue.Enqueue(ctx, conversationID, recipientID, payload); err != nil {
		return false, err
	}
	return false, nil
}

// Replay delivers every undelivered queued packet for (recipient,
// conversation) in creation order, marking each delivered individually right
// after hand-off. A packet that fails to decode or deliver is skipped; the
// rest of the replay continues. Returns how many packets were handed off.
//
// The delivered flag commits immediately after each hand-off, so across a
// crash the guarantee is at-least-once per item, never lost.
func (c *MessageCustody) Replay(ctx context.Context, recipientID uuid.UUID, recipientUsername string, conversationID uuid.UUID) (int, error) {
	queued, err := c.queue.ListUndelivered(ctx, recipientID, conversationID)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, qm := range queued {
		var packet models.EncryptedPacket
		if err := json.Unmarshal(qm.Payload, &packet); err != nil {
			log.Printf("skipping malformed queued message %s: %v", qm.ID, err)
			continue
		}

		if !c.presence.Deliver(recipientUsername, packet) {
			// Recipient dropped offline mid-replay; leave the rest queued.
			continue
		}

		if err := c.queue.MarkDelivered(ctx, qm.ID); err != nil {
			log.Printf("failed to mark queued message %s delivered: %v", qm.ID, err)
			continue
		}
		replayed++
	}
	return replayed, nil
}
