package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation is a two-party chat. Membership is fixed at creation; the
// participants table always holds exactly two rows per conversation.
type Conversation struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"created_at"`
}

// QueuedMessage is an encrypted packet destined for a user who was offline
// when it was submitted. Delivered flips false→true exactly once, after the
// payload has been handed to a live connection; rows are never deleted.
type QueuedMessage struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	RecipientID    uuid.UUID `json:"recipient_id"`
	Payload        []byte    `json:"payload"`
	Delivered      bool      `json:"delivered"`
	CreatedAt      time.Time `json:"created_at"`
}
