package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/whisperline/whisperline-backend/internal/database"
)

// ErrSelfConversation is returned when both participants are the same user.
var ErrSelfConversation = errors.New("conversation requires two distinct participants")

// canonicalPair orders two user ids deterministically so that lookup and
// creation are symmetric in their arguments.
func canonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID) {
	if a.String() > b.String() {
		return b, a
	}
	return a, b
}

// FindOrCreateConversation resolves the unique two-party conversation between
// userA and userB, creating it on first contact. The lookup requires the
// participant set to be exactly {A, B} with a participant count of 2, and is
// symmetric: (A, B) and (B, A) resolve to the same conversation.
func FindOrCreateConversation(ctx context.Context, userA, userB uuid.UUID) (uuid.UUID, error) {
	if userA == userB {
		return uuid.Nil, ErrSelfConversation
	}
	first, second := canonicalPair(userA, userB)

	var convID uuid.UUID
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT c.id FROM conversations c
		JOIN participants p1 ON p1.conversation_id = c.id AND p1.user_id = $1
		JOIN participants p2 ON p2.conversation_id = c.id AND p2.user_id = $2
		WHERE (SELECT COUNT(*) FROM participants p WHERE p.conversation_id = c.id) = 2
		LIMIT 1
	`, first, second).Scan(&convID)
	if err == nil {
		return convID, nil
	}
	if err != sql.ErrNoRows {
		return uuid.Nil, err
	}

	tx, err := database.PostgresDB.BeginTx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations DEFAULT VALUES RETURNING id
	`).Scan(&convID); err != nil {
		return uuid.Nil, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO participants (conversation_id, user_id) VALUES ($1, $2), ($1, $3)
	`, convID, first, second); err != nil {
		return uuid.Nil, err
	}

	if err := tx.Commit(); err != nil {
		return uuid.Nil, err
	}
	return convID, nil
}

// IsParticipant reports whether userID belongs to the conversation.
func IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var exists bool
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM participants WHERE conversation_id = $1 AND user_id = $2)
	`, conversationID, userID).Scan(&exists)
	return exists, err
}

// ConversationPeer returns the other participant of a two-party conversation.
func ConversationPeer(ctx context.Context, conversationID, userID uuid.UUID) (uuid.UUID, error) {
	var peerID uuid.UUID
	err := database.PostgresDB.QueryRowContext(ctx, `
		SELECT user_id FROM participants
		WHERE conversation_id = $1 AND user_id <> $2
		LIMIT 1
	`, conversationID, userID).Scan(&peerID)
	if err != nil {
		return uuid.Nil, err
	}
	return peerID, nil
}
