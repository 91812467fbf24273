package services

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/whisperline/whisperline-backend/internal/database"
	"github.com/whisperline/whisperline-backend/internal/models"
)

// StoredPacket is one encrypted packet in the append-only history collection.
// The server stores it exactly as relayed; packets are never mutated or
// deleted here.
type StoredPacket struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	From           string             `bson:"from" json:"from"`
	Seq            int64              `bson:"seq" json:"seq"`
	Nonce          string             `bson:"nonce" json:"nonce"`
	Ciphertext     string             `bson:"ciphertext" json:"ciphertext"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
}

// EnsurePacketIndexes configures indexes for the packets collection.
// Called on startup from main after Mongo has connected.
func EnsurePacketIndexes(ctx context.Context) error {
	col := database.DB.Collection("packets")

	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "conversation_id", Value: 1},
				{Key: "created_at", Value: 1},
			},
			Options: options.Index().SetName("idx_conversation_created"),
		},
	}

	for _, m := range indexes {
		if _, err := col.Indexes().CreateOne(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// RecordPacket appends an encrypted packet to the history collection and
// returns the stored copy with its server-side timestamp.
func RecordPacket(ctx context.Context, conversationID, from string, seq int64, nonce, ciphertext string) (*StoredPacket, error) {
	pkt := StoredPacket{
		ConversationID: conversationID,
		From:           from,
		Seq:            seq,
		Nonce:          nonce,
		Ciphertext:     ciphertext,
		CreatedAt:      time.Now().UTC(),
	}

	col := database.DB.Collection("packets")
	res, err := col.InsertOne(ctx, pkt)
	if err != nil {
		return nil, err
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		pkt.ID = oid
	}
	return &pkt, nil
}

// ListPackets returns the full packet history for a conversation in ascending
// storage-time order, each annotated with an ISO-8601 UTC timestamp.
func ListPackets(ctx context.Context, conversationID string) ([]models.HistoricalPacket, error) {
	col := database.DB.Collection("packets")

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cur, err := col.Find(ctx, bson.M{"conversation_id": conversationID}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := []models.HistoricalPacket{}
	for cur.Next(ctx) {
		var p StoredPacket
		if err := cur.Decode(&p); err != nil {
			continue
		}
		out = append(out, models.HistoricalPacket{
			From:       p.From,
			Seq:        p.Seq,
			Nonce:      p.Nonce,
			Ciphertext: p.Ciphertext,
			Timestamp:  p.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
