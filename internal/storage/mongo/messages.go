package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/zhouzirui/convosense/backend/internal/model/chat"
)

// messageDoc is a chats/{conversationId}/messages/{id} record. seq breaks
// timestamp ties, since BSON dates only keep milliseconds.
type messageDoc struct {
	chat.Message `bson:",inline"`
	Seq          int64 `bson:"seq"`
}

// MessageStore is the append-only message log in the messages collection.
type MessageStore struct {
	coll  *mongo.Collection
	clock func() time.Time
}

func (s *MessageStore) Append(ctx context.Context, msg chat.Message) (chat.Message, error) {
	if err := msg.Validate(); err != nil {
		return chat.Message{}, err
	}

	now := s.clock().UTC()
	stored := msg.Clone()
	stored.Timestamp = now.Truncate(time.Millisecond)

	_, err := s.coll.InsertOne(ctx, messageDoc{Message: stored, Seq: now.UnixNano()})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return chat.Message{}, chat.ErrDuplicateID
		}
		return chat.Message{}, fmt.Errorf("insert message: %w", err)
	}
	return stored, nil
}

func (s *MessageStore) List(ctx context.Context, conversationID string) ([]chat.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"conversationId": conversationID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]chat.Message, 0, 16)
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		msg := doc.Message.Clone()
		msg.Timestamp = msg.Timestamp.UTC()
		out = append(out, msg)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}
