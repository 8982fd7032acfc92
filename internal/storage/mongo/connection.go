// Package mongo persists users and conversation logs in MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	usersCollection    = "users"
	messagesCollection = "messages"
)

type Client struct {
	Client   *mongo.Client
	Database *mongo.Database
}

// Connect dials uri, pings the server and ensures indexes on database.
func Connect(ctx context.Context, uri, database string) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	mc := &Client{Client: client, Database: client.Database(database)}
	if err := mc.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return mc, nil
}

func (mc *Client) ensureIndexes(ctx context.Context) error {
	_, err := mc.Database.Collection(usersCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "nameKey", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}

	_, err = mc.Database.Collection(messagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversationId", Value: 1}, {Key: "timestamp", Value: 1}, {Key: "seq", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

func (mc *Client) Ping(ctx context.Context) error {
	return mc.Client.Ping(ctx, nil)
}

func (mc *Client) Close(ctx context.Context) error {
	return mc.Client.Disconnect(ctx)
}

func (mc *Client) Users() *UserStore {
	return &UserStore{coll: mc.Database.Collection(usersCollection)}
}

func (mc *Client) Messages() *MessageStore {
	return &MessageStore{
		coll:  mc.Database.Collection(messagesCollection),
		clock: time.Now,
	}
}
