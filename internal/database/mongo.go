package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names used by the document store.
const (
	RemindersCollection = "reminders"
	NotesCollection     = "notes"
)

// NewMongo connects to MongoDB, verifies the primary is reachable and ensures reminder indexes.
func NewMongo(ctx context.Context, uri, dbName string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	if err := EnsureReminderIndexes(ctx, db); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	return client, db, nil
}

// EnsureReminderIndexes creates the compound indexes the scheduler and listing queries rely on.
func EnsureReminderIndexes(ctx context.Context, db *mongo.Database) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "remindTime", Value: 1}}},
		{Keys: bson.D{{Key: "remindTime", Value: 1}, {Key: "sendStatus", Value: 1}}},
		{Keys: bson.D{{Key: "subscriptionStatus", Value: 1}, {Key: "sendStatus", Value: 1}}},
		{Keys: bson.D{{Key: "noteId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	if _, err := db.Collection(RemindersCollection).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create reminder indexes: %w", err)
	}
	return nil
}

// CloseMongo disconnects the client, logging rather than returning failures.
func CloseMongo(client *mongo.Client) {
	if client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Printf("database: closing MongoDB connection: %v", err)
		return
	}
	log.Println("database: MongoDB connection closed")
}
