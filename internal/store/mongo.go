package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/myJournal/internal/database"
	"github.com/pathakanu/myJournal/internal/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements ReminderStore and NoteStore on a MongoDB database.
type MongoStore struct {
	reminders *mongo.Collection
	notes     *mongo.Collection
	now       func() time.Time
}

// NewMongo binds the store to the reminder and note collections of db.
func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{
		reminders: db.Collection(database.RemindersCollection),
		notes:     db.Collection(database.NotesCollection),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MongoStore) Create(ctx context.Context, reminder *model.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	now := s.now()
	if reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = now
	}
	reminder.UpdatedAt = now
	if reminder.SubscriptionStatus == "" {
		reminder.SubscriptionStatus = model.SubscriptionPending
	}
	if reminder.SendStatus == "" {
		reminder.SendStatus = model.SendPending
	}
	_, err := s.reminders.InsertOne(ctx, reminder)
	return err
}

func (s *MongoStore) Get(ctx context.Context, id, userID string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.reminders.FindOne(ctx, bson.M{"_id": id, "userId": userID}).Decode(&reminder)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (s *MongoStore) List(ctx context.Context, userID string, filter ReminderFilter) ([]model.Reminder, int64, error) {
	query := bson.M{"userId": userID}
	if filter.SubscriptionStatus != "" {
		query["subscriptionStatus"] = filter.SubscriptionStatus
	}
	if filter.SendStatus != "" {
		query["sendStatus"] = filter.SendStatus
	}

	total, err := s.reminders.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}

	findOptions := options.Find().
		SetSort(bson.D{{Key: "remindTime", Value: -1}}).
		SetSkip(int64(filter.Offset))
	if filter.Limit > 0 {
		findOptions.SetLimit(int64(filter.Limit))
	}
	cursor, err := s.reminders.Find(ctx, query, findOptions)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var reminders []model.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, 0, err
	}
	return reminders, total, nil
}

func (s *MongoStore) Update(ctx context.Context, id, userID string, patch ReminderPatch) (*model.Reminder, error) {
	if patch.empty() {
		return s.Get(ctx, id, userID)
	}

	set := bson.M{"updatedAt": s.now()}
	if patch.Title != nil {
		set["title"] = *patch.Title
	}
	if patch.Content != nil {
		set["content"] = *patch.Content
	}
	if patch.RemindTime != nil {
		set["remindTime"] = patch.RemindTime.UTC()
	}
	if patch.SubscriptionStatus != nil {
		set["subscriptionStatus"] = *patch.SubscriptionStatus
	}

	filter := bson.M{"_id": id, "userId": userID}
	if patch.reopensSubscription() {
		filter["subscriptionStatus"] = bson.M{"$ne": model.SubscriptionCancelled}
	}

	var updated model.Reminder
	err := s.reminders.FindOneAndUpdate(ctx, filter, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After)).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, getErr := s.Get(ctx, id, userID); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("%w: reminder %s is cancelled", model.ErrInvalidTransition, id)
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *MongoStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	res, err := s.reminders.DeleteOne(ctx, bson.M{"_id": id, "userId": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (s *MongoStore) BatchDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := s.reminders.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}, "userId": userID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) FindEligible(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	filter := bson.M{
		"remindTime":         bson.M{"$lte": now.UTC()},
		"subscriptionStatus": model.SubscriptionSubscribed,
		"sendStatus":         model.SendPending,
		"retryCount":         bson.M{"$lt": model.MaxRetries},
	}
	cursor, err := s.reminders.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "remindTime", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []model.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

func (s *MongoStore) RecordAttempt(ctx context.Context, id string, attempt model.Attempt) error {
	filter := bson.M{
		"_id":        id,
		"sendStatus": model.SendPending,
		"retryCount": bson.M{"$lt": model.MaxRetries},
	}

	var update any
	if attempt.Sent {
		update = bson.M{
			"$set": bson.M{
				"sendStatus": model.SendSent,
				"sentAt":     attempt.At.UTC(),
				"updatedAt":  s.now(),
			},
			"$inc": bson.M{"retryCount": 1},
		}
	} else {
		// The pipeline form lets the failed transition read the incremented count in one write.
		next := bson.M{"$add": bson.A{"$retryCount", 1}}
		update = mongo.Pipeline{
			{{Key: "$set", Value: bson.D{
				{Key: "retryCount", Value: next},
				{Key: "lastError", Value: bson.M{"$literal": attempt.Error}},
				{Key: "sendStatus", Value: bson.M{"$cond": bson.A{
					bson.M{"$gte": bson.A{next, model.MaxRetries}},
					model.SendFailed,
					"$sendStatus",
				}}},
				{Key: "updatedAt", Value: s.now()},
			}}},
		}
	}

	res, err := s.reminders.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: reminder %s is not awaiting delivery", model.ErrInvalidTransition, id)
	}
	return nil
}

func (s *MongoStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	filter := bson.M{
		"createdAt":  bson.M{"$lt": cutoff.UTC()},
		"sendStatus": bson.M{"$ne": model.SendSent},
		"$or": bson.A{
			bson.M{"sendStatus": model.SendFailed},
			bson.M{"subscriptionStatus": model.SubscriptionCancelled},
		},
	}
	res, err := s.reminders.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) CreateNote(ctx context.Context, note *model.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	now := s.now()
	if note.CreatedAt.IsZero() {
		note.CreatedAt = now
	}
	note.UpdatedAt = now
	_, err := s.notes.InsertOne(ctx, note)
	return err
}

func (s *MongoStore) FindNote(ctx context.Context, noteID, userID string) (*model.Note, error) {
	var note model.Note
	err := s.notes.FindOne(ctx, bson.M{"_id": noteID, "userId": userID}).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}
