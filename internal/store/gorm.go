package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pathakanu/myJournal/internal/model"
	"gorm.io/gorm"
)

// GormStore implements ReminderStore and NoteStore on PostgreSQL or SQLite.
// Timestamps are written in UTC so SQLite's textual comparisons stay ordered.
type GormStore struct {
	db *gorm.DB
}

// NewGorm wraps an opened and migrated GORM connection.
func NewGorm(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Create(ctx context.Context, reminder *model.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	reminder.RemindTime = reminder.RemindTime.UTC()
	if !reminder.CreatedAt.IsZero() {
		reminder.CreatedAt = reminder.CreatedAt.UTC()
	}
	return s.db.WithContext(ctx).Create(reminder).Error
}

func (s *GormStore) Get(ctx context.Context, id, userID string) (*model.Reminder, error) {
	var reminder model.Reminder
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&reminder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &reminder, nil
}

func (s *GormStore) List(ctx context.Context, userID string, filter ReminderFilter) ([]model.Reminder, int64, error) {
	query := func() *gorm.DB {
		q := s.db.WithContext(ctx).Model(&model.Reminder{}).Where("user_id = ?", userID)
		if filter.SubscriptionStatus != "" {
			q = q.Where("subscription_status = ?", filter.SubscriptionStatus)
		}
		if filter.SendStatus != "" {
			q = q.Where("send_status = ?", filter.SendStatus)
		}
		return q
	}

	var total int64
	if err := query().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reminders []model.Reminder
	q := query().Order("remind_time DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&reminders).Error; err != nil {
		return nil, 0, err
	}
	return reminders, total, nil
}

func (s *GormStore) Update(ctx context.Context, id, userID string, patch ReminderPatch) (*model.Reminder, error) {
	if patch.empty() {
		return s.Get(ctx, id, userID)
	}

	updates := map[string]any{}
	if patch.Title != nil {
		updates["title"] = *patch.Title
	}
	if patch.Content != nil {
		updates["content"] = *patch.Content
	}
	if patch.RemindTime != nil {
		updates["remind_time"] = patch.RemindTime.UTC()
	}
	if patch.SubscriptionStatus != nil {
		updates["subscription_status"] = *patch.SubscriptionStatus
	}

	q := s.db.WithContext(ctx).Model(&model.Reminder{}).Where("id = ? AND user_id = ?", id, userID)
	if patch.reopensSubscription() {
		q = q.Where("subscription_status <> ?", model.SubscriptionCancelled)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}

	reminder, err := s.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 && patch.reopensSubscription() {
		return nil, fmt.Errorf("%w: reminder %s is cancelled", model.ErrInvalidTransition, id)
	}
	return reminder, nil
}

func (s *GormStore) Delete(ctx context.Context, id, userID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&model.Reminder{})
	return res.RowsAffected > 0, res.Error
}

func (s *GormStore) BatchDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Where("id IN ? AND user_id = ?", ids, userID).Delete(&model.Reminder{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) FindEligible(ctx context.Context, now time.Time) ([]model.Reminder, error) {
	var reminders []model.Reminder
	err := s.db.WithContext(ctx).
		Where("remind_time <= ? AND subscription_status = ? AND send_status = ? AND retry_count < ?",
			now.UTC(), model.SubscriptionSubscribed, model.SendPending, model.MaxRetries).
		Order("remind_time ASC").
		Find(&reminders).Error
	return reminders, err
}

func (s *GormStore) RecordAttempt(ctx context.Context, id string, attempt model.Attempt) error {
	updates := map[string]any{
		"retry_count": gorm.Expr("retry_count + 1"),
	}
	if attempt.Sent {
		updates["send_status"] = model.SendSent
		updates["sent_at"] = attempt.At.UTC()
	} else {
		// SET expressions read the pre-update row, so retry_count + 1 is the post-increment count.
		updates["last_error"] = attempt.Error
		updates["send_status"] = gorm.Expr("CASE WHEN retry_count + 1 >= ? THEN ? ELSE send_status END",
			model.MaxRetries, model.SendFailed)
	}

	res := s.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND send_status = ? AND retry_count < ?", id, model.SendPending, model.MaxRetries).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: reminder %s is not awaiting delivery", model.ErrInvalidTransition, id)
	}
	return nil
}

func (s *GormStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ? AND send_status <> ? AND (send_status = ? OR subscription_status = ?)",
			cutoff.UTC(), model.SendSent, model.SendFailed, model.SubscriptionCancelled).
		Delete(&model.Reminder{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) CreateNote(ctx context.Context, note *model.Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(note).Error
}

func (s *GormStore) FindNote(ctx context.Context, noteID, userID string) (*model.Note, error) {
	var note model.Note
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", noteID, userID).First(&note).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}
