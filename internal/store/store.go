// Package store persists reminders and resolves the notes they belong to.
//
// Every write that the scheduler performs is a single-document update scoped by
// reminder id, so concurrent dispatch attempts on different reminders never
// contend with each other.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pathakanu/myJournal/internal/model"
)

var (
	// ErrNotFound is returned when a reminder or note does not exist for the requesting user.
	ErrNotFound = errors.New("store: not found")
)

// ReminderFilter narrows a user's reminder listing.
type ReminderFilter struct {
	SubscriptionStatus model.SubscriptionStatus
	SendStatus         model.SendStatus
	Offset             int
	Limit              int
}

// ReminderPatch carries the user-editable fields of a reminder. Nil fields are left untouched.
type ReminderPatch struct {
	Title              *string
	Content            *string
	RemindTime         *time.Time
	SubscriptionStatus *model.SubscriptionStatus
}

func (p ReminderPatch) empty() bool {
	return p.Title == nil && p.Content == nil && p.RemindTime == nil && p.SubscriptionStatus == nil
}

// reopensSubscription reports whether the patch would move a reminder to a status
// other than cancelled, which must never happen to a cancelled reminder.
func (p ReminderPatch) reopensSubscription() bool {
	return p.SubscriptionStatus != nil && *p.SubscriptionStatus != model.SubscriptionCancelled
}

// ReminderStore is the persistence contract for reminders.
type ReminderStore interface {
	Create(ctx context.Context, reminder *model.Reminder) error
	Get(ctx context.Context, id, userID string) (*model.Reminder, error)
	List(ctx context.Context, userID string, filter ReminderFilter) ([]model.Reminder, int64, error)
	Update(ctx context.Context, id, userID string, patch ReminderPatch) (*model.Reminder, error)
	Delete(ctx context.Context, id, userID string) (bool, error)
	BatchDelete(ctx context.Context, ids []string, userID string) (int64, error)

	// FindEligible returns every reminder that may be dispatched at now.
	FindEligible(ctx context.Context, now time.Time) ([]model.Reminder, error)
	// RecordAttempt atomically applies the outcome of one dispatch attempt.
	// It only touches reminders still awaiting delivery.
	RecordAttempt(ctx context.Context, id string, attempt model.Attempt) error
	// DeleteExpired removes failed or cancelled reminders created before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// NoteStore resolves notes owned by a user.
type NoteStore interface {
	CreateNote(ctx context.Context, note *model.Note) error
	FindNote(ctx context.Context, noteID, userID string) (*model.Note, error)
}
