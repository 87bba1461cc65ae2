package model

import (
	"errors"
	"fmt"
	"time"
)

// MaxRetries caps the number of dispatch attempts per reminder.
const MaxRetries = 3

const (
	// MaxTitleLength is the longest title a reminder may store, in characters.
	MaxTitleLength = 200
	// MaxContentLength is the longest content a reminder may store, in characters.
	MaxContentLength = 500
)

// ErrInvalidTransition is returned when a status change is not allowed by the reminder lifecycle.
var ErrInvalidTransition = errors.New("model: invalid reminder transition")

// SubscriptionStatus records whether the user authorised push delivery for a reminder.
type SubscriptionStatus string

const (
	SubscriptionPending    SubscriptionStatus = "pending"
	SubscriptionSubscribed SubscriptionStatus = "subscribed"
	SubscriptionCancelled  SubscriptionStatus = "cancelled"
)

// IsValid reports whether s is a known subscription status.
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionPending, SubscriptionSubscribed, SubscriptionCancelled:
		return true
	default:
		return false
	}
}

// SendStatus records the delivery outcome of a reminder.
type SendStatus string

const (
	SendPending SendStatus = "pending"
	SendSent    SendStatus = "sent"
	SendFailed  SendStatus = "failed"
)

// IsValid reports whether s is a known send status.
func (s SendStatus) IsValid() bool {
	switch s {
	case SendPending, SendSent, SendFailed:
		return true
	default:
		return false
	}
}

// Reminder is one scheduled notification tied to a note.
type Reminder struct {
	ID                 string             `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	UserID             string             `json:"userId" gorm:"index;index:idx_user_remind,priority:1;not null" bson:"userId"`
	NoteID             string             `json:"noteId" gorm:"index;not null" bson:"noteId"`
	Title              string             `json:"title" gorm:"size:200;not null" bson:"title"`
	Content            string             `json:"content" gorm:"size:500;not null" bson:"content"`
	RemindTime         time.Time          `json:"remindTime" gorm:"index;index:idx_user_remind,priority:2;not null" bson:"remindTime"`
	MessageID          string             `json:"messageId" gorm:"not null" bson:"messageId"`
	SubscriptionStatus SubscriptionStatus `json:"subscriptionStatus" gorm:"size:16;index;default:pending;not null" bson:"subscriptionStatus"`
	SendStatus         SendStatus         `json:"sendStatus" gorm:"size:16;index;default:pending;not null" bson:"sendStatus"`
	RetryCount         int                `json:"retryCount" gorm:"not null;default:0" bson:"retryCount"`
	LastError          string             `json:"lastError" gorm:"type:text" bson:"lastError"`
	SentAt             *time.Time         `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
	CreatedAt          time.Time          `json:"createdAt" gorm:"autoCreateTime;index" bson:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt" gorm:"autoUpdateTime" bson:"updatedAt"`
}

// Eligible reports whether the reminder may be dispatched at now.
func (r Reminder) Eligible(now time.Time) bool {
	return !r.RemindTime.After(now) &&
		r.SubscriptionStatus == SubscriptionSubscribed &&
		r.SendStatus == SendPending &&
		r.RetryCount < MaxRetries
}

// Expired reports whether the retention policy may delete the reminder.
// Sent reminders are kept for history regardless of age.
func (r Reminder) Expired(cutoff time.Time) bool {
	if !r.CreatedAt.Before(cutoff) || r.SendStatus == SendSent {
		return false
	}
	return r.SendStatus == SendFailed || r.SubscriptionStatus == SubscriptionCancelled
}

// CanChangeSubscription validates a user-initiated subscription change.
// Cancellation is one-way and nothing moves back to pending.
func (r Reminder) CanChangeSubscription(to SubscriptionStatus) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown subscription status %q", ErrInvalidTransition, to)
	}
	if r.SubscriptionStatus == to {
		return nil
	}
	switch {
	case r.SubscriptionStatus == SubscriptionCancelled:
		return fmt.Errorf("%w: reminder %s is cancelled", ErrInvalidTransition, r.ID)
	case to == SubscriptionPending:
		return fmt.Errorf("%w: subscription cannot return to pending", ErrInvalidTransition)
	}
	return nil
}

// Attempt is the outcome of one dispatch attempt.
type Attempt struct {
	Sent  bool
	At    time.Time
	Error string
}

// Apply returns the reminder as it looks after the attempt has been recorded.
// Every attempt consumes one retry unit, including a successful one; the count
// has no effect once the reminder is sent.
func (r Reminder) Apply(a Attempt) (Reminder, error) {
	if r.SendStatus != SendPending || r.RetryCount >= MaxRetries {
		return r, fmt.Errorf("%w: reminder %s is not awaiting delivery", ErrInvalidTransition, r.ID)
	}
	r.RetryCount++
	if a.Sent {
		sentAt := a.At
		r.SendStatus = SendSent
		r.SentAt = &sentAt
		return r, nil
	}
	r.LastError = a.Error
	if r.RetryCount >= MaxRetries {
		r.SendStatus = SendFailed
	}
	return r, nil
}
