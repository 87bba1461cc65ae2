// Package reminder implements the user-facing reminder operations that sit in
// front of the store: creation from a journal note, listing, edits and
// subscription changes.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pathakanu/myJournal/internal/model"
	"github.com/pathakanu/myJournal/internal/store"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

var (
	// ErrNoteNotFound is returned when the note does not exist or belongs to another user.
	ErrNoteNotFound = errors.New("reminder: note not found")
	// ErrInvalidInput wraps request values the service cannot act on.
	ErrInvalidInput = errors.New("reminder: invalid input")
)

// Summarizer turns a note into a short reminder text.
type Summarizer interface {
	SummarizeNote(ctx context.Context, title, body string) (string, error)
}

// Store is everything the service needs from persistence.
type Store interface {
	store.ReminderStore
	store.NoteStore
}

// CreateInput describes a new reminder. Empty Title, Content and MessageID are filled from
// the note, the summarizer and the configured template respectively.
type CreateInput struct {
	NoteID     string
	Title      string
	Content    string
	MessageID  string
	RemindTime time.Time
}

// UpdateInput carries optional edits. Nil fields are left untouched.
type UpdateInput struct {
	Title              *string
	Content            *string
	RemindTime         *time.Time
	SubscriptionStatus *model.SubscriptionStatus
}

// ListOptions selects one page of a user's reminders.
type ListOptions struct {
	Page               int
	Limit              int
	SubscriptionStatus model.SubscriptionStatus
	SendStatus         model.SendStatus
}

// Page is one page of reminders sorted by remind time, newest first.
type Page struct {
	Items      []model.Reminder `json:"items"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

type Service struct {
	store      Store
	summarizer Summarizer
	messageID  string
	logger     *log.Logger
}

// NewService wires the service. summarizer may be nil, in which case note bodies are truncated.
func NewService(st Store, summarizer Summarizer, messageID string, logger *log.Logger) *Service {
	return &Service{store: st, summarizer: summarizer, messageID: messageID, logger: logger}
}

func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*model.Reminder, error) {
	if strings.TrimSpace(in.NoteID) == "" {
		return nil, fmt.Errorf("%w: noteId is required", ErrInvalidInput)
	}
	if in.RemindTime.IsZero() {
		return nil, fmt.Errorf("%w: remindTime is required", ErrInvalidInput)
	}

	note, err := s.store.FindNote(ctx, in.NoteID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoteNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reminder: find note %s: %w", in.NoteID, err)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = strings.TrimSpace(note.Title)
	}

	content := strings.TrimSpace(in.Content)
	if content == "" {
		content = s.summarize(ctx, note)
	}

	messageID := strings.TrimSpace(in.MessageID)
	if messageID == "" {
		messageID = s.messageID
	}

	reminder := &model.Reminder{
		UserID:             userID,
		NoteID:             note.ID,
		Title:              cut(title, model.MaxTitleLength),
		Content:            cut(content, model.MaxContentLength),
		MessageID:          messageID,
		RemindTime:         in.RemindTime,
		SubscriptionStatus: model.SubscriptionPending,
		SendStatus:         model.SendPending,
	}
	if err := s.store.Create(ctx, reminder); err != nil {
		return nil, fmt.Errorf("reminder: create: %w", err)
	}
	return reminder, nil
}

func (s *Service) summarize(ctx context.Context, note *model.Note) string {
	if s.summarizer != nil {
		summary, err := s.summarizer.SummarizeNote(ctx, note.Title, note.Content)
		if err == nil && strings.TrimSpace(summary) != "" {
			return strings.TrimSpace(summary)
		}
		if err != nil {
			s.logger.Printf("reminder: summarise note %s: %v", note.ID, err)
		}
	}
	if body := strings.TrimSpace(note.Content); body != "" {
		return body
	}
	return strings.TrimSpace(note.Title)
}

func (s *Service) List(ctx context.Context, userID string, opts ListOptions) (*Page, error) {
	if opts.SubscriptionStatus != "" && !opts.SubscriptionStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown subscription status %q", ErrInvalidInput, opts.SubscriptionStatus)
	}
	if opts.SendStatus != "" && !opts.SendStatus.IsValid() {
		return nil, fmt.Errorf("%w: unknown send status %q", ErrInvalidInput, opts.SendStatus)
	}

	page := max(opts.Page, 1)
	limit := opts.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)

	items, total, err := s.store.List(ctx, userID, store.ReminderFilter{
		SubscriptionStatus: opts.SubscriptionStatus,
		SendStatus:         opts.SendStatus,
		Offset:             (page - 1) * limit,
		Limit:              limit,
	})
	if err != nil {
		return nil, fmt.Errorf("reminder: list: %w", err)
	}
	if items == nil {
		items = []model.Reminder{}
	}
	return &Page{
		Items:      items,
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*model.Reminder, error) {
	return s.store.Get(ctx, id, userID)
}

// Update applies user edits. Subscription changes follow the reminder lifecycle:
// cancelled is final and nothing returns to pending.
func (s *Service) Update(ctx context.Context, id, userID string, in UpdateInput) (*model.Reminder, error) {
	if in.SubscriptionStatus != nil {
		current, err := s.store.Get(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		if err := current.CanChangeSubscription(*in.SubscriptionStatus); err != nil {
			return nil, err
		}
	}

	patch := store.ReminderPatch{
		RemindTime:         in.RemindTime,
		SubscriptionStatus: in.SubscriptionStatus,
	}
	if in.Title != nil {
		title := cut(strings.TrimSpace(*in.Title), model.MaxTitleLength)
		patch.Title = &title
	}
	if in.Content != nil {
		content := cut(strings.TrimSpace(*in.Content), model.MaxContentLength)
		patch.Content = &content
	}
	return s.store.Update(ctx, id, userID, patch)
}

func (s *Service) Subscribe(ctx context.Context, id, userID string) (*model.Reminder, error) {
	status := model.SubscriptionSubscribed
	return s.Update(ctx, id, userID, UpdateInput{SubscriptionStatus: &status})
}

func (s *Service) Cancel(ctx context.Context, id, userID string) (*model.Reminder, error) {
	status := model.SubscriptionCancelled
	return s.Update(ctx, id, userID, UpdateInput{SubscriptionStatus: &status})
}

func (s *Service) Delete(ctx context.Context, id, userID string) error {
	deleted, err := s.store.Delete(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("reminder: delete %s: %w", id, err)
	}
	if !deleted {
		return store.ErrNotFound
	}
	return nil
}

// BatchDelete removes the caller's reminders among ids and returns how many were deleted.
func (s *Service) BatchDelete(ctx context.Context, ids []string, userID string) (int64, error) {
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: at least one reminder id is required", ErrInvalidInput)
	}
	deleted, err := s.store.BatchDelete(ctx, ids, userID)
	if err != nil {
		return 0, fmt.Errorf("reminder: batch delete: %w", err)
	}
	return deleted, nil
}

func cut(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
