package dispatch

import (
	"strings"
	"time"

	"github.com/pathakanu/myJournal/internal/model"
	"github.com/pathakanu/myJournal/internal/push"
)

const (
	// FieldLimit is the longest subject or body the push channel accepts, in characters.
	FieldLimit = 20
	// Ellipsis marks a field that was cut to fit FieldLimit.
	Ellipsis = "…"
	// TimeLayout formats the remind time as YYYY-MM-DD HH:mm.
	TimeLayout = "2006-01-02 15:04"
)

// Truncate trims s and, if it is still longer than limit characters, cuts it to
// limit-1 characters followed by an ellipsis. Length is counted in runes.
func Truncate(s string, limit int) string {
	trimmed := strings.TrimSpace(s)
	runes := []rune(trimmed)
	if len(runes) <= limit {
		return trimmed
	}
	if limit <= 0 {
		return ""
	}
	return string(runes[:limit-1]) + Ellipsis
}

// BuildMessage formats a reminder for the push channel, rendering the time in loc.
func BuildMessage(r model.Reminder, loc *time.Location) push.Message {
	if loc == nil {
		loc = time.Local
	}
	return push.Message{
		Subject: Truncate(r.Title, FieldLimit),
		Body:    Truncate(r.Content, FieldLimit),
		Time:    r.RemindTime.In(loc).Format(TimeLayout),
	}
}
