package dispatch

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/pathakanu/myJournal/internal/model"
)

func TestTruncateLaw(t *testing.T) {
	t.Parallel()
	inputs := []string{
		"",
		"   ",
		"short",
		"  padded title  ",
		strings.Repeat("a", 20),
		strings.Repeat("b", 21),
		"  " + strings.Repeat("c", 20) + "  ",
		strings.Repeat("手帐提醒", 10),
		"Buy groceries for the weekend trip to the lake",
		"\tline\nbreaks inside a rather long reminder body\n",
	}

	for _, in := range inputs {
		out := Truncate(in, FieldLimit)
		trimmed := []rune(strings.TrimSpace(in))

		if n := utf8.RuneCountInString(out); n > FieldLimit {
			t.Fatalf("Truncate(%q) has %d characters, want <= %d", in, n, FieldLimit)
		}
		if len(trimmed) <= FieldLimit {
			if out != string(trimmed) {
				t.Fatalf("Truncate(%q) = %q, want trimmed input", in, out)
			}
			continue
		}
		if !strings.HasSuffix(out, Ellipsis) {
			t.Fatalf("Truncate(%q) = %q, want ellipsis suffix", in, out)
		}
		if prefix := string([]rune(out)[:FieldLimit-1]); prefix != string(trimmed[:FieldLimit-1]) {
			t.Fatalf("Truncate(%q) prefix = %q, want %q", in, prefix, string(trimmed[:FieldLimit-1]))
		}
	}
}

func TestTruncateExactBoundary(t *testing.T) {
	t.Parallel()
	twenty := strings.Repeat("x", 20)
	if got := Truncate(twenty, FieldLimit); got != twenty {
		t.Fatalf("20 characters should pass through, got %q", got)
	}
	if got := Truncate(twenty+"y", FieldLimit); got != strings.Repeat("x", 19)+"…" {
		t.Fatalf("21 characters should be cut, got %q", got)
	}
}

func TestBuildMessage(t *testing.T) {
	t.Parallel()
	cst := time.FixedZone("CST", 8*3600)
	r := model.Reminder{
		Title:      "  Quarterly planning session with the whole team  ",
		Content:    "Bring notes",
		RemindTime: time.Date(2026, 3, 1, 23, 45, 10, 0, time.UTC),
	}

	msg := BuildMessage(r, cst)
	if msg.Subject != "Quarterly planning …" {
		t.Fatalf("Subject = %q", msg.Subject)
	}
	if msg.Body != "Bring notes" {
		t.Fatalf("Body = %q", msg.Body)
	}
	if msg.Time != "2026-03-02 07:45" {
		t.Fatalf("Time = %q, want local rendering 2026-03-02 07:45", msg.Time)
	}
}
