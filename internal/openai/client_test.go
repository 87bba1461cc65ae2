package openai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSummarizeNoteFallsBackToTruncation(t *testing.T) {
	t.Parallel()
	c := New("")
	if c.Enabled() {
		t.Fatal("client without key should be disabled")
	}

	long := strings.Repeat("日记", 60)
	got, err := c.SummarizeNote(context.Background(), "Diary", long)
	if err != nil {
		t.Fatalf("SummarizeNote: %v", err)
	}
	if want := string([]rune(long)[:FallbackLength]) + "..."; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	got, err = c.SummarizeNote(context.Background(), "Only a title", "  ")
	if err != nil || got != "Only a title" {
		t.Fatalf("title fallback = %q, %v", got, err)
	}

	if _, err := c.SummarizeNote(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty note")
	}
}

func TestSummarizeNoteNilClient(t *testing.T) {
	t.Parallel()
	var c *Client
	if _, err := c.SummarizeNote(context.Background(), "t", "b"); !errors.Is(err, ErrClientNotInitialised) {
		t.Fatalf("expected ErrClientNotInitialised, got %v", err)
	}
}
