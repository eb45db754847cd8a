package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"proofline/internal/suggestion"
)

func setupTestRedis(t *testing.T, opts ...Option) (*RedisStore, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	store, err := NewRedisStore("redis://"+s.Addr(), opts...)
	if err != nil {
		t.Fatalf("failed to create redis store: %v", err)
	}
	return store, s
}

func sample() []suggestion.Suggestion {
	return []suggestion.Suggestion{{
		ID:            1,
		Category:      suggestion.CategorySpelling,
		OriginalText:  "recieve",
		SuggestedText: "receive",
		StartIndex:    7,
		EndIndex:      14,
		Status:        suggestion.StatusProposed,
	}}
}

func TestNewRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()

	store, err := NewRedisStore("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisStore failed: %v", err)
	}
	defer store.Close()

	if err := store.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestNewRedisStoreBadURL(t *testing.T) {
	if _, err := NewRedisStore("not a url"); err == nil {
		t.Fatal("expected error for invalid url")
	}
}

func TestPutAndGet(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	text := "I will recieve it."
	if err := store.Put(ctx, "doc-1", text, "1.0.0", sample()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// Formatting-only differences share an entry.
	entry, err := store.Get(ctx, "doc-1", "  i will   RECIEVE it. ")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if entry.Version != "1.0.0" {
		t.Errorf("expected version 1.0.0, got %s", entry.Version)
	}
	if len(entry.Suggestions) != 1 || entry.Suggestions[0].OriginalText != "recieve" {
		t.Errorf("unexpected suggestions: %+v", entry.Suggestions)
	}
	if entry.TextHash != TextHash(text) {
		t.Errorf("expected hash %s, got %s", TextHash(text), entry.TextHash)
	}
}

func TestGetMiss(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	_, err := store.Get(context.Background(), "doc-1", "never cached text")
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}
}

func TestEntryExpires(t *testing.T) {
	store, s := setupTestRedis(t, WithTTL(time.Minute))
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	text := "short lived text"
	if err := store.Put(ctx, "doc-1", text, "1.0.0", sample()); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	s.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "doc-1", text); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss after expiry, got %v", err)
	}
}

func TestPutRejectsUncacheableText(t *testing.T) {
	store, s := setupTestRedis(t, WithLimits(10, 20))
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	for _, text := range []string{"short", strings.Repeat("x", 21)} {
		if err := store.Put(ctx, "doc-1", text, "1.0.0", nil); !errors.Is(err, ErrNotCacheable) {
			t.Errorf("expected ErrNotCacheable for %q, got %v", text, err)
		}
	}
}

func TestClearAndStats(t *testing.T) {
	store, s := setupTestRedis(t)
	defer store.Close()
	defer s.Close()

	ctx := context.Background()
	texts := []string{"first version of text", "second version of text"}
	for _, text := range texts {
		if err := store.Put(ctx, "doc-1", text, "1.0.0", sample()); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}
	if err := store.Put(ctx, ParagraphKey("doc-1", "para-0"), "paragraph text here", "1.0.0", nil); err != nil {
		t.Fatalf("Put paragraph failed: %v", err)
	}
	if err := store.Put(ctx, "doc-2", "other document text", "1.0.0", nil); err != nil {
		t.Fatalf("Put doc-2 failed: %v", err)
	}

	stats, err := store.Stats(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Entries != 3 {
		t.Errorf("expected 3 entries, got %d", stats.Entries)
	}

	deleted, err := store.Clear(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if deleted != 3 {
		t.Errorf("expected 3 deleted, got %d", deleted)
	}

	if _, err := store.Get(ctx, "doc-2", "other document text"); err != nil {
		t.Errorf("doc-2 entry should survive clear: %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "  Hello   World ", want: "hello world"},
		{in: "a\n\nb\tc", want: "a b c"},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
