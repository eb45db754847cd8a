// Package cache stores analysis results keyed by document and text content.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/redis/go-redis/v9"

	"proofline/internal/suggestion"
)

const (
	DefaultTTL      = 7 * 24 * time.Hour
	DefaultMinChars = 10
	DefaultMaxChars = 50000
	keyPrefix       = "suggestion_cache_"
)

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrNotCacheable = errors.New("text not cacheable")
)

// Entry is one cached analysis result
type Entry struct {
	Suggestions []suggestion.Suggestion `json:"suggestions"`
	Version     string                  `json:"version"`
	TextHash    string                  `json:"text_hash"`
	CachedAt    time.Time               `json:"cached_at"`
	ExpiresAt   time.Time               `json:"expires_at"`
}

// Stats summarizes the entries cached for one document
type Stats struct {
	Entries int       `json:"entries"`
	Oldest  time.Time `json:"oldest,omitempty"`
	Newest  time.Time `json:"newest,omitempty"`
}

// RedisStore implements the suggestion cache using Redis
type RedisStore struct {
	client   *redis.Client
	prefix   string
	ttl      time.Duration
	minChars int
	maxChars int
}

// Option configures a RedisStore
type Option func(*RedisStore)

// WithTTL sets how long entries live
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithLimits sets the cacheable text length range in characters
func WithLimits(minChars, maxChars int) Option {
	return func(s *RedisStore) {
		s.minChars = minChars
		s.maxChars = maxChars
	}
}

// NewRedisStore creates a new Redis-backed suggestion cache
func NewRedisStore(redisURL string, opts ...Option) (*RedisStore, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, opts...), nil
}

// NewRedisStoreWithClient creates a cache from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:   client,
		prefix:   keyPrefix,
		ttl:      DefaultTTL,
		minChars: DefaultMinChars,
		maxChars: DefaultMaxChars,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(documentID, textHash string) string {
	return s.prefix + documentID + "_" + textHash
}

// Cacheable reports whether text is within the cacheable length range
func (s *RedisStore) Cacheable(text string) bool {
	n := utf8.RuneCountInString(text)
	return n >= s.minChars && n <= s.maxChars
}

// Get returns the entry cached for text, or ErrCacheMiss
func (s *RedisStore) Get(ctx context.Context, documentID, text string) (Entry, error) {
	if !s.Cacheable(text) {
		return Entry{}, ErrCacheMiss
	}
	raw, err := s.client.Get(ctx, s.key(documentID, TextHash(text))).Result()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrCacheMiss
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return Entry{}, fmt.Errorf("unmarshal cache entry: %w", err)
	}
	return entry, nil
}

// Put caches suggestions for text under version
func (s *RedisStore) Put(ctx context.Context, documentID, text, version string, suggestions []suggestion.Suggestion) error {
	if !s.Cacheable(text) {
		return ErrNotCacheable
	}
	now := time.Now().UTC()
	hash := TextHash(text)
	entry := Entry{
		Suggestions: suggestions,
		Version:     version,
		TextHash:    hash,
		CachedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := s.client.Set(ctx, s.key(documentID, hash), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save cache entry: %w", err)
	}
	return nil
}

// Clear deletes every entry of a document, paragraph entries included
func (s *RedisStore) Clear(ctx context.Context, documentID string) (int, error) {
	keys, err := s.documentKeys(ctx, documentID)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return int(deleted), nil
}

// Stats reports how many entries a document has and their age range
func (s *RedisStore) Stats(ctx context.Context, documentID string) (Stats, error) {
	keys, err := s.documentKeys(ctx, documentID)
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, key := range keys {
		raw, err := s.client.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return Stats{}, fmt.Errorf("read cache entry: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		stats.Entries++
		if stats.Oldest.IsZero() || entry.CachedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CachedAt
		}
		if entry.CachedAt.After(stats.Newest) {
			stats.Newest = entry.CachedAt
		}
	}
	return stats, nil
}

func (s *RedisStore) documentKeys(ctx context.Context, documentID string) ([]string, error) {
	var keys []string
	patterns := []string{
		s.prefix + documentID + "_*",
		s.prefix + ParagraphKey(documentID, "para-") + "*",
	}
	for _, pattern := range patterns {
		var cursor uint64
		for {
			batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
			if err != nil {
				return nil, fmt.Errorf("scan cache keys: %w", err)
			}
			keys = append(keys, batch...)
			cursor = next
			if cursor == 0 {
				break
			}
		}
	}
	return keys, nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// NormalizeText trims, collapses whitespace runs and lower-cases text so
// formatting-only edits hit the same entry
func NormalizeText(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}

// TextHash is the hex SHA-256 of the normalized text
func TextHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// ParagraphKey is the document id under which one paragraph is cached
func ParagraphKey(documentID, paragraphID string) string {
	return documentID + "-" + paragraphID
}
