package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"proofline/internal/cache"
	"proofline/internal/suggestion"
)

// Analyzer produces suggestions for a snapshot of a document's text.
type Analyzer interface {
	Analyze(ctx context.Context, documentID, text string) ([]suggestion.Suggestion, error)
}

// Cache is the subset of the suggestion cache the analyzer needs.
type Cache interface {
	Get(ctx context.Context, documentID, text string) (cache.Entry, error)
	Put(ctx context.Context, documentID, text, version string, suggestions []suggestion.Suggestion) error
}

// CachedAnalyzer consults the cache before calling the wrapped analyzer and
// stores what it returns. Cache failures are logged and treated as misses.
type CachedAnalyzer struct {
	next     Analyzer
	cache    Cache
	version  string
	minChars int
	logger   zerolog.Logger
}

type CachedOption func(*CachedAnalyzer)

func WithCache(c Cache, version string) CachedOption {
	return func(a *CachedAnalyzer) {
		a.cache = c
		a.version = version
	}
}

func WithMinChars(n int) CachedOption {
	return func(a *CachedAnalyzer) {
		a.minChars = n
	}
}

func WithLogger(logger zerolog.Logger) CachedOption {
	return func(a *CachedAnalyzer) {
		a.logger = logger
	}
}

func NewCachedAnalyzer(next Analyzer, opts ...CachedOption) *CachedAnalyzer {
	a := &CachedAnalyzer{
		next:     next,
		minChars: cache.DefaultMinChars,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns suggestions for text. Text shorter than the minimum
// length yields none without calling the analyzer. Suggestions whose
// original text is absent from text are dropped.
func (a *CachedAnalyzer) Analyze(ctx context.Context, documentID, text string) ([]suggestion.Suggestion, error) {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < a.minChars {
		return nil, nil
	}

	if a.cache != nil {
		entry, err := a.cache.Get(ctx, documentID, text)
		switch {
		case err == nil && entry.Version == a.version:
			a.logger.Debug().Str("document_id", documentID).Msg("analysis cache hit")
			return FilterPresent(text, fresh(entry.Suggestions)), nil
		case err == nil:
			a.logger.Debug().Str("document_id", documentID).Str("version", entry.Version).Msg("analysis cache version mismatch")
		case !errors.Is(err, cache.ErrCacheMiss):
			a.logger.Warn().Err(err).Str("document_id", documentID).Msg("analysis cache read failed")
		}
	}

	result, err := a.next.Analyze(ctx, documentID, text)
	if err != nil {
		return nil, fmt.Errorf("analyze text: %w", err)
	}
	result = FilterPresent(text, fresh(result))

	if a.cache != nil {
		if err := a.cache.Put(ctx, documentID, text, a.version, result); err != nil && !errors.Is(err, cache.ErrNotCacheable) {
			a.logger.Warn().Err(err).Str("document_id", documentID).Msg("analysis cache write failed")
		}
	}
	return result, nil
}

// fresh clears ids and resets status so results can be merged into any
// document's store.
func fresh(in []suggestion.Suggestion) []suggestion.Suggestion {
	out := make([]suggestion.Suggestion, len(in))
	for i, s := range in {
		s.ID = 0
		s.Status = suggestion.StatusProposed
		out[i] = s
	}
	return out
}

// Kind selects what an analysis endpoint produces.
type Kind string

const (
	KindSuggestions Kind = "suggestions"
	KindEngagement  Kind = "engage"
	KindPromo       Kind = "promo"
)

// ParseKind accepts the kind names used on the wire. An empty value is
// KindSuggestions.
func ParseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindSuggestions:
		return KindSuggestions, nil
	case KindEngagement, "engagement":
		return KindEngagement, nil
	case KindPromo, "promotional":
		return KindPromo, nil
	default:
		return "", fmt.Errorf("unknown analysis kind %q", value)
	}
}

// HTTPAnalyzer posts text to an analysis endpoint and parses its response.
type HTTPAnalyzer struct {
	endpoint string
	client   *http.Client
	parse    func(body, text string) ([]suggestion.Suggestion, error)
}

// NewHTTPAnalyzer calls an endpoint that answers with inline suggestions.
func NewHTTPAnalyzer(endpoint string, timeout time.Duration) *HTTPAnalyzer {
	return newHTTPAnalyzer(endpoint, timeout, func(body, _ string) ([]suggestion.Suggestion, error) {
		return ParseSuggestions(body)
	})
}

// NewEngagementAnalyzer calls an endpoint that answers with engagement
// prompts. Each prompt becomes an appended suggestion.
func NewEngagementAnalyzer(endpoint string, timeout time.Duration) *HTTPAnalyzer {
	return newHTTPAnalyzer(endpoint, timeout, func(body, _ string) ([]suggestion.Suggestion, error) {
		return ParseEngagement(body)
	})
}

// NewPromoAnalyzer calls an endpoint that answers with promotional rewrites
// of the whole text.
func NewPromoAnalyzer(endpoint string, timeout time.Duration) *HTTPAnalyzer {
	return newHTTPAnalyzer(endpoint, timeout, ParsePromo)
}

func newHTTPAnalyzer(endpoint string, timeout time.Duration, parse func(body, text string) ([]suggestion.Suggestion, error)) *HTTPAnalyzer {
	return &HTTPAnalyzer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		parse:    parse,
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, documentID, text string) ([]suggestion.Suggestion, error) {
	payload, err := json.Marshal(map[string]string{"text": text, "documentId": documentID})
	if err != nil {
		return nil, fmt.Errorf("marshal analysis request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analyzer: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("analyzer returned status %d", resp.StatusCode)
	}
	return a.parse(string(body), text)
}
