package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"proofline/internal/analysis"
	"proofline/internal/cache"
	"proofline/internal/config"
	"proofline/internal/doctree"
	"proofline/internal/export"
	"proofline/internal/reconcile"
	"proofline/internal/suggestion"
)

// suggestionCache is the part of the analysis cache the service manages
// directly; lookups go through the analyzer.
type suggestionCache interface {
	Clear(ctx context.Context, documentID string) (int, error)
	Stats(ctx context.Context, documentID string) (cache.Stats, error)
	Ping(ctx context.Context) error
}

// Dependencies are the optional collaborators of a Service.
type Dependencies struct {
	Analyzer analysis.Analyzer
	// Engager and Promoter back the engage and promo analyze kinds.
	Engager  analysis.Analyzer
	Promoter analysis.Analyzer
	Cache    suggestionCache
	Styles   doctree.Styles
	Registry *prometheus.Registry
	Logger   zerolog.Logger
}

type Service struct {
	cfg      config.Config
	analyzer analysis.Analyzer
	engager  analysis.Analyzer
	promoter analysis.Analyzer
	cache    suggestionCache
	styles   doctree.Styles
	registry *prometheus.Registry
	metrics  *reconcile.Metrics
	exporter *export.Service
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func New(cfg config.Config, deps Dependencies) *Service {
	styles := deps.Styles
	if styles == nil {
		styles = doctree.DefaultStyles()
	}
	var metrics *reconcile.Metrics
	if deps.Registry != nil {
		metrics = reconcile.NewMetrics(deps.Registry)
	}
	return &Service{
		cfg:      cfg,
		analyzer: deps.Analyzer,
		engager:  deps.Engager,
		promoter: deps.Promoter,
		cache:    deps.Cache,
		styles:   styles,
		registry: deps.Registry,
		metrics:  metrics,
		exporter: export.NewService(),
		logger:   deps.Logger,
		sessions: make(map[string]*Session),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Ping(ctx)
}

// Close stops every session queue.
func (s *Service) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		session.close()
	}
}

func (s *Service) session(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrDocumentNotFound
	}
	return session, nil
}

// DocumentSummary is a list entry.
type DocumentSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Service) ListDocuments() []DocumentSummary {
	s.mu.RLock()
	items := make([]DocumentSummary, 0, len(s.sessions))
	for _, session := range s.sessions {
		session.mu.Lock()
		items = append(items, DocumentSummary{
			ID:        session.ID,
			Title:     session.Title,
			CreatedAt: session.CreatedAt,
			UpdatedAt: session.updatedAt,
		})
		session.mu.Unlock()
	}
	s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	return items
}

func (s *Service) CreateDocument(ctx context.Context, title, text string) (View, error) {
	title = firstNonBlank(title, "Untitled")
	id := "doc_" + randomHex(12)
	session := newSession(id, title, normalizeText(text), s.metrics, s.logger)

	s.mu.Lock()
	s.sessions[id] = session
	s.mu.Unlock()

	s.logger.Info().Str("document_id", id).Msg("document created")
	return session.run(ctx, s.styles, nil)
}

func (s *Service) GetDocument(ctx context.Context, id string) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, nil)
}

func (s *Service) DeleteDocument(ctx context.Context, id string) error {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return ErrDocumentNotFound
	}
	session.close()

	if s.cache != nil {
		if _, err := s.cache.Clear(ctx, id); err != nil {
			s.logger.Warn().Err(err).Str("document_id", id).Msg("clear analysis cache")
		}
	}
	return nil
}

// EditText applies a user edit. Decorations the edit did not touch stay in
// place; the suggestion list is unchanged.
func (s *Service) EditText(ctx context.Context, id, text string, caret int) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	text = normalizeText(text)
	return session.run(ctx, s.styles, func() error {
		previous := session.editor.Text()
		if err := session.editor.Edit(text, caret); err != nil {
			return fmt.Errorf("edit text: %w", err)
		}
		if changed := doctree.ChangedParagraphs(previous, text); len(changed) > 0 {
			session.touch()
			s.logger.Debug().Str("document_id", id).Int("paragraphs", len(changed)).Msg("paragraphs changed")
		}
		return nil
	})
}

// AddSuggestions hands an analysis result to the document. Anchored
// suggestions whose original text is not in snapshot are dropped. With
// replace, every still-proposed suggestion is discarded first.
func (s *Service) AddSuggestions(ctx context.Context, id, snapshot string, incoming []suggestion.Suggestion, replace bool) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	incoming, err = normalizeIncoming(incoming)
	if err != nil {
		return View{}, err
	}
	if snapshot != "" {
		incoming = analysis.FilterPresent(snapshot, incoming)
	}
	return session.run(ctx, s.styles, func() error {
		if replace {
			session.store.ReplaceProposed(incoming)
		} else {
			session.store.Add(incoming)
		}
		return nil
	})
}

// Analyze runs the analyzer on the current text and merges the result. With
// changedOnly, only paragraphs that changed since the previous analysis are
// sent, each under its own cache key.
func (s *Service) Analyze(ctx context.Context, id string, changedOnly bool) (View, error) {
	if s.analyzer == nil {
		return View{}, domainError(http.StatusNotFound, "ANALYZER_UNAVAILABLE", "No analyzer is configured", nil)
	}
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}

	text := session.editor.Text()
	session.mu.Lock()
	previous := session.lastAnalyzed
	session.mu.Unlock()

	partial := changedOnly && previous != ""
	var result []suggestion.Suggestion
	if partial {
		for _, p := range doctree.ChangedParagraphs(previous, text) {
			found, err := s.analyzer.Analyze(ctx, cache.ParagraphKey(id, p.ID), p.Text)
			if err != nil {
				return View{}, analyzerError(err, map[string]any{"paragraph": p.ID})
			}
			for _, item := range found {
				if !item.Appended() {
					item.StartIndex += p.StartOffset
					item.EndIndex += p.StartOffset
				}
				result = append(result, item)
			}
		}
	} else {
		result, err = s.analyzer.Analyze(ctx, id, text)
		if err != nil {
			return View{}, analyzerError(err, nil)
		}
	}

	session.mu.Lock()
	session.lastAnalyzed = text
	session.mu.Unlock()

	s.logger.Debug().Str("document_id", id).Int("suggestions", len(result)).Bool("partial", partial).Msg("analysis merged")
	return session.run(ctx, s.styles, func() error {
		if partial {
			session.store.Add(result)
		} else {
			session.store.ReplaceProposed(result)
		}
		return nil
	})
}

// Generate asks the engagement or promo collaborator about the current text
// and adds what it returns next to the existing suggestions. Neither kind is
// decorated inline.
func (s *Service) Generate(ctx context.Context, id string, kind analysis.Kind) (View, error) {
	var analyzer analysis.Analyzer
	switch kind {
	case analysis.KindEngagement:
		analyzer = s.engager
	case analysis.KindPromo:
		analyzer = s.promoter
	default:
		return s.Analyze(ctx, id, false)
	}
	if analyzer == nil {
		return View{}, domainError(http.StatusNotFound, "ANALYZER_UNAVAILABLE", "No analyzer is configured", map[string]any{"kind": string(kind)})
	}
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}

	text := session.editor.Text()
	result, err := analyzer.Analyze(ctx, id, text)
	if err != nil {
		return View{}, analyzerError(err, map[string]any{"kind": string(kind)})
	}
	result = analysis.FilterPresent(text, result)

	s.logger.Debug().Str("document_id", id).Str("kind", string(kind)).Int("suggestions", len(result)).Msg("generated suggestions merged")
	return session.run(ctx, s.styles, func() error {
		session.store.Add(result)
		return nil
	})
}

// Refresh strips and re-places every decoration against the current text,
// including suggestions whose decoration an edit dropped.
func (s *Service) Refresh(ctx context.Context, id string) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, func() error {
		session.loop.Force()
		return nil
	})
}

// Accept applies a suggestion to the document. When its original text can
// no longer be found the document is left as is and the suggestion stays
// proposed.
func (s *Service) Accept(ctx context.Context, id string, suggestionID suggestion.ID) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, func() error {
		current := session.editor.Text()
		next, err := session.store.Accept(suggestionID, current)
		if err != nil {
			return err
		}
		if next == current {
			return nil
		}
		session.touch()
		return session.editor.ReplaceText(next)
	})
}

func (s *Service) Ignore(ctx context.Context, id string, suggestionID suggestion.ID) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, func() error {
		return session.store.Ignore(suggestionID)
	})
}

func (s *Service) Select(ctx context.Context, id string, suggestionID suggestion.ID) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, func() error {
		return session.store.Select(suggestionID)
	})
}

func (s *Service) ClearSelection(ctx context.Context, id string) (View, error) {
	session, err := s.session(id)
	if err != nil {
		return View{}, err
	}
	return session.run(ctx, s.styles, func() error {
		session.store.ClearSelection()
		return nil
	})
}

func (s *Service) Paragraphs(ctx context.Context, id string) ([]doctree.Paragraph, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	var paragraphs []doctree.Paragraph
	if err := session.queue.Do(ctx, func() {
		paragraphs = doctree.Paragraphs(session.editor.Text())
	}); err != nil {
		return nil, err
	}
	if paragraphs == nil {
		paragraphs = []doctree.Paragraph{}
	}
	return paragraphs, nil
}

func (s *Service) CacheStats(ctx context.Context, id string) (cache.Stats, error) {
	if _, err := s.session(id); err != nil {
		return cache.Stats{}, err
	}
	if s.cache == nil {
		return cache.Stats{}, domainError(http.StatusNotFound, "CACHE_UNAVAILABLE", "No cache is configured", nil)
	}
	stats, err := s.cache.Stats(ctx, id)
	if err != nil {
		return cache.Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	return stats, nil
}

func (s *Service) Export(ctx context.Context, id string, format export.Format) (*export.Result, error) {
	session, err := s.session(id)
	if err != nil {
		return nil, err
	}
	// Settle first so the export sees the latest decorations.
	if _, err := session.run(ctx, s.styles, nil); err != nil {
		return nil, err
	}
	var req export.Request
	if err := session.queue.Do(ctx, func() {
		req = export.Request{
			DocumentID:  id,
			Title:       session.Title,
			Format:      format,
			Document:    session.editor.Document(),
			Suggestions: session.store.List(),
			Styles:      s.styles,
		}
	}); err != nil {
		return nil, err
	}
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		if errors.Is(err, export.ErrUnsupportedFormat) {
			return nil, validationError("Unsupported export format", map[string]any{"format": string(format)})
		}
		return nil, fmt.Errorf("export document: %w", err)
	}
	return result, nil
}

// normalizeIncoming validates client-supplied suggestions and fills in
// defaults. Categories are matched case-insensitively.
func normalizeIncoming(in []suggestion.Suggestion) ([]suggestion.Suggestion, error) {
	out := make([]suggestion.Suggestion, 0, len(in))
	for i, item := range in {
		category, ok := suggestion.ParseCategory(string(item.Category))
		if !ok {
			return nil, validationError("unknown suggestion type", map[string]any{"index": i, "type": string(item.Category)})
		}
		item.Category = category
		if item.OriginalText == "" && category != suggestion.CategoryEngagement {
			return nil, validationError("original_text is required", map[string]any{"index": i})
		}
		if item.ID < 0 {
			item.ID = 0
		}
		item.Status = suggestion.StatusProposed
		out = append(out, item)
	}
	return out, nil
}

func normalizeText(text string) string {
	return strings.ReplaceAll(text, "\r\n", "\n")
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
