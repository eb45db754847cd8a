package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"proofline/internal/doctree"
	"proofline/internal/reconcile"
	"proofline/internal/suggestion"
)

// maxSettleRounds bounds how many times a call waits for follow-up passes.
const maxSettleRounds = 8

// Session is one open document. Every change to it runs on its queue.
type Session struct {
	ID        string
	Title     string
	CreatedAt time.Time

	queue  *reconcile.Queue
	editor *doctree.Editor
	store  *suggestion.Store
	loop   *reconcile.Loop

	mu           sync.Mutex
	updatedAt    time.Time
	lastAnalyzed string
}

func newSession(id, title, text string, metrics *reconcile.Metrics, logger zerolog.Logger) *Session {
	logger = logger.With().Str("document_id", id).Logger()
	now := time.Now().UTC()
	session := &Session{
		ID:        id,
		Title:     title,
		CreatedAt: now,
		updatedAt: now,
		queue:     reconcile.NewQueue(),
		editor:    doctree.NewEditor(text),
		store:     suggestion.NewStore(suggestion.WithLogger(logger)),
	}
	opts := []reconcile.Option{reconcile.WithLogger(logger)}
	if metrics != nil {
		opts = append(opts, reconcile.WithMetrics(metrics))
	}
	session.loop = reconcile.New(session.editor, session.store, session.queue, opts...)
	return session
}

// run executes fn on the session queue, waits until the reconciliation
// passes it triggered have finished, and returns the settled view.
func (s *Session) run(ctx context.Context, styles doctree.Styles, fn func() error) (View, error) {
	var opErr error
	if err := s.queue.Do(ctx, func() {
		if fn != nil {
			opErr = fn()
		}
	}); err != nil {
		return View{}, err
	}
	if opErr != nil {
		return View{}, opErr
	}

	var view View
	for round := 0; round < maxSettleRounds; round++ {
		if err := s.queue.Do(ctx, func() {
			view = s.view(styles)
		}); err != nil {
			return View{}, err
		}
		if s.loop.State() == reconcile.StateIdle {
			break
		}
	}
	return view, nil
}

func (s *Session) touch() {
	s.mu.Lock()
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Session) close() {
	s.queue.Close()
}

// View is the settled state of a document as returned by the API.
type View struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Text        string                  `json:"text"`
	Caret       int                     `json:"caret"`
	Revision    uint64                  `json:"revision"`
	Blocks      []BlockView             `json:"blocks"`
	Suggestions []suggestion.Suggestion `json:"suggestions"`
	Selected    *suggestion.ID          `json:"selected,omitempty"`
	Unplaced    []suggestion.ID         `json:"unplaced"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

type BlockView struct {
	Fragments []FragmentView `json:"fragments"`
}

// FragmentView is one run of a block. Decorated runs carry the suggestion
// they belong to.
type FragmentView struct {
	Text         string              `json:"text"`
	SuggestionID suggestion.ID       `json:"suggestion_id,omitempty"`
	Category     suggestion.Category `json:"category,omitempty"`
	Class        string              `json:"class,omitempty"`
	Treatment    doctree.Treatment   `json:"treatment,omitempty"`
}

func (s *Session) view(styles doctree.Styles) View {
	doc := s.editor.Document()
	list := s.store.List()

	view := View{
		ID:          s.ID,
		Title:       s.Title,
		Text:        doc.TextContent(),
		Caret:       s.editor.Caret(),
		Revision:    s.editor.Revision(),
		Blocks:      make([]BlockView, 0, len(doc.Blocks)),
		Suggestions: list,
		Unplaced:    []suggestion.ID{},
	}
	if view.Suggestions == nil {
		view.Suggestions = []suggestion.Suggestion{}
	}

	placed := map[suggestion.ID]bool{}
	for _, block := range doc.Blocks {
		bv := BlockView{Fragments: make([]FragmentView, 0, len(block.Children))}
		for _, child := range block.Children {
			fragment := FragmentView{Text: child.TextContent()}
			if deco, ok := child.(*doctree.Decoration); ok {
				style := deco.Style(styles)
				fragment.SuggestionID = deco.SuggestionID()
				fragment.Category = deco.Suggestion().Category
				fragment.Class = style.Class
				fragment.Treatment = style.Treatment
				placed[deco.SuggestionID()] = true
			}
			bv.Fragments = append(bv.Fragments, fragment)
		}
		view.Blocks = append(view.Blocks, bv)
	}
	for _, item := range list {
		if item.Placeable() && !placed[item.ID] {
			view.Unplaced = append(view.Unplaced, item.ID)
		}
	}
	if id, ok := s.store.Selected(); ok {
		view.Selected = &id
	}

	s.mu.Lock()
	view.UpdatedAt = s.updatedAt
	s.mu.Unlock()
	return view
}
