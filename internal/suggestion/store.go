package suggestion

import (
	"errors"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"proofline/internal/fuzzy"
	"proofline/internal/splitter"
)

var ErrSuggestionNotFound = errors.New("suggestion not found")

// AppendSeparator joins an appended suggestion to the existing document.
const AppendSeparator = "\n\n"

// Store owns the suggestion list of one document. Every mutation notifies
// the registered listeners after the lock is released; selection changes
// do not, because they never affect decorations.
type Store struct {
	mu          sync.Mutex
	ids         *IDAllocator
	items       []Suggestion
	selected    ID
	unconfirmed map[ID]int
	listeners   []func()
	logger      zerolog.Logger
}

type StoreOption func(*Store)

func WithLogger(logger zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		ids:         NewIDAllocator(),
		unconfirmed: map[ID]int{},
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to run after every mutation of the list.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) List() []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Suggestion, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Get(id ID) (Suggestion, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return Suggestion{}, false
	}
	return s.items[idx], true
}

// Add merges incoming suggestions. A suggestion whose dedup key matches an
// existing one (of any status) or an earlier one in the batch is skipped,
// as is one whose id is already taken. Suggestions without an id get a
// fresh one. It returns the suggestions that were actually added.
func (s *Store) Add(incoming []Suggestion) []Suggestion {
	s.mu.Lock()
	added := s.mergeLocked(incoming)
	s.mu.Unlock()

	if len(added) > 0 {
		s.notify()
	}
	return added
}

// ReplaceProposed drops every still-proposed suggestion, then merges
// incoming. Accepted and ignored entries stay so their keys keep blocking
// the same suggestion from coming back.
func (s *Store) ReplaceProposed(incoming []Suggestion) []Suggestion {
	s.mu.Lock()
	kept := s.items[:0]
	removed := 0
	for _, item := range s.items {
		if item.Status == StatusProposed {
			if item.ID == s.selected {
				s.selected = 0
			}
			removed++
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
	added := s.mergeLocked(incoming)
	s.mu.Unlock()

	if removed > 0 || len(added) > 0 {
		s.notify()
	}
	return added
}

func (s *Store) mergeLocked(incoming []Suggestion) []Suggestion {
	keys := make(map[Key]struct{}, len(s.items)+len(incoming))
	ids := make(map[ID]struct{}, len(s.items)+len(incoming))
	for _, item := range s.items {
		keys[item.Key()] = struct{}{}
		ids[item.ID] = struct{}{}
	}

	var added []Suggestion
	for _, candidate := range incoming {
		if _, dup := keys[candidate.Key()]; dup {
			continue
		}
		if candidate.ID != 0 {
			if _, taken := ids[candidate.ID]; taken {
				s.logger.Debug().Int64("suggestion_id", int64(candidate.ID)).Msg("dropping suggestion with duplicate id")
				continue
			}
			s.ids.Observe(candidate.ID)
			ids[candidate.ID] = struct{}{}
		}
		if candidate.Status == "" {
			candidate.Status = StatusProposed
		}
		keys[candidate.Key()] = struct{}{}
		added = append(added, candidate)
	}
	// Fresh ids are assigned after observing every explicit id in the batch
	// so an allocated id can never collide with a later explicit one.
	for i := range added {
		if added[i].ID == 0 {
			added[i].ID = s.ids.Next()
		}
	}
	s.items = append(s.items, added...)
	return added
}

// Clear removes every suggestion and the selection.
func (s *Store) Clear() {
	s.mu.Lock()
	had := len(s.items) > 0
	s.items = nil
	s.selected = 0
	s.unconfirmed = map[ID]int{}
	s.mu.Unlock()

	if had {
		s.notify()
	}
}

// Accept applies the suggestion to text and returns the new text.
//
// Anchored suggestions are re-located in text near their recorded start;
// when the original text no longer occurs, text is returned unchanged and
// the suggestion stays proposed. Promotional suggestions replace the whole
// document and retire the other promotional proposals. Appended suggestions
// are added to the end of the document.
func (s *Store) Accept(id ID, text string) (string, error) {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return text, ErrSuggestionNotFound
	}
	item := s.items[idx]
	if item.Status != StatusProposed {
		s.mu.Unlock()
		return text, nil
	}

	var next string
	switch {
	case item.Category == CategoryPromotional:
		next = item.SuggestedText
		s.retirePromotionalLocked(id)
		idx = s.indexOf(id)
	case item.Appended():
		if text == "" {
			next = item.SuggestedText
		} else {
			next = text + AppendSeparator + item.SuggestedText
		}
	default:
		pos, found := fuzzy.Locate(text, item.OriginalText, item.StartIndex)
		if !found {
			s.mu.Unlock()
			s.logger.Debug().Int64("suggestion_id", int64(id)).Msg("accept: original text not found")
			return text, nil
		}
		next = splice(text, pos, utf8.RuneCountInString(item.OriginalText), item.SuggestedText)
		s.unconfirmed[id] = pos
	}

	s.items[idx].Status = StatusAccepted
	s.selected = 0
	s.mu.Unlock()

	s.notify()
	return next, nil
}

func (s *Store) retirePromotionalLocked(keep ID) {
	kept := s.items[:0]
	for _, item := range s.items {
		if item.ID != keep && item.Category == CategoryPromotional && item.Status == StatusProposed {
			continue
		}
		kept = append(kept, item)
	}
	s.items = kept
}

// Ignore marks the suggestion ignored and clears the selection.
func (s *Store) Ignore(id ID) error {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 {
		s.mu.Unlock()
		return ErrSuggestionNotFound
	}
	if s.items[idx].Status != StatusProposed {
		s.mu.Unlock()
		return nil
	}
	s.items[idx].Status = StatusIgnored
	s.selected = 0
	s.mu.Unlock()

	s.notify()
	return nil
}

// Select marks id as the selected suggestion.
func (s *Store) Select(id ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(id) < 0 {
		return ErrSuggestionNotFound
	}
	s.selected = id
	return nil
}

// Selected returns the selected suggestion id, if any.
func (s *Store) Selected() (ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.selected != 0
}

func (s *Store) ClearSelection() {
	s.mu.Lock()
	s.selected = 0
	s.mu.Unlock()
}

// Splice is an accepted in-place replacement. At is the rune offset the
// suggested text was written to.
type Splice struct {
	ID   ID
	At   int
	Text string
}

// Unconfirmed lists the splices of accepted suggestions that have not yet
// been verified against the document.
func (s *Store) Unconfirmed() []Splice {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Splice
	for _, item := range s.items {
		if at, ok := s.unconfirmed[item.ID]; ok && item.Status == StatusAccepted {
			out = append(out, Splice{ID: item.ID, At: at, Text: item.SuggestedText})
		}
	}
	return out
}

// Confirm records that an accepted suggestion's splice is present.
func (s *Store) Confirm(id ID) {
	s.mu.Lock()
	delete(s.unconfirmed, id)
	s.mu.Unlock()
}

// Revert moves an accepted suggestion back to proposed. It reports whether
// anything changed.
func (s *Store) Revert(id ID) bool {
	s.mu.Lock()
	idx := s.indexOf(id)
	if idx < 0 || s.items[idx].Status != StatusAccepted {
		s.mu.Unlock()
		return false
	}
	s.items[idx].Status = StatusProposed
	delete(s.unconfirmed, id)
	s.mu.Unlock()

	s.notify()
	return true
}

func (s *Store) indexOf(id ID) int {
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify() {
	s.mu.Lock()
	listeners := make([]func(), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// splice replaces length runes of text starting at rune offset start.
func splice(text string, start, length int, replacement string) string {
	from := splitter.ByteOffset(text, start)
	to := from + splitter.ByteOffset(text[from:], length)
	return text[:from] + replacement + text[to:]
}
