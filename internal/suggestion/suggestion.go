// Package suggestion holds the suggestion model and the lifecycle store that
// tracks proposed, accepted and ignored suggestions for one document.
package suggestion

import "strings"

// Category groups suggestions for styling and sidebar grouping.
type Category string

const (
	CategorySpelling    Category = "spelling"
	CategoryGrammar     Category = "grammar"
	CategoryStyle       Category = "style"
	CategoryAccuracy    Category = "accuracy"
	CategoryEngagement  Category = "engagement"
	CategoryPromotional Category = "promotional"
)

var categoryAliases = map[string]Category{
	"spelling":            CategorySpelling,
	"grammar":             CategoryGrammar,
	"style":               CategoryStyle,
	"accuracy":            CategoryAccuracy,
	"engagement":          CategoryEngagement,
	"engagement-prompt":   CategoryEngagement,
	"promotional":         CategoryPromotional,
	"promotional-rewrite": CategoryPromotional,
	"promo":               CategoryPromotional,
}

// ParseCategory normalizes a category name. Unknown names report false.
func ParseCategory(value string) (Category, bool) {
	category, ok := categoryAliases[strings.ToLower(strings.TrimSpace(value))]
	return category, ok
}

// Categories lists the closed category set in display order.
func Categories() []Category {
	return []Category{
		CategorySpelling,
		CategoryGrammar,
		CategoryStyle,
		CategoryAccuracy,
		CategoryEngagement,
		CategoryPromotional,
	}
}

// Status is the lifecycle state of a single suggestion instance.
type Status string

const (
	StatusProposed Status = "proposed"
	StatusAccepted Status = "accepted"
	StatusIgnored  Status = "ignored"
)

// ID identifies a suggestion. Zero means "not yet assigned".
type ID int64

// Unanchored marks both offsets of a suggestion that is appended to the
// document instead of replacing text in place.
const Unanchored = -1

// Suggestion is one proposed edit. Offsets are rune offsets into the
// document snapshot the suggestion was generated against.
type Suggestion struct {
	ID            ID       `json:"id"`
	Category      Category `json:"type"`
	OriginalText  string   `json:"original_text"`
	SuggestedText string   `json:"suggested_text"`
	StartIndex    int      `json:"start_index"`
	EndIndex      int      `json:"end_index"`
	Message       string   `json:"message,omitempty"`
	Status        Status   `json:"status"`
}

// Appended reports whether the suggestion has no inline anchor.
func (s Suggestion) Appended() bool {
	return s.OriginalText == "" || (s.StartIndex == Unanchored && s.EndIndex == Unanchored)
}

// Placeable reports whether the suggestion can be decorated inline.
// Promotional rewrites replace the whole document and are only listed.
func (s Suggestion) Placeable() bool {
	return s.Status == StatusProposed && s.OriginalText != "" && s.Category != CategoryPromotional
}

// Key is the tuple used to deduplicate incoming suggestions.
type Key struct {
	OriginalText  string
	StartIndex    int
	Category      Category
	SuggestedText string
}

func (s Suggestion) Key() Key {
	return Key{
		OriginalText:  s.OriginalText,
		StartIndex:    s.StartIndex,
		Category:      s.Category,
		SuggestedText: s.SuggestedText,
	}
}

// Revision identifies one observable state of a suggestion. Any status
// change produces a new revision, which is what reconciliation keys on.
type Revision struct {
	ID     ID
	Status Status
}

func (s Suggestion) Revision() Revision {
	return Revision{ID: s.ID, Status: s.Status}
}

// IDAllocator hands out suggestion ids. It never returns an id twice and
// never returns an id it has observed from elsewhere.
type IDAllocator struct {
	next ID
}

func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

func (a *IDAllocator) Next() ID {
	id := a.next
	a.next++
	return id
}

// Observe records an externally assigned id so it is never handed out.
func (a *IDAllocator) Observe(id ID) {
	if id >= a.next {
		a.next = id + 1
	}
}
