package doctree

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Editor holds the live document of one session. Every change goes through
// Update, which applies a function to a copy and commits it only when the
// function succeeds, so readers never observe a half-applied pass.
type Editor struct {
	mu       sync.RWMutex
	doc      *Document
	revision uint64
	caret    int
}

func NewEditor(text string) *Editor {
	return &Editor{doc: FromText(text)}
}

// Read runs fn against the committed document. fn must not keep or mutate
// the document.
func (e *Editor) Read(fn func(doc *Document)) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	fn(e.doc)
}

// Update applies fn to a copy of the document and commits the copy.
func (e *Editor) Update(fn func(doc *Document) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	draft := e.doc.Clone()
	if err := fn(draft); err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	e.doc = draft
	e.revision++
	return nil
}

// Document returns a copy of the committed document.
func (e *Editor) Document() *Document {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.Clone()
}

func (e *Editor) Text() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.doc.TextContent()
}

// Revision counts committed updates.
func (e *Editor) Revision() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.revision
}

func (e *Editor) Caret() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.caret
}

// SetCaret moves the caret. It does not change the document or its
// revision.
func (e *Editor) SetCaret(pos int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caret = clamp(pos, utf8.RuneCountInString(e.doc.TextContent()))
}

// Edit replaces the projection with newText as a user edit and puts the
// caret at caret.
func (e *Editor) Edit(newText string, caret int) error {
	return e.Update(func(doc *Document) error {
		*doc = *ApplyEdit(doc, newText)
		e.caret = clamp(caret, utf8.RuneCountInString(newText))
		return nil
	})
}

// ReplaceText replaces the projection programmatically, carrying the caret
// to the matching position in the new text.
func (e *Editor) ReplaceText(newText string) error {
	return e.Update(func(doc *Document) error {
		oldText := doc.TextContent()
		if oldText != newText {
			diffs := diffmatchpatch.New().DiffMain(oldText, newText, false)
			e.caret = clamp(mapOffset(diffs, e.caret), utf8.RuneCountInString(newText))
		}
		*doc = *ApplyEdit(doc, newText)
		return nil
	})
}

func clamp(pos, limit int) int {
	if pos < 0 {
		return 0
	}
	if pos > limit {
		return limit
	}
	return pos
}
