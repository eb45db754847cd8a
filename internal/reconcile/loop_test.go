package reconcile

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofline/internal/doctree"
	"proofline/internal/suggestion"
)

type harness struct {
	editor    *doctree.Editor
	store     *suggestion.Store
	scheduler *Manual
	loop      *Loop
	metrics   *Metrics
}

func newHarness(t *testing.T, text string) *harness {
	t.Helper()
	h := &harness{
		editor:    doctree.NewEditor(text),
		store:     suggestion.NewStore(),
		scheduler: NewManual(),
		metrics:   NewMetrics(prometheus.NewRegistry()),
	}
	h.loop = New(h.editor, h.store, h.scheduler, WithMetrics(h.metrics))
	return h
}

func (h *harness) accept(t *testing.T, id suggestion.ID) {
	t.Helper()
	next, err := h.store.Accept(id, h.editor.Text())
	require.NoError(t, err)
	require.NoError(t, h.editor.ReplaceText(next))
}

func spelling(original, suggested string, start int) suggestion.Suggestion {
	return suggestion.Suggestion{
		Category:      suggestion.CategorySpelling,
		OriginalText:  original,
		SuggestedText: suggested,
		StartIndex:    start,
		EndIndex:      start + len([]rune(original)),
	}
}

func TestEndToEndAcceptRemovesDecoration(t *testing.T) {
	h := newHarness(t, "I will recieve it.")

	added := h.store.Add([]suggestion.Suggestion{spelling("recieve", "receive", 12)})
	require.Len(t, added, 1)
	assert.Empty(t, h.editor.Document().Decorations(), "pass must not run inline")
	assert.Equal(t, StateScheduled, h.loop.State())

	h.scheduler.RunPending()
	decorations := h.editor.Document().Decorations()
	require.Len(t, decorations, 1)
	assert.Equal(t, "recieve", decorations[0].TextContent())
	assert.Equal(t, StateIdle, h.loop.State())

	h.accept(t, added[0].ID)
	h.scheduler.RunPending()

	assert.Equal(t, "I will receive it.", h.editor.Text())
	assert.Empty(t, h.editor.Document().Decorations())
	item, _ := h.store.Get(added[0].ID)
	assert.Equal(t, suggestion.StatusAccepted, item.Status)
	assert.Empty(t, h.store.Unconfirmed())
}

func TestPassIsIdempotent(t *testing.T) {
	h := newHarness(t, "I has a cat.\n\nTeh dog.")
	h.store.Add([]suggestion.Suggestion{spelling("has", "have", 2), spelling("Teh", "The", 14)})
	h.scheduler.RunPending()

	revision := h.editor.Revision()
	before := h.editor.Document()

	h.loop.Notify()
	h.scheduler.RunPending()
	assert.Equal(t, revision, h.editor.Revision(), "unchanged set must not rebuild")
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Skipped))

	h.loop.Force()
	h.scheduler.RunPending()
	assert.Equal(t, revision+1, h.editor.Revision())
	assert.True(t, before.Equal(h.editor.Document()))
}

func TestNotificationsCoalesce(t *testing.T) {
	h := newHarness(t, "one two three")
	h.store.Add([]suggestion.Suggestion{spelling("one", "1", 0)})
	h.store.Add([]suggestion.Suggestion{spelling("two", "2", 4)})
	h.store.Add([]suggestion.Suggestion{spelling("three", "3", 8)})

	assert.Equal(t, 1, h.scheduler.Pending())
	assert.Equal(t, 1, h.scheduler.RunPending())
	assert.Len(t, h.editor.Document().Decorations(), 3)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Passes))
}

func TestCaretMovementDoesNotSchedule(t *testing.T) {
	h := newHarness(t, "I has a cat.")
	h.store.Add([]suggestion.Suggestion{spelling("has", "have", 2)})
	h.scheduler.RunPending()

	h.editor.SetCaret(4)
	require.NoError(t, h.store.Select(1))
	assert.Zero(t, h.scheduler.Pending())
}

func TestIgnoreRemovesDecoration(t *testing.T) {
	h := newHarness(t, "I has a cat.")
	added := h.store.Add([]suggestion.Suggestion{spelling("has", "have", 2)})
	h.scheduler.RunPending()
	require.Len(t, h.editor.Document().Decorations(), 1)

	require.NoError(t, h.store.Ignore(added[0].ID))
	h.scheduler.RunPending()

	assert.Empty(t, h.editor.Document().Decorations())
	assert.Equal(t, "I has a cat.", h.editor.Text())
}

func TestUnappliedAcceptIsReverted(t *testing.T) {
	h := newHarness(t, "I has a cat.")
	added := h.store.Add([]suggestion.Suggestion{spelling("has", "have", 2)})
	h.scheduler.RunPending()

	// The store records the accept but the new text never reaches the editor.
	_, err := h.store.Accept(added[0].ID, h.editor.Text())
	require.NoError(t, err)

	// The revert happens inside the pass and schedules one follow-up pass.
	assert.Equal(t, 2, h.scheduler.RunPending())
	assert.Equal(t, StateIdle, h.loop.State())

	item, _ := h.store.Get(added[0].ID)
	assert.Equal(t, suggestion.StatusProposed, item.Status)
	assert.Len(t, h.editor.Document().Decorations(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Reverts))
}

func TestUnlocatableSuggestionIsOmitted(t *testing.T) {
	h := newHarness(t, "Nothing here.")
	h.store.Add([]suggestion.Suggestion{spelling("missing", "found", 0), spelling("here", "there", 8)})
	h.scheduler.RunPending()

	decorations := h.editor.Document().Decorations()
	require.Len(t, decorations, 1)
	assert.Equal(t, "here", decorations[0].TextContent())
	require.Len(t, h.loop.LastReport().Remaining, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Unlocated))
}

func TestAcceptIsVerifiedAtItsSplicePosition(t *testing.T) {
	h := newHarness(t, "I has a cat.")
	added := h.store.Add([]suggestion.Suggestion{spelling("has", "a", 2)})
	h.scheduler.RunPending()

	// "a" still occurs later in the text, but not where the accept put it.
	_, err := h.store.Accept(added[0].ID, h.editor.Text())
	require.NoError(t, err)
	h.scheduler.RunPending()

	item, _ := h.store.Get(added[0].ID)
	assert.Equal(t, suggestion.StatusProposed, item.Status)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.Reverts))
	assert.Empty(t, h.store.Unconfirmed())
}

func TestAppliedAcceptIsConfirmed(t *testing.T) {
	h := newHarness(t, "I has a cat.")
	added := h.store.Add([]suggestion.Suggestion{spelling("has", "a", 2)})
	h.scheduler.RunPending()

	h.accept(t, added[0].ID)
	h.scheduler.RunPending()

	assert.Equal(t, "I a a cat.", h.editor.Text())
	item, _ := h.store.Get(added[0].ID)
	assert.Equal(t, suggestion.StatusAccepted, item.Status)
	assert.Zero(t, testutil.ToFloat64(h.metrics.Reverts))
	assert.Empty(t, h.store.Unconfirmed())
}
