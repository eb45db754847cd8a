package placer

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofline/internal/doctree"
	"proofline/internal/suggestion"
)

func proposed(id suggestion.ID, category suggestion.Category, original string, start int) suggestion.Suggestion {
	return suggestion.Suggestion{
		ID:           id,
		Category:     category,
		OriginalText: original,
		StartIndex:   start,
		EndIndex:     start + len([]rune(original)),
		Status:       suggestion.StatusProposed,
	}
}

func TestPlaceSingleParagraph(t *testing.T) {
	doc := doctree.FromText("I will recieve it.")
	remaining := Place(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategorySpelling, "recieve", 12),
	})

	assert.Empty(t, remaining)
	decorations := doc.Decorations()
	require.Len(t, decorations, 1)
	assert.Equal(t, "recieve", decorations[0].TextContent())
	assert.Equal(t, "I will recieve it.", doc.TextContent())
}

func TestPlaceUsesParagraphOffset(t *testing.T) {
	doc := doctree.FromText("a first\n\nthe second the")

	report := PlaceWithReport(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategoryStyle, "the", 22),
	})

	require.Len(t, report.Placed, 1)
	assert.Equal(t, 1, report.Placed[0].Block)
	assert.Equal(t, 11, report.Placed[0].Start)
	assert.Empty(t, doc.Blocks[0].Decorations())
}

func TestPlaceCarriesUnlocatedToLaterBlocks(t *testing.T) {
	doc := doctree.FromText("alpha\n\nbeta gamma")

	report := PlaceWithReport(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategoryGrammar, "gamma", 0),
	})

	require.Len(t, report.Placed, 1)
	assert.Equal(t, 1, report.Placed[0].Block)
	assert.Equal(t, 5, report.Placed[0].Start)
}

func TestPlaceReturnsRemaining(t *testing.T) {
	doc := doctree.FromText("nothing to see")

	remaining := Place(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategorySpelling, "missing", 0),
		proposed(2, suggestion.CategorySpelling, "see", 11),
	})

	require.Len(t, remaining, 1)
	assert.Equal(t, suggestion.ID(1), remaining[0].ID)
	assert.Len(t, doc.Decorations(), 1)
}

func TestPlaceSkipsNonProposedAndAppended(t *testing.T) {
	doc := doctree.FromText("I has a cat.")
	accepted := proposed(1, suggestion.CategoryGrammar, "has", 2)
	accepted.Status = suggestion.StatusAccepted
	ignored := proposed(2, suggestion.CategoryGrammar, "cat", 8)
	ignored.Status = suggestion.StatusIgnored
	appended := suggestion.Suggestion{ID: 3, Category: suggestion.CategoryEngagement, StartIndex: -1, EndIndex: -1, Status: suggestion.StatusProposed}

	remaining := Place(doc, []suggestion.Suggestion{accepted, ignored, appended})

	assert.Empty(t, remaining)
	assert.Empty(t, doc.Decorations())
	require.Len(t, doc.Blocks[0].Children, 1)
}

func TestPlaceOverlapKeepsEarliest(t *testing.T) {
	doc := doctree.FromText("a very big dog")

	report := PlaceWithReport(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategoryStyle, "very big", 2),
		proposed(2, suggestion.CategorySpelling, "big dog", 7),
	})

	require.Len(t, report.Placed, 1)
	assert.Equal(t, suggestion.ID(1), report.Placed[0].Suggestion.ID)
	require.Len(t, report.Overlaps, 1)
	assert.Equal(t, suggestion.ID(2), report.Overlaps[0].ID)
	assert.Empty(t, report.Remaining)
}

func TestPlaceIsIdempotentAfterStrip(t *testing.T) {
	text := "I has a cat.\n\nTeh dog barks."
	suggestions := []suggestion.Suggestion{
		proposed(1, suggestion.CategoryGrammar, "has", 2),
		proposed(2, suggestion.CategorySpelling, "Teh", 14),
	}

	first := doctree.FromText(text)
	Place(first, suggestions)

	second := first.Clone()
	second.Strip(zerolog.Nop())
	Place(second, suggestions)

	assert.True(t, first.Equal(second))
	assert.Equal(t, text, second.TextContent())
}

func TestPlaceNoSuggestionsLeavesDocument(t *testing.T) {
	doc := doctree.FromText("plain\n\ntext")
	before := doc.Clone()

	assert.Empty(t, Place(doc, nil))
	assert.True(t, before.Equal(doc))
}

func TestPlaceLeavesPromotionalToSidebar(t *testing.T) {
	text := "I recieve mail every day."
	doc := doctree.FromText(text)
	promo := proposed(1, suggestion.CategoryPromotional, text, 0)
	promo.SuggestedText = "Fresh mail, every single day!"

	report := PlaceWithReport(doc, []suggestion.Suggestion{
		promo,
		proposed(2, suggestion.CategorySpelling, "recieve", 2),
	})

	require.Len(t, report.Placed, 1)
	assert.Equal(t, suggestion.ID(2), report.Placed[0].Suggestion.ID)
	assert.Empty(t, report.Overlaps)
	assert.Empty(t, report.Remaining)
	decorations := doc.Decorations()
	require.Len(t, decorations, 1)
	assert.Equal(t, "recieve", decorations[0].TextContent())
}

func TestPlaceKeepsInvalidUTF8Text(t *testing.T) {
	text := "bad\xff byte recieve"
	doc := doctree.FromText(text)

	remaining := Place(doc, []suggestion.Suggestion{
		proposed(1, suggestion.CategorySpelling, "recieve", 10),
	})

	assert.Empty(t, remaining)
	require.Len(t, doc.Decorations(), 1)
	assert.Equal(t, text, doc.TextContent())
}
