// Package placer maps suggestions onto a document's blocks as decorations.
package placer

import (
	"unicode/utf8"

	"proofline/internal/doctree"
	"proofline/internal/fuzzy"
	"proofline/internal/splitter"
	"proofline/internal/suggestion"
)

// Placement records where one suggestion was decorated. Start and End are
// rune offsets inside the block.
type Placement struct {
	Block      int
	Start      int
	End        int
	Suggestion suggestion.Suggestion
}

// Report is the outcome of one placement pass. Every placeable suggestion
// ends up in exactly one of its three lists.
type Report struct {
	Placed []Placement
	// Remaining suggestions could not be located in any block.
	Remaining []suggestion.Suggestion
	// Overlaps were located but collided with an earlier match in their
	// block.
	Overlaps []suggestion.Suggestion
}

// Place decorates doc in place and returns the suggestions that could not
// be located anywhere.
func Place(doc *doctree.Document, suggestions []suggestion.Suggestion) []suggestion.Suggestion {
	return PlaceWithReport(doc, suggestions).Remaining
}

// PlaceWithReport walks the blocks in order. A suggestion's expected
// position inside a block is its start index minus the block's offset in
// the projection. A suggestion not found in one block stays a candidate
// for the following blocks. Blocks without matches keep their children.
func PlaceWithReport(doc *doctree.Document, suggestions []suggestion.Suggestion) Report {
	var report Report

	pending := make([]suggestion.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if s.Placeable() {
			pending = append(pending, s)
		}
	}

	paragraphTextOffset := 0
	for blockIndex, block := range doc.Blocks {
		if len(pending) == 0 {
			break
		}
		text := block.TextContent()

		var matches []splitter.Match[suggestion.Suggestion]
		unmatched := pending[:0:0]
		for _, s := range pending {
			pos, found := fuzzy.Locate(text, s.OriginalText, s.StartIndex-paragraphTextOffset)
			if !found {
				unmatched = append(unmatched, s)
				continue
			}
			matches = append(matches, splitter.Match[suggestion.Suggestion]{
				Start:   pos,
				End:     pos + utf8.RuneCountInString(s.OriginalText),
				Payload: s,
			})
		}

		if len(matches) > 0 {
			dropped := block.Decorate(matches)
			droppedIDs := make(map[suggestion.ID]struct{}, len(dropped))
			for _, m := range dropped {
				droppedIDs[m.Payload.ID] = struct{}{}
				report.Overlaps = append(report.Overlaps, m.Payload)
			}
			for _, m := range matches {
				if _, skip := droppedIDs[m.Payload.ID]; skip {
					continue
				}
				report.Placed = append(report.Placed, Placement{
					Block:      blockIndex,
					Start:      m.Start,
					End:        m.End,
					Suggestion: m.Payload,
				})
			}
		}

		pending = unmatched
		paragraphTextOffset += utf8.RuneCountInString(text) + doctree.BlockSeparatorLen
	}

	report.Remaining = pending
	return report
}
