package doctree

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"proofline/internal/splitter"
	"proofline/internal/suggestion"
)

type span struct {
	start int
	end   int
	deco  *Decoration
}

// ApplyEdit returns a document whose projection is newText. Decorations the
// edit did not touch are carried over at their shifted position; a
// decoration is touched when a deletion overlaps it or an insertion lands
// strictly inside it, and touched decorations are dropped.
func ApplyEdit(doc *Document, newText string) *Document {
	oldText := doc.TextContent()
	if oldText == newText {
		return doc.Clone()
	}

	spans := decorationSpans(doc)
	out := FromText(newText)
	if len(spans) == 0 {
		return out
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)

	newLen := utf8.RuneCountInString(newText)
	var survivors []span
	for _, sp := range spans {
		if touched(diffs, sp) {
			continue
		}
		start := mapOffset(diffs, sp.start)
		end := start + (sp.end - sp.start)
		if end > newLen || splitter.Slice(newText, start, end) != sp.deco.TextContent() {
			continue
		}
		survivors = append(survivors, span{start: start, end: end, deco: sp.deco})
	}

	offset := 0
	next := 0
	for _, block := range out.Blocks {
		blockEnd := offset + block.Len()
		var matches []splitter.Match[suggestion.Suggestion]
		for next < len(survivors) && survivors[next].start < blockEnd+BlockSeparatorLen {
			sp := survivors[next]
			next++
			if sp.start < offset || sp.end > blockEnd {
				continue
			}
			matches = append(matches, splitter.Match[suggestion.Suggestion]{
				Start:   sp.start - offset,
				End:     sp.end - offset,
				Payload: sp.deco.Suggestion(),
			})
		}
		if len(matches) > 0 {
			block.Decorate(matches)
		}
		offset = blockEnd + BlockSeparatorLen
	}
	return out
}

func decorationSpans(doc *Document) []span {
	var spans []span
	offset := 0
	for _, block := range doc.Blocks {
		for _, child := range block.Children {
			length := utf8.RuneCountInString(textOf(child))
			if d, ok := child.(*Decoration); ok && d != nil {
				spans = append(spans, span{start: offset, end: offset + length, deco: d})
			}
			offset += length
		}
		offset += BlockSeparatorLen
	}
	return spans
}

func touched(diffs []diffmatchpatch.Diff, sp span) bool {
	pos := 0
	for _, d := range diffs {
		length := utf8.RuneCountInString(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			pos += length
		case diffmatchpatch.DiffDelete:
			if pos < sp.end && pos+length > sp.start {
				return true
			}
			pos += length
		case diffmatchpatch.DiffInsert:
			if pos > sp.start && pos < sp.end {
				return true
			}
		}
		if pos >= sp.end && d.Type != diffmatchpatch.DiffInsert {
			return false
		}
	}
	return false
}

// mapOffset translates a rune offset in the old text to the new text. An
// offset inside a deletion maps to the deletion point.
func mapOffset(diffs []diffmatchpatch.Diff, loc int) int {
	oldPos, newPos := 0, 0
	lastOld, lastNew := 0, 0
	var last diffmatchpatch.Diff
	found := false
	for _, d := range diffs {
		length := utf8.RuneCountInString(d.Text)
		if d.Type != diffmatchpatch.DiffInsert {
			oldPos += length
		}
		if d.Type != diffmatchpatch.DiffDelete {
			newPos += length
		}
		if oldPos > loc {
			last = d
			found = true
			break
		}
		lastOld, lastNew = oldPos, newPos
	}
	if found && last.Type == diffmatchpatch.DiffDelete {
		return lastNew
	}
	return lastNew + (loc - lastOld)
}
