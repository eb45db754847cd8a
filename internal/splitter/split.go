// Package splitter cuts a string into plain and annotated fragments.
package splitter

import (
	"sort"
	"unicode/utf8"
)

// Match annotates the rune range [Start, End) of a text with Payload.
type Match[P any] struct {
	Start   int
	End     int
	Payload P
}

// Fragment is one piece of a split text. Annotated fragments carry the
// payload of the match that produced them.
type Fragment[P any] struct {
	Text      string
	Start     int
	End       int
	Payload   P
	Annotated bool
}

// Split returns fragments whose concatenated text equals text. Matches are
// taken in start order; one that begins before the end of the previously
// kept match is dropped, as are empty and out-of-range matches. The dropped
// matches are returned in the order they were considered.
func Split[P any](text string, matches []Match[P]) (fragments []Fragment[P], dropped []Match[P]) {
	length := utf8.RuneCountInString(text)

	ordered := make([]Match[P], len(matches))
	copy(ordered, matches)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Start < ordered[j].Start
	})

	// Fragments are cut from text itself so bytes that are not valid UTF-8
	// survive unchanged.
	cursor, cursorByte := 0, 0
	for _, m := range ordered {
		if m.Start < cursor || m.Start < 0 || m.End <= m.Start || m.End > length {
			dropped = append(dropped, m)
			continue
		}
		startByte := cursorByte + ByteOffset(text[cursorByte:], m.Start-cursor)
		endByte := startByte + ByteOffset(text[startByte:], m.End-m.Start)
		if m.Start > cursor {
			fragments = append(fragments, Fragment[P]{
				Text:  text[cursorByte:startByte],
				Start: cursor,
				End:   m.Start,
			})
		}
		fragments = append(fragments, Fragment[P]{
			Text:      text[startByte:endByte],
			Start:     m.Start,
			End:       m.End,
			Payload:   m.Payload,
			Annotated: true,
		})
		cursor, cursorByte = m.End, endByte
	}
	if cursor < length {
		fragments = append(fragments, Fragment[P]{
			Text:  text[cursorByte:],
			Start: cursor,
			End:   length,
		})
	}
	return fragments, dropped
}

// ByteOffset returns the byte index of the rune offset n in text. Each byte
// of an invalid encoding counts as one rune, as in utf8.RuneCountInString.
// Offsets past the end clamp to len(text).
func ByteOffset(text string, n int) int {
	offset := 0
	for i := 0; i < n && offset < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[offset:])
		offset += size
	}
	return offset
}

// Slice returns the runes [start, end) of text without re-encoding them.
func Slice(text string, start, end int) string {
	from := ByteOffset(text, start)
	return text[from : from+ByteOffset(text[from:], end-start)]
}
