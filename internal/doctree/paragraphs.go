package doctree

import (
	"hash/fnv"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Paragraph is a non-blank block of the projection, used to scope
// analysis to the parts of a document that changed.
type Paragraph struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	StartOffset int    `json:"start_offset"`
	Hash        string `json:"hash"`
}

// Paragraphs splits text on BlockSeparator. Blank paragraphs are skipped but
// still advance the offsets; ids are numbered by position in the split.
func Paragraphs(text string) []Paragraph {
	var out []Paragraph
	offset := 0
	for i, part := range strings.Split(text, BlockSeparator) {
		if strings.TrimSpace(part) != "" {
			out = append(out, Paragraph{
				ID:          "para-" + strconv.Itoa(i),
				Text:        part,
				StartOffset: offset,
				Hash:        paragraphHash(part),
			})
		}
		offset += utf8.RuneCountInString(part) + BlockSeparatorLen
	}
	return out
}

// ChangedParagraphs returns the paragraphs of newText that are new or whose
// content differs from the paragraph with the same id in oldText.
func ChangedParagraphs(oldText, newText string) []Paragraph {
	previous := map[string]string{}
	for _, p := range Paragraphs(oldText) {
		previous[p.ID] = p.Hash
	}
	var changed []Paragraph
	for _, p := range Paragraphs(newText) {
		if hash, ok := previous[p.ID]; !ok || hash != p.Hash {
			changed = append(changed, p)
		}
	}
	return changed
}

func paragraphHash(text string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(text))
	return strconv.FormatUint(uint64(h.Sum32()), 36)
}
