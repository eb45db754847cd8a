// Package doctree models the editor document as blocks of inline runs and
// suggestion decorations. The plain-text projection of a document is its
// blocks' text joined by BlockSeparator.
package doctree

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"proofline/internal/splitter"
	"proofline/internal/suggestion"
)

const BlockSeparator = "\n\n"

// BlockSeparatorLen is the rune length of BlockSeparator.
const BlockSeparatorLen = 2

// Inline is a node inside a block. The set of implementations is closed:
// *Text and *Decoration.
type Inline interface {
	TextContent() string
	inline()
}

// Text is a plain run.
type Text struct {
	Value string
}

func (t *Text) TextContent() string {
	if t == nil {
		return ""
	}
	return t.Value
}
func (*Text) inline() {}

// Decoration marks the span of one suggestion. It never owns the
// suggestion and is never changed after construction.
type Decoration struct {
	s suggestion.Suggestion
}

func NewDecoration(s suggestion.Suggestion) *Decoration {
	return &Decoration{s: s}
}

// TextContent is always the suggestion's original text.
func (d *Decoration) TextContent() string {
	if d == nil {
		return ""
	}
	return d.s.OriginalText
}
func (d *Decoration) Suggestion() suggestion.Suggestion { return d.s }
func (d *Decoration) SuggestionID() suggestion.ID { return d.s.ID }
func (*Decoration) inline() {}

// Style returns the visual treatment for the decoration's category.
func (d *Decoration) Style(styles Styles) Style {
	return styles.For(d.s.Category)
}

// ToText converts the decoration back to an identical plain run.
func (d *Decoration) ToText() *Text {
	return &Text{Value: d.s.OriginalText}
}

// Block is one paragraph of the document.
type Block struct {
	Children []Inline
}

func (b *Block) TextContent() string {
	if len(b.Children) == 1 {
		return textOf(b.Children[0])
	}
	var sb strings.Builder
	for _, child := range b.Children {
		sb.WriteString(textOf(child))
	}
	return sb.String()
}

// textOf tolerates nil children, which only Normalize removes.
func textOf(node Inline) string {
	if node == nil {
		return ""
	}
	return node.TextContent()
}

func (b *Block) Len() int {
	return utf8.RuneCountInString(b.TextContent())
}

func (b *Block) Decorations() []*Decoration {
	var out []*Decoration
	for _, child := range b.Children {
		if d, ok := child.(*Decoration); ok && d != nil {
			out = append(out, d)
		}
	}
	return out
}

// Normalize converts every decoration to plain text and merges the block
// into a single run. It returns the number of children of an unrecognized
// kind, nil children included; the text of unknown children is kept.
func (b *Block) Normalize(logger zerolog.Logger) int {
	unknown := 0
	var sb strings.Builder
	for _, child := range b.Children {
		switch node := child.(type) {
		case *Text:
			sb.WriteString(node.TextContent())
		case *Decoration:
			sb.WriteString(node.TextContent())
		default:
			unknown++
			logger.Warn().Str("node", typeName(child)).Msg("skipping unknown inline node")
			sb.WriteString(textOf(child))
		}
	}
	b.Children = []Inline{&Text{Value: sb.String()}}
	return unknown
}

// Decorate replaces the block's children with plain runs and one decoration
// per kept match. Matches are rune ranges into the block's text. It returns
// the matches dropped for overlapping an earlier one or falling outside the
// block.
func (b *Block) Decorate(matches []splitter.Match[suggestion.Suggestion]) []splitter.Match[suggestion.Suggestion] {
	fragments, dropped := splitter.Split(b.TextContent(), matches)
	children := make([]Inline, 0, len(fragments))
	for _, f := range fragments {
		if f.Annotated {
			children = append(children, NewDecoration(f.Payload))
			continue
		}
		children = append(children, &Text{Value: f.Text})
	}
	if len(children) == 0 {
		children = []Inline{&Text{}}
	}
	b.Children = children
	return dropped
}

func (b *Block) clone() *Block {
	children := make([]Inline, len(b.Children))
	for i, child := range b.Children {
		switch node := child.(type) {
		case *Text:
			children[i] = &Text{Value: node.TextContent()}
		default:
			// Decorations are immutable and can be shared.
			children[i] = child
		}
	}
	return &Block{Children: children}
}

// Document is an ordered list of blocks.
type Document struct {
	Blocks []*Block
}

// FromText builds a document of undecorated blocks. An empty string yields
// one empty block.
func FromText(text string) *Document {
	parts := strings.Split(text, BlockSeparator)
	doc := &Document{Blocks: make([]*Block, len(parts))}
	for i, part := range parts {
		doc.Blocks[i] = &Block{Children: []Inline{&Text{Value: part}}}
	}
	return doc
}

// TextContent returns the plain-text projection.
func (d *Document) TextContent() string {
	parts := make([]string, len(d.Blocks))
	for i, block := range d.Blocks {
		parts[i] = block.TextContent()
	}
	return strings.Join(parts, BlockSeparator)
}

func (d *Document) Clone() *Document {
	out := &Document{Blocks: make([]*Block, len(d.Blocks))}
	for i, block := range d.Blocks {
		out.Blocks[i] = block.clone()
	}
	return out
}

// Strip normalizes every block and returns the count of unknown nodes seen.
func (d *Document) Strip(logger zerolog.Logger) int {
	unknown := 0
	for _, block := range d.Blocks {
		unknown += block.Normalize(logger)
	}
	return unknown
}

func (d *Document) Decorations() []*Decoration {
	var out []*Decoration
	for _, block := range d.Blocks {
		out = append(out, block.Decorations()...)
	}
	return out
}

// Equal reports whether both documents have the same blocks, runs and
// decorated suggestions.
func (d *Document) Equal(other *Document) bool {
	if len(d.Blocks) != len(other.Blocks) {
		return false
	}
	for i, block := range d.Blocks {
		theirs := other.Blocks[i]
		if len(block.Children) != len(theirs.Children) {
			return false
		}
		for j, child := range block.Children {
			if !inlineEqual(child, theirs.Children[j]) {
				return false
			}
		}
	}
	return true
}

func inlineEqual(a, b Inline) bool {
	switch x := a.(type) {
	case *Text:
		y, ok := b.(*Text)
		return ok && x.Value == y.Value
	case *Decoration:
		y, ok := b.(*Decoration)
		return ok && x.s == y.s
	default:
		return false
	}
}

func typeName(node Inline) string {
	return fmt.Sprintf("%T", node)
}
