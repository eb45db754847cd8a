package export

import (
	"fmt"
	"html"
	"strconv"
	"strings"

	"proofline/internal/doctree"
)

// SuggestionMark is the mark type carried by decorated text.
const SuggestionMark = "suggestion"

// ProseMirrorNode represents a node in the ProseMirror document tree
type ProseMirrorNode struct {
	Type    string                 `json:"type"`
	Attrs   map[string]interface{} `json:"attrs,omitempty"`
	Content []ProseMirrorNode      `json:"content,omitempty"`
	Text    string                 `json:"text,omitempty"`
	Marks   []ProseMirrorMark      `json:"marks,omitempty"`
}

// ProseMirrorMark represents a text mark
type ProseMirrorMark struct {
	Type  string                 `json:"type"`
	Attrs map[string]interface{} `json:"attrs,omitempty"`
}

// FromDocument converts a decorated document to ProseMirror JSON. Blocks
// become paragraphs, single newlines inside a block become hard breaks and
// each decoration becomes a text node with a suggestion mark.
func FromDocument(doc *doctree.Document, styles doctree.Styles) ProseMirrorNode {
	root := ProseMirrorNode{Type: "doc", Content: make([]ProseMirrorNode, 0, len(doc.Blocks))}
	for _, block := range doc.Blocks {
		paragraph := ProseMirrorNode{Type: "paragraph"}
		for _, child := range block.Children {
			var marks []ProseMirrorMark
			if deco, ok := child.(*doctree.Decoration); ok {
				s := deco.Suggestion()
				style := deco.Style(styles)
				marks = []ProseMirrorMark{{
					Type: SuggestionMark,
					Attrs: map[string]interface{}{
						"id":        int64(s.ID),
						"category":  string(s.Category),
						"class":     style.Class,
						"treatment": string(style.Treatment),
					},
				}}
			}
			paragraph.Content = append(paragraph.Content, textNodes(child.TextContent(), marks)...)
		}
		root.Content = append(root.Content, paragraph)
	}
	return root
}

func textNodes(text string, marks []ProseMirrorMark) []ProseMirrorNode {
	var nodes []ProseMirrorNode
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			nodes = append(nodes, ProseMirrorNode{Type: "hardBreak"})
		}
		if line == "" {
			continue
		}
		nodes = append(nodes, ProseMirrorNode{Type: "text", Text: line, Marks: marks})
	}
	return nodes
}

// RenderHTML renders a ProseMirror tree to HTML
func RenderHTML(node ProseMirrorNode) string {
	switch node.Type {
	case "doc":
		return renderContent(node.Content)
	case "paragraph":
		return fmt.Sprintf("<p>%s</p>\n", renderContent(node.Content))
	case "text":
		return renderTextWithMarks(node.Text, node.Marks)
	case "hardBreak":
		return "<br>"
	default:
		// Unknown node type - render content if any
		return renderContent(node.Content)
	}
}

func renderContent(content []ProseMirrorNode) string {
	var result strings.Builder
	for _, child := range content {
		result.WriteString(RenderHTML(child))
	}
	return result.String()
}

// renderTextWithMarks renders text with its marks, outermost first. Marks
// other than SuggestionMark are ignored.
func renderTextWithMarks(text string, marks []ProseMirrorMark) string {
	if text == "" {
		return ""
	}
	htmlText := html.EscapeString(text)

	for i := len(marks) - 1; i >= 0; i-- {
		mark := marks[i]
		if mark.Type != SuggestionMark {
			continue
		}
		class, _ := mark.Attrs["class"].(string)
		category, _ := mark.Attrs["category"].(string)
		id := ""
		if n, ok := number(mark.Attrs["id"]); ok {
			id = strconv.FormatInt(int64(n), 10)
		}
		htmlText = fmt.Sprintf(`<mark class="%s" data-suggestion-id="%s" data-category="%s">%s</mark>`,
			html.EscapeString(class), id, html.EscapeString(category), htmlText)
	}
	return htmlText
}

// number reads a numeric attribute built in Go or decoded from JSON.
func number(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// HTML renders a decorated document as a sequence of paragraphs.
func HTML(doc *doctree.Document, styles doctree.Styles) string {
	return RenderHTML(FromDocument(doc, styles))
}
