package export

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"time"

	"proofline/internal/suggestion"
)

// Service provides document export functionality
type Service struct {
	now func() time.Time
}

// NewService creates a new export service
func NewService() *Service {
	return &Service{now: time.Now}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Document == nil {
		return nil, ErrContentUnavailable
	}
	name := req.DocumentID
	if name == "" {
		name = "document"
	}

	switch req.Format {
	case FormatProseMirror:
		data, err := json.Marshal(FromDocument(req.Document, req.Styles))
		if err != nil {
			return nil, fmt.Errorf("marshal prosemirror: %w", err)
		}
		return &Result{Data: data, Filename: name + ".json", MimeType: "application/json"}, nil
	case FormatText:
		return &Result{Data: []byte(req.Document.TextContent()), Filename: name + ".txt", MimeType: "text/plain; charset=utf-8"}, nil
	case FormatHTML:
		return &Result{Data: []byte(HTML(req.Document, req.Styles)), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	case FormatPage:
		page, err := s.renderPage(req)
		if err != nil {
			return nil, err
		}
		return &Result{Data: []byte(page), Filename: name + ".html", MimeType: "text/html; charset=utf-8"}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) renderPage(req Request) (string, error) {
	placed := map[suggestion.ID]bool{}
	for _, deco := range req.Document.Decorations() {
		placed[deco.SuggestionID()] = true
	}

	generated := req.GeneratedAt
	if generated.IsZero() {
		generated = s.now()
	}
	title := req.Title
	if title == "" {
		title = "Untitled"
	}

	data := TemplateData{
		Title:       title,
		ContentHTML: template.HTML(HTML(req.Document, req.Styles)),
		GeneratedAt: generated,
		Suggestions: []TemplateSuggestion{},
	}
	for _, item := range req.Suggestions {
		if item.Status != suggestion.StatusProposed {
			continue
		}
		data.Suggestions = append(data.Suggestions, TemplateSuggestion{
			ID:            int64(item.ID),
			Category:      string(item.Category),
			Class:         req.Styles.For(item.Category).Class,
			OriginalText:  item.OriginalText,
			SuggestedText: item.SuggestedText,
			Message:       item.Message,
			Placed:        placed[item.ID] || item.Appended(),
		})
	}

	page, err := RenderPage(data)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return page, nil
}
