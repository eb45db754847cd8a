package export

import (
	"bytes"
	"html/template"
	"strings"
	"time"
)

// SafeHTML is a template function that marks a string as safe HTML
func SafeHTML(s interface{}) template.HTML {
	switch v := s.(type) {
	case string:
		return template.HTML(v)
	case template.HTML:
		return v
	default:
		return template.HTML("")
	}
}

var pageTemplate = template.Must(template.New("page").Funcs(template.FuncMap{
	"lower": strings.ToLower,
	"formatDate": func(t time.Time, layout string) string {
		return t.Format(layout)
	},
	"safeHTML": SafeHTML,
}).Parse(pageLayout))

// TemplateData holds data for page rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	GeneratedAt time.Time
	Suggestions []TemplateSuggestion
}

// TemplateSuggestion is one sidebar entry
type TemplateSuggestion struct {
	ID            int64
	Category      string
	Class         string
	OriginalText  string
	SuggestedText string
	Message       string
	Placed        bool
}

// RenderPage renders the standalone review page
func RenderPage(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const pageLayout = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Georgia, serif; line-height: 1.6; margin: 2rem auto; max-width: 1100px; display: flex; gap: 2rem; }
    main { flex: 3; }
    aside { flex: 1; font-family: Arial, sans-serif; font-size: 0.9em; }
    .meta { color: #666; font-size: 0.85em; margin-bottom: 2rem; }
    mark { background: none; }
    .suggestion-spelling, .suggestion-accuracy { text-decoration: underline wavy #d33; }
    .suggestion-grammar { background: #fff3c4; }
    .suggestion-style { background: #dbeafe; }
    .card { border-left: 3px solid #999; padding: 0.5rem 0.75rem; margin-bottom: 0.75rem; background: #f7f7f7; }
    .card .category { text-transform: uppercase; font-size: 0.75em; color: #555; }
    .unplaced { opacity: 0.6; }
  </style>
</head>
<body>
  <main>
    <h1>{{.Title}}</h1>
    <div class="meta">Generated {{formatDate .GeneratedAt "Jan 2, 2006 15:04"}}</div>
    {{.ContentHTML | safeHTML}}
  </main>
  {{if .Suggestions}}
  <aside>
    <h2>Suggestions</h2>
    {{range .Suggestions}}
    <div class="card {{.Class}}{{if not .Placed}} unplaced{{end}}" data-suggestion-id="{{.ID}}">
      <div class="category">{{lower .Category}}</div>
      {{if .OriginalText}}<div><del>{{.OriginalText}}</del></div>{{end}}
      <div><ins>{{.SuggestedText}}</ins></div>
      {{if .Message}}<div>{{.Message}}</div>{{end}}
    </div>
    {{end}}
  </aside>
  {{end}}
</body>
</html>`
