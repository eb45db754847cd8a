package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"proofline/internal/suggestion"
)

func newTestHTTPServer(t *testing.T, deps Dependencies) http.Handler {
	t.Helper()
	svc := newTestService(t, deps)
	return NewHTTPServer(svc, "*", zerolog.Nop()).Handler()
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func decodeView(t *testing.T, rr *httptest.ResponseRecorder) View {
	t.Helper()
	var view View
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to parse view: %v (%s)", err, rr.Body.String())
	}
	return view
}

func TestDocumentLifecycleOverHTTP(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})

	rr := doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"title": "Mail", "text": "I recieve mail."})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	doc := decodeView(t, rr)
	base := "/api/documents/" + doc.ID

	rr = doJSON(t, handler, http.MethodPost, base+"/suggestions", map[string]any{
		"suggestions": []map[string]any{{
			"type":           "Spelling",
			"original_text":  "recieve",
			"suggested_text": "receive",
			"start_index":    2,
			"end_index":      9,
		}},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view := decodeView(t, rr)
	if len(view.Suggestions) != 1 || view.Suggestions[0].Category != suggestion.CategorySpelling {
		t.Fatalf("unexpected suggestions: %+v", view.Suggestions)
	}
	if got := decorated(view); len(got) != 1 || got[0] != "recieve" {
		t.Fatalf("expected recieve to be decorated, got %v", got)
	}

	rr = doJSON(t, handler, http.MethodGet, base+"/html", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `<mark class="suggestion-spelling"`) {
		t.Errorf("expected mark in html, got %s", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html content type, got %s", ct)
	}

	id := strconv.FormatInt(int64(view.Suggestions[0].ID), 10)
	rr = doJSON(t, handler, http.MethodPost, base+"/suggestions/"+id+"/accept", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view = decodeView(t, rr)
	if view.Text != "I receive mail." {
		t.Errorf("expected accepted text, got %q", view.Text)
	}
	if view.Suggestions[0].Status != suggestion.StatusAccepted {
		t.Errorf("expected accepted status, got %s", view.Suggestions[0].Status)
	}

	rr = doJSON(t, handler, http.MethodDelete, base, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 on delete, got %d", rr.Code)
	}
	rr = doJSON(t, handler, http.MethodGet, base, nil)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestEditTextOverHTTP(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"text": "Draft"}))

	rr := doJSON(t, handler, http.MethodPut, "/api/documents/"+doc.ID+"/text", map[string]any{"text": "Draft two"})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	view := decodeView(t, rr)
	if view.Text != "Draft two" || view.Caret != 9 {
		t.Errorf("unexpected view: text=%q caret=%d", view.Text, view.Caret)
	}
	if view.Revision <= doc.Revision {
		t.Errorf("expected revision to advance from %d, got %d", doc.Revision, view.Revision)
	}
}

func TestSuggestionActionErrors(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"text": "Hello."}))
	base := "/api/documents/" + doc.ID

	tests := []struct {
		name   string
		method string
		path   string
		status int
	}{
		{"unknown suggestion", http.MethodPost, base + "/suggestions/99/accept", http.StatusNotFound},
		{"bad suggestion id", http.MethodPost, base + "/suggestions/abc/ignore", http.StatusUnprocessableEntity},
		{"unknown action", http.MethodPost, base + "/suggestions/1/promote", http.StatusNotFound},
		{"unknown document", http.MethodGet, "/api/documents/doc_missing", http.StatusNotFound},
		{"analyze without analyzer", http.MethodPost, base + "/analyze", http.StatusNotFound},
		{"bad analyze scope", http.MethodPost, base + "/analyze?scope=some", http.StatusUnprocessableEntity},
		{"bad analyze kind", http.MethodPost, base + "/analyze?kind=summary", http.StatusUnprocessableEntity},
		{"promo without collaborator", http.MethodPost, base + "/analyze?kind=promo", http.StatusNotFound},
		{"refresh unknown document", http.MethodPost, "/api/documents/doc_missing/refresh", http.StatusNotFound},
		{"bad export format", http.MethodGet, base + "/export?format=pdf", http.StatusUnprocessableEntity},
		{"cache not configured", http.MethodGet, base + "/cache", http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doJSON(t, handler, tt.method, tt.path, nil)
			if rr.Code != tt.status {
				t.Errorf("expected %d, got %d: %s", tt.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCreateDocumentRejectsInvalidBody(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})

	req := httptest.NewRequest(http.MethodPost, "/api/documents", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	var response map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if response["code"] != "INVALID_BODY" {
		t.Errorf("expected INVALID_BODY, got %v", response["code"])
	}
}

func TestAnalyzeOverHTTP(t *testing.T) {
	text := "Teh end."
	analyzer := &fakeAnalyzer{responses: map[string][]suggestion.Suggestion{
		text: {spelling("Teh", "The", 0)},
	}}
	handler := newTestHTTPServer(t, Dependencies{Analyzer: analyzer})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"text": text}))

	rr := doJSON(t, handler, http.MethodPost, "/api/documents/"+doc.ID+"/analyze", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view := decodeView(t, rr)
	if got := decorated(view); len(got) != 1 || got[0] != "Teh" {
		t.Errorf("expected Teh to be decorated, got %v", got)
	}
}

func TestAnalyzeEngageOverHTTP(t *testing.T) {
	text := "Launch day."
	engager := &fakeAnalyzer{responses: map[string][]suggestion.Suggestion{
		text: {{Category: suggestion.CategoryEngagement, SuggestedText: "What are you launching?", StartIndex: -1, EndIndex: -1}},
	}}
	handler := newTestHTTPServer(t, Dependencies{Engager: engager})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"text": text}))

	rr := doJSON(t, handler, http.MethodPost, "/api/documents/"+doc.ID+"/analyze?kind=engage", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	view := decodeView(t, rr)
	if len(view.Suggestions) != 1 || view.Suggestions[0].Category != suggestion.CategoryEngagement {
		t.Fatalf("expected one engagement suggestion, got %+v", view.Suggestions)
	}

	rr = doJSON(t, handler, http.MethodPost, "/api/documents/"+doc.ID+"/suggestions/1/accept", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decodeView(t, rr).Text; got != "Launch day.\n\nWhat are you launching?" {
		t.Errorf("unexpected text after accept: %q", got)
	}
}

func TestRefreshOverHTTP(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"text": "Teh end."}))
	base := "/api/documents/" + doc.ID

	doJSON(t, handler, http.MethodPost, base+"/suggestions", map[string]any{
		"suggestions": []map[string]any{{"type": "spelling", "original_text": "Teh", "suggested_text": "The", "start_index": 0, "end_index": 3}},
	})

	rr := doJSON(t, handler, http.MethodPost, base+"/refresh", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := decorated(decodeView(t, rr)); len(got) != 1 || got[0] != "Teh" {
		t.Errorf("expected Teh to stay decorated, got %v", got)
	}
}

func TestExportDownload(t *testing.T) {
	handler := newTestHTTPServer(t, Dependencies{})
	doc := decodeView(t, doJSON(t, handler, http.MethodPost, "/api/documents", map[string]any{"title": "Notes", "text": "Plain text."}))

	rr := doJSON(t, handler, http.MethodGet, "/api/documents/"+doc.ID+"/export?format=text", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "Plain text." {
		t.Errorf("unexpected body %q", rr.Body.String())
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, doc.ID+".txt") {
		t.Errorf("unexpected content disposition %q", cd)
	}

	rr = doJSON(t, handler, http.MethodGet, "/api/documents/"+doc.ID+"/prosemirror", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var node map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &node); err != nil {
		t.Fatalf("failed to parse prosemirror: %v", err)
	}
	if node["type"] != "doc" {
		t.Errorf("expected doc node, got %v", node["type"])
	}
}
