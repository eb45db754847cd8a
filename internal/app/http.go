package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"proofline/internal/analysis"
	"proofline/internal/export"
	"proofline/internal/reconcile"
	"proofline/internal/suggestion"
)

const maxBodyBytes = 8 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     zerolog.Logger
	metrics    http.Handler
}

func NewHTTPServer(service *Service, corsOrigin string, logger zerolog.Logger) *HTTPServer {
	server := &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger}
	if service.registry != nil {
		server.metrics = promhttp.HandlerFor(service.registry, promhttp.HandlerOpts{})
	}
	return server
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"cache": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["cache"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/metrics" {
		if s.metrics == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		w.Header().Del("Content-Type")
		s.metrics.ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" || parts[1] != "documents" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"documents": s.service.ListDocuments()})
		case http.MethodPost:
			var body struct {
				Title string `json:"title"`
				Text  string `json:"text"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return
			}
			view, err := s.service.CreateDocument(r.Context(), body.Title, body.Text)
			if err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, view)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	s.handleDocument(w, r, parts[2], parts[3:])
}

func (s *HTTPServer) handleDocument(w http.ResponseWriter, r *http.Request, documentID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.respond(w, r)(s.service.GetDocument(r.Context(), documentID))
		case http.MethodDelete:
			if err := s.service.DeleteDocument(r.Context(), documentID); err != nil {
				s.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if len(rest) == 1 && rest[0] == "text" && r.Method == http.MethodPut {
		var body struct {
			Text  string `json:"text"`
			Caret *int   `json:"caret"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		caret := len([]rune(body.Text))
		if body.Caret != nil {
			caret = *body.Caret
		}
		s.respond(w, r)(s.service.EditText(r.Context(), documentID, body.Text, caret))
		return
	}

	if len(rest) == 1 && rest[0] == "suggestions" && r.Method == http.MethodPost {
		var body struct {
			Snapshot    string                  `json:"snapshot"`
			Replace     bool                    `json:"replace"`
			Suggestions []suggestion.Suggestion `json:"suggestions"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		s.respond(w, r)(s.service.AddSuggestions(r.Context(), documentID, body.Snapshot, body.Suggestions, body.Replace))
		return
	}

	if len(rest) == 1 && rest[0] == "selection" && r.Method == http.MethodDelete {
		s.respond(w, r)(s.service.ClearSelection(r.Context(), documentID))
		return
	}

	if len(rest) == 1 && rest[0] == "analyze" && r.Method == http.MethodPost {
		kind, err := analysis.ParseKind(r.URL.Query().Get("kind"))
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "kind must be one of suggestions, engage, promo", nil)
			return
		}
		scope := strings.TrimSpace(r.URL.Query().Get("scope"))
		if scope != "" && scope != "full" && scope != "changed" {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "scope must be 'full' or 'changed'", nil)
			return
		}
		if kind != analysis.KindSuggestions {
			s.respond(w, r)(s.service.Generate(r.Context(), documentID, kind))
			return
		}
		s.respond(w, r)(s.service.Analyze(r.Context(), documentID, scope == "changed"))
		return
	}

	if len(rest) == 1 && rest[0] == "refresh" && r.Method == http.MethodPost {
		s.respond(w, r)(s.service.Refresh(r.Context(), documentID))
		return
	}

	if len(rest) == 1 && rest[0] == "paragraphs" && r.Method == http.MethodGet {
		paragraphs, err := s.service.Paragraphs(r.Context(), documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"paragraphs": paragraphs})
		return
	}

	if len(rest) == 1 && rest[0] == "cache" && r.Method == http.MethodGet {
		stats, err := s.service.CacheStats(r.Context(), documentID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	if len(rest) == 1 && r.Method == http.MethodGet && (rest[0] == "html" || rest[0] == "prosemirror" || rest[0] == "export") {
		format := export.Format(rest[0])
		if rest[0] == "export" {
			parsed, err := export.ParseFormat(strings.TrimSpace(r.URL.Query().Get("format")))
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be one of html, page, prosemirror, text", nil)
				return
			}
			format = parsed
		}
		result, err := s.service.Export(r.Context(), documentID, format)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if rest[0] == "export" {
			w.Header().Set("Content-Disposition", "attachment; filename=\""+result.Filename+"\"")
		}
		w.Header().Set("Content-Type", result.MimeType)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(result.Data)
		return
	}

	if len(rest) == 3 && rest[0] == "suggestions" && r.Method == http.MethodPost {
		raw, err := strconv.ParseInt(rest[1], 10, 64)
		if err != nil || raw <= 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "suggestion id must be a positive integer", nil)
			return
		}
		id := suggestion.ID(raw)
		switch rest[2] {
		case "accept":
			s.respond(w, r)(s.service.Accept(r.Context(), documentID, id))
		case "ignore":
			s.respond(w, r)(s.service.Ignore(r.Context(), documentID, id))
		case "select":
			s.respond(w, r)(s.service.Select(r.Context(), documentID, id))
		default:
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		}
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// respond writes a document view or the mapped error.
func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request) func(View, error) {
	return func(view View, err error) {
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("request_id", requestID(r.Context())).Str("path", r.URL.Path).Msg("request failed")
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Int64("duration_ms", time.Since(started).Milliseconds()).
			Msg("request")
	})
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	return randomHex(8)
}

// randomHex returns n random bytes hex-encoded.
func randomHex(n int) string {
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, ErrDocumentNotFound) || errors.Is(err, reconcile.ErrQueueClosed) {
		return http.StatusNotFound, "NOT_FOUND", "Document not found", nil
	}
	if errors.Is(err, suggestion.ErrSuggestionNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Suggestion not found", nil
	}
	if errors.Is(err, export.ErrUnsupportedFormat) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unsupported export format", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "TIMEOUT", "Request timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
