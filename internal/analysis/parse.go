// Package analysis turns analysis-service responses into suggestions and
// wraps the analysis collaborator with a result cache.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"proofline/internal/suggestion"
)

type rawSuggestion struct {
	Type          string `json:"type"`
	OriginalText  string `json:"original_text"`
	SuggestedText string `json:"suggested_text"`
	StartIndex    *int   `json:"start_index"`
	EndIndex      *int   `json:"end_index"`
	Message       string `json:"message"`
	Explanation   string `json:"explanation"`
}

type engagementPrompt struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type promoRewrite struct {
	Strategy      string `json:"strategy"`
	RewrittenText string `json:"rewrittenText"`
	Explanation   string `json:"explanation"`
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func StripFences(body string) string {
	trimmed := strings.TrimSpace(body)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 {
		trimmed = trimmed[newline+1:]
	} else {
		trimmed = strings.TrimPrefix(trimmed, "json")
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// decodeList accepts either a bare JSON array or an object with a
// "suggestions" array.
func decodeList[T any](body string) ([]T, error) {
	cleaned := StripFences(body)
	if cleaned == "" {
		return nil, nil
	}
	if strings.HasPrefix(cleaned, "[") {
		var items []T
		if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
			return nil, fmt.Errorf("decode suggestion array: %w", err)
		}
		return items, nil
	}
	var wrapped struct {
		Suggestions []T `json:"suggestions"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err != nil {
		return nil, fmt.Errorf("decode suggestion object: %w", err)
	}
	return wrapped.Suggestions, nil
}

// ParseSuggestions decodes an analysis response. Entries with an unknown
// category or without original text are skipped. Returned suggestions have
// no id and are proposed. A missing end index is derived from the start
// and the original text.
func ParseSuggestions(body string) ([]suggestion.Suggestion, error) {
	raw, err := decodeList[rawSuggestion](body)
	if err != nil {
		return nil, err
	}
	out := make([]suggestion.Suggestion, 0, len(raw))
	for _, r := range raw {
		category, ok := suggestion.ParseCategory(r.Type)
		if !ok || r.OriginalText == "" {
			continue
		}
		s := suggestion.Suggestion{
			Category:      category,
			OriginalText:  r.OriginalText,
			SuggestedText: r.SuggestedText,
			Message:       firstNonBlank(r.Message, r.Explanation),
			Status:        suggestion.StatusProposed,
		}
		if r.StartIndex != nil {
			s.StartIndex = *r.StartIndex
		}
		if r.EndIndex != nil {
			s.EndIndex = *r.EndIndex
		} else {
			s.EndIndex = s.StartIndex + utf8.RuneCountInString(s.OriginalText)
		}
		out = append(out, s)
	}
	return out, nil
}

// ParseEngagement converts engagement prompts into appended suggestions.
func ParseEngagement(body string) ([]suggestion.Suggestion, error) {
	prompts, err := decodeList[engagementPrompt](body)
	if err != nil {
		return nil, err
	}
	out := make([]suggestion.Suggestion, 0, len(prompts))
	for _, p := range prompts {
		content := strings.TrimSpace(p.Content)
		if content == "" {
			continue
		}
		out = append(out, suggestion.Suggestion{
			Category:      suggestion.CategoryEngagement,
			SuggestedText: content,
			StartIndex:    suggestion.Unanchored,
			EndIndex:      suggestion.Unanchored,
			Message:       strings.TrimSpace(p.Type),
			Status:        suggestion.StatusProposed,
		})
	}
	return out, nil
}

// ParsePromo converts promotional rewrites of snapshot into whole-document
// suggestions.
func ParsePromo(body, snapshot string) ([]suggestion.Suggestion, error) {
	rewrites, err := decodeList[promoRewrite](body)
	if err != nil {
		return nil, err
	}
	out := make([]suggestion.Suggestion, 0, len(rewrites))
	for _, r := range rewrites {
		if strings.TrimSpace(r.RewrittenText) == "" {
			continue
		}
		message := r.Strategy
		if r.Explanation != "" {
			if message != "" {
				message += ": "
			}
			message += r.Explanation
		}
		out = append(out, suggestion.Suggestion{
			Category:      suggestion.CategoryPromotional,
			OriginalText:  snapshot,
			SuggestedText: r.RewrittenText,
			StartIndex:    0,
			EndIndex:      utf8.RuneCountInString(snapshot),
			Message:       message,
			Status:        suggestion.StatusProposed,
		})
	}
	return out, nil
}

// FilterPresent drops anchored suggestions whose original text does not
// occur in snapshot. Appended suggestions are kept.
func FilterPresent(snapshot string, in []suggestion.Suggestion) []suggestion.Suggestion {
	out := make([]suggestion.Suggestion, 0, len(in))
	for _, s := range in {
		if s.Appended() || strings.Contains(snapshot, s.OriginalText) {
			out = append(out, s)
		}
	}
	return out
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
