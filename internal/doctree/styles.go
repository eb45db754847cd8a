package doctree

import "proofline/internal/suggestion"

// Treatment is how a decorated span is drawn.
type Treatment string

const (
	TreatmentUnderline Treatment = "underline"
	TreatmentHighlight Treatment = "highlight"
	TreatmentNone      Treatment = "none"
)

type Style struct {
	Treatment Treatment `yaml:"treatment" json:"treatment"`
	Class     string    `yaml:"class" json:"class"`
}

// Styles maps a category to its style.
type Styles map[suggestion.Category]Style

func DefaultStyles() Styles {
	return Styles{
		suggestion.CategorySpelling:    {Treatment: TreatmentUnderline, Class: "suggestion-spelling"},
		suggestion.CategoryAccuracy:    {Treatment: TreatmentUnderline, Class: "suggestion-accuracy"},
		suggestion.CategoryGrammar:     {Treatment: TreatmentHighlight, Class: "suggestion-grammar"},
		suggestion.CategoryStyle:       {Treatment: TreatmentHighlight, Class: "suggestion-style"},
		suggestion.CategoryEngagement:  {Treatment: TreatmentNone, Class: "suggestion-engagement"},
		suggestion.CategoryPromotional: {Treatment: TreatmentNone, Class: "suggestion-promotional"},
	}
}

// For returns the style for category, falling back to the defaults and then
// to a generic highlight.
func (s Styles) For(category suggestion.Category) Style {
	if style, ok := s[category]; ok {
		return style
	}
	if style, ok := DefaultStyles()[category]; ok {
		return style
	}
	return Style{Treatment: TreatmentHighlight, Class: "suggestion"}
}

// Merge returns a copy of s with overrides applied. Empty fields in an
// override keep the base value.
func (s Styles) Merge(overrides Styles) Styles {
	out := make(Styles, len(s)+len(overrides))
	for category, style := range s {
		out[category] = style
	}
	for category, style := range overrides {
		base := out[category]
		if style.Treatment != "" {
			base.Treatment = style.Treatment
		}
		if style.Class != "" {
			base.Class = style.Class
		}
		out[category] = base
	}
	return out
}
