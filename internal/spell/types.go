package spell

import "strings"

// AutoLanguage is the language sentinel that asks the backend to detect the
// language itself.
const AutoLanguage = "auto"

// Category classifies a suggestion.
type Category uint8

const (
	// CategoryOther covers grammar, style and every backend-specific rule.
	CategoryOther Category = iota

	// CategoryUnknownWord marks a token that no loaded dictionary knows.
	CategoryUnknownWord
)

// String returns the backend type name for the category.
func (c Category) String() string {
	switch c {
	case CategoryUnknownWord:
		return "UnknownWord"
	default:
		return "Other"
	}
}

// ParseCategory maps a backend type name to a Category.
func ParseCategory(typeName string) Category {
	if strings.EqualFold(typeName, "UnknownWord") {
		return CategoryUnknownWord
	}
	return CategoryOther
}

// Suggestion is a flagged span of a block's plain text plus candidate
// replacements.
type Suggestion struct {
	// Offset is the rune offset of the flagged span.
	Offset int

	// Length is the span length in runes. Always > 0.
	Length int

	Message      string
	ShortMessage string

	// Replacements are ordered best first.
	Replacements []string

	Category Category

	// Type is the raw type name reported by the backend.
	Type string

	// Rule is the backend rule identifier, if any.
	Rule string
}

// End returns the exclusive end offset of the span.
func (s Suggestion) End() int {
	return s.Offset + s.Length
}

// Contains reports whether a plain offset falls on the span. The end offset
// is inclusive so a caret placed right after a word still selects it.
func (s Suggestion) Contains(offset int) bool {
	return offset >= s.Offset && offset <= s.End()
}

// Label returns the short message, falling back to the full message.
func (s Suggestion) Label() string {
	if s.ShortMessage != "" {
		return s.ShortMessage
	}
	return s.Message
}

// FlaggedText returns the text the suggestion covers within text.
// It returns "" if the span does not fit.
func (s Suggestion) FlaggedText(text string) string {
	runes := []rune(text)
	if s.Offset < 0 || s.Length <= 0 || s.End() > len(runes) {
		return ""
	}
	return string(runes[s.Offset:s.End()])
}

// Clone returns a deep copy.
func (s Suggestion) Clone() Suggestion {
	out := s
	if s.Replacements != nil {
		out.Replacements = append([]string(nil), s.Replacements...)
	}
	return out
}

// CloneAll deep-copies a suggestion slice. A nil input stays nil.
func CloneAll(in []Suggestion) []Suggestion {
	if in == nil {
		return nil
	}
	out := make([]Suggestion, len(in))
	for i, s := range in {
		out[i] = s.Clone()
	}
	return out
}

// Language describes a language a backend can check.
type Language struct {
	Name     string `json:"name"`
	Code     string `json:"code"`
	LongCode string `json:"longCode"`
}

// IsAuto reports whether code is the auto-detect sentinel.
func IsAuto(code string) bool {
	return code == "" || code == AutoLanguage
}

// State is the check state of a block record.
type State uint8

const (
	// StateUnchecked is the state of a freshly discovered block.
	StateUnchecked State = iota

	// StatePending means exactly one check is in flight for the block.
	StatePending

	// StateChecked means the suggestions are from the last completed check.
	StateChecked

	// StateFailed means the last check failed; no retry until re-requested.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnchecked:
		return "unchecked"
	case StatePending:
		return "pending"
	case StateChecked:
		return "checked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
