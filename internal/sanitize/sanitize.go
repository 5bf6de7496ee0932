// Package sanitize strips markup from user-supplied agent input before it is
// persisted or placed in a prompt.
package sanitize

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer removes HTML from strings. Script and style bodies are dropped
// along with their tags.
type Sanitizer struct {
	policy *bluemonday.Policy
}

// New returns a Sanitizer using bluemonday's strict policy.
func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

// String strips tags and surrounding whitespace. Entities produced by the
// policy are decoded so plain text round-trips unchanged.
func (s *Sanitizer) String(in string) string {
	if !strings.ContainsAny(in, "<>&") {
		return strings.TrimSpace(in)
	}
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(in)))
}

// Map returns a sanitized copy of m. Nested maps and slices are walked;
// keys and non-string values are kept as they are.
func (s *Sanitizer) Map(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = s.value(v)
	}
	return out
}

func (s *Sanitizer) value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		return s.Map(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = s.value(e)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, e := range t {
			out[i] = s.String(e)
		}
		return out
	default:
		return v
	}
}
