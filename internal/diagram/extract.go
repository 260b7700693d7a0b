// internal/diagram/extract.go
package diagram

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	mermaidFencePattern = regexp.MustCompile("(?is)```mermaid\\s*\\n(.*?)\\n\\s*```")
	genericFencePattern = regexp.MustCompile("(?s)```\\s*\\n(.*?)\\n\\s*```")
	inlineCodePattern   = regexp.MustCompile("(?s)`(.*?)`")
	jsonFencePattern    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
)

// ExtractMermaid pulls Mermaid source out of a model response. It prefers a
// ```mermaid fence, then any fenced block, then inline backticks; when no
// code block is present the whole trimmed response is returned.
func ExtractMermaid(text string) string {
	for _, pattern := range []*regexp.Regexp{mermaidFencePattern, genericFencePattern, inlineCodePattern} {
		if m := pattern.FindStringSubmatch(text); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return strings.TrimSpace(text)
}

// DecodeJSON extracts and unmarshals the JSON payload of a model response
// into v. It accepts a ```json fence, or falls back to the span between the
// first '{' and the last '}'.
func DecodeJSON(text string, v any) error {
	payload := text
	if m := jsonFencePattern.FindStringSubmatch(text); m != nil {
		payload = m[1]
	} else {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start != -1 && end > start {
			payload = text[start : end+1]
		}
	}

	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decoding response JSON: %w", err)
	}
	return nil
}
