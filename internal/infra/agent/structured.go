package agent

import (
	"encoding/json"
	"strings"

	"github.com/taskdeck/taskdeck/internal/domain"
)

// extractStructured pulls a JSON object out of the agent's final text.
// Agents asked for structured output reply with either a fenced
// ```json block or a bare JSON document; the last fenced block wins.
// Returns nil when no parseable object is found.
func extractStructured(text string) *domain.StructuredOutput {
	candidate := lastJSONFence(text)
	if candidate == "" {
		candidate = strings.TrimSpace(text)
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(candidate), &data); err != nil {
		return nil
	}
	return &domain.StructuredOutput{Data: data}
}

// lastJSONFence returns the contents of the last ```json code fence.
func lastJSONFence(text string) string {
	const open = "```json"
	start := strings.LastIndex(text, open)
	if start < 0 {
		return ""
	}
	rest := text[start+len(open):]
	end := strings.Index(rest, "```")
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(rest[:end])
}
