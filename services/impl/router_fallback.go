package impl

import (
	"strings"
)

// simplifiedFallbackMessage is returned for any task without a dedicated
// simplified generator: a fixed informative string, never caller content.
const simplifiedFallbackMessage = "Unable to process with LLM. Using fallback mechanism."

// generateSimplifiedResult produces a deterministic, provider-free result
// when no LLM call can be made: a naive sentence-truncation summary, an
// empty entity set, a handful of long words used as tags, and a fixed
// informative string for every other task.
func generateSimplifiedResult(task, text string) string {
	switch task {
	case "summarize":
		return simplifiedSummary(text)
	case "extract_entities":
		return "{}"
	case "tag_content":
		return simplifiedTags(text)
	default:
		return simplifiedFallbackMessage
	}
}

func simplifiedSummary(text string) string {
	sentences := strings.Split(text, ".")
	if len(sentences) == 0 {
		return "No text available for summary."
	}
	n := 3
	if len(sentences) < n {
		n = len(sentences)
	}
	summary := strings.TrimSuffix(strings.TrimSpace(strings.Join(sentences[:n], ".")), ".")
	if summary == "" {
		return "No text available for summary."
	}
	return summary + "."
}

func simplifiedTags(text string) string {
	words := strings.Fields(text)
	seen := make(map[string]bool)
	var tags []string
	for _, w := range words {
		w = strings.ToLower(strings.Trim(w, ".,;:!?\"'()"))
		if len(w) <= 4 || seen[w] {
			continue
		}
		seen[w] = true
		tags = append(tags, w)
		if len(tags) == 5 {
			break
		}
	}
	return strings.Join(tags, ", ")
}
