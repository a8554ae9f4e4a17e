package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSimplifiedSummary_TakesFirstThreeSentences(t *testing.T) {
	assert.Equal(t, "A. B. C.", simplifiedSummary("A. B. C. D. E."))
}

func TestSimplifiedSummary_ShortTextKeptWhole(t *testing.T) {
	assert.Equal(t, "Only one sentence here.", simplifiedSummary("Only one sentence here."))
}

func TestSimplifiedSummary_EmptyText(t *testing.T) {
	assert.Equal(t, "No text available for summary.", simplifiedSummary(""))
}

func TestSimplifiedTags_FirstFiveLongDistinctWordsInEncounterOrder(t *testing.T) {
	text := "Kubernetes orchestrates containers across clusters, kubernetes handles scaling workloads gracefully"
	assert.Equal(t, "kubernetes, orchestrates, containers, across, clusters", simplifiedTags(text))
}

func TestSimplifiedTags_ShortWordsSkipped(t *testing.T) {
	assert.Equal(t, "", simplifiedTags("a an the of to in it"))
}

func TestGenerateSimplifiedResult_EntitiesAreEmptyObject(t *testing.T) {
	assert.Equal(t, "{}", generateSimplifiedResult("extract_entities", "any text"))
}

// Any task without a dedicated simplified generator gets the fixed
// informative string, never the caller's prompt text echoed back.
func TestGenerateSimplifiedResult_OtherTasksGetFixedMessage(t *testing.T) {
	assert.Equal(t, simplifiedFallbackMessage, generateSimplifiedResult("compose", "short text"))
	assert.Equal(t, simplifiedFallbackMessage, generateSimplifiedResult("research", "who invented the telescope?"))
	assert.NotContains(t, generateSimplifiedResult("research", "sensitive caller content"), "sensitive caller content")
}
