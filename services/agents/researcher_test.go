package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabel/contentmind/models"
)

func TestResearcherAgent_RunsSearchThenSynthesis(t *testing.T) {
	router := newStubRouter()
	router.responses["research"] = &models.ProviderResult{
		Provider: "local",
		Text:     "Source: Wikipedia\nAda Lovelace was a mathematician.\n\nSource: Britannica\nShe worked with Babbage.",
	}
	router.responses["synthesize"] = &models.ProviderResult{
		Provider: "local",
		Text:     "Ada Lovelace is considered the first programmer.\n\nEntities:\nPeople:\n- Ada Lovelace\n- Charles Babbage\n\nTags:\nhistory, computing",
	}

	agent, err := NewResearcherAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	artifact := &models.ContentArtifact{ContentType: models.ContentTypeQuery, RawBody: "Who was Ada Lovelace?"}
	processed, err := agent.Process(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactStatusCompleted, processed.Status)
	assert.Contains(t, string(processed.Tags), "history")
	assert.ElementsMatch(t, []string{"research", "synthesize"}, router.calls)
}

func TestResearcherAgent_EmptyQueryFails(t *testing.T) {
	router := newStubRouter()
	agent, err := NewResearcherAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	_, err = agent.Process(context.Background(), &models.ContentArtifact{RawBody: "   "})
	assert.Error(t, err)
}

func TestSplitSearchSources_WithMarkers(t *testing.T) {
	sources := splitSearchSources("Source: A\ncontent a\n\nSource: B\ncontent b")
	require.Len(t, sources, 2)
	assert.Equal(t, "A", sources[0].Source)
	assert.Equal(t, "content a", sources[0].Content)
}

func TestSplitSearchSources_NoMarkersFallsBackToSingleSource(t *testing.T) {
	sources := splitSearchSources("just plain text")
	require.Len(t, sources, 1)
	assert.Equal(t, "AI-generated", sources[0].Source)
}

func TestParseSynthesis_ExtractsEntitiesAndTags(t *testing.T) {
	summary, entities, tags := parseSynthesis("The summary line.\n\nEntities:\nPeople:\n- Ada\n\nTags:\nhistory, computing")
	assert.Equal(t, "The summary line.", summary)
	assert.Equal(t, []string{"Ada"}, entities["People"])
	assert.Equal(t, []string{"history", "computing"}, tags)
}
