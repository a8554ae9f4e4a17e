package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabel/contentmind/models"
)

// stubRouter is a services.RouterService double that returns a canned response
// per task, letting agent tests exercise pipeline wiring without a real
// Router or network access.
type stubRouter struct {
	responses map[string]*models.ProviderResult
	errors    map[string]error
	calls     []string
}

func newStubRouter() *stubRouter {
	return &stubRouter{responses: map[string]*models.ProviderResult{}, errors: map[string]error{}}
}

func (r *stubRouter) Route(ctx context.Context, req models.RouteRequest) (*models.ProviderResult, error) {
	r.calls = append(r.calls, req.Task)
	if err, ok := r.errors[req.Task]; ok {
		return nil, err
	}
	if result, ok := r.responses[req.Task]; ok {
		return result, nil
	}
	return &models.ProviderResult{Provider: "stub", Text: ""}, nil
}

func (r *stubRouter) IsLocalAvailable(ctx context.Context) bool { return true }
func (r *stubRouter) AssessComplexity(task string) float64     { return 0.5 }

func TestContentMindAgent_ProcessesTextThroughStandardPipeline(t *testing.T) {
	router := newStubRouter()
	router.responses["summarize"] = &models.ProviderResult{Provider: "local", Text: "a short summary"}
	router.responses["extract_entities"] = &models.ProviderResult{Provider: "local", Text: `{"people": ["Ada"]}`}
	router.responses["tag_content"] = &models.ProviderResult{Provider: "local", Text: "ai, research, go"}

	agent, err := NewContentMindAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	artifact := &models.ContentArtifact{
		ContentType: models.ContentTypeText,
		RawBody:     "Ada Lovelace pioneered computer programming.",
	}

	processed, err := agent.Process(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactStatusCompleted, processed.Status)
	assert.Contains(t, string(processed.Tags), "ai")
	assert.ElementsMatch(t, []string{"summarize", "extract_entities", "tag_content"}, router.calls)
}

func TestContentMindAgent_UnknownContentTypeFailsFast(t *testing.T) {
	router := newStubRouter()
	agent, err := NewContentMindAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	artifact := &models.ContentArtifact{ContentType: "unsupported", RawBody: "whatever"}
	_, err = agent.Process(context.Background(), artifact)
	assert.Error(t, err)
}

func TestContentMindAgent_EnricherFailureDegradesGracefully(t *testing.T) {
	router := newStubRouter()
	router.errors["summarize"] = assert.AnError
	router.responses["extract_entities"] = &models.ProviderResult{Provider: "local", Text: "{}"}
	router.responses["tag_content"] = &models.ProviderResult{Provider: "local", Text: "news"}

	agent, err := NewContentMindAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	artifact := &models.ContentArtifact{ContentType: models.ContentTypeText, RawBody: "some text content here"}
	processed, err := agent.Process(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactStatusCompleted, processed.Status)

	found := false
	for _, step := range processed.ProcessingSteps {
		if step.Step == "summarize" {
			found = true
			assert.Equal(t, models.ArtifactStatusFailed, step.Status)
		}
	}
	assert.True(t, found, "expected a failed summarize step to be recorded")
}

// TestContentMindAgent_SimplifiedResultSurfacesFallbackReason covers the
// degraded path: a simplified router result is still a success, but the
// artifact must carry its fallback reason so the UI can badge it.
func TestContentMindAgent_SimplifiedResultSurfacesFallbackReason(t *testing.T) {
	router := newStubRouter()
	router.responses["summarize"] = &models.ProviderResult{Provider: "fallback", Text: "A. B. C.", FallbackReason: "NO_PROVIDERS_AVAILABLE", Simplified: true}
	router.responses["extract_entities"] = &models.ProviderResult{Provider: "local", Text: "{}"}
	router.responses["tag_content"] = &models.ProviderResult{Provider: "local", Text: "news"}

	agent, err := NewContentMindAgent(models.AgentConfig{}, router, nil)
	require.NoError(t, err)

	artifact := &models.ContentArtifact{ContentType: models.ContentTypeText, RawBody: "A. B. C. D. E."}
	processed, err := agent.Process(context.Background(), artifact)
	require.NoError(t, err)
	assert.Equal(t, models.ArtifactStatusCompleted, processed.Status)
	assert.Contains(t, string(processed.OutputData), "NO_PROVIDERS_AVAILABLE")
	assert.Contains(t, string(processed.OutputData), `"fallback"`)
}

func TestParseEntities_StrictJSON(t *testing.T) {
	entities := parseEntities(`{"people": ["Ada", "Grace"]}`)
	assert.Equal(t, []any{"Ada", "Grace"}, entities["people"])
}

func TestParseEntities_StructuredText(t *testing.T) {
	entities := parseEntities("People: Alice, Bob\nOrganizations: Acme Inc., XYZ Corp.")
	assert.Equal(t, []string{"Alice", "Bob"}, entities["People"])
	assert.Equal(t, []string{"Acme Inc", "XYZ Corp"}, entities["Organizations"])
}

func TestParseEntities_UnstructuredFallback(t *testing.T) {
	entities := parseEntities("Just a plain sentence. Another one here")
	_, ok := entities["entities"]
	assert.True(t, ok)
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"ai", "research"}, splitTags("ai, research, "))
}
