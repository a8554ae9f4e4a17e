package impl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabel/contentmind/config"
	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/pkg/promptgrammar"
	"github.com/bluelabel/contentmind/services"
)

// fakeComponentService is a minimal services.ComponentService backed by an
// in-memory name->template map, enough to exercise the router's
// naming-convention prompt resolution without a database.
type fakeComponentService struct {
	services.ComponentService
	byName map[string]*models.PromptComponent
}

func (f *fakeComponentService) GetByName(ctx context.Context, name string) (*models.PromptComponent, error) {
	c, ok := f.byName[name]
	if !ok {
		return nil, services.ErrNotFound
	}
	return c, nil
}

func (f *fakeComponentService) Render(ctx context.Context, id uuid.UUID, inputs map[string]string) (string, error) {
	for _, c := range f.byName {
		if c.ID == id {
			rendered, _, err := promptgrammar.Render(c.Template, inputs)
			return rendered, err
		}
	}
	return "", services.ErrNotFound
}

func testRouterPolicy() config.RouterPolicyConfig {
	return config.RouterPolicyConfig{
		GlobalTimeoutMs:            2000,
		ComplexityTimeoutMs:        200,
		LocalAvailabilityTimeoutMs: 200,
		ModelLimitsCacheTTLSeconds: 60,
	}
}

// With no provider configured, Route degrades to the deterministic
// three-sentence summary with a NO_PROVIDERS_AVAILABLE reason.
func TestRouter_SummarizeFallsBackWithNoProviders(t *testing.T) {
	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:          config.ProviderConfig{Name: "local"},
		CloudPrimary:   config.ProviderConfig{Name: "cloud_primary"},
		CloudSecondary: config.ProviderConfig{Name: "cloud_secondary"},
	}, nil, nil)

	result, err := router.Route(context.Background(), models.RouteRequest{
		Task:   "summarize",
		Prompt: "A. B. C. D. E.",
	})
	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Provider)
	assert.Equal(t, "A. B. C.", result.Text)
	assert.NotEmpty(t, result.FallbackReason)
}

// A vanishingly small global_timeout against an otherwise healthy
// provider must still return a simplified result promptly, tagged
// GLOBAL_TIMEOUT, rather than hang or error out to the caller.
func TestRouter_GlobalTimeoutProducesSimplifiedResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:          config.ProviderConfig{Name: "local", BaseURL: server.URL, Timeout: 5},
		CloudPrimary:   config.ProviderConfig{Name: "cloud_primary"},
		CloudSecondary: config.ProviderConfig{Name: "cloud_secondary"},
	}, nil, nil)

	start := time.Now()
	result, err := router.Route(context.Background(), models.RouteRequest{
		Task:            "summarize",
		Prompt:          "hello",
		ModelPreference: "local",
		GlobalTimeoutMs: 1,
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "fallback", result.Provider)
	assert.Contains(t, result.FallbackReason, "GLOBAL_TIMEOUT")
	assert.Less(t, elapsed, 2*time.Second, "global timeout must bound total latency to a small multiple of itself")
}

// A caller-cancelled context must surface as an error, not be masked as
// a simplified success: cancellation is a distinct outcome from timeout.
func TestRouter_CancellationPropagatesAsError(t *testing.T) {
	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local: config.ProviderConfig{Name: "local"},
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := router.Route(ctx, models.RouteRequest{Task: "summarize", Prompt: "hello"})
	assert.Error(t, err)
	assert.Nil(t, result)
}

// TestRouter_ExplicitProviderOverrideWins covers routing policy rule 1:
// an explicit requirements.provider always wins over local/complexity
// routing: the request goes to the named provider and its response is
// returned.
func TestRouter_ExplicitProviderOverrideWins(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"hi\"},\"finish_reason\":\"stop\"}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:        config.ProviderConfig{Name: "local"},
		CloudPrimary: config.ProviderConfig{Name: "cloud_primary", BaseURL: server.URL, Timeout: 5},
	}, nil, nil)

	result, err := router.Route(context.Background(), models.RouteRequest{
		Task:     "summarize",
		Prompt:   "hello",
		Provider: "cloud_primary",
	})
	require.NoError(t, err)
	assert.Equal(t, "cloud_primary", result.Provider)
	assert.Equal(t, "hi", result.Text)
	assert.NotNil(t, capturedBody)
}

// A registered "system_prompt_<task>" and "task_<task>" Component are
// rendered and used in place of the built-in system prompt and the raw
// request prompt.
func TestRouter_ResolvesPromptsByNamingConvention(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	systemID := uuid.New()
	taskID := uuid.New()
	components := &fakeComponentService{byName: map[string]*models.PromptComponent{
		"system_prompt_summarize": {ID: systemID, Name: "system_prompt_summarize", Template: "Summarize for an exec audience."},
		"task_summarize":          {ID: taskID, Name: "task_summarize", Template: "Summarize this: {text}"},
	}}

	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:        config.ProviderConfig{Name: "local"},
		CloudPrimary: config.ProviderConfig{Name: "cloud_primary", BaseURL: server.URL, Timeout: 5},
	}, nil, components)

	result, err := router.Route(context.Background(), models.RouteRequest{
		Task:     "summarize",
		Prompt:   "the quarterly report",
		Provider: "cloud_primary",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)

	require.NotNil(t, capturedBody)
	messages := capturedBody["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "Summarize for an exec audience.", messages[0].(map[string]any)["content"])
	assert.Equal(t, "Summarize this: the quarterly report", messages[1].(map[string]any)["content"])
}

// TestPickProvider_TaskOverrideBeatsLocal covers routing policy rule 3:
// structured extraction prefers the provider known best for it when that
// provider is configured, even with local available.
func TestPickProvider_TaskOverrideBeatsLocal(t *testing.T) {
	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:        config.ProviderConfig{Name: "local", BaseURL: "http://localhost:11434"},
		CloudPrimary: config.ProviderConfig{Name: "cloud_primary", BaseURL: "http://cloud.example"},
	}, nil, nil).(*routerServiceImpl)

	provider := router.pickProvider(models.RouteRequest{Task: "extract_entities"}, 0.3, true)
	assert.Equal(t, "cloud_primary", provider)
}

// TestPickProvider_ComplexityWeightsCloudChoice covers routing policy
// rule 5: with local unavailable, a demanding task goes to the more
// capable provider and a simple one to the cheaper.
func TestPickProvider_ComplexityWeightsCloudChoice(t *testing.T) {
	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:          config.ProviderConfig{Name: "local"},
		CloudPrimary:   config.ProviderConfig{Name: "cloud_primary", BaseURL: "http://capable.example"},
		CloudSecondary: config.ProviderConfig{Name: "cloud_secondary", BaseURL: "http://cheap.example"},
	}, nil, nil).(*routerServiceImpl)

	assert.Equal(t, "cloud_primary", router.pickProvider(models.RouteRequest{Task: "research"}, 0.8, false))
	assert.Equal(t, "cloud_secondary", router.pickProvider(models.RouteRequest{Task: "tag_content"}, 0.2, false))
}

func TestPickProvider_LocalWinsWhenAvailable(t *testing.T) {
	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:        config.ProviderConfig{Name: "local", BaseURL: "http://localhost:11434"},
		CloudPrimary: config.ProviderConfig{Name: "cloud_primary", BaseURL: "http://cloud.example"},
	}, nil, nil).(*routerServiceImpl)

	assert.Equal(t, "local", router.pickProvider(models.RouteRequest{Task: "summarize"}, 0.4, true))
}

// TestRouter_FallsBackToBuiltinSystemPromptWhenNoComponentRegistered
// covers the other branch of resolution order: no Component named
// "system_prompt_<task>" exists, so the built-in string is used instead.
func TestRouter_FallsBackToBuiltinSystemPromptWhenNoComponentRegistered(t *testing.T) {
	var capturedBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&capturedBody)
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"ok\"},\"finish_reason\":\"stop\"}]}\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer server.Close()

	components := &fakeComponentService{byName: map[string]*models.PromptComponent{}}

	router := NewRouterService(testRouterPolicy(), config.ProvidersConfig{
		Local:        config.ProviderConfig{Name: "local"},
		CloudPrimary: config.ProviderConfig{Name: "cloud_primary", BaseURL: server.URL, Timeout: 5},
	}, nil, components)

	result, err := router.Route(context.Background(), models.RouteRequest{
		Task:     "summarize",
		Prompt:   "hello",
		Provider: "cloud_primary",
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Text)

	require.NotNil(t, capturedBody)
	messages := capturedBody["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, builtinSystemPrompts["summarize"], messages[0].(map[string]any)["content"])
	assert.Equal(t, "hello", messages[1].(map[string]any)["content"])
}
