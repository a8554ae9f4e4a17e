package impl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bluelabel/contentmind/config"
	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// taskComplexity is the per-task complexity table used by
// AssessComplexity when weighing provider choice.
var taskComplexity = map[string]float64{
	"extract":         0.2,
	"tag_content":     0.2,
	"extract_entities": 0.3,
	"summarize":       0.4,
	"compose":         0.6,
	"research":        0.8,
}

const defaultTaskComplexity = 0.5

type providerAdapter struct {
	name             string
	cfg              config.ProviderConfig
	httpClient       *http.Client
	streamClient     *http.Client
	redis            *redis.Client
	modelLimitsCache sync.Map // model name -> int max output tokens
	cacheTTL         time.Duration
}

func newProviderAdapter(name string, cfg config.ProviderConfig, rdb *redis.Client, cacheTTL time.Duration) *providerAdapter {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &providerAdapter{
		name:         name,
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: timeout},
		streamClient: &http.Client{}, // no total timeout: streaming responses arrive incrementally
		redis:        rdb,
		cacheTTL:     cacheTTL,
	}
}

// routerServiceImpl implements services.RouterService: an ordered
// routing policy (explicit provider override, then
// model_preference=local when local is up, then a task-specific provider
// override, then local when available, then a complexity-weighted choice
// between the cloud providers, then deterministic fallback) layered over an HTTP client/SSE-reader
// pair speaking the chat-completions gateway wire format.
type routerServiceImpl struct {
	policy     config.RouterPolicyConfig
	providers  map[string]*providerAdapter
	fallback   []string // preferred provider order when nothing else decides
	components services.ComponentService

	localAvailMu    sync.Mutex
	localAvailAt    time.Time
	localAvailValue bool
}

func NewRouterService(policy config.RouterPolicyConfig, providers config.ProvidersConfig, rdb *redis.Client, components services.ComponentService) services.RouterService {
	cacheTTL := time.Duration(policy.ModelLimitsCacheTTLSeconds) * time.Second
	reg := map[string]*providerAdapter{
		providers.Local.Name:          newProviderAdapter(providers.Local.Name, providers.Local, rdb, cacheTTL),
		providers.CloudPrimary.Name:   newProviderAdapter(providers.CloudPrimary.Name, providers.CloudPrimary, rdb, cacheTTL),
		providers.CloudSecondary.Name: newProviderAdapter(providers.CloudSecondary.Name, providers.CloudSecondary, rdb, cacheTTL),
	}
	return &routerServiceImpl{
		policy:     policy,
		providers:  reg,
		fallback:   []string{providers.Local.Name, providers.CloudPrimary.Name, providers.CloudSecondary.Name},
		components: components,
	}
}

// AssessComplexity returns a 0..1 estimate of how demanding a task is.
func (s *routerServiceImpl) AssessComplexity(task string) float64 {
	if v, ok := taskComplexity[task]; ok {
		return v
	}
	return defaultTaskComplexity
}

// IsLocalAvailable pings the local provider, caching the result briefly
// so a hot routing loop doesn't hit it on every call.
func (s *routerServiceImpl) IsLocalAvailable(ctx context.Context) bool {
	s.localAvailMu.Lock()
	if time.Since(s.localAvailAt) < 5*time.Second {
		v := s.localAvailValue
		s.localAvailMu.Unlock()
		return v
	}
	s.localAvailMu.Unlock()

	local, ok := s.providers["local"]
	available := false
	if ok && local.cfg.BaseURL != "" {
		checkCtx, cancel := context.WithTimeout(ctx, time.Duration(s.policy.LocalAvailabilityTimeoutMs)*time.Millisecond)
		defer cancel()
		req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, local.cfg.BaseURL+"/health", nil)
		if err == nil {
			resp, err := local.httpClient.Do(req)
			if err == nil {
				resp.Body.Close()
				available = resp.StatusCode == http.StatusOK
			}
		}
	}

	s.localAvailMu.Lock()
	s.localAvailAt = time.Now()
	s.localAvailValue = available
	s.localAvailMu.Unlock()
	return available
}

// Route implements the routing policy described in the model router
// specification: an explicit provider override always wins; otherwise
// model_preference=local picks the local provider when it's available;
// otherwise a task-specific provider override applies; otherwise the
// local provider is used when it's available; otherwise the task's
// assessed complexity decides between the cloud providers; any failure along the way degrades to a deterministic
// simplified result rather than propagating to the caller.
func (s *routerServiceImpl) Route(ctx context.Context, req models.RouteRequest) (*models.ProviderResult, error) {
	// A caller-initiated cancellation is a distinct outcome from a timeout:
	// it propagates as an error rather than degrading to a simplified result.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	globalTimeout := time.Duration(s.policy.GlobalTimeoutMs) * time.Millisecond
	if req.GlobalTimeoutMs > 0 {
		globalTimeout = time.Duration(req.GlobalTimeoutMs) * time.Millisecond
	}
	callerCtx := ctx
	ctx, cancel := context.WithTimeout(ctx, globalTimeout)
	defer cancel()

	var (
		complexity float64
		localAvail bool
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		cctx, cancel := context.WithTimeout(gctx, time.Duration(s.policy.ComplexityTimeoutMs)*time.Millisecond)
		defer cancel()
		_ = cctx // assessment is currently pure and in-process; the context bounds it once it grows an I/O step
		complexity = s.AssessComplexity(req.Task)
		return nil
	})
	group.Go(func() error {
		availCtx, cancel := context.WithTimeout(gctx, time.Duration(s.policy.LocalAvailabilityTimeoutMs)*time.Millisecond)
		defer cancel()
		localAvail = s.IsLocalAvailable(availCtx)
		return nil
	})
	_ = group.Wait() // both assessments are best-effort; failures fall through to defaults

	if err := callerCtx.Err(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return s.simplifiedResult(req.Task, req.Prompt, "GLOBAL_TIMEOUT"), nil
	}

	provider := s.pickProvider(req, complexity, localAvail)
	if req.ModelPreference == "local" && !localAvail && provider == "local" {
		return s.simplifiedResult(req.Task, req.Prompt, "LOCAL_LLM_UNAVAILABLE"), nil
	}

	systemPrompt, prompt, err := s.assemblePrompt(ctx, req)
	if err != nil {
		return s.simplifiedResult(req.Task, req.Prompt, "ERROR:prompt_assembly_failed"), nil
	}

	adapter, ok := s.providers[provider]
	if !ok || adapter.cfg.BaseURL == "" {
		return s.simplifiedResult(req.Task, req.Prompt, fmt.Sprintf("NO_PROVIDERS_AVAILABLE:%s", provider)), nil
	}

	result, err := adapter.generate(ctx, req, systemPrompt, prompt)
	if err != nil {
		if callerCtx.Err() != nil {
			// The caller cancelled mid-call: propagate cancellation rather
			// than masking it as a simplified result.
			return nil, callerCtx.Err()
		}
		switch {
		case ctx.Err() == context.DeadlineExceeded:
			log.Printf("[ROUTER] provider %s hit the global timeout for task %s: %v", provider, req.Task, err)
			return s.simplifiedResult(req.Task, prompt, "GLOBAL_TIMEOUT"), nil
		case isTimeoutErr(err):
			log.Printf("[ROUTER] provider %s timed out for task %s: %v", provider, req.Task, err)
			return s.simplifiedResult(req.Task, prompt, "TIMEOUT"), nil
		default:
			log.Printf("[ROUTER] provider %s failed for task %s: %v", provider, req.Task, err)
			return s.simplifiedResult(req.Task, prompt, fmt.Sprintf("ERROR:%s", err.Error())), nil
		}
	}
	return result, nil
}

// isTimeoutErr reports whether err is a client-side timeout (e.g. the
// provider-specific http.Client deadline), as opposed to the router's
// own global-timeout context expiring.
func isTimeoutErr(err error) bool {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// taskProviderOverrides names the provider known best for particular
// tasks: structured extraction goes to the primary cloud provider when
// it's configured, regardless of complexity.
var taskProviderOverrides = map[string]string{
	"extract_entities": "cloud_primary",
}

// capableProviderThreshold is the assessed complexity at and above which
// the more capable cloud provider is preferred over the cheaper one.
const capableProviderThreshold = 0.6

// pickProvider implements the ordered routing policy: explicit override,
// local preference, task-specific override, local-if-available, then a
// complexity-weighted cloud choice.
func (s *routerServiceImpl) pickProvider(req models.RouteRequest, complexity float64, localAvail bool) string {
	if req.Provider != "" {
		return req.Provider
	}
	if req.ModelPreference == "local" && localAvail {
		return "local"
	}
	if name, ok := taskProviderOverrides[req.Task]; ok {
		if adapter, ok := s.providers[name]; ok && adapter.cfg.BaseURL != "" {
			return name
		}
	}
	if localAvail {
		return "local"
	}

	cloudOrder := make([]string, 0, len(s.fallback))
	for _, name := range s.fallback {
		if name != "local" {
			cloudOrder = append(cloudOrder, name)
		}
	}
	// A demanding task skips the cheaper provider when a more capable one
	// is configured; cloudOrder is already most-capable-first.
	if complexity < capableProviderThreshold {
		for i, j := 0, len(cloudOrder)-1; i < j; i, j = i+1, j-1 {
			cloudOrder[i], cloudOrder[j] = cloudOrder[j], cloudOrder[i]
		}
	}
	for _, name := range cloudOrder {
		if adapter, ok := s.providers[name]; ok && adapter.cfg.BaseURL != "" {
			return name
		}
	}
	return "local"
}

// builtinSystemPrompts are the fallback system prompts used when no
// "system_prompt_<task>" Component is registered.
var builtinSystemPrompts = map[string]string{
	"summarize":        "You are a concise summarizer. Produce a short, accurate summary of the given text.",
	"extract_entities": "You extract named entities from text and return them grouped by category as JSON.",
	"tag_content":      "You generate a short list of lowercase topical tags for the given text.",
	"compose":          "You compose a well-organized digest from a set of content summaries.",
	"research":         "You answer research questions using the tools and content available to you.",
}

const defaultBuiltinSystemPrompt = "You are a helpful content-processing assistant."

// assemblePrompt resolves the system/task prompt pair: an
// explicit ComponentID on the request always wins (used by the test
// harness's test_with_llm); otherwise the router looks for a
// "system_prompt_<task>" Component (rendered with empty inputs) and a
// "task_<task>" Component (rendered with {text: prompt, ...extra
// inputs}), falling back to a built-in string and the raw prompt,
// respectively, when no such Component is registered.
func (s *routerServiceImpl) assemblePrompt(ctx context.Context, req models.RouteRequest) (systemPrompt, prompt string, err error) {
	if req.ComponentID != "" && s.components != nil {
		id, parseErr := uuid.Parse(req.ComponentID)
		if parseErr == nil {
			rendered, renderErr := s.components.Render(ctx, id, req.ComponentInputs)
			if renderErr != nil {
				return req.SystemPrompt, req.Prompt, renderErr
			}
			return req.SystemPrompt, rendered, nil
		}
	}

	systemPrompt = req.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = s.resolveNamedPrompt(ctx, "system_prompt_"+req.Task, map[string]string{}, builtinSystemPrompts[req.Task])
		if systemPrompt == "" {
			systemPrompt = defaultBuiltinSystemPrompt
		}
	}

	prompt = req.Prompt
	taskInputs := map[string]string{"text": req.Prompt}
	for k, v := range req.ComponentInputs {
		taskInputs[k] = v
	}
	if rendered := s.resolveNamedPrompt(ctx, "task_"+req.Task, taskInputs, ""); rendered != "" {
		prompt = rendered
	}

	return systemPrompt, prompt, nil
}

// resolveNamedPrompt renders the Component named name with inputs,
// returning fallback if no such Component is registered or rendering
// fails (a missing prompt Component degrades to the built-in string
// rather than failing the whole route).
func (s *routerServiceImpl) resolveNamedPrompt(ctx context.Context, name string, inputs map[string]string, fallback string) string {
	if s.components == nil {
		return fallback
	}
	component, err := s.components.GetByName(ctx, name)
	if err != nil {
		return fallback
	}
	rendered, err := s.components.Render(ctx, component.ID, inputs)
	if err != nil {
		log.Printf("[ROUTER] rendering prompt component %q failed: %v", name, err)
		return fallback
	}
	return rendered
}

func (s *routerServiceImpl) simplifiedResult(task, prompt, fallbackReason string) *models.ProviderResult {
	return &models.ProviderResult{
		Provider:       "fallback",
		Model:          "simplified",
		Text:           generateSimplifiedResult(task, prompt),
		FallbackReason: fallbackReason,
		Simplified:     true,
	}
}

func (a *providerAdapter) generate(ctx context.Context, req models.RouteRequest, systemPrompt, prompt string) (*models.ProviderResult, error) {
	maxTokens := a.capMaxTokensForModel(ctx, req.MaxTokens, req.Model)

	messages := []RouterMessage{}
	if systemPrompt != "" {
		messages = append(messages, RouterMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, RouterMessage{Role: "user", Content: prompt})

	request := RouterRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   maxTokens,
		Stream:      true,
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/chat/completions", a.cfg.BaseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if a.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	var lastErr error
	for attempt := 0; attempt <= 2; attempt++ {
		start := time.Now()
		resp, err := a.streamClient.Do(httpReq)
		if err != nil {
			lastErr = err
			if attempt < 2 {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				httpReq.Body = io.NopCloser(bytes.NewBuffer(jsonData))
				continue
			}
			break
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if attempt < 2 && (resp.StatusCode == 429 || resp.StatusCode >= 500) {
				time.Sleep(time.Duration(attempt+1) * time.Second)
				httpReq.Body = io.NopCloser(bytes.NewBuffer(jsonData))
				continue
			}
			return nil, fmt.Errorf("provider %s returned status %d: %s", a.name, resp.StatusCode, string(body))
		}

		apiResp, err := readStreamResponse(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read provider response: %w", err)
		}
		if len(apiResp.Choices) == 0 {
			return nil, fmt.Errorf("no choices in provider response")
		}

		elapsed := time.Since(start)
		return &models.ProviderResult{
			Provider:       a.name,
			Model:          apiResp.Model,
			Text:           apiResp.Choices[0].Message.Content,
			TokenUsage:     apiResp.Usage.TotalTokens,
			CostUSD:        calculateCostUSD(apiResp.Usage, apiResp.Model),
			ResponseTimeMs: int(elapsed.Milliseconds()),
		}, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("provider %s failed: %w", a.name, lastErr)
	}
	return nil, fmt.Errorf("provider %s: unexpected error", a.name)
}

// RouterRequest and friends model the wire format of a chat-completions
// gateway shared across providers.
type RouterRequest struct {
	Model       string          `json:"model"`
	Messages    []RouterMessage `json:"messages"`
	Temperature *float64        `json:"temperature,omitempty"`
	MaxTokens   *int            `json:"max_tokens,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

type RouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type RouterAPIResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []RouterChoice `json:"choices"`
	Usage   RouterUsage    `json:"usage"`
}

type RouterChoice struct {
	Message      RouterMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type RouterUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func calculateCostUSD(usage RouterUsage, model string) float64 {
	switch {
	case model == "gpt-3.5-turbo":
		return float64(usage.TotalTokens) * 0.001 / 1000
	case model == "gpt-4o":
		return float64(usage.TotalTokens) * 0.03 / 1000
	case len(model) > 6 && model[:6] == "claude":
		return float64(usage.TotalTokens) * 0.015 / 1000
	default:
		return 0.0
	}
}

// --- model output-limit cache, backed by Redis with an in-process fallback ---

type providerCapabilitiesResponse struct {
	Capabilities struct {
		SupportedModels []struct {
			Name            string `json:"name"`
			MaxOutputTokens int    `json:"max_output_tokens"`
		} `json:"supported_models"`
	} `json:"capabilities"`
}

func (a *providerAdapter) getModelMaxOutputTokens(ctx context.Context, model string) int {
	if v, ok := a.modelLimitsCache.Load(model); ok {
		return v.(int)
	}

	if a.redis != nil {
		if v, err := a.redis.Get(ctx, "router:model_limit:"+model).Int(); err == nil {
			a.modelLimitsCache.Store(model, v)
			return v
		}
	}

	url := fmt.Sprintf("%s/v1/providers/%s", a.cfg.BaseURL, a.name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 4096
	}
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return 4096
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 4096
	}

	var parsed providerCapabilitiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 4096
	}

	limit := 4096
	for _, m := range parsed.Capabilities.SupportedModels {
		if m.MaxOutputTokens <= 0 {
			continue
		}
		a.modelLimitsCache.Store(m.Name, m.MaxOutputTokens)
		if a.redis != nil {
			a.redis.Set(ctx, "router:model_limit:"+m.Name, m.MaxOutputTokens, a.cacheTTL)
		}
		if m.Name == model {
			limit = m.MaxOutputTokens
		}
	}
	return limit
}

func (a *providerAdapter) capMaxTokensForModel(ctx context.Context, maxTokens *int, model string) *int {
	if maxTokens == nil {
		return nil
	}
	limit := a.getModelMaxOutputTokens(ctx, model)
	if *maxTokens > limit {
		capped := limit
		return &capped
	}
	return maxTokens
}

// readStreamResponse reads an SSE stream and accumulates it into a
// single RouterAPIResponse, following the chat-completions gateway's
// event-stream shape.
func readStreamResponse(body io.Reader) (*RouterAPIResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		contentBuilder strings.Builder
		model, id      string
		finishReason   string
		usage          RouterUsage
		gotContent     bool
	)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}

		var chunk struct {
			ID      string `json:"id"`
			Model   string `json:"model"`
			Choices []struct {
				Delta *struct {
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
			Usage *RouterUsage `json:"usage"`
		}
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.ID != "" {
			id = chunk.ID
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
			if choice.Delta != nil && choice.Delta.Content != "" {
				contentBuilder.WriteString(choice.Delta.Content)
				gotContent = true
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading SSE stream: %w", err)
	}
	if !gotContent && finishReason == "" {
		return nil, fmt.Errorf("empty streaming response")
	}

	return &RouterAPIResponse{
		ID:      id,
		Model:   model,
		Choices: []RouterChoice{{Message: RouterMessage{Role: "assistant", Content: contentBuilder.String()}, FinishReason: finishReason}},
		Usage:   usage,
	}, nil
}
