package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// providerPreferences is the per-sub-task provider override a caller may
// attach to a ContentMind process request, keyed by enricher name
// ("summary", "entity_extraction", "tagging").
type providerPreferences struct {
	Summary          string `json:"summary,omitempty"`
	EntityExtraction string `json:"entity_extraction,omitempty"`
	Tagging          string `json:"tagging,omitempty"`
}

// ContentMindAgent runs the standard content-processing pipeline: select
// an extractor by content type, then enrich with three Router-backed
// tasks (summarize, extract_entities, tag_content) in strict order.
// Extractors live in an explicit table keyed by content type, never
// found by scanning a tool list.
type ContentMindAgent struct {
	router     services.RouterService
	extractors map[models.ContentType]Extractor
}

func NewContentMindAgent(config models.AgentConfig, router services.RouterService, components services.ComponentService) (services.ProcessingAgent, error) {
	return &ContentMindAgent{
		router: router,
		extractors: map[models.ContentType]Extractor{
			models.ContentTypeURL:    NewURLExtractor(0),
			models.ContentTypePDF:    NewPDFExtractor(),
			models.ContentTypeAudio:  NewAudioExtractor(),
			models.ContentTypeText:   NewTextExtractor(),
			models.ContentTypeSocial: NewURLExtractor(0), // a thread is several URL-per-line posts; URLExtractor already fuses multi-URL bodies
		},
	}, nil
}

func (a *ContentMindAgent) Capabilities() models.AgentCapabilities {
	return models.AgentCapabilities{
		Name: "contentmind",
		Kind: models.AgentKindContentMind,
		Tools: []string{
			"url_processor", "pdf_processor", "audio_processor", "text_processor", "social_processor",
			"summarizer", "entity_extractor", "tagger",
		},
	}
}

// Process runs the standard pipeline: extract → summarize → entities →
// tags → compose. Extractor failure aborts the artifact with an error.
// Enricher failure degrades to a placeholder and records a nil provider
// for that sub-task, per the failure-semantics contract.
func (a *ContentMindAgent) Process(ctx context.Context, artifact *models.ContentArtifact) (*models.ContentArtifact, error) {
	extractor, ok := a.extractors[artifact.ContentType]
	if !ok {
		return nil, fmt.Errorf("contentmind: no extractor registered for content type %q", artifact.ContentType)
	}

	extracted, err := extractor.Extract(ctx, artifact.RawBody)
	if err != nil {
		return nil, fmt.Errorf("contentmind: extraction failed: %w", err)
	}

	var prefs providerPreferences
	_ = json.Unmarshal(artifact.Metadata, &struct {
		ProviderPreferences *providerPreferences `json:"provider_preferences"`
	}{&prefs})

	steps := models.ProcessingStepList{}
	providersUsed := map[string]any{
		"summary":           nil,
		"entity_extraction": nil,
		"tagging":           nil,
	}
	fallbackReasons := map[string]string{}

	summary := extracted.Summary
	entities := map[string]any{}
	var tags []string

	if strings.TrimSpace(extracted.Text) != "" {
		if result, err := a.router.Route(ctx, models.RouteRequest{
			Task:     "summarize",
			Prompt:   extracted.Text,
			Provider: prefs.Summary,
		}); err == nil {
			summary = result.Text
			providersUsed["summary"] = result.Provider
			if result.FallbackReason != "" {
				fallbackReasons["summary"] = result.FallbackReason
			}
			steps = append(steps, stepRecord("summarize", result.Text))
		} else {
			steps = append(steps, failedStep("summarize", err))
		}

		if result, err := a.router.Route(ctx, models.RouteRequest{
			Task:     "extract_entities",
			Prompt:   extracted.Text,
			Provider: prefs.EntityExtraction,
		}); err == nil {
			entities = parseEntities(result.Text)
			providersUsed["entity_extraction"] = result.Provider
			if result.FallbackReason != "" {
				fallbackReasons["entity_extraction"] = result.FallbackReason
			}
			steps = append(steps, stepRecord("extract_entities", result.Text))
		} else {
			steps = append(steps, failedStep("extract_entities", err))
		}

		if result, err := a.router.Route(ctx, models.RouteRequest{
			Task:     "tag_content",
			Prompt:   extracted.Text,
			Provider: prefs.Tagging,
		}); err == nil {
			tags = splitTags(result.Text)
			providersUsed["tagging"] = result.Provider
			if result.FallbackReason != "" {
				fallbackReasons["tagging"] = result.FallbackReason
			}
			steps = append(steps, stepRecord("tag_content", result.Text))
		} else {
			steps = append(steps, failedStep("tag_content", err))
		}
	}

	if summary == "" {
		summary = "No summary available"
	}

	output := map[string]any{
		"title":          firstNonEmpty(extracted.Title, "Untitled"),
		"summary":        summary,
		"author":         extracted.Author,
		"published_date": extracted.PublishedDate,
		"entities":       entities,
		"tags":           tags,
		"providers_used": providersUsed,
		"is_thread":      extracted.IsThread,
	}
	if len(fallbackReasons) > 0 {
		output["fallback_reasons"] = fallbackReasons
	}
	if extracted.PageCount > 0 {
		output["page_count"] = extracted.PageCount
	}
	if extracted.DurationSecs > 0 {
		output["duration_secs"] = extracted.DurationSecs
	}

	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("contentmind: marshalling output: %w", err)
	}

	artifact.RawBody = extracted.Text
	artifact.OutputData = outputJSON
	artifact.ProcessingSteps = append(artifact.ProcessingSteps, steps...)
	tagsJSON, _ := json.Marshal(tags)
	artifact.Tags = tagsJSON
	artifact.Status = models.ArtifactStatusCompleted
	return artifact, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitTags(text string) []string {
	var tags []string
	for _, tag := range strings.Split(text, ",") {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

// parseEntities is tolerant of however the model shaped its answer:
// try strict JSON first, then fall back to "Category: a, b" structured
// text, then to an unstructured sentence split.
func parseEntities(text string) map[string]any {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return map[string]any{}
	}
	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	if parsed := parseStructuredEntityText(trimmed); len(parsed) > 0 {
		out := make(map[string]any, len(parsed))
		for k, v := range parsed {
			out[k] = v
		}
		return out
	}
	var sentences []string
	for _, s := range strings.Split(trimmed, ".") {
		if s = strings.TrimSpace(s); s != "" {
			sentences = append(sentences, s)
		}
	}
	return map[string]any{"entities": sentences}
}

func parseStructuredEntityText(text string) map[string][]string {
	result := map[string][]string{}
	var currentCategory string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 {
			category := strings.TrimSpace(line[:idx])
			itemsText := strings.TrimSpace(line[idx+1:])
			if category != "" && itemsText != "" {
				if items := splitEntityItems(itemsText); len(items) > 0 {
					result[category] = append(result[category], items...)
				}
				continue
			}
			if category != "" {
				currentCategory = category
				continue
			}
		}
		if currentCategory != "" {
			if items := splitEntityItems(line); len(items) > 0 {
				result[currentCategory] = append(result[currentCategory], items...)
			}
		}
	}
	return result
}

func splitEntityItems(text string) []string {
	var items []string
	for _, item := range strings.Split(text, ",") {
		item = strings.TrimRight(strings.TrimSpace(item), ".")
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func stepRecord(step, output string) models.ProcessingStep {
	return models.ProcessingStep{
		Step:   step,
		Status: models.ArtifactStatusCompleted,
		Output: output,
	}
}

func failedStep(step string, err error) models.ProcessingStep {
	return models.ProcessingStep{
		Step:   step,
		Status: models.ArtifactStatusFailed,
		Error:  err.Error(),
	}
}
