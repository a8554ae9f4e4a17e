package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// ResearcherAgent runs the query pipeline: research a topic, then
// synthesize the search results into a single answer, as two explicit
// Router calls.
type ResearcherAgent struct {
	router services.RouterService
}

func NewResearcherAgent(config models.AgentConfig, router services.RouterService, components services.ComponentService) (services.ProcessingAgent, error) {
	return &ResearcherAgent{router: router}, nil
}

func (a *ResearcherAgent) Capabilities() models.AgentCapabilities {
	return models.AgentCapabilities{
		Name:  "researcher",
		Kind:  models.AgentKindResearcher,
		Tools: []string{"searcher", "synthesizer"},
	}
}

func (a *ResearcherAgent) Process(ctx context.Context, artifact *models.ContentArtifact) (*models.ContentArtifact, error) {
	query := strings.TrimSpace(artifact.RawBody)
	if query == "" {
		return nil, fmt.Errorf("researcher: empty query")
	}

	steps := models.ProcessingStepList{}

	searchResult, err := a.router.Route(ctx, models.RouteRequest{
		Task:   "research",
		Prompt: query,
	})
	if err != nil {
		return nil, fmt.Errorf("researcher: search failed: %w", err)
	}
	steps = append(steps, stepRecord("research", searchResult.Text))
	sources := splitSearchSources(searchResult.Text)

	synthesisPrompt := fmt.Sprintf("Query: %s\n\n%s", query, formatSources(sources))
	synthesisResult, err := a.router.Route(ctx, models.RouteRequest{
		Task:   "synthesize",
		Prompt: synthesisPrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("researcher: synthesis failed: %w", err)
	}
	steps = append(steps, stepRecord("synthesize", synthesisResult.Text))

	summary, entities, tags := parseSynthesis(synthesisResult.Text)

	output := map[string]any{
		"title":    fmt.Sprintf("Research: %s", query),
		"summary":  summary,
		"sources":  sources,
		"entities": entities,
		"tags":     tags,
		"query":    query,
		"providers_used": map[string]any{
			"research":  searchResult.Provider,
			"synthesis": synthesisResult.Provider,
		},
	}

	outputJSON, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("researcher: marshalling output: %w", err)
	}

	artifact.RawBody = synthesisResult.Text
	artifact.OutputData = outputJSON
	artifact.ProcessingSteps = append(artifact.ProcessingSteps, steps...)
	tagsJSON, _ := json.Marshal(tags)
	artifact.Tags = tagsJSON
	artifact.Status = models.ArtifactStatusCompleted
	return artifact, nil
}

type searchSource struct {
	Source  string `json:"source"`
	Content string `json:"content"`
}

// splitSearchSources parses a "Source:"-delimited search result into a
// list of attributed snippets, falling back to one AI-generated source
// when no markers are present.
func splitSearchSources(text string) []searchSource {
	if !strings.Contains(text, "Source:") {
		return []searchSource{{Source: "AI-generated", Content: text}}
	}

	var sources []searchSource
	parts := strings.Split(text, "Source:")
	for _, part := range parts[1:] {
		lines := strings.SplitN(part, "\n", 2)
		source := strings.TrimSpace(lines[0])
		content := ""
		if len(lines) > 1 {
			content = strings.TrimSpace(lines[1])
		}
		sources = append(sources, searchSource{Source: source, Content: content})
	}
	return sources
}

func formatSources(sources []searchSource) string {
	var b strings.Builder
	for i, s := range sources {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "Source: %s\n%s", s.Source, s.Content)
	}
	return b.String()
}

// parseSynthesis extracts an "Entities:"/"Tags:" sectioned response,
// defaulting to the whole text as the summary when no sections are
// present.
func parseSynthesis(text string) (summary string, entities map[string][]string, tags []string) {
	entities = map[string][]string{}
	summary = text

	if idx := strings.Index(text, "Entities:"); idx >= 0 {
		summary = strings.TrimSpace(text[:idx])
		entitySection := text[idx+len("Entities:"):]
		if tagIdx := strings.Index(entitySection, "Tags:"); tagIdx >= 0 {
			entitySection = entitySection[:tagIdx]
		}
		currentCategory := "general"
		for _, line := range strings.Split(entitySection, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			if strings.Contains(line, ":") && !strings.HasPrefix(line, "- ") {
				currentCategory = strings.TrimSpace(strings.TrimSuffix(line, ":"))
				if _, ok := entities[currentCategory]; !ok {
					entities[currentCategory] = []string{}
				}
				continue
			}
			if strings.HasPrefix(line, "- ") {
				entities[currentCategory] = append(entities[currentCategory], strings.TrimSpace(line[2:]))
			}
		}
	}

	if idx := strings.Index(text, "Tags:"); idx >= 0 {
		tagSection := text[idx+len("Tags:"):]
		tagLine := strings.SplitN(strings.TrimSpace(tagSection), "\n", 2)[0]
		tags = splitTags(tagLine)
	}

	return summary, entities, tags
}
