package impl

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

var researchKeywords = []string{"research", "query", "question", "investigate"}

// gatewayServiceImpl classifies inbound content and invokes the target
// processing agent. Email-like and messaging-like ingress share one
// source-agnostic path: the classify-then-route logic is identical for
// both.
type gatewayServiceImpl struct {
	agents    services.AgentRegistry
	knowledge *KnowledgeStore
	artifacts services.ArtifactStore
}

func NewGatewayService(agents services.AgentRegistry, knowledge *KnowledgeStore, artifacts services.ArtifactStore) services.GatewayService {
	return &gatewayServiceImpl{agents: agents, knowledge: knowledge, artifacts: artifacts}
}

// Classify applies the classification rules in order: PDF attachment,
// audio attachment, URL thread, first URL-like token, research
// keyword/query punctuation, plain text.
func (s *gatewayServiceImpl) Classify(req models.IngestRequest) (models.ContentType, models.AgentKind) {
	for _, att := range req.Attachments {
		if att.ContentType == "application/pdf" {
			return models.ContentTypePDF, models.AgentKindContentMind
		}
	}
	for _, att := range req.Attachments {
		if strings.HasPrefix(att.ContentType, "audio/") {
			return models.ContentTypeAudio, models.AgentKindContentMind
		}
	}
	// A body made of several newline-separated URL lines is a fused
	// messaging thread of posts, not a single link: classify as social
	// rather than url so the extractor knows to fuse the posts.
	if isThread(req.Body) {
		return models.ContentTypeSocial, models.AgentKindContentMind
	}
	if urlPattern.MatchString(req.Body) {
		return models.ContentTypeURL, models.AgentKindContentMind
	}

	haystack := strings.ToLower(req.Subject + " " + req.Body)
	if looksLikeResearchQuery(haystack) {
		return models.ContentTypeQuery, models.AgentKindResearcher
	}

	return models.ContentTypeText, models.AgentKindContentMind
}

func looksLikeResearchQuery(haystack string) bool {
	if strings.HasPrefix(strings.TrimSpace(haystack), "research:") || strings.HasPrefix(strings.TrimSpace(haystack), "query:") {
		return true
	}
	if strings.Contains(haystack, "?") {
		return true
	}
	for _, keyword := range researchKeywords {
		if strings.Contains(haystack, keyword) {
			return true
		}
	}
	return false
}

// isThread reports whether the body contains multiple newline-separated
// URL lines: more than one non-empty line and each of them URL-like.
func isThread(body string) bool {
	lines := strings.Split(body, "\n")
	urlLines := 0
	nonEmpty := 0
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		nonEmpty++
		if urlPattern.MatchString(line) {
			urlLines++
		}
	}
	return nonEmpty > 1 && urlLines == nonEmpty
}

// Ingest classifies req, deduplicates it against recently seen content,
// records a ContentArtifact, and invokes the target agent.
func (s *gatewayServiceImpl) Ingest(ctx context.Context, req models.IngestRequest) (*models.ContentArtifact, error) {
	fingerprint := Fingerprint(req.Source, req.Body)
	duplicate, err := s.knowledge.CheckAndMark(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("gateway: dedupe check failed: %w", err)
	}
	if duplicate {
		return nil, fmt.Errorf("%w: duplicate message from %s", services.ErrInvalid, req.Source)
	}

	contentType, targetAgent := s.Classify(req)

	metadata := map[string]any{
		"source":  req.Source,
		"subject": req.Subject,
	}
	if len(req.Headers) > 0 {
		metadata["headers"] = req.Headers
	}
	if isThread(req.Body) {
		metadata["is_thread"] = true
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshalling metadata: %w", err)
	}

	artifact := &models.ContentArtifact{
		ID:          uuid.New(),
		Source:      req.Source,
		ContentType: contentType,
		TargetAgent: targetAgent,
		RawBody:     req.Body,
		Status:      models.ArtifactStatusQueued,
		Metadata:    metadataJSON,
	}

	if err := s.artifacts.Save(ctx, artifact); err != nil {
		return nil, fmt.Errorf("gateway: saving artifact: %w", err)
	}

	agent, err := s.agents.Create(ctx, string(targetAgent))
	if err != nil {
		log.Printf("gateway: no agent registered for kind %q, leaving artifact queued: %v", targetAgent, err)
		return artifact, nil
	}

	artifact.Status = models.ArtifactStatusRunning
	processed, err := agent.Process(ctx, artifact)
	if err != nil {
		artifact.Status = models.ArtifactStatusFailed
		errMsg := err.Error()
		artifact.ErrorMessage = &errMsg
		if saveErr := s.artifacts.Save(ctx, artifact); saveErr != nil {
			log.Printf("gateway: failed to persist failed artifact %s: %v", artifact.ID, saveErr)
		}
		return nil, fmt.Errorf("gateway: processing failed: %w", err)
	}

	if err := s.artifacts.Save(ctx, processed); err != nil {
		return nil, fmt.Errorf("gateway: saving processed artifact: %w", err)
	}
	return processed, nil
}
