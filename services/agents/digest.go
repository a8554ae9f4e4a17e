package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
	"github.com/bluelabel/contentmind/services/impl"
)

// digestTaskData is the task payload an ad-hoc digest request carries:
// which digest to build, for whom, and over which channel.
type digestTaskData struct {
	DigestID       uuid.UUID `json:"digest_id"`
	DigestType     string    `json:"digest_type"`
	Recipient      string    `json:"recipient"`
	DeliveryMethod string    `json:"delivery_method"`
}

// DigestAgent assembles a digest from the completed artifacts the
// Knowledge Store holds since a job's last run, renders it, and hands it
// to a delivery
// sender. Assembly rides on the Knowledge Store's own folding logic
// rather than a second LLM analysis pass per item.
type DigestAgent struct {
	knowledge *impl.KnowledgeStore
	window    *DigestWindow
	delivery  services.DeliverySender
}

func NewDigestAgent(knowledge *impl.KnowledgeStore, window *DigestWindow, delivery services.DeliverySender) *DigestAgent {
	return &DigestAgent{knowledge: knowledge, window: window, delivery: delivery}
}

// NewDigestAgentFactory closes over the dependencies DigestAgent needs
// beyond the AgentFactory signature (a Router and a ComponentService
// alone aren't enough to assemble a digest), for registration in an
// AgentManifestEntry.
func NewDigestAgentFactory(knowledge *impl.KnowledgeStore, window *DigestWindow, delivery services.DeliverySender) services.AgentFactory {
	agent := NewDigestAgent(knowledge, window, delivery)
	return func(config models.AgentConfig, router services.RouterService, components services.ComponentService) (services.ProcessingAgent, error) {
		return agent, nil
	}
}

func (a *DigestAgent) Capabilities() models.AgentCapabilities {
	return models.AgentCapabilities{
		Name:  "digest",
		Kind:  models.AgentKindDigest,
		Tools: []string{"content_retriever", "digest_generator", "email_delivery", "whatsapp_delivery"},
	}
}

// Process lets DigestAgent be registered through the same AgentRegistry
// as the content-processing agents: the artifact's RawBody carries a
// JSON-encoded digestTaskData, and what was sent is recorded in that same
// artifact's OutputData, which is returned.
func (a *DigestAgent) Process(ctx context.Context, artifact *models.ContentArtifact) (*models.ContentArtifact, error) {
	var task digestTaskData
	if err := json.Unmarshal([]byte(artifact.RawBody), &task); err != nil {
		return nil, fmt.Errorf("digest: invalid task data: %w", err)
	}

	since := time.Now().AddDate(0, 0, -1)
	summary, body, err := a.buildDigest(ctx, since, models.DigestFilter{}, task.DigestType)
	if err != nil {
		return nil, err
	}

	if err := a.deliver(ctx, task.Recipient, task.DeliveryMethod, task.DigestType, body); err != nil {
		return nil, err
	}

	outputJSON, err := json.Marshal(map[string]any{
		"digest_type":    task.DigestType,
		"item_count":     summary.ArtifactCount,
		"recipient":      task.Recipient,
		"delivery_method": task.DeliveryMethod,
	})
	if err != nil {
		return nil, fmt.Errorf("digest: marshalling output: %w", err)
	}
	artifact.OutputData = outputJSON
	artifact.Status = models.ArtifactStatusCompleted
	return artifact, nil
}

// RunScheduledDigest is the SchedulerCallback DigestAgent registers under
// "digest_"+digest_type: assemble the artifacts stored since the job's
// last run (the past day if it has never run), deliver the digest, then
// clear the job's window when the digest held any artifacts.
func (a *DigestAgent) RunScheduledDigest(ctx context.Context, job models.ScheduledJob) error {
	since := time.Now().AddDate(0, 0, -1)
	if job.LastRun != nil {
		since = *job.LastRun
	}

	digestType := job.DigestType
	if digestType == "" {
		digestType = string(job.ScheduleType)
	}
	summary, body, err := a.buildDigest(ctx, since, job.Filter, digestType)
	if err != nil {
		return err
	}

	if job.Recipient == "" {
		return fmt.Errorf("digest: job %s has no recipient configured", job.ID)
	}

	if err := a.deliver(ctx, job.Recipient, string(job.DeliveryMethod), digestType, body); err != nil {
		return err
	}

	if summary.ArtifactCount > 0 {
		if err := a.window.Clear(ctx, job.ID); err != nil {
			return fmt.Errorf("digest: clearing window for job %s: %w", job.ID, err)
		}
	}
	return nil
}

func (a *DigestAgent) buildDigest(ctx context.Context, since time.Time, filter models.DigestFilter, digestType string) (impl.DigestSummary, string, error) {
	summary, err := a.knowledge.Digest(ctx, since, filter)
	if err != nil {
		return impl.DigestSummary{}, "", fmt.Errorf("digest: assembling summary: %w", err)
	}
	return summary, formatDigestBody(digestType, summary), nil
}

func (a *DigestAgent) deliver(ctx context.Context, recipient, deliveryMethod, digestType, body string) error {
	if deliveryMethod == "" {
		deliveryMethod = string(models.InferDeliveryMethod(recipient))
	}
	subject := fmt.Sprintf("%s Digest - %s", capitalize(digestType), time.Now().Format("January 2, 2006"))
	if err := a.delivery.Send(ctx, recipient, subject, body); err != nil {
		return fmt.Errorf("digest: delivery via %s failed: %w", deliveryMethod, err)
	}
	return nil
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func formatDigestBody(digestType string, summary impl.DigestSummary) string {
	if summary.ArtifactCount == 0 {
		return "No new content was added during this period."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s DIGEST\n\n", strings.ToUpper(digestType))
	fmt.Fprintf(&b, "This digest contains %d items added to your knowledge repository.\n\n", summary.ArtifactCount)

	b.WriteString("CONTENT TYPES\n")
	for contentType, count := range summary.TypeCounts {
		fmt.Fprintf(&b, "- %s: %d\n", contentType, count)
	}

	if len(summary.TopTags) > 0 {
		b.WriteString("\nPOPULAR TAGS\n")
		for _, tag := range summary.TopTags {
			fmt.Fprintf(&b, "- %s (%d)\n", tag.Tag, tag.Count)
		}
	}

	b.WriteString("\nCONTENT SUMMARY\n")
	b.WriteString(summary.Body)
	return b.String()
}
