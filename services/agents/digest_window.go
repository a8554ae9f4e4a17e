package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bluelabel/contentmind/models"
)

// DigestWindow holds a per-job list of ContentArtifact IDs, keyed by job
// ID and backed by Redis with a TTL that each Add refreshes. DigestAgent
// clears a job's window after a scheduled run that found content; the
// digest itself is built from the artifact store, not from the IDs held
// here, and the ingest path does not call Add.
type DigestWindow struct {
	redis     *redis.Client
	ttl       time.Duration
	keyPrefix string
}

func NewDigestWindow(redisClient *redis.Client, ttl time.Duration) *DigestWindow {
	if ttl <= 0 {
		ttl = 31 * 24 * time.Hour // covers the longest schedule (monthly) with margin
	}
	return &DigestWindow{
		redis:     redisClient,
		ttl:       ttl,
		keyPrefix: "digest:window",
	}
}

func (w *DigestWindow) key(jobID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", w.keyPrefix, jobID.String())
}

// Add records an artifact ID as part of the in-progress window for jobID.
func (w *DigestWindow) Add(ctx context.Context, jobID uuid.UUID, artifactID uuid.UUID) error {
	entries, err := w.Entries(ctx, jobID)
	if err != nil {
		return err
	}
	entries = append(entries, artifactID)

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal digest window: %w", err)
	}
	return w.redis.Set(ctx, w.key(jobID), data, w.ttl).Err()
}

// Entries returns the artifact IDs accumulated in jobID's window.
func (w *DigestWindow) Entries(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	data, err := w.redis.Get(ctx, w.key(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return []uuid.UUID{}, nil
		}
		return nil, fmt.Errorf("failed to read digest window: %w", err)
	}

	var entries []uuid.UUID
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal digest window: %w", err)
	}
	return entries, nil
}

// Clear empties jobID's window, called after a digest run has consumed it.
func (w *DigestWindow) Clear(ctx context.Context, jobID uuid.UUID) error {
	return w.redis.Del(ctx, w.key(jobID)).Err()
}

// FormatForDigest renders a set of artifacts into the plain-text body of
// a digest message, grouped by content type in order of each type's
// first appearance.
func FormatForDigest(artifacts []models.ContentArtifact) string {
	if len(artifacts) == 0 {
		return "Nothing new since the last digest."
	}

	var order []models.ContentType
	groups := make(map[models.ContentType][]models.ContentArtifact)
	for _, artifact := range artifacts {
		if _, seen := groups[artifact.ContentType]; !seen {
			order = append(order, artifact.ContentType)
		}
		groups[artifact.ContentType] = append(groups[artifact.ContentType], artifact)
	}

	var formatted string
	for i, contentType := range order {
		if i > 0 {
			formatted += "\n"
		}
		formatted += fmt.Sprintf("### %s\n", contentType)
		for _, artifact := range groups[contentType] {
			formatted += fmt.Sprintf("- %s\n", artifactHeadline(artifact))
		}
	}
	return formatted
}

// artifactHeadline picks a short human-readable label for one artifact,
// preferring its summarize step output and falling back to a truncated
// raw body.
func artifactHeadline(artifact models.ContentArtifact) string {
	for _, step := range artifact.ProcessingSteps {
		if step.Step == "summarize" && step.Output != "" {
			return truncate(step.Output, 140)
		}
	}
	if artifact.RawBody != "" {
		return truncate(artifact.RawBody, 140)
	}
	return string(artifact.ContentType) + " from " + artifact.Source
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
