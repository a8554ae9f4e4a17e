package impl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bluelabel/contentmind/models"
	"github.com/bluelabel/contentmind/services"
)

// KnowledgeStore fronts the artifact archive for the two callers that
// need more than plain CRUD: the Gateway, which must recognize a
// duplicate inbound message before it creates a second ContentArtifact,
// and DigestAgent, which needs a recency-window query folded into a
// summary.
type KnowledgeStore struct {
	artifacts     services.ArtifactStore
	redis         *redis.Client
	dedupeTTL     time.Duration
	dedupePrefix  string
	bodyFormatter func([]models.ContentArtifact) string
}

func NewKnowledgeStore(artifacts services.ArtifactStore, redisClient *redis.Client, dedupeTTL time.Duration, bodyFormatter func([]models.ContentArtifact) string) *KnowledgeStore {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &KnowledgeStore{
		artifacts:     artifacts,
		redis:         redisClient,
		dedupeTTL:     dedupeTTL,
		dedupePrefix:  "gateway:dedupe",
		bodyFormatter: bodyFormatter,
	}
}

// Fingerprint derives a stable dedupe key for an inbound message from its
// source and body, so retried or forwarded copies of the same message
// don't each spawn their own ContentArtifact.
func Fingerprint(source, body string) string {
	sum := sha256.Sum256([]byte(source + "\x00" + body))
	return hex.EncodeToString(sum[:])
}

// CheckAndMark reports whether fingerprint has already been seen within
// the dedupe window, recording it as seen either way.
func (k *KnowledgeStore) CheckAndMark(ctx context.Context, fingerprint string) (duplicate bool, err error) {
	key := fmt.Sprintf("%s:%s", k.dedupePrefix, fingerprint)
	ok, err := k.redis.SetNX(ctx, key, time.Now().Format(time.RFC3339), k.dedupeTTL).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check dedupe cache: %w", err)
	}
	return !ok, nil
}

// Since delegates to the artifact store's recency-window query.
func (k *KnowledgeStore) Since(ctx context.Context, since time.Time, filter models.DigestFilter) ([]models.ContentArtifact, error) {
	return k.artifacts.Since(ctx, since, filter)
}

// Digest folds everything accumulated since `since` into one DigestSummary.
func (k *KnowledgeStore) Digest(ctx context.Context, since time.Time, filter models.DigestFilter) (DigestSummary, error) {
	artifacts, err := k.Since(ctx, since, filter)
	if err != nil {
		return DigestSummary{}, err
	}
	return AssembleDigest(artifacts, k.bodyFormatter), nil
}
