package impl

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabel/contentmind/models"
)

func setupKnowledgeStoreTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

// fakeArtifactStore is an in-memory services.ArtifactStore double used
// only to exercise KnowledgeStore's range-query and digest-assembly path
// without a real database.
type fakeArtifactStore struct {
	artifacts []models.ContentArtifact
}

func (f *fakeArtifactStore) Save(ctx context.Context, artifact *models.ContentArtifact) error {
	f.artifacts = append(f.artifacts, *artifact)
	return nil
}

func (f *fakeArtifactStore) Get(ctx context.Context, id uuid.UUID) (*models.ContentArtifact, error) {
	for _, a := range f.artifacts {
		if a.ID == id {
			return &a, nil
		}
	}
	return nil, assertNotFoundErr
}

func (f *fakeArtifactStore) List(ctx context.Context, filter models.ArtifactListFilter) (*models.ArtifactListResponse, error) {
	return &models.ArtifactListResponse{Artifacts: f.artifacts, Total: int64(len(f.artifacts))}, nil
}

func (f *fakeArtifactStore) Since(ctx context.Context, since time.Time, filter models.DigestFilter) ([]models.ContentArtifact, error) {
	var result []models.ContentArtifact
	for _, a := range f.artifacts {
		if a.CreatedAt.After(since) {
			result = append(result, a)
		}
	}
	return result, nil
}

var assertNotFoundErr = &fakeNotFoundError{}

type fakeNotFoundError struct{}

func (e *fakeNotFoundError) Error() string { return "fake: not found" }

func TestKnowledgeStore_CheckAndMarkDetectsDuplicates(t *testing.T) {
	client, cleanup := setupKnowledgeStoreTestRedis(t)
	defer cleanup()

	store := NewKnowledgeStore(&fakeArtifactStore{}, client, time.Hour, FormatForDigestPlaceholder)
	fp := Fingerprint("email", "hello world")

	duplicate, err := store.CheckAndMark(context.Background(), fp)
	require.NoError(t, err)
	assert.False(t, duplicate, "first sighting must not be flagged a duplicate")

	duplicate, err = store.CheckAndMark(context.Background(), fp)
	require.NoError(t, err)
	assert.True(t, duplicate, "second sighting of the same fingerprint must be flagged a duplicate")
}

func TestKnowledgeStore_FingerprintIsStableAndDistinguishing(t *testing.T) {
	a := Fingerprint("email", "hello world")
	b := Fingerprint("email", "hello world")
	c := Fingerprint("email", "something else")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestKnowledgeStore_DigestFoldsArtifactsSinceTimestamp(t *testing.T) {
	client, cleanup := setupKnowledgeStoreTestRedis(t)
	defer cleanup()

	now := time.Now()
	fake := &fakeArtifactStore{
		artifacts: []models.ContentArtifact{
			{ID: uuid.New(), ContentType: models.ContentTypePDF, CreatedAt: now.Add(-time.Hour), Tags: mustJSON([]string{"ai"})},
			{ID: uuid.New(), ContentType: models.ContentTypeURL, CreatedAt: now.Add(time.Hour), Tags: mustJSON([]string{"ai", "news"})},
		},
	}
	store := NewKnowledgeStore(fake, client, time.Hour, FormatForDigestPlaceholder)

	summary, err := store.Digest(context.Background(), now, models.DigestFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ArtifactCount)
	assert.Equal(t, 1, summary.TypeCounts["url"])
}

// FormatForDigestPlaceholder is a minimal body formatter standing in for
// services/agents.FormatForDigest, avoiding an import cycle in this test
// (services/impl is a dependency of services/agents' wiring, not the
// reverse).
func FormatForDigestPlaceholder(artifacts []models.ContentArtifact) string {
	return "placeholder"
}
