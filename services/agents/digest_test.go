package agents

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
	"github.com/bluelabel/contentmind/services/impl"
)

type fakeDeliverySender struct {
	destination, subject, body string
	calls                      int
	err                        error
}

func (f *fakeDeliverySender) Send(ctx context.Context, destination, subject, body string) error {
	f.destination, f.subject, f.body = destination, subject, body
	f.calls++
	return f.err
}

type fakeDigestArtifactStore struct {
	artifacts []models.ContentArtifact
}

func (f *fakeDigestArtifactStore) Save(ctx context.Context, artifact *models.ContentArtifact) error {
	f.artifacts = append(f.artifacts, *artifact)
	return nil
}
func (f *fakeDigestArtifactStore) Get(ctx context.Context, id uuid.UUID) (*models.ContentArtifact, error) {
	return nil, nil
}
func (f *fakeDigestArtifactStore) List(ctx context.Context, filter models.ArtifactListFilter) (*models.ArtifactListResponse, error) {
	return &models.ArtifactListResponse{Artifacts: f.artifacts}, nil
}
func (f *fakeDigestArtifactStore) Since(ctx context.Context, since time.Time, filter models.DigestFilter) ([]models.ContentArtifact, error) {
	var result []models.ContentArtifact
	for _, a := range f.artifacts {
		if a.CreatedAt.After(since) {
			result = append(result, a)
		}
	}
	return result, nil
}

func setupDigestTestRedis(t *testing.T) (*redis.Client, func()) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return client, func() { client.Close(); mr.Close() }
}

func TestDigestAgent_RunScheduledDigestDeliversAndClearsWindow(t *testing.T) {
	client, cleanup := setupDigestTestRedis(t)
	defer cleanup()

	store := &fakeDigestArtifactStore{
		artifacts: []models.ContentArtifact{
			{ContentType: models.ContentTypeURL, CreatedAt: time.Now(), RawBody: "fresh content"},
		},
	}
	knowledge := impl.NewKnowledgeStore(store, client, time.Hour, FormatForDigest)
	window := NewDigestWindow(client, time.Hour)
	sender := &fakeDeliverySender{}
	agent := NewDigestAgent(knowledge, window, sender)

	jobID := uuid.New()
	require.NoError(t, window.Add(context.Background(), jobID, uuid.New()))

	job := models.ScheduledJob{
		ID:             jobID,
		Name:           "daily-digest",
		DigestType:     "daily",
		ScheduleType:   models.ScheduleDaily,
		Recipient:      "reader@example.com",
		DeliveryMethod: models.DeliveryEmail,
	}

	err := agent.RunScheduledDigest(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, 1, sender.calls)
	assert.Equal(t, "reader@example.com", sender.destination)
	assert.Contains(t, sender.body, "fresh content")

	entries, err := window.Entries(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDigestAgent_MissingRecipientFails(t *testing.T) {
	client, cleanup := setupDigestTestRedis(t)
	defer cleanup()

	store := &fakeDigestArtifactStore{}
	knowledge := impl.NewKnowledgeStore(store, client, time.Hour, FormatForDigest)
	window := NewDigestWindow(client, time.Hour)
	sender := &fakeDeliverySender{}
	agent := NewDigestAgent(knowledge, window, sender)

	job := models.ScheduledJob{ID: uuid.New(), DigestType: "daily", ScheduleType: models.ScheduleDaily}
	err := agent.RunScheduledDigest(context.Background(), job)
	assert.Error(t, err)
}
