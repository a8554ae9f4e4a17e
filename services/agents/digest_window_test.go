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
)

func setupDigestWindowTestRedis(t *testing.T) (*redis.Client, func()) {
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

func TestDigestWindow_EntriesEmptyByDefault(t *testing.T) {
	client, cleanup := setupDigestWindowTestRedis(t)
	defer cleanup()

	window := NewDigestWindow(client, time.Hour)
	jobID := uuid.New()

	entries, err := window.Entries(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDigestWindow_AddAccumulates(t *testing.T) {
	client, cleanup := setupDigestWindowTestRedis(t)
	defer cleanup()

	window := NewDigestWindow(client, time.Hour)
	jobID := uuid.New()
	a1, a2 := uuid.New(), uuid.New()

	require.NoError(t, window.Add(context.Background(), jobID, a1))
	require.NoError(t, window.Add(context.Background(), jobID, a2))

	entries, err := window.Entries(context.Background(), jobID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{a1, a2}, entries)
}

func TestDigestWindow_ClearEmptiesWindow(t *testing.T) {
	client, cleanup := setupDigestWindowTestRedis(t)
	defer cleanup()

	window := NewDigestWindow(client, time.Hour)
	jobID := uuid.New()

	require.NoError(t, window.Add(context.Background(), jobID, uuid.New()))
	require.NoError(t, window.Clear(context.Background(), jobID))

	entries, err := window.Entries(context.Background(), jobID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDigestWindow_WindowsAreIsolatedPerJob(t *testing.T) {
	client, cleanup := setupDigestWindowTestRedis(t)
	defer cleanup()

	window := NewDigestWindow(client, time.Hour)
	jobA, jobB := uuid.New(), uuid.New()
	artifact := uuid.New()

	require.NoError(t, window.Add(context.Background(), jobA, artifact))

	entriesA, err := window.Entries(context.Background(), jobA)
	require.NoError(t, err)
	assert.Len(t, entriesA, 1)

	entriesB, err := window.Entries(context.Background(), jobB)
	require.NoError(t, err)
	assert.Empty(t, entriesB)
}

func TestFormatForDigest_EmptySet(t *testing.T) {
	formatted := FormatForDigest(nil)
	assert.Equal(t, "Nothing new since the last digest.", formatted)
}

func TestFormatForDigest_GroupsByContentType(t *testing.T) {
	artifacts := []models.ContentArtifact{
		{ContentType: models.ContentTypePDF, RawBody: "first pdf body"},
		{ContentType: models.ContentTypePDF, RawBody: "second pdf body"},
		{ContentType: models.ContentTypeURL, RawBody: "a url body"},
	}

	formatted := FormatForDigest(artifacts)
	assert.Contains(t, formatted, "### pdf")
	assert.Contains(t, formatted, "### url")
	assert.Contains(t, formatted, "first pdf body")
	assert.Contains(t, formatted, "a url body")
}

func TestFormatForDigest_PrefersSummarizeStepOutput(t *testing.T) {
	artifacts := []models.ContentArtifact{
		{
			ContentType: models.ContentTypeText,
			RawBody:     "the raw unsummarized text",
			ProcessingSteps: models.ProcessingStepList{
				{Step: "extract", Output: "extracted text"},
				{Step: "summarize", Output: "a short summary"},
			},
		},
	}

	formatted := FormatForDigest(artifacts)
	assert.Contains(t, formatted, "a short summary")
	assert.NotContains(t, formatted, "the raw unsummarized text")
}
