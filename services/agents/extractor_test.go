package agents

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLExtractor_PullsURLOutOfProse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><head><title>An Article</title></head><body><p>Hello world</p></body></html>")
	}))
	defer server.Close()

	extractor := NewURLExtractor(0)
	result, err := extractor.Extract(context.Background(), "See "+server.URL+" for details.")
	require.NoError(t, err)
	assert.Equal(t, "An Article", result.Title)
	assert.Contains(t, result.Text, "Hello world")
	assert.False(t, result.IsThread)
}

func TestURLExtractor_FusesMultipleURLsAsThread(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprintf(w, "<html><body>post %s</body></html>", r.URL.Path)
	}))
	defer server.Close()

	extractor := NewURLExtractor(0)
	result, err := extractor.Extract(context.Background(), server.URL+"/1\n"+server.URL+"/2")
	require.NoError(t, err)
	assert.True(t, result.IsThread)
	assert.Equal(t, 2, hits)
	assert.Contains(t, result.Text, "post /1")
	assert.Contains(t, result.Text, "post /2")
}

func TestURLExtractor_NoURLInContentFails(t *testing.T) {
	extractor := NewURLExtractor(0)
	_, err := extractor.Extract(context.Background(), "no links here")
	assert.Error(t, err)
}

func TestPDFExtractor_EmptyDocumentFails(t *testing.T) {
	_, err := NewPDFExtractor().Extract(context.Background(), "   ")
	assert.Error(t, err)
}

func TestAudioExtractor_PassesThroughTranscript(t *testing.T) {
	result, err := NewAudioExtractor().Extract(context.Background(), "a pre-transcribed recording")
	require.NoError(t, err)
	assert.Equal(t, "a pre-transcribed recording", result.Text)
}

func TestTextExtractor_PassesThrough(t *testing.T) {
	result, err := NewTextExtractor().Extract(context.Background(), "plain note")
	require.NoError(t, err)
	assert.Equal(t, "plain note", result.Text)
}
