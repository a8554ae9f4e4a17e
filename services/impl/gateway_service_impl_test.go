package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bluelabel/contentmind/models"
)

func TestGatewayClassify_PDFAttachmentWinsOverEverything(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{
		Body:        "research: what is this? https://example.com",
		Attachments: []models.AttachmentRef{{ContentType: "application/pdf"}},
	})
	assert.Equal(t, models.ContentTypePDF, contentType)
	assert.Equal(t, models.AgentKindContentMind, agent)
}

func TestGatewayClassify_AudioAttachment(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{
		Attachments: []models.AttachmentRef{{ContentType: "audio/mpeg"}},
	})
	assert.Equal(t, models.ContentTypeAudio, contentType)
	assert.Equal(t, models.AgentKindContentMind, agent)
}

func TestGatewayClassify_URLInBody(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{Body: "check this out: https://example.com/article"})
	assert.Equal(t, models.ContentTypeURL, contentType)
	assert.Equal(t, models.AgentKindContentMind, agent)
}

func TestGatewayClassify_ResearchKeywordRoutesToResearcher(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{Subject: "Research: moon landing"})
	assert.Equal(t, models.ContentTypeQuery, contentType)
	assert.Equal(t, models.AgentKindResearcher, agent)
}

func TestGatewayClassify_QuestionMarkRoutesToResearcher(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{Body: "What time is it?"})
	assert.Equal(t, models.ContentTypeQuery, contentType)
	assert.Equal(t, models.AgentKindResearcher, agent)
}

func TestGatewayClassify_PlainTextDefaultsToContentMind(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{Body: "just a note to self"})
	assert.Equal(t, models.ContentTypeText, contentType)
	assert.Equal(t, models.AgentKindContentMind, agent)
}

// A messaging body made of several newline-separated URL lines is
// classified social (a fused thread), not a single url.
func TestGatewayClassify_ThreadOfURLsRoutesAsSocial(t *testing.T) {
	gw := &gatewayServiceImpl{}
	contentType, agent := gw.Classify(models.IngestRequest{
		Body: "https://a/1\nhttps://a/2\nhttps://a/3",
	})
	assert.Equal(t, models.ContentTypeSocial, contentType)
	assert.Equal(t, models.AgentKindContentMind, agent)
}

func TestIsThread_MultipleURLLinesMarkedAsThread(t *testing.T) {
	assert.True(t, isThread("https://example.com/1\nhttps://example.com/2\nhttps://example.com/3"))
}

func TestIsThread_SingleURLIsNotAThread(t *testing.T) {
	assert.False(t, isThread("https://example.com/1"))
}

func TestIsThread_MixedContentIsNotAThread(t *testing.T) {
	assert.False(t, isThread("https://example.com/1\njust some prose"))
}
