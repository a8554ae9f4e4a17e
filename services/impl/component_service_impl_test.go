package impl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluelabel/contentmind/models"
)

func TestBumpPatch(t *testing.T) {
	assert.Equal(t, "1.0.1", bumpPatch("1.0.0"))
	assert.Equal(t, "2.3.10", bumpPatch("2.3.9"))
}

func TestBumpPatch_MalformedVersionResets(t *testing.T) {
	assert.Equal(t, "1.0.0", bumpPatch("not-a-version"))
	assert.Equal(t, "1.0.0", bumpPatch("1.0"))
}

func TestUpdateChangesAnything_EmptyRequestIsNoop(t *testing.T) {
	component := &models.PromptComponent{
		Name:     "greeting",
		Template: "Hello {name}",
		Tags:     mustJSON([]string{"demo"}),
		Metadata: mustJSON(map[string]any{}),
	}
	assert.False(t, updateChangesAnything(component, models.UpdateComponentRequest{}))
}

func TestUpdateChangesAnything_SameValuesAreNoop(t *testing.T) {
	name := "greeting"
	template := "Hello {name}"
	component := &models.PromptComponent{
		Name:     name,
		Template: template,
		Tags:     mustJSON([]string{"demo"}),
		Metadata: mustJSON(map[string]any{}),
	}
	req := models.UpdateComponentRequest{
		Name:     &name,
		Template: &template,
		Tags:     []string{"demo"},
	}
	assert.False(t, updateChangesAnything(component, req))
}

func TestUpdateChangesAnything_DetectsTemplateChange(t *testing.T) {
	component := &models.PromptComponent{Name: "greeting", Template: "Hello {name}"}
	changed := "Goodbye {name}"
	assert.True(t, updateChangesAnything(component, models.UpdateComponentRequest{Template: &changed}))
}

func TestFilterByExpr_MatchesOnFields(t *testing.T) {
	candidates := []models.PromptComponent{
		{Name: "summarizer", Tags: mustJSON([]string{"digest"})},
		{Name: "tagger", Tags: mustJSON([]string{})},
	}

	matched, err := filterByExpr(candidates, `"digest" in Tags`)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	assert.Equal(t, "summarizer", matched[0].Name)
}

func TestFilterByExpr_InvalidExpressionErrors(t *testing.T) {
	_, err := filterByExpr(nil, "this is not ((( an expression")
	assert.Error(t, err)
}
