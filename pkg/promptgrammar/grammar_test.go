package promptgrammar

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtract(t *testing.T) {
	placeholders := Extract("Summarize {content} in {tone:optional} tone for {audience}.")
	require.Len(t, placeholders, 3)
	assert.Equal(t, Placeholder{Name: "content", Optional: false}, placeholders[0])
	assert.Equal(t, Placeholder{Name: "tone", Optional: true}, placeholders[1])
	assert.Equal(t, Placeholder{Name: "audience", Optional: false}, placeholders[2])
}

func TestRequiredAndOptional(t *testing.T) {
	required, optional := RequiredAndOptional("{a} and {b:optional} and {c}")
	assert.Equal(t, []string{"a", "c"}, required)
	assert.Equal(t, []string{"b"}, optional)
}

func TestValidateEmptyTemplate(t *testing.T) {
	result := Validate("   ")
	assert.False(t, result.Valid)
	assert.Contains(t, result.Errors, "template cannot be empty")
}

func TestValidateNoPlaceholdersWarns(t *testing.T) {
	result := Validate("a static template with no inputs")
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "template contains no placeholders")
}

func TestValidateMismatchedBraces(t *testing.T) {
	result := Validate("Summarize {content} and {more")
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "mismatched braces")
}

func TestValidateWhitespaceInName(t *testing.T) {
	result := Validate("Summarize {  content  }")
	assert.True(t, result.Valid)
	assert.Contains(t, result.Warnings, "some placeholders contain whitespace which may cause issues")
}

func TestRenderRequiredAndOptional(t *testing.T) {
	out, _, err := Render("Summarize {content} in a {tone:optional} tone.", map[string]string{
		"content": "the quarterly report",
	})
	require.NoError(t, err)
	assert.Equal(t, "Summarize the quarterly report in a  tone.", out)
}

func TestRenderMissingRequiredFails(t *testing.T) {
	_, _, err := Render("Summarize {content}", map[string]string{})
	assert.Error(t, err)
}

// TestRenderEmptyRequiredInputFailsWithEmptyInput covers the rendering
// algorithm's distinct EmptyInput case: present but blank after trim.
func TestRenderEmptyRequiredInputFailsWithEmptyInput(t *testing.T) {
	_, _, err := Render("Summarize {content}", map[string]string{"content": "   "})
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRenderRejectsNilInputs(t *testing.T) {
	_, _, err := Render("Summarize {content}", nil)
	assert.ErrorIs(t, err, ErrNilInputs)
}

func TestRenderOptionalDefaultsToEmptyString(t *testing.T) {
	out, _, err := Render("{greeting:optional}Hello", map[string]string{})
	require.NoError(t, err)
	assert.Equal(t, "Hello", out)
}

func TestRenderMixedRequiredAndUnmetOptional(t *testing.T) {
	out, _, err := Render("Hello {name}, you are {role:optional}.", map[string]string{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada, you are .", out)
}

// TestRenderReportsNoWarningsWhenEveryPlaceholderIsSatisfied covers the
// rendering algorithm's final step for the common case: since
// required/optional inputs are derived directly from the template, a
// fully-satisfied render never leaves a warning behind.
func TestRenderReportsNoWarningsWhenEveryPlaceholderIsSatisfied(t *testing.T) {
	out, warnings, err := Render("{a} and {b}", map[string]string{"a": "x", "b": "y"})
	require.NoError(t, err)
	assert.Equal(t, "x and y", out)
	assert.Empty(t, warnings)
}
