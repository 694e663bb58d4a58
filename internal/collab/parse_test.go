package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/introweave/matchmaker/internal/collab"
)

func TestExtractTag(t *testing.T) {
	body := "noise <score> 87 </score> trailing"

	val, ok := collab.ExtractTag(body, "score")
	require.True(t, ok)
	assert.Equal(t, "87", val)

	_, ok = collab.ExtractTag(body, "missing")
	assert.False(t, ok)

	// unterminated tag reports absence rather than the tail
	_, ok = collab.ExtractTag("<score>55", "score")
	assert.False(t, ok)
}

func TestParseMatchSelection(t *testing.T) {
	body := `
Here is my analysis.
<bestMatch>user-7</bestMatch>
<score>72</score>
<reasoning>Both are into coops and infra.</reasoning>`

	sel, err := collab.ParseMatchSelection(body)
	require.NoError(t, err)
	assert.Equal(t, "user-7", sel.CandidateID)
	assert.Equal(t, 72, sel.Score)
	assert.Equal(t, "Both are into coops and infra.", sel.Reasoning)
	assert.False(t, sel.None)
}

func TestParseMatchSelectionNoneSentinel(t *testing.T) {
	sel, err := collab.ParseMatchSelection("<bestMatch>NONE</bestMatch>")
	require.NoError(t, err)
	assert.True(t, sel.None)
}

func TestParseMatchSelectionMalformed(t *testing.T) {
	// missing score
	_, err := collab.ParseMatchSelection("<bestMatch>user-1</bestMatch>")
	assert.ErrorIs(t, err, collab.ErrMissingField)

	// non-numeric score
	_, err = collab.ParseMatchSelection("<bestMatch>user-1</bestMatch><score>high</score>")
	assert.ErrorIs(t, err, collab.ErrMissingField)

	// no tags at all
	_, err = collab.ParseMatchSelection("I could not decide.")
	assert.ErrorIs(t, err, collab.ErrMissingField)
}

func TestParseMatchSelectionClampsScore(t *testing.T) {
	sel, err := collab.ParseMatchSelection("<bestMatch>u</bestMatch><score>140</score>")
	require.NoError(t, err)
	assert.Equal(t, 100, sel.Score)
}

func TestParseContextSummary(t *testing.T) {
	body := `<personaContext>Engineer, climber.</personaContext>
<connectionContext>Wants OSS collaborators.</connectionContext>`

	sum, err := collab.ParseContextSummary(body)
	require.NoError(t, err)
	assert.Equal(t, "Engineer, climber.", sum.Persona)
	assert.Equal(t, "Wants OSS collaborators.", sum.Connection)

	_, err = collab.ParseContextSummary("<personaContext>only half</personaContext>")
	assert.ErrorIs(t, err, collab.ErrMissingField)
}
