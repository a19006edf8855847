package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/model"
)

func TestExtract_JSONEnvelope(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")
	output := "Paris is the capital of France. It has two million inhabitants."
	judge.AddResponse(promptFor(output),
		`{"claims": ["Paris is the capital of France", "Paris has two million inhabitants"]}`)

	e := New(judge)
	claims, err := e.Extract(context.Background(), output, 1, 2)

	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "Paris is the capital of France", claims[0].Text)
	assert.Equal(t, 1, claims[0].ExampleIndex)
	assert.Equal(t, 2, claims[0].RepeatIndex)
	assert.NotEmpty(t, claims[0].Fingerprint)
}

func TestExtract_ToleratesSurroundingProse(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")
	judge.AddResponse(promptFor("some text"),
		"Here are the claims:\n```json\n{\"claims\": [\"Water boils at 100 degrees Celsius\"]}\n```")

	e := New(judge)
	claims, err := e.Extract(context.Background(), "some text", 0, 0)

	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "Water boils at 100 degrees Celsius", claims[0].Text)
}

func TestExtract_FallbackLineParsing(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")
	judge.AddResponse(promptFor("some text"),
		"- The Nile flows through Egypt\n- The Amazon is in South America\n")

	e := New(judge)
	claims, err := e.Extract(context.Background(), "some text", 0, 0)

	require.NoError(t, err)
	require.Len(t, claims, 2)
	assert.Equal(t, "The Nile flows through Egypt", claims[0].Text)
}

func TestExtract_DedupesByFingerprint(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")
	judge.AddResponse(promptFor("some text"),
		`{"claims": ["The Earth orbits the Sun.", "the earth orbits the sun", "The Sun is a star."]}`)

	e := New(judge)
	claims, err := e.Extract(context.Background(), "some text", 0, 0)

	require.NoError(t, err)
	require.Len(t, claims, 2)
	// First occurrence wins, order stays stable.
	assert.Equal(t, "The Earth orbits the Sun.", claims[0].Text)
	assert.Equal(t, "The Sun is a star.", claims[1].Text)
}

func TestExtract_FiltersShortFragments(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")
	judge.AddResponse(promptFor("some text"),
		`{"claims": ["Yes.", "The Pacific is the largest ocean"]}`)

	e := New(judge)
	claims, err := e.Extract(context.Background(), "some text", 0, 0)

	require.NoError(t, err)
	require.Len(t, claims, 1)
	assert.Equal(t, "The Pacific is the largest ocean", claims[0].Text)
}

func TestExtract_EmptyTextNoJudgeCall(t *testing.T) {
	judge := model.NewMockRunner("judge", "mock")

	e := New(judge)
	claims, err := e.Extract(context.Background(), "   ", 0, 0)

	require.NoError(t, err)
	assert.Empty(t, claims)
	assert.Equal(t, 0, judge.CallCount())
}

func promptFor(text string) string {
	return "Extract every discrete, independently checkable factual claim from the text below.\nRules:\n- One claim per entry, self-contained, no pronouns referring outside the claim.\n- Skip opinions, hedges and instructions.\n- Respond with JSON only: {\"claims\": [\"claim one\", \"claim two\"]}\n\nText:\n" + text
}
