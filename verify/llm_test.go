package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/evalmesh/core"
)

func TestLLMTool_ParsesJSONResponse(t *testing.T) {
	tool := NewLLMTool(&staticRunner{text: `{"verdict": "SUPPORTED", "confidence": 0.7}`})

	outcome, err := tool.Verify(context.Background(), "Water boils at 100 degrees Celsius.")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictSupported, outcome.Verdict)
	assert.InDelta(t, 0.7, outcome.Confidence, 0.0001)
}

func TestLLMTool_ConfidenceIsCapped(t *testing.T) {
	tool := NewLLMTool(&staticRunner{text: `{"verdict": "REFUTED", "confidence": 1.0}`})

	outcome, err := tool.Verify(context.Background(), "The moon is made of cheese.")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictRefuted, outcome.Verdict)
	assert.InDelta(t, 0.8, outcome.Confidence, 0.0001)
}

func TestLLMTool_KeywordFallback(t *testing.T) {
	tool := NewLLMTool(&staticRunner{text: "That claim is clearly REFUTED by basic physics."})

	outcome, err := tool.Verify(context.Background(), "Any claim")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictRefuted, outcome.Verdict)
	assert.InDelta(t, 0.5, outcome.Confidence, 0.0001)
}

func TestLLMTool_UnparseableIsUnverifiable(t *testing.T) {
	tool := NewLLMTool(&staticRunner{text: "I cannot really say."})

	outcome, err := tool.Verify(context.Background(), "Any claim")
	require.NoError(t, err)
	assert.Equal(t, core.VerdictUnverifiable, outcome.Verdict)
}
