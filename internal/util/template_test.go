package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderPrompt(t *testing.T) {
	t.Run("input placeholder", func(t *testing.T) {
		got := RenderPrompt("Summarize: {{input}}", "some text")
		assert.Equal(t, "Summarize: some text", got)
	})

	t.Run("empty placeholder", func(t *testing.T) {
		got := RenderPrompt("Summarize: {{}}", "some text")
		assert.Equal(t, "Summarize: some text", got)
	})

	t.Run("json keys", func(t *testing.T) {
		got := RenderPrompt("Translate {{text}} into {{language}}", `{"text": "hello", "language": "German"}`)
		assert.Equal(t, "Translate hello into German", got)
	})

	t.Run("no placeholder appends content", func(t *testing.T) {
		got := RenderPrompt("Summarize the following text.", "some text")
		assert.Equal(t, "Summarize the following text.\n\nsome text", got)
	})

	t.Run("unknown key stays verbatim", func(t *testing.T) {
		got := RenderPrompt("Value: {{missing}}", `{"other": 1}`)
		assert.Equal(t, "Value: {{missing}}", got)
	})

	t.Run("non-json content only fills input placeholders", func(t *testing.T) {
		got := RenderPrompt("{{name}} says {{input}}", "plain content")
		assert.Equal(t, "{{name}} says plain content", got)
	})

	t.Run("numeric json values", func(t *testing.T) {
		got := RenderPrompt("Count: {{n}}", `{"n": 3}`)
		assert.Equal(t, "Count: 3", got)
	})
}
