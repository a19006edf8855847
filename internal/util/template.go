package util

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`\{\{.*?\}\}`)

// RenderPrompt substitutes one example input into the prompt template.
// Placeholders use {{name}} syntax. Substitution order:
//  1. If the input content parses as a JSON object, each {{key}} is replaced
//     by its value.
//  2. {{}} and {{input}} are replaced by the raw content.
//  3. A template without any placeholder gets the content appended after a
//     blank line, so placeholder-free prompts still see the input.
//
// This lives in internal to avoid committing to public API stability
// prematurely.
func RenderPrompt(prompt, inputContent string) string {
	result := prompt
	hasPlaceholder := placeholderRe.MatchString(prompt)

	var data map[string]any
	if err := json.Unmarshal([]byte(inputContent), &data); err == nil {
		for key, value := range data {
			result = strings.ReplaceAll(result, "{{"+key+"}}", fmt.Sprintf("%v", value))
		}
	}

	result = strings.ReplaceAll(result, "{{}}", inputContent)
	result = strings.ReplaceAll(result, "{{input}}", inputContent)

	if !hasPlaceholder {
		result = result + "\n\n" + inputContent
	}

	return result
}
