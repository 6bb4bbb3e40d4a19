// Package generation builds the answer prompt and sends it to a text-generation backend.
package generation

import (
	"bytes"
	"strings"
	"text/template"
)

const (
	contextHeader = "Context from the video (with timestamps in seconds):\n"
	questionLabel = "\n\nUser question: "
)

var promptTemplate = template.Must(template.New("prompt").Parse(
	`You are a helpful assistant that answers questions about a YouTube video based on its transcript.

` + contextHeader + `{{.Context}}` + questionLabel + `{{.Question}}

Please provide a helpful answer based on the context above. If you reference specific information, mention the approximate timestamp. If the context doesn't contain enough information to answer the question, say so politely.`))

// BuildPrompt fills the answer prompt with a rendered context block and the user's question.
func BuildPrompt(contextBlock, question string) string {
	var buf bytes.Buffer
	// Execute only fails on template or writer errors; neither can happen here.
	_ = promptTemplate.Execute(&buf, struct{ Context, Question string }{contextBlock, question})
	return buf.String()
}

// contextOf extracts the context block from a prompt built by BuildPrompt.
func contextOf(prompt string) string {
	_, rest, ok := strings.Cut(prompt, contextHeader)
	if !ok {
		return ""
	}
	block, _, _ := strings.Cut(rest, questionLabel)
	return block
}
