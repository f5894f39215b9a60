package graph

import (
	"strings"
	"text/template"
	"time"
)

// DefaultSystemPrompt is the baseline instruction template. LongTermMemory
// receives the rendered memory context (or the no-memory placeholder).
const DefaultSystemPrompt = `You are a helpful assistant. Answer clearly and concisely, and use the available tools when they help you answer.

Here is what you remember about this user:
{{.LongTermMemory}}

Today's date is {{.Date}}.`

type promptData struct {
	LongTermMemory string
	Date           string
}

// parsePrompt compiles the system prompt template once at agent construction.
func parsePrompt(text string) (*template.Template, error) {
	return template.New("system_prompt").Parse(text)
}

// renderPrompt produces the system prompt for one generate step.
func renderPrompt(tpl *template.Template, memoryContext string) (string, error) {
	var b strings.Builder
	err := tpl.Execute(&b, promptData{
		LongTermMemory: memoryContext,
		Date:           time.Now().Format("2006-01-02"),
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}
