package generator

import "strings"

const (
	promptPreamble = "You are a helpful clinical assistant. Based on the following information, answer the user's question accurately and clearly."
	contextSep     = "\n---\n"
)

// BuildPrompt renders the question-answering prompt. Contexts are joined
// with a "---" separator line in retrieval order.
func BuildPrompt(query string, contexts []string) string {
	var b strings.Builder
	b.WriteString(promptPreamble)
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(contexts, contextSep))
	b.WriteString("\n\nQuestion: ")
	b.WriteString(query)
	b.WriteString("\nAnswer:")
	return b.String()
}
