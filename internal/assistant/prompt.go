package assistant

import (
	"fmt"
	"strings"

	"github.com/ricesearch/support-context/internal/chatcontext"
)

const systemPrompt = `You are a customer support assistant.
Answer using only the numbered sources provided. Cite a source as [n] right after the statement it supports.
If the sources do not answer the question, say that you do not know and suggest contacting support.`

// RenderPrompt numbers sources from 1 in their ranked order so that [n]
// in the answer refers to sources[n-1].
func RenderPrompt(question string, sources []chatcontext.ContextSource) Prompt {
	var b strings.Builder

	if len(sources) == 0 {
		b.WriteString("No sources were found for this question.\n\n")
	} else {
		b.WriteString("Sources:\n\n")
		for i, src := range sources {
			fmt.Fprintf(&b, "[%d] %s\n%s\n\n", i+1, src.Title, strings.TrimSpace(src.Content))
		}
	}

	b.WriteString("Question: ")
	b.WriteString(strings.TrimSpace(question))

	return Prompt{
		System:      systemPrompt,
		User:        b.String(),
		Temperature: 0.2,
	}
}
