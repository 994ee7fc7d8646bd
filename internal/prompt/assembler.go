// Package prompt assembles the system instruction sent to the model
// from the base prompt, the knowledge sources and the letter templates.
package prompt

import (
	"fmt"
	"strings"

	"relatore/internal/knowledge"
)

const (
	sourcePreamble   = "\n\nUse the following knowledge sources as authoritative reference material when answering:"
	templatePreamble = "\n\nThe following letter templates are available. When the user names one of them, structure your answer using that template's content:"
)

// Assemble builds the instruction text. The output is deterministic:
// the same base, sources and templates, in the same order, always
// produce the same string. Documents are not sorted; caller order is
// authoritative.
func Assemble(base string, sources, templates []knowledge.Document) string {
	var b strings.Builder
	b.WriteString(base)

	if len(sources) > 0 {
		b.WriteString(sourcePreamble)
		for _, doc := range sources {
			writeBlock(&b, "KNOWLEDGE SOURCE", doc)
		}
	}

	if len(templates) > 0 {
		b.WriteString(templatePreamble)
		for _, doc := range templates {
			writeBlock(&b, "LETTER TEMPLATE", doc)
		}
	}

	return b.String()
}

func writeBlock(b *strings.Builder, kind string, doc knowledge.Document) {
	fmt.Fprintf(b, "\n\n--- BEGIN %s: %s ---\n", kind, doc.Name)
	b.WriteString(doc.Text)
	fmt.Fprintf(b, "\n--- END %s: %s ---", kind, doc.Name)
}
