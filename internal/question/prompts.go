package question

import (
	_ "embed"
	"fmt"
	"strings"

	"lexvoss/pkg/vocab"
)

// Prompt templates. Each question-type template is preceded by a shared
// persona introduction and carries {placeholder} tokens filled by
// renderPrompt. The trailing "```json" line primes the model to open a
// fenced JSON block immediately.
var (
	//go:embed prompts/intro.txt
	promptIntro string

	//go:embed prompts/fill_blank.txt
	fillBlankPrompt string

	//go:embed prompts/best_fit.txt
	bestFitPrompt string

	//go:embed prompts/distinction.txt
	distinctionPrompt string

	//go:embed prompts/enrichment.txt
	enrichmentPrompt string
)

func promptForType(t vocab.QuestionType) string {
	var body string
	switch t {
	case vocab.BestFit:
		body = bestFitPrompt
	case vocab.Distinction:
		body = distinctionPrompt
	default:
		body = fillBlankPrompt
	}
	return strings.TrimSpace(promptIntro) + "\n\n" + body
}

// renderPrompt substitutes {name} tokens in tmpl.
func renderPrompt(tmpl string, vars map[string]string) string {
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// formatClusterInfo renders cluster entries as the bullet list the
// few-shot examples use.
func formatClusterInfo(entries []vocab.ClusterEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- **%s**: %s — %s", e.Word, e.Meaning, e.Distinction)
	}
	return b.String()
}

// formatEnrichment renders the optional extra-vocabulary section. Empty
// input yields an empty section.
func formatEnrichment(words []vocab.Word) string {
	if len(words) == 0 {
		return ""
	}
	parts := make([]string, len(words))
	for i, w := range words {
		def := w.Definition
		if len(def) > 60 {
			def = def[:60]
		}
		parts[i] = fmt.Sprintf("**%s** (%s)", w.Word, def)
	}
	return "For richer context, you may weave in these vocabulary words: " +
		strings.Join(parts, ", ") +
		"\nBut only if they fit naturally — do not force them."
}
