package question

import (
	"encoding/json"
	"regexp"
	"strings"
)

var (
	thinkBlockRe = regexp.MustCompile(`(?s)<think>.*?</think>`)
	codeFenceRe  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*?\\})\\s*\\n?```")
)

// extractJSON pulls a JSON object out of a model response.
//
// Reasoning models wrap drafts in <think> blocks that can contain
// JSON-like fragments, so those are stripped first. A code-fenced object
// is the most reliable signal and is tried next. Failing that, every
// balanced top-level {…} block is tried last-first, since models often
// draft partial JSON before the final answer.
func extractJSON(text string) map[string]any {
	text = strings.TrimSpace(thinkBlockRe.ReplaceAllString(text, ""))

	if m := codeFenceRe.FindStringSubmatch(text); m != nil {
		if obj := tryUnmarshal(m[1]); obj != nil {
			return obj
		}
	}

	candidates := findJSONObjects(text)
	for i := len(candidates) - 1; i >= 0; i-- {
		if obj := tryUnmarshal(candidates[i]); obj != nil {
			return obj
		}
	}
	return nil
}

func tryUnmarshal(s string) map[string]any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil
	}
	return obj
}

// findJSONObjects returns all balanced top-level {…} substrings of text,
// tracking string literals and escapes so braces inside strings do not
// affect the depth count.
func findJSONObjects(text string) []string {
	var results []string
	i := 0
	for i < len(text) {
		if text[i] != '{' {
			i++
			continue
		}
		depth := 0
		inStr := false
		escape := false
		closed := false
		for j := i; j < len(text); j++ {
			ch := text[j]
			if escape {
				escape = false
				continue
			}
			switch {
			case ch == '\\':
				escape = true
			case ch == '"':
				inStr = !inStr
			case inStr:
			case ch == '{':
				depth++
			case ch == '}':
				depth--
				if depth == 0 {
					results = append(results, text[i:j+1])
					i = j + 1
					closed = true
				}
			}
			if closed {
				break
			}
		}
		if !closed {
			// unbalanced, skip this opening brace
			i++
		}
	}
	return results
}
