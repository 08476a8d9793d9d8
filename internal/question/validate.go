package question

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"lexvoss/pkg/vocab"
)

// draft is a stage-one question candidate after validation and repair.
type draft struct {
	Stem            string
	Choices         []string
	CorrectIndex    int
	Explanation     string
	ContextSentence string
}

var (
	longBlankRe    = regexp.MustCompile(`_{4,}`)
	bracketBlankRe = regexp.MustCompile(`(?i)\[blank\]`)
	parenBlankRe   = regexp.MustCompile(`(?i)\(blank\)`)
	articleAnRe    = regexp.MustCompile(`\b([Aa])n ___`)
	articleARe     = regexp.MustCompile(`\b([Aa]) ___`)
)

// validateQuestion checks a parsed stage-one response against the target
// word and repairs minor issues in place: string correct_index coercion,
// re-pointing the index at the target (exact or inflected match), blank
// marker normalization, and the a(n) article fix. A non-empty reason
// string describes the first unrepairable failure, phrased for feeding
// back to the model.
func validateQuestion(data map[string]any, targetWord string, questionType vocab.QuestionType) (*draft, string) {
	var missing []string
	for _, f := range []string{"stem", "choices", "correct_index", "explanation", "context_sentence"} {
		if _, ok := data[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, "missing fields: " + strings.Join(missing, ", ")
	}

	choices, ok := toStringSlice(data["choices"])
	if !ok || len(choices) != 4 {
		return nil, fmt.Sprintf("choices must be list of 4 (got %v)", data["choices"])
	}

	ci, ok := toIndex(data["correct_index"])
	if !ok {
		return nil, fmt.Sprintf("correct_index not an int (got %v)", data["correct_index"])
	}
	if ci < 0 || ci >= 4 {
		return nil, fmt.Sprintf("correct_index out of range: %d", ci)
	}

	target := strings.ToLower(strings.TrimSpace(targetWord))
	if strings.ToLower(strings.TrimSpace(choices[ci])) != target {
		fixed := false
		for i, ch := range choices {
			if strings.ToLower(strings.TrimSpace(ch)) == target {
				ci = i
				fixed = true
				break
			}
		}
		if !fixed {
			for i, ch := range choices {
				if isInflection(strings.ToLower(strings.TrimSpace(ch)), target) {
					ci = i
					fixed = true
					break
				}
			}
		}
		if !fixed {
			return nil, fmt.Sprintf(
				"The target word '%s' MUST be one of the 4 choices and correct_index must point to it. "+
					"Your choices were: [%s] — '%s' is missing.",
				targetWord, strings.Join(choices, ", "), targetWord)
		}
	}

	seen := make(map[string]bool, 4)
	for _, ch := range choices {
		key := strings.ToLower(strings.TrimSpace(ch))
		if seen[key] {
			return nil, "duplicate choices: " + key
		}
		seen[key] = true
	}

	stem, _ := data["stem"].(string)
	if questionType == vocab.FillBlank && !strings.Contains(stem, "___") {
		normalized := longBlankRe.ReplaceAllString(stem, "___")
		normalized = bracketBlankRe.ReplaceAllString(normalized, "___")
		normalized = parenBlankRe.ReplaceAllString(normalized, "___")
		if !strings.Contains(normalized, "___") {
			short := stem
			if len(short) > 80 {
				short = short[:80]
			}
			return nil, fmt.Sprintf("stem has no blank marker: %q", short)
		}
		stem = normalized
	}

	ctxSentence, _ := data["context_sentence"].(string)
	if !contextMentionsTarget(ctxSentence, target) {
		return nil, fmt.Sprintf("context_sentence missing target word '%s'", targetWord)
	}

	if questionType == vocab.FillBlank {
		stem = fixArticleBeforeBlank(stem, choices)
	}

	explanation, _ := data["explanation"].(string)
	return &draft{
		Stem:            stem,
		Choices:         choices,
		CorrectIndex:    ci,
		Explanation:     explanation,
		ContextSentence: ctxSentence,
	}, ""
}

// contextMentionsTarget accepts the exact target or a morphological form
// sharing the target's root (trailing inflection letters stripped).
func contextMentionsTarget(sentence, target string) bool {
	lower := strings.ToLower(sentence)
	if strings.Contains(lower, target) {
		return true
	}
	root := strings.TrimRight(target, "edsying")
	if len(root) < 3 {
		return false
	}
	for _, w := range strings.Fields(lower) {
		if strings.Contains(w, root) {
			return true
		}
	}
	return false
}

// fixArticleBeforeBlank rewrites "a ___" or "an ___" to "a(n) ___" when
// the choices mix vowel and consonant initials, so the article does not
// leak the answer.
func fixArticleBeforeBlank(stem string, choices []string) string {
	hasVowel, hasConsonant := false, false
	for _, c := range choices {
		if c == "" {
			continue
		}
		if strings.ContainsRune("aeiou", rune(strings.ToLower(c)[0])) {
			hasVowel = true
		} else {
			hasConsonant = true
		}
	}
	if !hasVowel || !hasConsonant {
		return stem
	}
	stem = articleAnRe.ReplaceAllString(stem, "${1}(n) ___")
	stem = articleARe.ReplaceAllString(stem, "${1}(n) ___")
	return stem
}

// isInflection reports whether candidate is a plausible regular English
// inflection of base: simple suffixes, the e-dropping pattern
// ("cajole" → "cajoled", "explicate" → "explicating"), and y→i
// ("carry" → "carried").
func isInflection(candidate, base string) bool {
	if candidate == base {
		return true
	}
	if strings.HasPrefix(candidate, base) {
		switch candidate[len(base):] {
		case "s", "es", "ed", "d", "ing", "ly", "er", "est",
			"tion", "ment", "ness", "ous", "ive", "al":
			return true
		}
		return false
	}
	if strings.HasSuffix(base, "e") && strings.HasPrefix(candidate, base[:len(base)-1]) {
		switch candidate[len(base)-1:] {
		case "ing", "ed", "er", "est", "ation", "ive", "ous", "able", "ible":
			return true
		}
		return false
	}
	if strings.HasSuffix(base, "y") && strings.HasPrefix(candidate, base[:len(base)-1]+"i") {
		switch candidate[len(base):] {
		case "ed", "es", "er", "est", "ness", "ly":
			return true
		}
	}
	return false
}

func toStringSlice(v any) ([]string, bool) {
	raw, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, len(raw))
	for i, e := range raw {
		s, ok := e.(string)
		if !ok {
			return nil, false
		}
		out[i] = s
	}
	return out, true
}

// toIndex accepts a JSON number or a numeric string. Models frequently
// quote the index.
func toIndex(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// validateEnrichment checks a stage-two choice_details payload. A
// non-empty return describes every field error, one per line, for
// feeding back to the model.
func validateEnrichment(details []any, expected int) string {
	if len(details) != expected {
		return fmt.Sprintf("expected %d choice_details, got %d", expected, len(details))
	}
	var problems []string
	for i, d := range details {
		obj, ok := d.(map[string]any)
		if !ok {
			problems = append(problems, fmt.Sprintf("  detail[%d]: expected object", i))
			continue
		}
		var missing []string
		for _, f := range []string{"word", "base_word", "meaning", "distinction", "why"} {
			if _, ok := obj[f]; !ok {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			word, _ := obj["word"].(string)
			if word == "" {
				word = "?"
			}
			problems = append(problems, fmt.Sprintf("  detail[%d] (%s): missing %s", i, word, strings.Join(missing, ", ")))
		}
	}
	if len(problems) > 0 {
		return "field errors:\n" + strings.Join(problems, "\n")
	}
	return ""
}
