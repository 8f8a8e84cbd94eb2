package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"DecideInbox/internal/domain"
)

const defaultSystemPrompt = `You triage discoveries for a busy operator. For each numbered item decide how relevant it is to the operator's interests.
Answer with a JSON array only, one object per item in the same order:
[{"index": 0, "score": 0.0-1.0, "category": "opportunity|threat|trend|discussion|release|bug|idea|competitor|collaboration", "urgency": "low|medium|high|critical", "rationale": "one sentence", "summary": "one sentence", "suggested_action": "optional", "tags": ["..."]}]`

var (
	fenceExpr         = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	trailingCommaExpr = regexp.MustCompile(`,\s*([\]}])`)
)

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}

// buildUserPrompt renders the batch and its evaluation context.
func buildUserPrompt(items []domain.RawItem, evalCtx domain.EvalContext) string {
	var b strings.Builder
	if evalCtx.Aspect != "" {
		fmt.Fprintf(&b, "Perspective: %s\n", evalCtx.Aspect)
	}
	if len(evalCtx.Keywords) > 0 {
		fmt.Fprintf(&b, "Operator interests: %s\n", strings.Join(evalCtx.Keywords, ", "))
	}
	b.WriteString("\nItems:\n")
	for i, it := range items {
		fmt.Fprintf(&b, "\n[%d] %s\n", i, it.Title)
		if it.SourceName != "" {
			fmt.Fprintf(&b, "Source: %s (%s)\n", it.SourceName, it.SourceType)
		}
		if it.URL != "" {
			fmt.Fprintf(&b, "URL: %s\n", it.URL)
		}
		if it.Summary != "" {
			fmt.Fprintf(&b, "%s\n", it.Summary)
		}
	}
	fmt.Fprintf(&b, "\nReturn exactly %d objects.", len(items))
	return b.String()
}

type indexedEvaluation struct {
	Index *int `json:"index"`
	domain.Evaluation
}

// parseEvaluations extracts the JSON array from a model answer and aligns it
// with the n submitted items. Objects carrying an index are placed by it;
// others fill positions in order. Missing positions are an error.
func parseEvaluations(text string, n int) ([]domain.Evaluation, error) {
	raw := extractArray(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in model answer")
	}

	var parsed []indexedEvaluation
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("decode evaluations: %w", err)
	}

	out := make([]domain.Evaluation, n)
	filled := make([]bool, n)
	next := 0
	for _, p := range parsed {
		pos := next
		if p.Index != nil {
			pos = *p.Index
		}
		if pos < 0 || pos >= n || filled[pos] {
			continue
		}
		out[pos] = p.Evaluation.Normalize()
		filled[pos] = true
		next = pos + 1
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("model answer has no evaluation for item %d of %d", i, n)
		}
	}
	return out, nil
}

func extractArray(text string) string {
	if m := fenceExpr.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return trailingCommaExpr.ReplaceAllString(text[start:end+1], "$1")
}
