package coordinator

import (
	"context"
	"fmt"
	"strings"

	"github.com/Aiuser8/thallos-llm-service/internal/executor"
)

const summarizeSystemPrompt = `You summarize a SQL query's result rows in 1-2 plain-English sentences. Refer only to numbers present in the rows. Do not invent data. Do not mention SQL or tables.`

// Summarize asks the LLM for a short natural-language answer grounded
// only in the returned rows. Summarization failures are never fatal —
// callers degrade to a canned "Returned N row(s)." answer.
func Summarize(ctx context.Context, llm llmCompleter, question string, rows []executor.Row) string {
	if llm == nil {
		return cannedAnswer(len(rows))
	}

	userPrompt := buildSummarizePrompt(question, rows)

	reply, err := llm.Complete(ctx, summarizeSystemPrompt, userPrompt)
	if err != nil || strings.TrimSpace(reply) == "" {
		return cannedAnswer(len(rows))
	}

	return strings.TrimSpace(reply)
}

func cannedAnswer(n int) string {
	if n == 1 {
		return "Returned 1 row."
	}

	return fmt.Sprintf("Returned %d row(s).", n)
}

func buildSummarizePrompt(question string, rows []executor.Row) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Question: %s\n\nRows:\n", question)

	limit := len(rows)
	if limit > 20 {
		limit = 20
	}

	for i := 0; i < limit; i++ {
		fmt.Fprintf(&b, "%v\n", rows[i])
	}

	if len(rows) == 0 {
		b.WriteString("(no rows)\n")
	}

	b.WriteString("\nRespond with 1-2 plain-English sentences only.")

	return b.String()
}
