package planner

import (
	"context"

	gwerrors "github.com/Aiuser8/thallos-llm-service/internal/errors"
)

// ChatCompleter is the narrow capability the Planner needs from an LLM
// client: a single system+user exchange returning raw text. Abstracting
// it behind an interface (rather than depending on *llmclient.Client
// directly) keeps the Planner testable without a live HTTP endpoint.
type ChatCompleter interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Planner builds prompts, invokes the LLM, and parses its structured
// reply into a Plan.
type Planner struct {
	llm ChatCompleter
}

// New builds a Planner around the given chat completion capability.
func New(llm ChatCompleter) *Planner {
	return &Planner{llm: llm}
}

// Plan produces the initial candidate for a normalized question.
func (p *Planner) Plan(ctx context.Context, question, schemaDoc string) (Plan, error) {
	reply, err := p.llm.Complete(ctx, BuildSystemPrompt(schemaDoc), BuildUserPrompt(question))
	if err != nil {
		return Plan{}, gwerrors.LLMFailure("plan", err)
	}

	plan, err := ParseReply(reply)
	if err != nil {
		return Plan{}, gwerrors.PlannerParseError(reply, err)
	}

	return plan, nil
}

// Retry produces a corrected candidate after an execution failure in a
// recoverable class, feeding the previous SQL and the database error
// back to the model.
func (p *Planner) Retry(ctx context.Context, question, schemaDoc, previousSQL, dbError string) (Plan, error) {
	reply, err := p.llm.Complete(ctx, BuildSystemPrompt(schemaDoc), BuildRetryUserPrompt(question, previousSQL, dbError))
	if err != nil {
		return Plan{}, gwerrors.LLMFailure("retry", err)
	}

	plan, err := ParseReply(reply)
	if err != nil {
		return Plan{}, gwerrors.PlannerParseError(reply, err)
	}

	return plan, nil
}
