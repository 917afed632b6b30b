package planner

import "fmt"

const systemPromptTemplate = `You convert a natural-language question about a DeFi data warehouse into a single read-only Postgres statement.

Routing rules:
- Questions about protocol utilization, borrow/supply APY, or spot price route to public.market_data.
- Questions about trading volume route to public.dex_volume_daily.

General constraints:
- Exactly one statement. CTEs are allowed.
- No comments, no trailing semicolon.
- Portable Postgres only — no vendor extensions outside the declared tables.
- Always include an explicit LIMIT.

Modeling rules:
- Filter by protocol when the question names one; default to 'aave' for lending questions if none is named.
- Asset symbols are upper-cased in the data (USDC, WETH, not usdc/weth). Normalize the question's ticker accordingly.
- Map ETH to WETH.
- utilization, borrow_apy, and supply_apy are fractions in [0,1], not percentages.

Respond with a JSON object only, either the bare form {"sql": "..."} or the richer form
{"domain": "...", "reason": "...", "sql": "...", "presentation": {"style": "concise|bulleted|headline", "include_fields": [...], "notes": "..."}}.

Declared schema:
%s`

// BuildSystemPrompt renders the system message, embedding the schema
// document produced by the SchemaRegistry.
func BuildSystemPrompt(schemaDoc string) string {
	return fmt.Sprintf(systemPromptTemplate, schemaDoc)
}

// BuildUserPrompt renders the user message for the initial planning call.
func BuildUserPrompt(question string) string {
	return fmt.Sprintf("Question: %s\n\nRespond with JSON only.", question)
}

// BuildRetryUserPrompt renders the user message for the single retry,
// including the failing SQL and the database's error message verbatim so
// the model can avoid repeating the mistake.
func BuildRetryUserPrompt(question, previousSQL, dbError string) string {
	return fmt.Sprintf(
		"Question: %s\n\nThe previous query failed to execute.\nPrevious SQL:\n%s\n\nDatabase error:\n%s\n\nProduce a corrected query that avoids this failure. Respond with JSON only.",
		question, previousSQL, dbError,
	)
}
