package planner

import (
	"regexp"
	"strings"
)

// FallbackPlanner produces a plausible, always-safe Plan without calling
// the LLM. It is used when the LLM backend is known to be unavailable
// (e.g. missing API key in a degraded deployment) so the service can
// still answer the small set of questions its rules recognize instead of
// failing every request outright.
type FallbackPlanner struct {
	Table string
}

// NewFallbackPlanner builds a FallbackPlanner targeting the given
// fully-qualified table.
func NewFallbackPlanner(table string) *FallbackPlanner {
	return &FallbackPlanner{Table: table}
}

var symbolPattern = regexp.MustCompile(`(?i)\b(USDC|WETH|ETH|WBTC|DAI|USDT)\b`)

// Plan produces a rule-based best-effort query. Confidence is intentionally
// low; callers should prefer the LLM Planner whenever it is available.
func (f *FallbackPlanner) Plan(question string) Plan {
	symbol := "USDC"
	if m := symbolPattern.FindString(question); m != "" {
		symbol = strings.ToUpper(m)
		if symbol == "ETH" {
			symbol = "WETH"
		}
	}

	protocol := "aave"

	sql := "SELECT ts, utilization FROM " + f.Table +
		" WHERE protocol = '" + protocol + "' AND symbol = '" + symbol + "'" +
		" ORDER BY ts DESC LIMIT 1"

	return Plan{
		Domain: "lending",
		Reason: "rule-based fallback: LLM backend unavailable",
		SQL:    sql,
	}
}
