package coordinator

import (
	"regexp"
	"strings"
)

var whitespacePattern = regexp.MustCompile(`\s+`)

var typoReplacer = strings.NewReplacer(
	"utillization", "utilization",
	"utilzation", "utilization",
	"utiliztion", "utilization",
	"utilisation", "utilization",
)

var tickerPattern = regexp.MustCompile(`(?i)\b(usdc|weth|eth|wbtc|dai|usdt)\b`)

// NormalizeQuestion collapses whitespace, fixes a small set of recurring
// typos, upper-cases known asset tickers, and maps ETH to WETH so the
// Planner and fast paths see a consistent surface form.
func NormalizeQuestion(question string) string {
	q := strings.TrimSpace(question)
	q = whitespacePattern.ReplaceAllString(q, " ")
	q = typoReplacer.Replace(q)

	q = tickerPattern.ReplaceAllStringFunc(q, func(m string) string {
		upper := strings.ToUpper(m)
		if upper == "ETH" {
			return "WETH"
		}

		return upper
	})

	return q
}
