package coordinator

import (
	"fmt"
	"regexp"
	"strings"
)

var latestPattern = regexp.MustCompile(`(?i)\b(latest|most recent|current)\b`)

var symbolPattern = regexp.MustCompile(`(?i)\b(USDC|WETH|WBTC|DAI|USDT)\b`)

var protocolPattern = regexp.MustCompile(`(?i)\b(aave|compound|uniswap|curve)\b`)

// FastPathResult is a hand-written query synthesized directly from the
// question, bypassing the Planner and HeuristicRewriter.
type FastPathResult struct {
	Domain string
	SQL    string
	Symbol string
}

// MatchFastPath recognizes "latest/most recent/current" questions about
// one of four well-known domains and synthesizes the query directly. The
// synthesized SQL is hand-written to pass the Guard trivially, but still
// flows through Guard and Executor like any other candidate.
func MatchFastPath(question string) (FastPathResult, bool) {
	if !latestPattern.MatchString(question) {
		return FastPathResult{}, false
	}

	symbol := "USDC"
	if m := symbolPattern.FindString(question); m != "" {
		symbol = strings.ToUpper(m)
	}

	protocol := "aave"
	if m := protocolPattern.FindString(question); m != "" {
		protocol = strings.ToLower(m)
	}

	lower := strings.ToLower(question)

	switch {
	case strings.Contains(lower, "utilization"):
		return FastPathResult{
			Domain: "lending_utilization",
			Symbol: symbol,
			SQL: fmt.Sprintf(
				"SELECT ts, utilization, ROUND(utilization*100,2) AS utilization_pct FROM public.market_data WHERE protocol='%s' AND symbol='%s' ORDER BY ts DESC LIMIT 1",
				protocol, symbol,
			),
		}, true

	case strings.Contains(lower, "borrow_apy") || strings.Contains(lower, "borrow apy") || strings.Contains(lower, "borrow rate"):
		return FastPathResult{
			Domain: "lending_borrow_apy",
			Symbol: symbol,
			SQL: fmt.Sprintf(
				"SELECT ts, borrow_apy, ROUND(borrow_apy*100,2) AS borrow_apy_pct FROM public.market_data WHERE protocol='%s' AND symbol='%s' ORDER BY ts DESC LIMIT 1",
				protocol, symbol,
			),
		}, true

	case strings.Contains(lower, "price"):
		return FastPathResult{
			Domain: "spot_price",
			Symbol: symbol,
			SQL: fmt.Sprintf(
				"SELECT ts, price_usd FROM public.market_data WHERE protocol='%s' AND symbol='%s' ORDER BY ts DESC LIMIT 1",
				protocol, symbol,
			),
		}, true

	case strings.Contains(lower, "volume"):
		return FastPathResult{
			Domain: "dex_volume",
			Symbol: symbol,
			SQL: fmt.Sprintf(
				"SELECT day, volume_usd FROM public.dex_volume_daily WHERE symbol='%s' ORDER BY day DESC LIMIT 1",
				symbol,
			),
		}, true

	default:
		return FastPathResult{}, false
	}
}
