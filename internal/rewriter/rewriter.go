// Package rewriter implements the HeuristicRewriter: a small, enumerated
// catalog of deterministic textual rewrites that patch recurring LLM
// modeling mistakes before the Guard ever sees the SQL. Every rule is
// idempotent and never touches the contents of a string literal.
package rewriter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TimeSeriesSpec describes a minutely table eligible for the hourly
// pre-aggregation rewrite (rule 3).
type TimeSeriesSpec struct {
	Table     string
	MetricCol string
	DimCols   []string
}

// Config supplies the schema-specific knowledge the rewriter needs:
// which columns are bounded fractions in [0,1], and which tables are
// minutely time series eligible for hourly pre-aggregation.
type Config struct {
	Bounded01Columns map[string]struct{}
	TimeSeries       []TimeSeriesSpec
}

var triggerWords = regexp.MustCompile(`(?i)\b(consecutive|streak|hours?)\b`)

var atLeastPattern = regexp.MustCompile(`(?i)\bat least (\d+)\b`)

var percentileOverPattern = regexp.MustCompile(
	`(?is)percentile_(cont|disc)\s*\(\s*([\d.]+)\s*\)\s*WITHIN\s+GROUP\s*\(\s*ORDER\s+BY\s+([A-Za-z_][A-Za-z0-9_.]*)\s*\)\s*OVER\s*\([^)]*\)`,
)

// Rewrite applies the full rule catalog in order and returns the patched
// SQL. Applying Rewrite to its own output is a no-op.
func Rewrite(sql, question string, cfg Config) string {
	sql = rewritePercentToFraction(sql, cfg.Bounded01Columns)
	sql = rewriteAtLeastN(sql, question)
	sql = rewriteHourlyPreAggregation(sql, question, cfg.TimeSeries)
	sql = rewriteOrderedSetWindow(sql, cfg.TimeSeries)

	return sql
}

// rewritePercentToFraction implements catalog rule 1: a comparison against
// a bounded [0,1] column using a value >= 1 is almost always the LLM
// confusing a percentage with a fraction.
func rewritePercentToFraction(sql string, bounded map[string]struct{}) string {
	if len(bounded) == 0 {
		return sql
	}

	spans := literalSpans(sql)

	for col := range bounded {
		pattern := regexp.MustCompile(
			`\b` + regexp.QuoteMeta(col) + `\b(\s*(?:<=|>=|<|>|=)\s*)(\d+(?:\.\d+)?)`,
		)

		locs := pattern.FindAllStringSubmatchIndex(sql, -1)

		for i := len(locs) - 1; i >= 0; i-- {
			loc := locs[i]

			matchStart := loc[0]
			if insideLiteral(spans, matchStart) {
				continue
			}

			numStart, numEnd := loc[4], loc[5]

			n, err := strconv.ParseFloat(sql[numStart:numEnd], 64)
			if err != nil || n <= 1 {
				continue
			}

			replacement := strconv.FormatFloat(roundTo4(n/100), 'f', -1, 64)
			sql = sql[:numStart] + replacement + sql[numEnd:]
		}

		spans = literalSpans(sql)
	}

	return sql
}

func roundTo4(f float64) float64 {
	const factor = 10000.0

	return float64(int64(f*factor+0.5)) / factor
}

// rewriteAtLeastN implements catalog rule 2.
func rewriteAtLeastN(sql, question string) string {
	m := atLeastPattern.FindStringSubmatch(question)
	if m == nil {
		return sql
	}

	n := m[1]
	spans := literalSpans(sql)

	for _, field := range []string{"streak_count", "hours"} {
		pattern := regexp.MustCompile(`\b` + field + `\s*=\s*` + n + `\b`)

		loc := pattern.FindStringIndex(sql)
		if loc == nil || insideLiteral(spans, loc[0]) {
			continue
		}

		matched := sql[loc[0]:loc[1]]
		replaced := strings.Replace(matched, "=", ">=", 1)
		sql = sql[:loc[0]] + replaced + sql[loc[1]:]
	}

	return sql
}

// rewriteHourlyPreAggregation implements catalog rule 3: wrap a bare
// minutely table reference in an hourly pre-aggregation subquery when the
// question talks about consecutive/streak/hours behavior.
func rewriteHourlyPreAggregation(sql, question string, specs []TimeSeriesSpec) string {
	if !triggerWords.MatchString(question) {
		return sql
	}

	if strings.Contains(strings.ToLower(sql), "date_trunc('hour'") {
		return sql
	}

	for _, spec := range specs {
		pattern := regexp.MustCompile(`(?i)\bFROM\s+` + regexp.QuoteMeta(spec.Table) + `\b`)

		loc := pattern.FindStringIndex(sql)
		if loc == nil {
			continue
		}

		dims := strings.Join(spec.DimCols, ", ")
		if dims != "" {
			dims = ", " + dims
		}

		wrapped := fmt.Sprintf(
			"FROM (SELECT date_trunc('hour', ts) AS hour, AVG(%s) AS %s%s FROM %s GROUP BY 1%s) h",
			spec.MetricCol, spec.MetricCol, dims, spec.Table, indexList(len(spec.DimCols)),
		)

		prefix := renameBareTsToHour(sql[:loc[0]])
		suffix := renameBareTsToHour(sql[loc[1]:])

		return prefix + wrapped + suffix
	}

	return sql
}

func indexList(numDims int) string {
	var b strings.Builder
	for i := 0; i < numDims; i++ {
		b.WriteString(fmt.Sprintf(", %d", i+2))
	}

	return b.String()
}

var bareTsPattern = regexp.MustCompile(`\bts\b`)

func renameBareTsToHour(sql string) string {
	spans := literalSpans(sql)

	locs := bareTsPattern.FindAllStringIndex(sql, -1)
	if len(locs) == 0 {
		return sql
	}

	var b strings.Builder

	last := 0

	for _, loc := range locs {
		if insideLiteral(spans, loc[0]) {
			continue
		}

		b.WriteString(sql[last:loc[0]])
		b.WriteString("hour")

		last = loc[1]
	}

	b.WriteString(sql[last:])

	return b.String()
}

// rewriteOrderedSetWindow implements catalog rule 4: Postgres rejects
// `percentile_cont(p) WITHIN GROUP (ORDER BY col) OVER (...)` outright, so
// rewrite it into a correlated subquery over a 30-day trailing window on
// the hourly pre-aggregation.
func rewriteOrderedSetWindow(sql string, specs []TimeSeriesSpec) string {
	m := percentileOverPattern.FindStringSubmatchIndex(sql)
	if m == nil {
		return sql
	}

	fn := sql[m[2]:m[3]]
	p := sql[m[4]:m[5]]
	col := sql[m[6]:m[7]]

	table := "h"
	if len(specs) > 0 {
		s := specs[0]
		table = fmt.Sprintf(
			"(SELECT date_trunc('hour', ts) AS hour, AVG(%s) AS %s FROM %s GROUP BY 1)",
			s.MetricCol, s.MetricCol, s.Table,
		)
	}

	replacement := fmt.Sprintf(
		"(SELECT percentile_%s(%s) WITHIN GROUP (ORDER BY %s) FROM %s sub WHERE sub.hour >= h.hour - interval '30 days' AND sub.hour <= h.hour)",
		fn, p, col, table,
	)

	return sql[:m[0]] + replacement + sql[m[1]:]
}
