package coordinator

import (
	"regexp"
	"strings"
)

var tsFilterPattern = regexp.MustCompile(`(?i)ts\s*>=`)

// StripTimeFilter implements the empty-result fallback rule (§4.5): drop
// the first `ts >=` filter so a second execution can be attempted. It
// intentionally refuses to guess when the filter looks nested — e.g.
// `WHERE ts >= ... AND (... ts >= ...)` — returning ok=false rather than
// risking malformed SQL.
func StripTimeFilter(sql string) (stripped string, ok bool) {
	masked := maskForScan(sql)

	matches := tsFilterPattern.FindAllStringIndex(masked, -1)
	if len(matches) != 1 {
		return sql, false
	}

	matchStart := matches[0][0]

	if parenDepthAt(masked, matchStart) != 0 {
		return sql, false
	}

	boundary := findBoundary(masked, matchStart)

	before := strings.TrimRight(masked[:matchStart], " \t\r\n")

	switch {
	case len(before) >= 3 && strings.EqualFold(before[len(before)-3:], "and"):
		clauseStart := len(before) - 3
		return sql[:clauseStart] + sql[boundary:], true

	case len(before) >= 5 && strings.EqualFold(before[len(before)-5:], "where"):
		clauseStart := len(before)
		return sql[:clauseStart] + " 1=1 " + sql[boundary:], true

	default:
		return sql, false
	}
}

func findBoundary(masked string, from int) int {
	rest := masked[from:]

	candidates := []int{len(masked)}

	// The filter ends at the ')' that closes its enclosing group; parens
	// opened inside the filter itself (e.g. `now()`) are skipped.
	depth := 0
	for i := from; i < len(masked); i++ {
		if masked[i] == '(' {
			depth++
		} else if masked[i] == ')' {
			if depth == 0 {
				candidates = append(candidates, i)
				break
			}
			depth--
		}
	}

	if idx := indexCaseInsensitive(rest, "ORDER BY"); idx >= 0 {
		candidates = append(candidates, from+idx)
	}

	if idx := indexCaseInsensitive(rest, "LIMIT"); idx >= 0 {
		candidates = append(candidates, from+idx)
	}

	min := candidates[0]
	for _, c := range candidates[1:] {
		if c < min {
			min = c
		}
	}

	return min
}

func indexCaseInsensitive(s, substr string) int {
	return strings.Index(strings.ToLower(s), strings.ToLower(substr))
}

func parenDepthAt(s string, pos int) int {
	depth := 0

	for i := 0; i < pos && i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		}
	}

	return depth
}

// maskForScan replaces string literal contents with spaces, mirroring
// the Guard's masking so this scan never trips on literal text.
func maskForScan(sql string) string {
	out := []byte(sql)

	inLiteral := false

	for i := 0; i < len(out); i++ {
		c := out[i]

		if !inLiteral {
			if c == '\'' {
				inLiteral = true
			}

			continue
		}

		if c == '\'' {
			if i+1 < len(out) && out[i+1] == '\'' {
				i++
				continue
			}

			inLiteral = false
			continue
		}

		out[i] = ' '
	}

	return string(out)
}
