// Package formatter applies purely cosmetic post-processing to the
// summary text returned by the second LLM call: date humanization,
// dollar abbreviation, and percent/comma spacing cleanup. Formatter
// failures are never fatal — callers fall back to the raw summary.
package formatter

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

var isoRangePattern = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\s*(?:to|-|through)\s*(\d{4}-\d{2}-\d{2})\b`)

var dollarPattern = regexp.MustCompile(`\$(\d+(?:\.\d+)?)`)

var percentSpacingPattern = regexp.MustCompile(`(\d)\s+%`)

var commaSpacingPattern = regexp.MustCompile(`,(\S)`)

// Format applies every cosmetic rewrite to summary. If question contained
// an ISO date range that the summary itself does not mention, a leading
// phrase naming that range is prepended.
func Format(summary, question string) string {
	out := humanizeDateRanges(summary)
	out = humanizeDates(out)
	out = abbreviateDollars(out)
	out = tidyPercentSpacing(out)
	out = tidyCommaSpacing(out)
	out = prependRangeIfMissing(out, question)

	return out
}

func humanizeDateRanges(s string) string {
	return isoRangePattern.ReplaceAllStringFunc(s, func(m string) string {
		parts := isoRangePattern.FindStringSubmatch(m)
		if parts == nil {
			return m
		}

		from := humanDate(parts[1])
		to := humanDate(parts[2])

		if from == "" || to == "" {
			return m
		}

		return from + " to " + to
	})
}

func humanizeDates(s string) string {
	return isoDatePattern.ReplaceAllStringFunc(s, func(m string) string {
		h := humanDate(m)
		if h == "" {
			return m
		}

		return h
	})
}

func humanDate(iso string) string {
	t, err := time.Parse("2006-01-02", iso)
	if err != nil {
		return ""
	}

	return fmt.Sprintf("%s %d%s %d", t.Month().String(), t.Day(), ordinalSuffix(t.Day()), t.Year())
}

func ordinalSuffix(day int) string {
	if day >= 11 && day <= 13 {
		return "th"
	}

	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}

func abbreviateDollars(s string) string {
	return dollarPattern.ReplaceAllStringFunc(s, func(m string) string {
		numStr := dollarPattern.FindStringSubmatch(m)[1]

		n, err := strconv.ParseFloat(numStr, 64)
		if err != nil {
			return m
		}

		return "$" + abbreviateNumber(n)
	})
}

func abbreviateNumber(n float64) string {
	abs := n
	if abs < 0 {
		abs = -abs
	}

	switch {
	case abs >= 1e12:
		return trimZeros(n/1e12) + "T"
	case abs >= 1e9:
		return trimZeros(n/1e9) + "B"
	case abs >= 1e6:
		return trimZeros(n/1e6) + "M"
	case abs >= 1e3:
		return trimZeros(n/1e3) + "K"
	default:
		return trimZeros(n)
	}
}

func trimZeros(n float64) string {
	s := strconv.FormatFloat(n, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")

	return s
}

func tidyPercentSpacing(s string) string {
	return percentSpacingPattern.ReplaceAllString(s, "$1%")
}

func tidyCommaSpacing(s string) string {
	return commaSpacingPattern.ReplaceAllString(s, ", $1")
}

func prependRangeIfMissing(summary, question string) string {
	m := isoRangePattern.FindStringSubmatch(question)
	if m == nil {
		return summary
	}

	if strings.Contains(summary, m[1]) || strings.Contains(summary, " to ") {
		return summary
	}

	from := humanDate(m[1])
	to := humanDate(m[2])

	if from == "" || to == "" {
		return summary
	}

	return fmt.Sprintf("Between %s and %s: %s", from, to, summary)
}
