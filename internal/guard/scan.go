package guard

import "strings"

// depthAt returns the paren nesting depth immediately before position pos
// in s. Used to confine LIMIT clamping to statement scope: a LIMIT inside
// a subquery must not be rewritten by the outer statement's clamp.
func depthAt(s string, pos int) int {
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

type limitMatch struct {
	matchStart, matchEnd int
	numStart, numEnd     int
}

// topLevelLimits returns every `LIMIT n` occurrence in masked that sits at
// paren depth 0 (i.e. belongs to the outermost statement, not a subquery
// or CTE body).
func topLevelLimits(masked string) []limitMatch {
	idxs := limitPattern.FindAllStringSubmatchIndex(masked, -1)

	var out []limitMatch

	for _, m := range idxs {
		matchStart, matchEnd := m[0], m[1]
		numStart, numEnd := m[2], m[3]

		if depthAt(masked, matchStart) == 0 {
			out = append(out, limitMatch{matchStart, matchEnd, numStart, numEnd})
		}
	}

	return out
}

// trimOneTrailingSemicolon removes at most one trailing `;` (after
// trailing whitespace) from both the original and masked copies, keeping
// their lengths/offsets in lockstep.
func trimOneTrailingSemicolon(original, masked string) (string, string) {
	trimmedMasked := strings.TrimRight(masked, " \t\r\n")
	if strings.HasSuffix(trimmedMasked, ";") {
		cut := len(trimmedMasked) - 1
		return original[:cut], masked[:cut]
	}

	return original, masked
}
