// Package guard implements the SQL safety filter described as "the hard
// part" of the gateway: it accepts or rejects a candidate statement
// produced by the Planner, proving it is read-only, single-statement, and
// confined to the declared table/column allow-list before anything
// reaches the Executor.
//
// The guard is lexical, not a full parser: string literals are masked out
// before every check so that a literal containing the word DROP cannot
// trip the forbidden-keyword scan, and a hand-written paren-depth tracker
// (scan.go) confines LIMIT clamping to statement scope rather than
// reaching into subqueries.
package guard

import (
	"strconv"
	"strings"
)

// GuardedSQL is a statement proven to satisfy every Guard rule. It exists
// only between Guard acceptance and Executor completion.
type GuardedSQL struct {
	SQL string
}

// Guard validates sql against the declared allow-list and returns a
// normalized, LIMIT-clamped statement, or the first rule it violates.
func Guard(sql string, tables map[string]struct{}, colsByTable map[string]map[string]struct{}, maxLimit int) (GuardedSQL, error) {
	if strings.TrimSpace(sql) == "" {
		return GuardedSQL{}, &Error{Kind: KindEmptyStatement, Detail: "sql is empty"}
	}

	masked := maskLiterals(sql)

	original, masked := trimOneTrailingSemicolon(sql, masked)

	if strings.Contains(masked, ";") {
		return GuardedSQL{}, &Error{Kind: KindMultiStatement, Detail: "more than one statement"}
	}

	if !prefixPattern.MatchString(masked) {
		return GuardedSQL{}, &Error{Kind: KindNotReadOnly, Detail: "must begin with SELECT or WITH"}
	}

	if commentPattern.MatchString(masked) {
		return GuardedSQL{}, &Error{Kind: KindCommentBlocked, Detail: "SQL comments are not allowed"}
	}

	if forbiddenPattern.MatchString(masked) {
		kw := forbiddenPattern.FindString(masked)
		return GuardedSQL{}, &Error{Kind: KindNotReadOnly, Detail: "forbidden keyword: " + strings.ToUpper(kw)}
	}

	if systemSchemaPattern.MatchString(masked) {
		return GuardedSQL{}, &Error{Kind: KindSystemSchema, Detail: "system schema reference is not allowed"}
	}

	aliases := collectAliasesAndCTEs(masked)

	if err := checkTables(masked, tables, aliases); err != nil {
		return GuardedSQL{}, err
	}

	if err := checkColumns(masked, tables, colsByTable, aliases); err != nil {
		return GuardedSQL{}, err
	}

	normalized := clampLimit(original, masked, maxLimit)

	return GuardedSQL{SQL: normalized}, nil
}

// normalizeTableName applies the registry's fqtn storage convention
// (schema-qualified, lower-case) to a raw identifier pulled from SQL text.
func normalizeTableName(raw string) string {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, ".") {
		return lower
	}

	return "public." + lower
}

func collectAliasesAndCTEs(masked string) map[string]struct{} {
	aliases := make(map[string]struct{})

	for _, m := range firstCTEPattern.FindAllStringSubmatch(masked, -1) {
		aliases[strings.ToLower(m[1])] = struct{}{}
	}

	for _, m := range subsequentCTEPattern.FindAllStringSubmatch(masked, -1) {
		aliases[strings.ToLower(m[1])] = struct{}{}
	}

	for _, m := range derivedAliasPattern.FindAllStringSubmatch(masked, -1) {
		name := strings.ToLower(m[1])
		if _, excluded := aliasExclusions[name]; excluded {
			continue
		}

		aliases[name] = struct{}{}
	}

	return aliases
}

func checkTables(masked string, tables map[string]struct{}, aliases map[string]struct{}) error {
	for _, m := range fromJoinPattern.FindAllStringSubmatch(masked, -1) {
		name := m[1]
		hasParen := m[2] == "("

		if hasParen {
			base := name
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				base = name[idx+1:]
			}

			if _, ok := srfAllowList[strings.ToLower(base)]; ok {
				continue
			}

			return tableNotAllowed(name)
		}

		lower := strings.ToLower(name)
		if _, isAlias := aliases[lower]; isAlias {
			continue
		}

		fqtn := normalizeTableName(name)
		if _, ok := tables[fqtn]; !ok {
			return tableNotAllowed(fqtn)
		}
	}

	return nil
}

func checkColumns(
	masked string,
	tables map[string]struct{},
	colsByTable map[string]map[string]struct{},
	aliases map[string]struct{},
) error {
	for _, m := range columnRefPattern.FindAllStringSubmatch(masked, -1) {
		qualifier, col := m[1], m[2]

		lowerQualifier := strings.ToLower(qualifier)
		if _, isAlias := aliases[lowerQualifier]; isAlias {
			continue
		}

		if _, isSRF := srfAllowList[lowerQualifier]; isSRF {
			continue
		}

		fqtn := normalizeTableName(qualifier)
		if _, isTable := tables[fqtn]; !isTable {
			// Not a declared table name (likely an untracked alias) —
			// per the rule, column checks apply only when the qualifier
			// names a declared table.
			continue
		}

		cols := colsByTable[fqtn]
		if len(cols) == 0 {
			continue
		}

		if _, ok := cols[strings.ToLower(col)]; !ok {
			return columnNotAllowed(fqtn, col)
		}
	}

	return nil
}

// clampLimit enforces rule 8: clamp every statement-scope LIMIT to
// maxLimit, or append one if none exists.
func clampLimit(original, masked string, maxLimit int) string {
	limits := topLevelLimits(masked)

	if len(limits) == 0 {
		return original + "\nLIMIT " + strconv.Itoa(maxLimit)
	}

	// Rewrite from the end so earlier offsets stay valid.
	out := original

	for i := len(limits) - 1; i >= 0; i-- {
		lm := limits[i]

		n, err := strconv.Atoi(masked[lm.numStart:lm.numEnd])
		if err != nil {
			continue
		}

		if n <= maxLimit {
			continue
		}

		out = out[:lm.numStart] + strconv.Itoa(maxLimit) + out[lm.numEnd:]
	}

	return out
}
