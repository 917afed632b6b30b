package guard

import "regexp"

// forbiddenKeywords are write/DDL/admin keywords that must not appear
// anywhere outside a string literal.
var forbiddenKeywords = []string{
	"UPDATE", "INSERT", "DELETE", "DROP", "ALTER", "TRUNCATE",
	"CREATE", "GRANT", "REVOKE", "COPY", "VACUUM", "ANALYZE",
}

// systemSchemas must never be referenced.
var systemSchemas = []string{"pg_catalog", "pg_toast", "information_schema"}

// srfAllowList is the set-returning functions permitted in FROM/JOIN even
// though they are not declared tables.
var srfAllowList = map[string]struct{}{
	"generate_series": {},
	"unnest":          {},
}

// aliasExclusions are reserved words that can legally follow a closing
// paren without being a derived-table alias (`) WHERE ...`, `) AND ...`).
var aliasExclusions = map[string]struct{}{
	"where": {}, "group": {}, "order": {}, "limit": {}, "and": {}, "or": {},
	"on": {}, "as": {}, "join": {}, "left": {}, "right": {}, "inner": {},
	"outer": {}, "union": {}, "having": {}, "then": {}, "end": {}, "else": {},
	"when": {}, "not": {}, "is": {}, "in": {}, "exists": {}, "from": {},
	"select": {}, "into": {}, "values": {}, "set": {}, "returning": {},
	"offset": {}, "fetch": {}, "asc": {}, "desc": {}, "using": {}, "full": {},
	"cross": {}, "natural": {}, "with": {}, "by": {}, "case": {}, ")": {},
}

var (
	prefixPattern = regexp.MustCompile(`(?i)^\s*(SELECT|WITH)\b`)

	forbiddenPattern = regexp.MustCompile(
		`(?i)\b(UPDATE|INSERT|DELETE|DROP|ALTER|TRUNCATE|CREATE|GRANT|REVOKE|COPY|VACUUM|ANALYZE)\b`,
	)

	systemSchemaPattern = regexp.MustCompile(`(?i)\b(pg_catalog|pg_toast|information_schema)\b`)

	commentPattern = regexp.MustCompile(`--|/\*|\*/`)

	identifier = `[A-Za-z_][A-Za-z0-9_]*`

	qualifiedName = identifier + `(?:\.` + identifier + `)?`

	fromJoinPattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+(` + qualifiedName + `)\s*(\()?`)

	firstCTEPattern = regexp.MustCompile(
		`(?i)\bWITH\s+(?:RECURSIVE\s+)?(` + identifier + `)\s*(?:\([^)]*\))?\s+AS\s*\(`,
	)

	subsequentCTEPattern = regexp.MustCompile(
		`(?i),\s*(` + identifier + `)\s*(?:\([^)]*\))?\s+AS\s*\(`,
	)

	derivedAliasPattern = regexp.MustCompile(`\)\s*(?:AS\s+)?(` + identifier + `)\b`)

	columnRefPattern = regexp.MustCompile(`\b(` + identifier + `)\.(` + identifier + `)\b`)

	limitPattern = regexp.MustCompile(`(?i)\bLIMIT\s+(\d+)\b`)
)
