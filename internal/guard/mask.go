package guard

// maskLiterals replaces the contents of every single-quoted string literal
// with spaces of equal length, leaving the quote characters themselves in
// place. The result has the same length and the same byte offsets as the
// input, so callers can run every lexical check against the masked copy
// and still rewrite the original text at the offsets they find (see
// clampLimit). Doubled single quotes ('') inside a literal are the
// Postgres escape for a literal quote and do not end the string.
func maskLiterals(sql string) string {
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
			// Doubled quote: escaped literal quote, stay inside the
			// literal and skip over both characters.
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
