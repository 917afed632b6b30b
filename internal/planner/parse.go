package planner

import (
	"encoding/json"
	"errors"
	"strings"
)

var errEmptySQL = errors.New("planner reply parsed but sql field is empty")

// ParseReply parses an LLM chat completion's text content into a Plan.
// It accepts either the bare {"sql": "..."} shape or the richer shape
// with domain/reason/presentation. If the text is not valid JSON on the
// first attempt, it retries once against the first balanced `{...}`
// substring it can find, since models occasionally wrap JSON in prose or
// a markdown fence despite instructions.
func ParseReply(raw string) (Plan, error) {
	plan, err := decodePlan(raw)
	if err == nil && plan.SQL != "" {
		return plan, nil
	}

	if sub, ok := balancedObject(raw); ok {
		plan, err2 := decodePlan(sub)
		if err2 == nil && plan.SQL != "" {
			return plan, nil
		}
	}

	if err == nil {
		err = errEmptySQL
	}

	return Plan{}, err
}

func decodePlan(text string) (Plan, error) {
	var plan Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return Plan{}, err
	}

	return plan, nil
}

// balancedObject scans s for the first top-level balanced `{...}`
// substring, tolerating nested braces and braces inside string literals.
func balancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}

			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
