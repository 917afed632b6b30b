package planner

import "regexp"

var recoverablePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)syntax error`),
	regexp.MustCompile(`(?i)OVER is not supported for ordered-set aggregate`),
	regexp.MustCompile(`(?i)percentile_(cont|disc).*OVER`),
}

// Recoverable reports whether an execution error's message belongs to a
// class the Planner can plausibly fix by retrying with the error message
// fed back to the model. Any other failure is fatal.
func Recoverable(dbErrorMessage string) bool {
	for _, p := range recoverablePatterns {
		if p.MatchString(dbErrorMessage) {
			return true
		}
	}

	return false
}
