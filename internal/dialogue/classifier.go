package dialogue

import "regexp"

// Classification is pure text-pattern matching; no LLM call is made to
// decide whether one is needed.

var workPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(build|implement|create|develop|write|code|refactor|fix|debug)\b`),
	regexp.MustCompile(`(?i)\b(api|backend|frontend|database|service|endpoint|schema|cache)\b`),
	regexp.MustCompile(`(?i)\b(security|pen-?test|vulnerabilit(y|ies)|exploit|audit|harden)\b`),
	regexp.MustCompile(`(?i)\b(deploy|infrastructure|kubernetes|docker|terraform|pipeline|cluster)\b`),
	regexp.MustCompile(`(?i)\b(test|tests|testing|coverage|benchmark|load[- ]test|regression)\b`),
	regexp.MustCompile(`(?i)\b(analy[sz]e|review|investigate|design|architect|optimi[sz]e)\b`),
}

var conversationalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hello|hey|yo|good (morning|afternoon|evening))\b`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank you|cheers|bye|goodbye|see you)\b`),
	regexp.MustCompile(`(?i)\b(who are you|what are you|what can you do|how are you)\b`),
}

// longPromptThreshold marks long prompts as work even without a keyword hit.
const longPromptThreshold = 200

// IsWorkRequest reports whether a prompt needs specialized agents: it
// matches a work category, or is long, and is not a greeting or identity
// question.
func IsWorkRequest(prompt string) bool {
	for _, re := range conversationalPatterns {
		if re.MatchString(prompt) {
			return false
		}
	}
	for _, re := range workPatterns {
		if re.MatchString(prompt) {
			return true
		}
	}
	return len(prompt) > longPromptThreshold
}
