package router

import "strings"

// stopWords is the fixed English stop-word set dropped during extraction.
var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "and", "for", "are", "was", "were", "been", "being", "have",
		"has", "had", "having", "does", "did", "doing", "will", "would",
		"shall", "should", "can", "could", "may", "might", "must", "this",
		"that", "these", "those", "with", "from", "into", "onto", "about",
		"when", "while", "then", "else", "there", "here", "what", "which",
		"who", "whom", "how", "why", "not", "you", "your", "our", "their",
		"its", "his", "her", "him", "she", "they", "them", "please", "need",
		"want", "like", "some", "any", "all", "very", "just", "also",
	} {
		stopWords[w] = struct{}{}
	}
}

const trailingPunct = ".,;:!?()[]{}\"'"

// ExtractKeywords turns a free-form prompt into a deduplicated keyword list:
// lowercase, whitespace-split, trailing punctuation stripped, tokens of
// length <= 2 and stop words dropped, first occurrence order preserved.
func ExtractKeywords(prompt string) []string {
	seen := make(map[string]struct{})
	var out []string

	for _, tok := range strings.Fields(strings.ToLower(prompt)) {
		tok = strings.TrimRight(tok, trailingPunct)
		if len(tok) <= 2 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}
