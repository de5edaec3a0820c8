package router

import "strings"

// MatchScore scores a candidate keyword set against task keywords as the
// harmonic mean of the two coverages. The result is in [0, 1]: 0 when the
// sets do not intersect, 1 only when both sets are equal and non-empty.
func MatchScore(taskKeywords, candidateKeywords []string) float64 {
	task := toSet(taskKeywords)
	cand := toSet(candidateKeywords)
	if len(task) == 0 || len(cand) == 0 {
		return 0
	}

	matched := 0
	for kw := range task {
		if _, ok := cand[kw]; ok {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}

	taskCov := float64(matched) / float64(len(task))
	candCov := float64(matched) / float64(len(cand))
	return 2 * taskCov * candCov / (taskCov + candCov)
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
