package orchestrator

import (
	"fmt"
	"strings"
)

// Synthesize merges per-agent outputs into one user-facing response. One
// successful result is returned verbatim; several are concatenated as
// team-tagged sections in arrival order; none yields a fixed failure line.
func Synthesize(results []*TaskResult) string {
	var ok []*TaskResult
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
		}
	}

	switch len(ok) {
	case 0:
		return "All agent executions failed."
	case 1:
		return ok[0].Output
	}

	sections := make([]string, 0, len(ok))
	for _, r := range ok {
		sections = append(sections, fmt.Sprintf("[%s] %s", r.TeamID, r.Output))
	}
	return strings.Join(sections, "\n\n")
}
