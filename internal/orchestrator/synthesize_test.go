package orchestrator

import (
	"strings"
	"testing"
)

func TestSynthesizeSingleResultVerbatim(t *testing.T) {
	out := Synthesize([]*TaskResult{
		{TeamID: "DEV", Success: true, Output: "the single answer"},
	})
	if out != "the single answer" {
		t.Fatalf("single success must pass through verbatim, got %q", out)
	}
}

func TestSynthesizeAllFailed(t *testing.T) {
	out := Synthesize([]*TaskResult{
		{TeamID: "DEV", Success: false, Error: "boom"},
		{TeamID: "QA", Success: false, Error: "boom"},
	})
	if out != "All agent executions failed." {
		t.Fatalf("got %q", out)
	}
}

func TestSynthesizeMultipleSections(t *testing.T) {
	out := Synthesize([]*TaskResult{
		{TeamID: "DEV", Success: true, Output: "dev part"},
		{TeamID: "SEC", Success: false, Error: "skipped"},
		{TeamID: "QA", Success: true, Output: "qa part"},
	})

	if !strings.Contains(out, "[DEV] dev part") || !strings.Contains(out, "[QA] qa part") {
		t.Fatalf("missing sections: %q", out)
	}
	if strings.Contains(out, "SEC") {
		t.Fatalf("failed result leaked into synthesis: %q", out)
	}
	if strings.Index(out, "[DEV]") > strings.Index(out, "[QA]") {
		t.Fatalf("arrival order not preserved: %q", out)
	}
}

func TestSynthesizeEmpty(t *testing.T) {
	if out := Synthesize(nil); out != "All agent executions failed." {
		t.Fatalf("got %q", out)
	}
}
