package router

import (
	"reflect"
	"testing"
)

func TestExtractKeywordsBasic(t *testing.T) {
	got := ExtractKeywords("Build the backend REST API with JWT auth")
	want := []string{"build", "backend", "rest", "api", "jwt", "auth"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractKeywordsStripsPunctuation(t *testing.T) {
	got := ExtractKeywords("Deploy kubernetes! (docker, terraform)")
	want := []string{"deploy", "kubernetes", "docker", "terraform"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractKeywordsDropsShortTokens(t *testing.T) {
	for _, kw := range ExtractKeywords("do it on a db") {
		if len(kw) <= 2 {
			t.Errorf("short token %q survived extraction", kw)
		}
	}
}

func TestExtractKeywordsDedupes(t *testing.T) {
	got := ExtractKeywords("test the test, test again")
	want := []string{"test", "again"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractKeywordsPreservesOrder(t *testing.T) {
	got := ExtractKeywords("zebra apple mango")
	want := []string{"zebra", "apple", "mango"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractKeywordsEmptyPrompt(t *testing.T) {
	if got := ExtractKeywords(""); len(got) != 0 {
		t.Fatalf("expected no keywords, got %v", got)
	}
	if got := ExtractKeywords("the and for with"); len(got) != 0 {
		t.Fatalf("expected stop words dropped, got %v", got)
	}
}
