package models

import (
	"strings"
	"testing"
)

func TestCombinedFixedOrder(t *testing.T) {
	c := &ComposedContext{
		MemorySection:    "MEMORY",
		SessionSection:   "SESSIONS",
		RealtimeSection:  "REALTIME",
		KnowledgeSection: "KNOWLEDGE",
	}

	got := c.Combined()
	want := "MEMORY\n\nSESSIONS\n\nREALTIME\n\nKNOWLEDGE"
	if got != want {
		t.Errorf("Combined() = %q, want %q", got, want)
	}
}

func TestCombinedSkipsEmptySections(t *testing.T) {
	c := &ComposedContext{
		SessionSection:   "SESSIONS",
		KnowledgeSection: "KNOWLEDGE",
	}

	got := c.Combined()
	want := "SESSIONS\n\nKNOWLEDGE"
	if got != want {
		t.Errorf("Combined() = %q, want %q", got, want)
	}
	if strings.Contains(got, "\n\n\n") {
		t.Error("empty sections left gaps in the combined text")
	}
}

func TestCombinedAllEmpty(t *testing.T) {
	c := &ComposedContext{}
	if got := c.Combined(); got != "" {
		t.Errorf("Combined() = %q, want empty", got)
	}
	if !c.Empty() {
		t.Error("Empty() = false for a blank context")
	}

	c.KnowledgeSection = "something"
	if c.Empty() {
		t.Error("Empty() = true with a populated section")
	}
}
