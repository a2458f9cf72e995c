package id

import (
	"strings"
	"testing"
)

func TestNewIDShape(t *testing.T) {
	value, err := NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	if len(value) != 26 {
		t.Fatalf("expected 26 characters, got %d (%q)", len(value), value)
	}
	if value != strings.ToLower(value) {
		t.Fatalf("expected lowercase id, got %q", value)
	}
	if strings.ContainsAny(value, "=/+") {
		t.Fatalf("expected URL-safe id, got %q", value)
	}
}

func TestNewIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		value, err := NewID()
		if err != nil {
			t.Fatalf("new id: %v", err)
		}
		if seen[value] {
			t.Fatalf("duplicate id generated: %q", value)
		}
		seen[value] = true
	}
}
