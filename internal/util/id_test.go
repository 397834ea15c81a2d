package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("req")
	if !strings.HasPrefix(id, "req_") {
		t.Fatalf("expected req_ prefix, got %q", id)
	}
	if len(id) != len("req_")+16 {
		t.Fatalf("expected 16 hex chars after the prefix, got %q", id)
	}

	bare := NewID("")
	if strings.Contains(bare, "_") || len(bare) != 16 {
		t.Fatalf("empty prefix should yield bare hex, got %q", bare)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID("req")
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}
