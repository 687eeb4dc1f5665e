package ident

import (
	"strings"
	"testing"
	"time"
)

func TestNewRandomID_NodeIDsHavePrefixAndLength(t *testing.T) {
	id, err := newRandomID(NodePrefix)
	if err != nil {
		t.Fatalf("newRandomID: %v", err)
	}
	if !strings.HasPrefix(id, "node-") {
		t.Fatalf("expected node prefix, got %q", id)
	}
	suffix := strings.TrimPrefix(id, "node-")
	if got, want := len(suffix), 8; got != want {
		t.Fatalf("expected suffix len %d, got %d (%q)", want, got, suffix)
	}
	if suffix != strings.ToLower(suffix) {
		t.Fatalf("expected lowercase suffix, got %q", suffix)
	}
}

func TestGenerator_SessionIDIsUUID(t *testing.T) {
	g := NewGenerator()
	id := g.SessionID()
	if len(id) != 36 || strings.Count(id, "-") != 4 {
		t.Fatalf("expected uuid, got %q", id)
	}
	if tid := g.TreeID(); !strings.HasPrefix(tid, "tree-") {
		t.Fatalf("expected tree prefix, got %q", tid)
	}
}

func TestMonotonicClock_StrictlyIncreasing(t *testing.T) {
	fixed := time.UnixMilli(1_000)
	c := &MonotonicClock{wall: func() time.Time { return fixed }}

	a := c.Now()
	b := c.Now()
	if a != 1_000 || b != 1_001 {
		t.Fatalf("expected 1000 then 1001, got %d then %d", a, b)
	}

	c.Observe(5_000)
	if got := c.Now(); got != 5_001 {
		t.Fatalf("expected clock to move past observed ts, got %d", got)
	}
}
