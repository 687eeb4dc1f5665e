package docs

import (
	"strings"
	"testing"
)

func TestTopics(t *testing.T) {
	got := strings.Join(Topics(), ",")
	if got != "extension,storage,viewer" {
		t.Fatalf("unexpected topics %q", got)
	}
}

func TestGet(t *testing.T) {
	body, ok := Get(" Viewer ")
	if !ok || !strings.HasPrefix(body, "# Terminal viewer") {
		t.Fatalf("expected viewer topic, got ok=%v", ok)
	}
	for _, bad := range []string{"", "nope", "../docs"} {
		if _, ok := Get(bad); ok {
			t.Fatalf("expected %q to be unknown", bad)
		}
	}
}
