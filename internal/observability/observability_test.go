package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"rabbithole/internal/model"
	"rabbithole/internal/tree"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "", want: "info"},
		{in: "DEBUG", want: "debug"},
		{in: "warning", want: "warn"},
		{in: "error", want: "error"},
		{in: "loud", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseLevel(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseLevel(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil || got.String() != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %s", tc.in, got, err, tc.want)
		}
	}
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	if _, err := NewLogger("nope", false); err == nil {
		t.Fatalf("expected error")
	}
	log, err := NewLogger("debug", true)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if !log.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected debug to be enabled")
	}
}

func TestSessionHooks_CountsAndChains(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	m := NewMetrics()

	var added, saved int
	h := SessionHooks(zap.New(core), m, tree.Hooks{
		OnNodeAdded: func(model.TreeNode) { added++ },
		OnAutoSave:  func(model.SavedTree, bool) { saved++ },
	})

	h.OnNodeAdded(model.TreeNode{ID: "node-a", Title: "Dog"})
	h.OnNodeAdded(model.TreeNode{ID: "node-b", Title: "Cat", ParentID: model.StrPtr("node-a")})
	h.OnReactivated(model.TreeNode{ID: "node-a", Title: "Dog"})
	h.OnAutoSave(model.SavedTree{ID: "tree-x", Name: "Dog"}, true)
	h.OnAutoSave(model.SavedTree{ID: "tree-x", Name: "Dog"}, false)
	h.OnPersistError(tree.KeySession, errors.New("disk full"))
	h.OnNavigateError(model.NavigationRequest{URL: "u"}, errors.New("no browser"))

	if added != 2 || saved != 2 {
		t.Fatalf("expected chained hooks to run, added=%d saved=%d", added, saved)
	}
	if got := testutil.ToFloat64(m.NodesCreated); got != 2 {
		t.Fatalf("nodes created = %v", got)
	}
	if got := testutil.ToFloat64(m.Reactivations); got != 1 {
		t.Fatalf("reactivations = %v", got)
	}
	if got := testutil.ToFloat64(m.AutoSaves.WithLabelValues("create")); got != 1 {
		t.Fatalf("autosave creates = %v", got)
	}
	if got := testutil.ToFloat64(m.PersistFailures.WithLabelValues(tree.KeySession)); got != 1 {
		t.Fatalf("persist failures = %v", got)
	}
	if got := testutil.ToFloat64(m.NavigateFailures); got != 1 {
		t.Fatalf("navigate failures = %v", got)
	}
	if n := logs.FilterMessage("persist failed").Len(); n != 1 {
		t.Fatalf("expected one persist warning, got %d", n)
	}
}

func TestSessionHooks_NilMetrics(t *testing.T) {
	h := SessionHooks(nil, nil, tree.Hooks{})
	h.OnNodeAdded(model.TreeNode{ID: "node-a"})
	h.OnPersistError("k", errors.New("x"))
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()
	m.NodesCreated.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rabbithole_nodes_created_total 1") {
		t.Fatalf("missing counter in output:\n%s", rec.Body.String())
	}
}
