package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rabbithole/internal/model"
	"rabbithole/internal/navigate"
	"rabbithole/internal/observability"
	"rabbithole/internal/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	sess    *tree.Session
	srv     *Server
	handler http.Handler
	nav     *navigate.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	nav := &navigate.Recorder{}
	sess := tree.New(tree.Options{Navigator: nav, AutoSaveDebounce: time.Hour})
	t.Cleanup(func() { _ = sess.Close(context.Background()) })

	srv, err := NewServer(ServerConfig{Session: sess, Metrics: observability.NewMetrics()})
	require.NoError(t, err)
	return &fixture{sess: sess, srv: srv, handler: srv.Handler(), nav: nav}
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func (f *fixture) visit(t *testing.T, title, ctx string) string {
	t.Helper()
	body := `{"articleTitle":"` + title + `","articleUrl":"https://en.wikipedia.org/wiki/` + title + `","context":"` + ctx + `"}`
	code, out := f.do(t, http.MethodPost, "/api/navigation", body)
	require.Equal(t, http.StatusOK, code)
	data := out["data"].(map[string]any)
	return data["nodeId"].(string)
}

func TestNavigationBuildsTree(t *testing.T) {
	f := newFixture(t)

	dog := f.visit(t, "Dog", "SESSION_START")
	cat := f.visit(t, "Cat", "TEXT_SELECTION")
	again := f.visit(t, "Dog", "TEXT_SELECTION")

	assert.Equal(t, dog, again)
	snap := f.sess.Snapshot()
	require.Len(t, snap.Nodes, 2)
	assert.Nil(t, snap.Nodes[0].ParentID)
	assert.Equal(t, dog, snap.Nodes[1].Parent())
	assert.Equal(t, cat, snap.Nodes[1].ID)
	assert.Equal(t, dog, model.PtrStr(snap.ActiveNodeID))
	assert.NotEmpty(t, model.PtrStr(snap.SessionID))
}

func TestNavigationAcceptsLowercaseContext(t *testing.T) {
	f := newFixture(t)
	root := f.visit(t, "Dog", "session-start")
	child := f.visit(t, "Cat", "tree_navigation")

	n, ok := f.sess.Node(child)
	require.True(t, ok)
	assert.Equal(t, root, n.Parent())
}

func TestNavigationRejectsBadJSON(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(t, http.MethodPost, "/api/navigation", `{"articleTitle":`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], "invalid json")

	code, _ = f.do(t, http.MethodPost, "/api/navigation", ``)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Empty(t, f.sess.Snapshot().Nodes)
}

func TestSessionEndpoints(t *testing.T) {
	f := newFixture(t)
	dog := f.visit(t, "Dog", "SESSION_START")
	f.visit(t, "Cat", "TEXT_SELECTION")

	code, _ := f.do(t, http.MethodPost, "/api/session/active", `{"nodeId":"`+dog+`"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, dog, f.sess.ActiveNodeID())

	code, _ = f.do(t, http.MethodPost, "/api/session/active", `{"nodeId":null}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "", f.sess.ActiveNodeID())

	code, out := f.do(t, http.MethodPost, "/api/session/name", `{"name":"Pets"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Pets", out["data"].(map[string]any)["sessionName"])

	code, out = f.do(t, http.MethodGet, "/api/session", "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, out["data"].(map[string]any)["nodes"], 2)

	code, _ = f.do(t, http.MethodPost, "/api/session/stop", "")
	require.Equal(t, http.StatusOK, code)
	snap := f.sess.Snapshot()
	assert.Empty(t, snap.Nodes)
	assert.Nil(t, snap.SessionID)
}

func TestLayoutEndpoint(t *testing.T) {
	f := newFixture(t)
	f.visit(t, "Root", "SESSION_START")
	for _, title := range []string{"A", "B", "C"} {
		_, _ = f.do(t, http.MethodPost, "/api/session/active", `{"nodeId":"`+nodeIDByTitle(t, f.sess, "Root")+`"}`)
		f.visit(t, title, "TEXT_SELECTION")
	}

	code, out := f.do(t, http.MethodGet, "/api/layout", "")
	require.Equal(t, http.StatusOK, code)
	data := out["data"].(map[string]any)
	assert.Equal(t, "main", data["variant"])
	xs := map[string]float64{}
	for _, raw := range data["nodes"].([]any) {
		n := raw.(map[string]any)
		xs[n["title"].(string)] = n["x"].(float64)
	}
	assert.Equal(t, map[string]float64{"Root": 0, "A": -240, "B": 0, "C": 240}, xs)

	code, out = f.do(t, http.MethodGet, "/api/layout?variant=minimap&h=10&v=5", "")
	require.Equal(t, http.StatusOK, code)
	data = out["data"].(map[string]any)
	assert.Equal(t, "minimap", data["variant"])
	for _, raw := range data["nodes"].([]any) {
		n := raw.(map[string]any)
		if n["title"] == "A" {
			assert.Equal(t, -10.0, n["x"])
			assert.Equal(t, 5.0, n["y"])
		}
	}

	code, _ = f.do(t, http.MethodGet, "/api/layout?variant=sideways", "")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = f.do(t, http.MethodGet, "/api/layout?h=-3", "")
	assert.Equal(t, http.StatusBadRequest, code)
	for _, q := range []string{"h=NaN", "h=Inf", "v=-Inf", "v=nan"} {
		code, out = f.do(t, http.MethodGet, "/api/layout?"+q, "")
		assert.Equal(t, http.StatusBadRequest, code, q)
		assert.Contains(t, out["error"], "positive number", q)
	}
}

func TestTreesEndpoints(t *testing.T) {
	f := newFixture(t)
	f.visit(t, "Dog", "SESSION_START")
	f.visit(t, "Cat", "TEXT_SELECTION")
	f.sess.FlushAutoSave()

	code, out := f.do(t, http.MethodGet, "/api/trees", "")
	require.Equal(t, http.StatusOK, code)
	trees := out["data"].([]any)
	require.Len(t, trees, 1)
	treeID := trees[0].(map[string]any)["id"].(string)

	code, _ = f.do(t, http.MethodPost, "/api/trees/"+treeID+"/rename", `{"name":"Pets"}`)
	require.Equal(t, http.StatusOK, code)
	saved, ok := f.sess.SavedTree(treeID)
	require.True(t, ok)
	assert.Equal(t, "Pets", saved.Name)

	code, out = f.do(t, http.MethodGet, "/api/trees/"+treeID+"/layout", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "preview", out["data"].(map[string]any)["variant"])

	f.sess.ClearTree()
	code, out = f.do(t, http.MethodPost, "/api/trees/"+treeID+"/load", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["data"].(map[string]any)["loaded"])
	assert.Equal(t, nodeIDByTitle(t, f.sess, "Cat"), f.sess.ActiveNodeID())

	require.Eventually(t, func() bool { return len(f.nav.Requests()) == 1 }, time.Second, 5*time.Millisecond)
	req := f.nav.Requests()[0]
	assert.Equal(t, "https://en.wikipedia.org/wiki/Cat", req.URL)
	assert.True(t, req.ReuseTab)

	code, _ = f.do(t, http.MethodDelete, "/api/trees/"+treeID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Empty(t, f.sess.SavedTrees())

	code, _ = f.do(t, http.MethodGet, "/api/trees/"+treeID, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestUnknownTreeIsNoOp(t *testing.T) {
	f := newFixture(t)
	code, out := f.do(t, http.MethodPost, "/api/trees/tree-missing/load", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["data"].(map[string]any)["loaded"])

	code, _ = f.do(t, http.MethodPost, "/api/trees/tree-missing/rename", `{"name":"x"}`)
	assert.Equal(t, http.StatusOK, code)
	code, _ = f.do(t, http.MethodDelete, "/api/trees/tree-missing", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.visit(t, "Dog", "SESSION_START")

	code, _ := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `rabbithole_http_requests_total{method="POST",route="/api/navigation",status="200"} 1`)
}

func nodeIDByTitle(t *testing.T, sess *tree.Session, title string) string {
	t.Helper()
	for _, n := range sess.Snapshot().Nodes {
		if n.Title == title {
			return n.ID
		}
	}
	t.Fatalf("no node titled %q", title)
	return ""
}
