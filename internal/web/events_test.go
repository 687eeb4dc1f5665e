package web

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rabbithole/internal/tree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubSubscribeCoalescesAndCloses(t *testing.T) {
	hub := NewHub(nil)
	ch, cancel := hub.subscribe()
	defer cancel()

	hub.TreesChanged(nil)
	hub.TreesChanged(nil)
	select {
	case <-ch:
	default:
		t.Fatalf("expected a tick after a change")
	}
	select {
	case <-ch:
		t.Fatalf("expected ticks to coalesce")
	default:
	}

	hub.Close()
	_, ok := <-ch
	assert.False(t, ok)

	late, lateCancel := hub.subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok, "subscribing to a closed hub yields a closed channel")
}

func TestSessionEventsStream(t *testing.T) {
	hub := NewHub(nil)
	sess := tree.New(tree.Options{
		Navigator:        hub,
		AutoSaveDebounce: time.Hour,
		Hooks:            tree.Hooks{OnChange: hub.SessionChanged, OnTreesChanged: hub.TreesChanged},
	})
	t.Cleanup(func() { _ = sess.Close(context.Background()) })
	srv, err := NewServer(ServerConfig{Session: sess, Hub: hub})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/session/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 64)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	waitFor := func(substr string) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case l, ok := <-lines:
				require.True(t, ok, "stream ended before %q", substr)
				if strings.Contains(l, substr) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %q", substr)
			}
		}
	}

	waitFor(`"trees":[]`)

	body := `{"articleTitle":"Dog","articleUrl":"https://en.wikipedia.org/wiki/Dog","context":"SESSION_START"}`
	post, err := http.Post(ts.URL+"/api/navigation", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = post.Body.Close()
	waitFor(`"title":"Dog"`)

	// Closing the hub ends open streams so shutdown does not hang.
	hub.Close()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-lines:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("stream still open after hub close")
		}
	}
}
