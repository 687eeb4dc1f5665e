package web

import (
	"net/http"
	"time"

	"rabbithole/internal/model"

	"github.com/starfederation/datastar-go/datastar"
)

const sseKeepAlive = 25 * time.Second

// sessionSignals is the payload of each event: the live session plus a
// short index of the saved trees.
func (s *Server) sessionSignals() map[string]any {
	saved := s.sess.SavedTrees()
	index := make([]map[string]any, 0, len(saved))
	for _, t := range saved {
		index = append(index, map[string]any{
			"id":        t.ID,
			"name":      t.Name,
			"nodeCount": len(t.Nodes),
		})
	}
	snap := s.sess.Snapshot()
	return map[string]any{
		"session":      snap,
		"activeNodeId": model.PtrStr(snap.ActiveNodeID),
		"trees":        index,
	}
}

// handleSessionEvents streams the session as Datastar signal patches: one on
// connect, then one after every change. Clients that cannot hold a
// WebSocket (a plain EventSource, a Datastar page) use this.
func (s *Server) handleSessionEvents(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.hub.subscribe()
	defer cancel()

	sse := datastar.NewSSE(w, r)
	_ = sse.MarshalAndPatchSignals(s.sessionSignals())

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	for {
		select {
		case <-sse.Context().Done():
			return
		case <-keepAlive.C:
			_ = sse.PatchSignals([]byte(`{}`))
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := sse.MarshalAndPatchSignals(s.sessionSignals()); err != nil {
				return
			}
		}
	}
}
