// Package web is the local HTTP service the browser extension talks to.
// Navigation events come in over JSON or the WebSocket; session updates and
// outbound navigation requests go out over the WebSocket, and session updates
// also stream as server-sent events.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rabbithole/internal/layout"
	"rabbithole/internal/model"
	"rabbithole/internal/observability"
	"rabbithole/internal/store"
	"rabbithole/internal/tree"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type ServerConfig struct {
	Session *tree.Session
	Hub     *Hub
	Config  *store.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
}

type Server struct {
	sess    *tree.Session
	hub     *Hub
	cfg     *store.Config
	log     *zap.Logger
	metrics *observability.Metrics
}

func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("web: session is nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Hub == nil {
		cfg.Hub = NewHub(cfg.Logger)
	}
	if cfg.Config == nil {
		cfg.Config = &store.Config{}
	}
	s := &Server{
		sess:    cfg.Session,
		hub:     cfg.Hub,
		cfg:     cfg.Config,
		log:     cfg.Logger,
		metrics: cfg.Metrics,
	}
	s.hub.setHandler(s.handleInbound)
	return s, nil
}

func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.log, s.metrics))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Get("/ws", s.hub.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Post("/navigation", s.handleNavigation)

		r.Route("/session", func(r chi.Router) {
			r.Get("/", s.handleSessionGet)
			r.Get("/events", s.handleSessionEvents)
			r.Post("/active", s.handleSessionActive)
			r.Post("/clear", s.handleSessionClear)
			r.Post("/stop", s.handleSessionClear)
			r.Post("/name", s.handleSessionName)
			r.Post("/id", s.handleSessionID)
		})

		r.Get("/layout", s.handleLayout)

		r.Route("/trees", func(r chi.Router) {
			r.Get("/", s.handleTreesList)
			r.Get("/{treeId}", s.handleTreeGet)
			r.Post("/{treeId}/rename", s.handleTreeRename)
			r.Delete("/{treeId}", s.handleTreeDelete)
			r.Post("/{treeId}/load", s.handleTreeLoad)
			r.Get("/{treeId}/layout", s.handleTreeLayout)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type navigationBody struct {
	model.NavigationEvent
	// SessionID is the extension's tab-session id, adopted on the first event.
	SessionID string `json:"sessionId,omitempty"`
}

// recordNavigation is shared by the JSON endpoint and WebSocket messages.
func (s *Server) recordNavigation(ev navigationBody) string {
	s.sess.StartTracking(ev.SessionID)
	return s.sess.AddNode(ev.ArticleTitle, ev.ArticleURL, model.ParseSourceContext(string(ev.Context)))
}

func (s *Server) handleNavigation(w http.ResponseWriter, r *http.Request) {
	var body navigationBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := s.recordNavigation(body)
	writeData(w, http.StatusOK, map[string]any{"nodeId": id})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSessionActive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		NodeID *string `json:"nodeId"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.sess.SetActiveNode(model.PtrStr(body.NodeID))
	writeData(w, http.StatusOK, map[string]any{"activeNodeId": body.NodeID})
}

func (s *Server) handleSessionClear(w http.ResponseWriter, r *http.Request) {
	s.sess.ClearTree()
	writeData(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSessionName(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.sess.SetSessionName(body.Name)
	writeData(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleSessionID(w http.ResponseWriter, r *http.Request) {
	var body struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.sess.SetSessionID(body.SessionID)
	writeData(w, http.StatusOK, s.sess.Snapshot())
}

func (s *Server) handleLayout(w http.ResponseWriter, r *http.Request) {
	opts, err := s.layoutOptions(r, layout.VariantMain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	snap := s.sess.Snapshot()
	writeData(w, http.StatusOK, s.computeLayout(snap.Nodes, model.PtrStr(snap.ActiveNodeID), opts))
}

func (s *Server) handleTreesList(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, s.sess.SavedTrees())
}

func (s *Server) handleTreeGet(w http.ResponseWriter, r *http.Request) {
	t, ok := s.sess.SavedTree(chi.URLParam(r, "treeId"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("tree not found: %s", chi.URLParam(r, "treeId")))
		return
	}
	writeData(w, http.StatusOK, t)
}

func (s *Server) handleTreeRename(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "treeId")
	s.sess.RenameTree(id, body.Name)
	writeData(w, http.StatusOK, map[string]any{"treeId": id, "name": body.Name})
}

func (s *Server) handleTreeDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "treeId")
	s.sess.DeleteSavedTree(id)
	writeData(w, http.StatusOK, map[string]any{"treeId": id, "deleted": true})
}

func (s *Server) handleTreeLoad(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "treeId")
	loaded := s.sess.LoadTree(id, nil)
	writeData(w, http.StatusOK, map[string]any{
		"treeId":       id,
		"loaded":       loaded,
		"activeNodeId": model.StrPtr(s.sess.ActiveNodeID()),
	})
}

// handleTreeLayout lays out a saved tree without loading it (hover preview).
// The most recently visited node is marked active.
func (s *Server) handleTreeLayout(w http.ResponseWriter, r *http.Request) {
	t, ok := s.sess.SavedTree(chi.URLParam(r, "treeId"))
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("tree not found: %s", chi.URLParam(r, "treeId")))
		return
	}
	opts, err := s.layoutOptions(r, layout.VariantPreview)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeData(w, http.StatusOK, s.computeLayout(t.Nodes, model.LatestNodeID(t.Nodes), opts))
}

func (s *Server) computeLayout(nodes []model.TreeNode, activeID string, opts layout.Options) layout.Scene {
	started := time.Now()
	res := layout.Compute(nodes, activeID, opts)
	s.metrics.ObserveLayout(string(opts.Variant), started)
	return layout.NewScene(res, opts)
}

func (s *Server) layoutOptions(r *http.Request, fallback layout.Variant) (layout.Options, error) {
	q := r.URL.Query()
	v := fallback
	if raw := strings.TrimSpace(q.Get("variant")); raw != "" {
		parsed, err := layout.ParseVariant(raw)
		if err != nil {
			return layout.Options{}, err
		}
		v = parsed
	}
	opts := s.cfg.LayoutOptions(v)
	for _, p := range []struct {
		key string
		dst *float64
	}{{"h", &opts.HorizontalSpacing}, {"v", &opts.VerticalSpacing}} {
		raw := strings.TrimSpace(q.Get(p.key))
		if raw == "" {
			continue
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil || f <= 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return layout.Options{}, fmt.Errorf("invalid %s: %q (expected a positive number)", p.key, raw)
		}
		*p.dst = f
	}
	return opts, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{"data": data})
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

// writeJSON encodes before writing the status so an unencodable value
// becomes a 500 instead of an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b, _ = json.Marshal(map[string]any{"error": "encode response: " + err.Error()})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}
