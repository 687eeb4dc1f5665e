package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"rabbithole/internal/model"
	"rabbithole/internal/navigate"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsSendBuffer = 32
	wsMaxMessage = 64 * 1024
)

// Message is the WebSocket envelope in both directions.
//
// Outbound types: "session" (Session set), "trees" (Trees set), "navigate"
// (URL/Title/ReuseTab set). Inbound types: "navigation" (a visit, fields of
// model.NavigationEvent), "active" (NodeID), "stop", "session-id" (SessionID).
type Message struct {
	Type string `json:"type"`

	Session *model.SessionRecord `json:"session,omitempty"`
	Trees   []model.SavedTree    `json:"trees,omitempty"`

	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	ReuseTab bool   `json:"reuseTab,omitempty"`

	ArticleTitle string              `json:"articleTitle,omitempty"`
	ArticleURL   string              `json:"articleUrl,omitempty"`
	Context      model.SourceContext `json:"context,omitempty"`
	NodeID       *string             `json:"nodeId,omitempty"`
	SessionID    string              `json:"sessionId,omitempty"`
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 32 * 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin allows same-origin pages, non-browser clients and browser
// extensions. Arbitrary web pages must not drive the local service.
func checkOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "chrome-extension", "moz-extension", "safari-web-extension":
		return true
	}
	return strings.EqualFold(u.Host, strings.TrimSpace(r.Host))
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub fans session updates and navigation requests out to every connected
// extension and feeds inbound messages to the server. It implements
// navigate.Navigator.
type Hub struct {
	log *zap.Logger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	watch   map[chan struct{}]struct{}
	handle  func(Message)
	closed  bool
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{log: log, clients: map[*wsClient]struct{}{}, watch: map[chan struct{}]struct{}{}}
}

// subscribe returns a channel that receives a tick after each session or
// trees change. Ticks coalesce; the channel closes when the hub closes.
func (h *Hub) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.watch[ch] = struct{}{}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.watch[ch]; ok {
			delete(h.watch, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

func (h *Hub) notifyWatchers() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.watch {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) setHandler(fn func(Message)) {
	h.mu.Lock()
	h.handle = fn
	h.mu.Unlock()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Navigate asks connected extensions to show the article. With nobody
// connected it reports navigate.ErrUnavailable so a fallback can open a
// browser instead.
func (h *Hub) Navigate(ctx context.Context, req model.NavigationRequest) error {
	if _, err := navigate.ValidateURL(req.URL); err != nil {
		return err
	}
	if h.Clients() == 0 {
		return navigate.ErrUnavailable
	}
	h.Broadcast(Message{Type: "navigate", URL: req.URL, Title: req.Title, ReuseTab: req.ReuseTab})
	return ctx.Err()
}

// SessionChanged is a tree.Hooks.OnChange callback.
func (h *Hub) SessionChanged(rec model.SessionRecord) {
	h.Broadcast(Message{Type: "session", Session: &rec})
	h.notifyWatchers()
}

// TreesChanged is a tree.Hooks.OnTreesChanged callback.
func (h *Hub) TreesChanged(trees []model.SavedTree) {
	if trees == nil {
		trees = []model.SavedTree{}
	}
	h.Broadcast(Message{Type: "trees", Trees: trees})
	h.notifyWatchers()
}

// Broadcast queues msg for every client. Clients that cannot keep up are dropped.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encode ws message", zap.String("type", msg.Type), zap.Error(err))
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- b:
		default:
			h.log.Warn("dropping slow websocket client")
			delete(h.clients, c)
			c.close()
		}
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, wsSendBuffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", zap.String("remote", r.RemoteAddr))

	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

func (h *Hub) readPump(c *wsClient) {
	defer func() {
		h.remove(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(wsMaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket read", zap.Error(err))
			}
			return
		}
		h.mu.Lock()
		fn := h.handle
		h.mu.Unlock()
		if fn != nil {
			fn(msg)
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client, ends event streams and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
	for ch := range h.watch {
		delete(h.watch, ch)
		close(ch)
	}
}

func (s *Server) handleInbound(msg Message) {
	switch msg.Type {
	case "navigation":
		s.recordNavigation(navigationBody{
			NavigationEvent: model.NavigationEvent{
				ArticleTitle: msg.ArticleTitle,
				ArticleURL:   msg.ArticleURL,
				Context:      msg.Context,
			},
			SessionID: msg.SessionID,
		})
	case "active":
		s.sess.SetActiveNode(model.PtrStr(msg.NodeID))
	case "stop":
		s.sess.StopTracking()
	case "session-id":
		s.sess.SetSessionID(msg.SessionID)
	default:
		s.log.Debug("ignoring websocket message", zap.String("type", msg.Type))
	}
}
