package progress

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/DE-FUE-CTO-COMMUNITY/simpleEAM-sub003/modules/transfer/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub streams progress events to websocket clients. A client may pass
// ?runId= to receive a single run only.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logrus.Entry
	origins  []string

	mu      sync.RWMutex
	clients map[*client]struct{}
}

type client struct {
	runID string
	send  chan domain.Progress
}

// NewHub accepts same-origin connections and those from allowedOrigins, the
// list the HTTP API serves CORS for. "*" allows any origin.
func NewHub(log *logrus.Entry, allowedOrigins ...string) *Hub {
	if log == nil {
		log = logrusNop()
	}
	h := &Hub{
		log:     log,
		origins: allowedOrigins,
		clients: map[*client]struct{}{},
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, o := range h.origins {
		if o == "*" || strings.EqualFold(strings.TrimSpace(o), origin) {
			return true
		}
	}
	h.log.WithField("origin", origin).Warn("progress stream origin rejected")
	return false
}

// Sink broadcasts to every connected client. Slow clients lose events rather
// than holding up the import.
func (h *Hub) Sink() domain.ProgressFunc {
	return func(p domain.Progress) {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for c := range h.clients {
			if c.runID != "" && c.runID != p.RunID {
				continue
			}
			select {
			case c.send <- p:
			default:
			}
		}
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("progress websocket upgrade failed")
		return
	}
	c := &client{runID: r.URL.Query().Get("runId"), send: make(chan domain.Progress, 64)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, c, done)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// readPump only consumes control frames; clients do not send messages.
func (h *Hub) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.WithError(err).Debug("progress websocket read")
			}
			return
		}
	}
}

func (h *Hub) writePump(conn *websocket.Conn, c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case p := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(p); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
