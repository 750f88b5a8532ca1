package dashboard

import (
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Shivam-Patel-G/blackhole-fundme/core/wallet-session/session"
)

const writeWait = 5 * time.Second

// Message is what websocket clients receive
type Message struct {
	Type      string      `json:"type"`
	Message   string      `json:"message,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// Hub fans controller notifications out to websocket clients. It implements
// session.View.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *logrus.Logger

	clientsMutex sync.RWMutex
	clients      map[*client]bool

	stateMutex sync.RWMutex
	state      *session.Snapshot
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// NewHub creates an empty hub
func NewHub(logger *logrus.Logger) *Hub {
	if logger == nil {
		logger = logrus.New()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*client]bool),
	}
}

func newMessage(kind, text string, data interface{}) Message {
	return Message{Type: kind, Message: text, Data: data, Timestamp: time.Now().Format(time.RFC3339)}
}

// Alert implements session.View
func (h *Hub) Alert(message string) {
	h.broadcast(newMessage("alert", message, nil))
}

// Redirect implements session.View
func (h *Hub) Redirect(url string) {
	h.broadcast(newMessage("redirect", "", map[string]string{"url": url}))
}

// ShowError implements session.View
func (h *Hub) ShowError(err *session.Error) {
	h.broadcast(newMessage("error", err.Message, map[string]string{
		"op":   err.Op,
		"kind": err.Kind.String(),
	}))
}

// ShowUnauthorized implements session.View
func (h *Hub) ShowUnauthorized(account, owner common.Address) {
	h.broadcast(newMessage("unauthorized", "Only the contract owner can withdraw", map[string]string{
		"account": account.Hex(),
		"owner":   owner.Hex(),
	}))
}

// ClearAmount implements session.View
func (h *Hub) ClearAmount() {
	h.broadcast(newMessage("clear_amount", "", nil))
}

// Render implements session.View
func (h *Hub) Render(s session.Snapshot) {
	h.stateMutex.Lock()
	h.state = &s
	h.stateMutex.Unlock()

	h.broadcast(newMessage("state", "", s))
}

// ClientCount returns the number of connected websocket clients
func (h *Hub) ClientCount() int {
	h.clientsMutex.RLock()
	defer h.clientsMutex.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and streams notifications until the client leaves
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Errorf("❌ WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The client is registered and handed its welcome while its write lock
	// is held, so broadcasts reach it only after the welcome.
	c := &client{conn: conn}
	c.mu.Lock()
	h.clientsMutex.Lock()
	h.clients[c] = true
	h.clientsMutex.Unlock()

	h.stateMutex.RLock()
	var state interface{}
	if h.state != nil {
		state = *h.state
	}
	h.stateMutex.RUnlock()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(newMessage("welcome", "Connected to FundMe session", state))
	c.mu.Unlock()

	defer func() {
		h.clientsMutex.Lock()
		delete(h.clients, c)
		h.clientsMutex.Unlock()
		h.logger.Infof("🔌 WebSocket client disconnected")
	}()
	if err != nil {
		return
	}
	h.logger.Infof("🔗 New WebSocket client connected")

	for {
		var msg map[string]interface{}
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Errorf("❌ WebSocket error: %v", err)
			}
			break
		}

		if msgType, ok := msg["type"].(string); ok && msgType == "ping" {
			c.write(newMessage("pong", "", nil))
		}
	}
}

func (h *Hub) broadcast(msg Message) {
	h.clientsMutex.RLock()
	var failed []*client
	for c := range h.clients {
		if err := c.write(msg); err != nil {
			h.logger.Errorf("❌ Failed to send %s to WebSocket client: %v", msg.Type, err)
			failed = append(failed, c)
		}
	}
	h.clientsMutex.RUnlock()

	if len(failed) > 0 {
		h.clientsMutex.Lock()
		for _, c := range failed {
			delete(h.clients, c)
			c.conn.Close()
		}
		h.clientsMutex.Unlock()
	}
}
