// Package ws 把用户通知推送到在线的 websocket 连接
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/qs3c/exam_prep_server/internal/pkg/pubsub"
	"github.com/qs3c/exam_prep_server/internal/pkg/sl"
)

const (
	// MaxConnsPerUser 单个用户同时在线的连接上限（多标签页）
	MaxConnsPerUser = 5
	writeWait       = 5 * time.Second
)

var ErrTooManyConnections = errors.New("too many connections for user")

type Hub struct {
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger
	now     func() time.Time
}

type Client struct {
	UserID string
	Conn   *websocket.Conn
	mu     sync.Mutex // 写锁，gorilla 连接不支持并发写
}

// Event 下发给浏览器的通知
type Event struct {
	Type   string                 `json:"type"`
	Data   map[string]interface{} `json:"data,omitempty"`
	SentAt time.Time              `json:"sent_at"`
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		logger:  logger.With("component", "ws_hub"),
		now:     time.Now,
	}
}

// Register 超过 MaxConnsPerUser 时拒绝
func (h *Hub) Register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.clients[client.UserID]
	if len(conns) >= MaxConnsPerUser {
		return ErrTooManyConnections
	}
	if conns == nil {
		conns = make(map[*Client]struct{})
		h.clients[client.UserID] = conns
	}
	conns[client] = struct{}{}

	h.logger.Debug("client connected", "user_id", client.UserID, "user_conns", len(conns))
	return nil
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.UserID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.UserID)
		}
	}
	h.logger.Debug("client disconnected", "user_id", client.UserID)
}

// Deliver 把通知写到该用户的所有连接，用户不在线时丢弃。
// 写失败的连接会被关闭并移除。
func (h *Hub) Deliver(n *pubsub.Notification) {
	if n == nil || n.UserID == "" {
		return
	}

	data, err := json.Marshal(Event{Type: n.Type, Data: n.Data, SentAt: h.now().UTC()})
	if err != nil {
		h.logger.Error("failed to encode notification", "type", n.Type, sl.Err(err))
		return
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients[n.UserID]))
	for c := range h.clients[n.UserID] {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(data); err != nil {
			h.logger.Warn("dropping client after failed write", "user_id", n.UserID, "type", n.Type, sl.Err(err))
			h.Unregister(c)
			c.Conn.Close()
		}
	}
}

func (c *Client) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.Conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// ConnectionCount 在线连接总数
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
