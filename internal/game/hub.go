package game

import (
	"sync"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
)

// sendBufferSize 每个连接的待发送消息上限
const sendBufferSize = 256

// Connection 一个客户端连接
type Connection struct {
	ID       string
	UserID   string
	Username string

	// 通信通道
	Send chan []byte

	mu     sync.Mutex
	closed bool
}

// NewConnection 创建连接
func NewConnection(id, userID, username string) *Connection {
	return &Connection{
		ID:       id,
		UserID:   userID,
		Username: username,
		Send:     make(chan []byte, sendBufferSize),
	}
}

// push 非阻塞写入发送通道，通道已满时关闭连接
func (c *Connection) push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		c.closed = true
		close(c.Send)
		return false
	}
}

// Close 关闭发送通道，可重复调用
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// Hub 连接注册表，负责把事件编码后投递到连接
type Hub struct {
	connections map[string]*Connection
	connMutex   sync.RWMutex
	log         *zap.Logger
}

// NewHub 创建连接注册表
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		connections: make(map[string]*Connection),
		log:         log,
	}
}

// Register 登记连接
func (h *Hub) Register(c *Connection) {
	h.connMutex.Lock()
	h.connections[c.ID] = c
	total := len(h.connections)
	h.connMutex.Unlock()

	h.log.Info("连接已登记", zap.String("connId", c.ID), zap.String("userId", c.UserID), zap.Int("total", total))
}

// Unregister 注销连接并关闭其发送通道
func (h *Hub) Unregister(connID string) {
	h.connMutex.Lock()
	c, ok := h.connections[connID]
	delete(h.connections, connID)
	h.connMutex.Unlock()

	if ok {
		c.Close()
		h.log.Info("连接已注销", zap.String("connId", connID), zap.String("userId", c.UserID))
	}
}

// Count 当前连接数
func (h *Hub) Count() int {
	h.connMutex.RLock()
	defer h.connMutex.RUnlock()
	return len(h.connections)
}

// SendTo 向单个连接发送事件
func (h *Hub) SendTo(connID, event string, payload interface{}) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("序列化消息失败", zap.String("event", event), zap.Error(err))
		return
	}

	h.connMutex.RLock()
	c, ok := h.connections[connID]
	h.connMutex.RUnlock()
	if !ok {
		return
	}
	if !c.push(data) {
		h.log.Warn("发送队列已满，关闭连接", zap.String("connId", connID))
	}
}

// Broadcast 向所有连接发送事件
func (h *Hub) Broadcast(event string, payload interface{}) {
	data, err := encodeEvent(event, payload)
	if err != nil {
		h.log.Error("序列化消息失败", zap.String("event", event), zap.Error(err))
		return
	}

	h.connMutex.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		targets = append(targets, c)
	}
	h.connMutex.RUnlock()

	for _, c := range targets {
		if !c.push(data) {
			h.log.Warn("发送队列已满，关闭连接", zap.String("connId", c.ID))
		}
	}
}

// CloseAll 关闭所有连接
func (h *Hub) CloseAll() {
	h.connMutex.Lock()
	defer h.connMutex.Unlock()

	for id, c := range h.connections {
		c.Close()
		delete(h.connections, id)
	}
}

// encodeEvent 编码为 {type, payload} 信封
func encodeEvent(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: event, Payload: raw})
}
