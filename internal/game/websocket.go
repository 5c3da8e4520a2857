// websocket.go

package game

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/jacl-coder/CyberChess-Server/internal/gateway"
)

const (
	// 写入超时时间
	writeWait = 10 * time.Second

	// 读取超时时间
	pongWait = 60 * time.Second

	// 发送 ping 的间隔时间
	pingPeriod = (pongWait * 9) / 10

	// 最大消息大小
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWSConnection 处理WebSocket连接
func (s *GameServer) handleWSConnection(w http.ResponseWriter, r *http.Request) {
	userID, username, err := s.identify(r)
	if err != nil {
		s.log.Debug("连接认证失败", zap.String("remote", gateway.ClientIP(r)), zap.Error(err))
		http.Error(w, "未授权", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket升级失败", zap.Error(err))
		return
	}

	c := NewConnection(uuid.New().String(), userID, username)
	s.hub.Register(c)
	s.manager.Connect(c.ID, userID, username)

	go s.writePump(conn, c)
	go s.readPump(conn, c)
}

// identify 从令牌中取出用户身份，未配置认证时使用查询参数
func (s *GameServer) identify(r *http.Request) (string, string, error) {
	if s.auth == nil {
		q := r.URL.Query()
		userID := q.Get("user_id")
		if userID == "" {
			userID = uuid.New().String()
		}
		username := q.Get("username")
		if username == "" {
			username = userID
		}
		return userID, username, nil
	}

	claims, err := s.auth.Verify(gateway.TokenFromRequest(r))
	if err != nil {
		return "", "", err
	}
	username := claims.Username
	if username == "" {
		username = claims.UserID
	}
	return claims.UserID, username, nil
}

// readPump 从WebSocket读取数据，按到达顺序交给房间管理器
func (s *GameServer) readPump(conn *websocket.Conn, c *Connection) {
	defer func() {
		s.hub.Unregister(c.ID)
		s.manager.Disconnect(c.ID)
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Warn("WebSocket错误", zap.String("connId", c.ID), zap.Error(err))
			}
			return
		}
		s.manager.Dispatch(c.ID, message)
	}
}

// writePump 向WebSocket写入数据
func (s *GameServer) writePump(conn *websocket.Conn, c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 通道已关闭
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
