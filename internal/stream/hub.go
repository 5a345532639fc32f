// Package stream 把结算结果推送给浏览器端，驱动钱包/持仓视图刷新。
package stream

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tradesim/settle/internal/settlement"
)

var log = logrus.WithField("component", "stream")

// Event 推送给客户端的结算事件。
type Event struct {
	Type   string             `json:"type"` // "settlement"
	At     time.Time          `json:"at"`
	Result *settlement.Result `json:"result"`
}

// Hub 维护已连接的 websocket 客户端并向它们广播结算事件。
// 慢客户端直接断开：行情/结算推送丢给落后的订阅者没有意义，
// 客户端重连后用 REST 拉全量即可。
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

// PublishSettlement 实现 settlement.EventSink。
func (h *Hub) PublishSettlement(res *settlement.Result) {
	ev := Event{Type: "settlement", At: time.Now(), Result: res}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("marshal settlement event: %v", err)
		return
	}
	h.broadcast(payload)
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// 发送队列满：认定为慢客户端，踢掉
			delete(h.clients, c)
			close(c.send)
		}
	}
}

// Register 接管一个已升级的 websocket 连接，直到连接关闭。
func (h *Hub) Register(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan []byte, 64)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go c.writeLoop()
	go h.readLoop(c)
}

// Close 断开所有客户端连接。
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount 当前连接数（测试与运维观测用）。
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop 只为感知客户端断开；入站消息全部丢弃。
func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		if _, ok := h.clients[c]; ok {
			delete(h.clients, c)
			close(c.send)
		}
		h.mu.Unlock()
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 10)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
