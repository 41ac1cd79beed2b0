// Package ws 透過 WebSocket 將房間快照推送給所有訂閱者
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/koopa0/memory-match/internal/game"
)

// Hub WebSocket 連接中心
//
// Hub 模式設計：
//   - 集中管理所有房間的訂閱連接（玩家手機與主持人大屏都是訂閱者）
//   - 實現 game.Publisher：核心每次狀態變更提交後呼叫 Publish，
//     Hub 序列化一次、向該房間所有連接非阻塞送出
//   - 慢消費者的緩衝滿了就丟訊息，絕不讓廣播阻塞狀態轉換
//
// 連接映射：map[pin]map[subscriberID]*Connection
type Hub struct {
	registry *game.Registry
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]map[string]*Connection // pin -> subID -> Connection
}

// Connection 一條訂閱連接
//
// PlayerID 可為空（純觀戰訂閱）；非空時 Hub 會在連接建立/斷開時
// 翻轉該玩家的 Connected 旗標。
type Connection struct {
	SubID     string
	PlayerID  string
	Pin       string
	Conn      *websocket.Conn
	Send      chan []byte
	hub       *Hub
	closeOnce sync.Once
}

// NewHub 創建 WebSocket Hub
func NewHub(registry *game.Registry, logger *slog.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[string]map[string]*Connection),
	}
}

// Publish 實現 game.Publisher：向房間的所有訂閱者廣播快照。
//
// fire-and-forget：序列化失敗只記錄，個別連接緩衝滿了就丟。
func (hub *Hub) Publish(pin string, snap game.Snapshot) {
	message, err := json.Marshal(snap)
	if err != nil {
		hub.logger.Error("序列化快照失敗", "pin", pin, "error", err)
		return
	}

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	for _, conn := range hub.connections[pin] {
		select {
		case conn.Send <- message:
		default:
			hub.logger.Warn("連接緩衝區滿，丟棄快照",
				"pin", pin,
				"subscriber", conn.SubID)
		}
	}
}

// ServeWS 處理 WebSocket 訂閱
//
// 路徑攜帶 PIN，查詢參數 player_id 可選；連接建立後立即送出
// 當前快照，晚加入的訂閱者不必等下一次狀態變更。
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	if pin == "" {
		http.Error(w, "缺少 PIN", http.StatusBadRequest)
		return
	}

	room, err := hub.registry.FindByPin(pin)
	if err != nil {
		http.Error(w, "房間不存在", http.StatusNotFound)
		return
	}

	playerID := r.URL.Query().Get("player_id")

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	connection := &Connection{
		SubID:    uuid.NewString(),
		PlayerID: playerID,
		Pin:      pin,
		Conn:     conn,
		Send:     make(chan []byte, 256),
		hub:      hub,
	}

	hub.register(connection)
	hub.setConnected(room, playerID, true)

	// 當前狀態立即送出
	room.Mu.Lock()
	snap := game.BuildSnapshot(room)
	room.Mu.Unlock()
	if message, err := json.Marshal(snap); err == nil {
		connection.Send <- message
	}

	go connection.writePump()
	go connection.readPump()

	hub.logger.Info("WebSocket 訂閱建立",
		"pin", pin,
		"subscriber", connection.SubID,
		"player_id", playerID)
}

// register 註冊連接；同一玩家的舊連接會被頂掉。
func (hub *Hub) register(conn *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.connections[conn.Pin] == nil {
		hub.connections[conn.Pin] = make(map[string]*Connection)
	}

	if conn.PlayerID != "" {
		for id, old := range hub.connections[conn.Pin] {
			if old.PlayerID == conn.PlayerID {
				old.close()
				delete(hub.connections[conn.Pin], id)
			}
		}
	}

	hub.connections[conn.Pin][conn.SubID] = conn
}

// unregister 取消註冊；該玩家沒有其他存活連接時標記為斷線。
func (hub *Hub) unregister(conn *Connection) {
	hub.mu.Lock()
	stillConnected := false
	if roomConns, exists := hub.connections[conn.Pin]; exists {
		if actual, exists := roomConns[conn.SubID]; exists && actual == conn {
			delete(roomConns, conn.SubID)
			conn.close()
			if len(roomConns) == 0 {
				delete(hub.connections, conn.Pin)
			}
		}
		for _, other := range roomConns {
			if conn.PlayerID != "" && other.PlayerID == conn.PlayerID {
				stillConnected = true
			}
		}
	}
	hub.mu.Unlock()

	if conn.PlayerID != "" && !stillConnected {
		if room, err := hub.registry.FindByPin(conn.Pin); err == nil {
			hub.setConnected(room, conn.PlayerID, false)
		}
	}
}

// setConnected 翻轉玩家的連線旗標（斷線不影響輪替資格）
func (hub *Hub) setConnected(room *game.Room, playerID string, connected bool) {
	if playerID == "" {
		return
	}
	room.Mu.Lock()
	if p := room.PlayerByID(playerID); p != nil {
		p.Connected = connected
	}
	room.Mu.Unlock()
}

// Stop 關閉所有連接（進程關閉用）
func (hub *Hub) Stop() {
	hub.mu.Lock()
	for _, roomConns := range hub.connections {
		for _, conn := range roomConns {
			conn.close()
			conn.Conn.Close()
		}
	}
	hub.connections = make(map[string]map[string]*Connection)
	hub.mu.Unlock()

	hub.logger.Info("WebSocket Hub 已停止")
}

// close 關閉 Send channel（只關一次）
func (c *Connection) close() {
	c.closeOnce.Do(func() {
		close(c.Send)
	})
}

// readPump 讀取客戶端訊息
//
// 訂閱是單向的（操作走 HTTP API），讀取端只負責心跳超時檢測：
// 60 秒內沒有任何訊息（包括 Pong）就關閉連接，配合 writePump 的
// 54 秒 Ping 留 6 秒余量。
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.Conn.Close()
	}()

	if err := c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket 讀取錯誤",
					"error", err,
					"pin", c.Pin,
					"subscriber", c.SubID)
			}
			return
		}
	}
}

// writePump 寫入快照到客戶端，定期發送 Ping 維持心跳
func (c *Connection) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// Hub 關閉了通道，優雅關閉連接
				deadline := time.Now().Add(time.Second)
				if err := c.Conn.SetWriteDeadline(deadline); err == nil {
					_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				}
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量送出隊列中積壓的快照
			n := len(c.Send)
			for i := 0; i < n; i++ {
				if err := c.Conn.WriteMessage(websocket.TextMessage, <-c.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
