package game

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Config 遊戲核心的運行參數
type Config struct {
	BoardSize    int           // 預設棋盤邊長（格數 = 邊長²）
	TurnSeconds  int           // 每回合秒數預算
	SettleDelay  time.Duration // 配對失敗後蓋回前的展示時間
	TickInterval time.Duration // 回合倒數的 tick 間隔
}

// DefaultConfig 返回預設參數（4x4 棋盤、20 秒回合、900ms 展示、1 秒 tick）
func DefaultConfig() Config {
	return Config{
		BoardSize:    4,
		TurnSeconds:  20,
		SettleDelay:  900 * time.Millisecond,
		TickInterval: time.Second,
	}
}

// Registry 房間註冊表
//
// 並發設計：
//   - mu 只保護 rooms 映射本身（創建、查找）；遊戲過程中不持全局鎖
//   - PIN 唯一性的 check-then-insert 在寫鎖內完成，對並發創建是原子的
//   - 房間內部狀態由各自的 Room.Mu 保護
type Registry struct {
	rooms     map[string]*Room // pin -> room
	mu        sync.RWMutex
	cfg       Config
	publisher Publisher
	logger    *slog.Logger
}

// NewRegistry 創建房間註冊表
func NewRegistry(cfg Config, publisher Publisher, logger *slog.Logger) *Registry {
	return &Registry{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
	}
}

// Config 返回註冊表的運行參數
func (g *Registry) Config() Config {
	return g.cfg
}

// SetPublisher 設定快照發布端
//
// Hub 需要註冊表查房間、註冊表需要 Hub 發快照，組裝時先建註冊表
// 再回填發布端。必須在開始服務前呼叫。
func (g *Registry) SetPublisher(p Publisher) {
	g.publisher = p
}

// CreateRoom 創建房間
//
// 分配新的唯一識別碼與一組不與任何現存房間重複的 PIN，初始狀態 lobby。
// 除註冊外沒有副作用——對外公告新房間是呼叫方的責任。
func (g *Registry) CreateRoom() (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	pin, err := g.generatePin(4)
	if err != nil {
		return nil, err
	}

	room := &Room{
		ID:    uuid.NewString(),
		Pin:   pin,
		State: StateLobby,
	}
	g.rooms[pin] = room

	g.logger.Info("房間已創建", "room_id", room.ID, "pin", pin)
	return room, nil
}

// FindByPin 依 PIN 查找房間
func (g *Registry) FindByPin(pin string) (*Room, error) {
	g.mu.RLock()
	room, exists := g.rooms[pin]
	g.mu.RUnlock()

	if !exists {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// AddPlayer 將玩家加入房間（只允許在 lobby）
//
// 加入順序只追加、永不重排——它定義回合輪替的次序。
func (g *Registry) AddPlayer(pin, name string) (*Player, error) {
	room, err := g.FindByPin(pin)
	if err != nil {
		return nil, err
	}

	room.Mu.Lock()
	if room.State != StateLobby {
		room.Mu.Unlock()
		return nil, ErrRoomStarted
	}

	player := &Player{
		ID:        uuid.NewString(),
		Name:      name,
		Score:     0,
		Connected: true,
	}
	room.Players = append(room.Players, player)
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	g.publish(snap)
	g.logger.Info("玩家加入房間", "pin", pin, "player_id", player.ID, "player_name", name)
	return player, nil
}

// StartGame 開始遊戲
//
// 產生棋盤、設定第一位（最早加入的）玩家、重置回合倒數。
func (g *Registry) StartGame(pin string) error {
	room, err := g.FindByPin(pin)
	if err != nil {
		return err
	}

	room.Mu.Lock()
	if len(room.Players) == 0 {
		room.Mu.Unlock()
		return ErrNoPlayers
	}

	if err := g.resetRound(room, g.cfg.BoardSize); err != nil {
		room.Mu.Unlock()
		return err
	}
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	g.publish(snap)
	g.logger.Info("遊戲開始", "pin", pin, "board_size", snap.BoardSize, "players", len(snap.Players))
	return nil
}

// RestartRound 重開一局
//
// 以房間當前尺寸重新產生棋盤；resetScores 為真時清零所有分數。
// 不改變玩家集合與加入順序。
func (g *Registry) RestartRound(pin string, resetScores bool) error {
	room, err := g.FindByPin(pin)
	if err != nil {
		return err
	}

	room.Mu.Lock()
	if len(room.Players) == 0 {
		room.Mu.Unlock()
		return ErrNoPlayers
	}

	if resetScores {
		for _, p := range room.Players {
			p.Score = 0
		}
	}

	size := room.BoardSize
	if size == 0 {
		size = g.cfg.BoardSize
	}
	if err := g.resetRound(room, size); err != nil {
		room.Mu.Unlock()
		return err
	}
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	g.publish(snap)
	g.logger.Info("重開一局", "pin", pin, "reset_scores", resetScores)
	return nil
}

// resetRound 產生新棋盤並重置回合狀態。呼叫方必須持有 room.Mu。
func (g *Registry) resetRound(room *Room, size int) error {
	board, symbols, err := GenerateBoard(size)
	if err != nil {
		return err
	}

	room.Board = board
	room.BoardSize = size
	room.PairSymbols = symbols
	room.State = StateRunning
	room.CurrentPlayerID = room.Players[0].ID
	room.TimeLeft = g.cfg.TurnSeconds
	room.FirstRevealedPos = nil
	room.RevealLock = false
	room.SettleGen++ // 上一局尚未觸發的蓋牌回調全部作廢
	return nil
}

// publish 發布快照（fire-and-forget）
func (g *Registry) publish(snap Snapshot) {
	if g.publisher != nil {
		g.publisher.Publish(snap.Pin, snap)
	}
}

// Stats 統計資訊
func (g *Registry) Stats() map[string]any {
	g.mu.RLock()
	defer g.mu.RUnlock()

	stateCount := make(map[RoomState]int)
	totalPlayers := 0

	for _, room := range g.rooms {
		room.Mu.Lock()
		stateCount[room.State]++
		totalPlayers += len(room.Players)
		room.Mu.Unlock()
	}

	return map[string]any{
		"total_rooms":   len(g.rooms),
		"total_players": totalPlayers,
		"by_state":      stateCount,
	}
}

// generatePin 產生指定長度的數字 PIN，在當前註冊的房間中唯一。
// 呼叫方必須持有 mu 寫鎖（唯一性檢查與插入必須對並發創建原子）。
func (g *Registry) generatePin(length int) (string, error) {
	capacity := 1
	for i := 0; i < length; i++ {
		capacity *= 10
	}
	if len(g.rooms) >= capacity {
		return "", fmt.Errorf("PIN 空間已耗盡: %d 個房間", len(g.rooms))
	}

	const digits = "0123456789"
	for {
		b := make([]byte, length)
		for i := range b {
			n, err := randInt(len(digits))
			if err != nil {
				return "", fmt.Errorf("產生 PIN 失敗: %w", err)
			}
			b[i] = digits[n]
		}
		pin := string(b)
		if _, taken := g.rooms[pin]; !taken {
			return pin, nil
		}
	}
}
