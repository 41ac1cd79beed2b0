// Package game 實現多人記憶翻牌遊戲的核心狀態機
//
// 系統設計問題：
//   如何在伺服器端權威地管理多個房間的回合制翻牌遊戲？
//
// 核心挑戰：
//  1. 狀態管理：房間生命週期（lobby → running → finished）與每回合的翻牌協議
//  2. 並發控制：HTTP 請求、回合倒數計時、配對失敗延遲蓋回三者操作同一房間
//  3. 時序行為：倒數歸零強制換人、配對失敗後固定延遲蓋牌
//  4. 資訊隱藏：未翻開的牌面身份絕不能離開伺服器
//
// 設計方案：
//   - 每房間一把互斥鎖：翻牌、計時、延遲回調全部串行化
//   - 延遲與週期任務只攜帶 PIN，觸發時重新查表並驗證房間狀態
//   - 狀態變更後立即構建快照並以 fire-and-forget 方式發布
package game

import (
	"errors"
	"sync"
)

// CardState 牌面狀態
type CardState string

const (
	CardHidden   CardState = "hidden"   // 蓋著，牌面身份保密
	CardRevealed CardState = "revealed" // 本回合翻開，尚未配對
	CardMatched  CardState = "matched"  // 已配對成功，永久翻開
)

// RoomState 房間狀態
//
// 狀態轉換規則：
//
//	lobby → running → finished
//	          ↑__________|  （restart 重新進入 running）
//
// running 不可能退回 lobby；finished 只能經由 restart 離開。
type RoomState string

const (
	StateLobby    RoomState = "lobby"    // 等待玩家加入
	StateRunning  RoomState = "running"  // 遊戲進行中
	StateFinished RoomState = "finished" // 所有牌已配對
)

// Card 一張牌
//
// PairID 只存在於伺服器端，蓋著時絕不序列化（資訊隱藏的唯一不變量）。
type Card struct {
	Position int       // 0..N-1，創建後不變
	PairID   int       // 0..N/2-1，伺服器專用
	State    CardState // 當前可見性
}

// Player 玩家
//
// 加入後永不移除；斷線只翻轉 Connected 旗標，不影響回合輪替資格。
type Player struct {
	ID        string // 加入時生成的 UUID
	Name      string
	Score     int  // 每次配對成功 +1
	Connected bool // WebSocket 連線狀態
}

// Room 遊戲房間
//
// 並發設計：
//   - 所有可變欄位由 Mu 保護；翻牌、計時 tick、蓋牌回調必須先取鎖
//   - 不同房間彼此獨立，互不爭用
//   - Players 保持加入順序，回合輪替依此順序循環，永不重排
type Room struct {
	ID  string // UUID
	Pin string // 數字加入碼，活躍房間間唯一

	State            RoomState
	Players          []*Player // 加入順序，只追加
	Board            []*Card   // len = BoardSize²
	BoardSize        int
	CurrentPlayerID  string         // lobby 時為空
	TimeLeft         int            // 當前回合剩餘秒數
	FirstRevealedPos *int           // 本回合第一張翻開未配對的牌；nil 表示尚未翻牌
	RevealLock       bool           // 配對失敗展示期間擋掉所有點擊
	SettleGen        uint64         // 蓋牌回調的代數；重開遞增，使上一局殘留的回調失效
	PairSymbols      map[int]string // pairId → 符號，只在牌翻開後才進快照

	Mu sync.Mutex
}

// 錯誤定義
//
// HTTP 狀態碼映射：
//   - ErrRoomNotFound                          → 404 Not Found
//   - ErrRoomStarted / ErrNoPlayers /
//     ErrNotYourTurn / ErrGameNotRunning      → 409 Conflict
//   - ErrInvalidPosition                       → 400 Bad Request
//
// 注意：翻已翻開的牌、重複點同一張牌、RevealLock 期間點擊都不是錯誤，
// 而是靜默忽略——客戶端的點擊可以無害地與伺服器狀態競爭。
var (
	// ErrRoomNotFound 當 PIN 不存在時返回
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomStarted 當房間已離開 lobby 仍嘗試加入時返回
	ErrRoomStarted = errors.New("room already started")

	// ErrNoPlayers 當沒有玩家仍嘗試開始或重開時返回
	ErrNoPlayers = errors.New("room has no players")

	// ErrNotYourTurn 當非當前玩家嘗試翻牌時返回
	ErrNotYourTurn = errors.New("not your turn")

	// ErrGameNotRunning 當遊戲不在進行中（lobby 或已結束）仍嘗試翻牌時返回
	ErrGameNotRunning = errors.New("game not running")

	// ErrInvalidPosition 當牌位置超出棋盤範圍時返回
	ErrInvalidPosition = errors.New("invalid card position")
)

// CardAt 取得指定位置的牌；越界返回 nil。呼叫方必須持有 Mu。
func (r *Room) CardAt(pos int) *Card {
	if pos < 0 || pos >= len(r.Board) {
		return nil
	}
	return r.Board[pos]
}

// PlayerByID 依 ID 查找玩家；不存在返回 nil。呼叫方必須持有 Mu。
func (r *Room) PlayerByID(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// NextPlayerID 依加入順序計算下一位玩家（循環）。呼叫方必須持有 Mu。
//
// 斷線的玩家仍保留輪替資格；沒有玩家時返回空字串。
func (r *Room) NextPlayerID() string {
	if len(r.Players) == 0 {
		return ""
	}
	idx := 0
	for i, p := range r.Players {
		if p.ID == r.CurrentPlayerID {
			idx = i
			break
		}
	}
	return r.Players[(idx+1)%len(r.Players)].ID
}

// AllMatched 檢查是否所有牌都已配對。呼叫方必須持有 Mu。
func (r *Room) AllMatched() bool {
	for _, c := range r.Board {
		if c.State != CardMatched {
			return false
		}
	}
	return len(r.Board) > 0
}
