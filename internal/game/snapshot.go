package game

// Snapshot 房間狀態快照
//
// 每次已提交的狀態變更（加入、開始、翻牌結果、重開、計時 tick、結束）
// 之後構建，發給該房間的所有訂閱者。快照是唯一離開核心的資料形狀。
type Snapshot struct {
	Type            string       `json:"type"` // 固定 "ROOM_STATE"
	Pin             string       `json:"pin"`
	State           RoomState    `json:"state"`
	TimeLeft        int          `json:"timeLeft"`
	CurrentPlayerID string       `json:"currentPlayerId,omitempty"`
	Players         []PlayerView `json:"players"`
	BoardSize       int          `json:"boardSize"`
	Board           []CardView   `json:"board"`
}

// PlayerView 快照中的玩家
type PlayerView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// CardView 快照中的牌
//
// Symbol 只在牌不是蓋著時填入——pairId 對應的符號對蓋著的牌絕不外洩，
// 這是協議唯一的保密不變量。
type CardView struct {
	Pos    int       `json:"pos"`
	State  CardState `json:"state"`
	Symbol string    `json:"symbol,omitempty"`
}

// Publisher 快照發布接口
//
// 核心在狀態變更提交後呼叫；實現必須是 fire-and-forget——
// 不允許阻塞或讓發布失敗影響產生它的狀態轉換。
type Publisher interface {
	Publish(pin string, snap Snapshot)
}

// BuildSnapshot 構建房間的客戶端安全視圖。呼叫方必須持有 Mu。
func BuildSnapshot(r *Room) Snapshot {
	players := make([]PlayerView, 0, len(r.Players))
	for _, p := range r.Players {
		players = append(players, PlayerView{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			Connected: p.Connected,
		})
	}

	board := make([]CardView, 0, len(r.Board))
	for _, c := range r.Board {
		view := CardView{Pos: c.Position, State: c.State}
		if c.State != CardHidden {
			view.Symbol = r.PairSymbols[c.PairID]
		}
		board = append(board, view)
	}

	return Snapshot{
		Type:            "ROOM_STATE",
		Pin:             r.Pin,
		State:           r.State,
		TimeLeft:        r.TimeLeft,
		CurrentPlayerID: r.CurrentPlayerID,
		Players:         players,
		BoardSize:       r.BoardSize,
		Board:           board,
	}
}
