package game

import (
	"log/slog"
	"time"
)

// Engine 翻牌引擎
//
// 每回合的狀態機（由 FirstRevealedPos / RevealLock 推導，不另存欄位）：
//
//	idle ──第一張──► armed ──第二張不符──► settling ──延遲蓋回──► idle（換人）
//	                  │
//	                  └──第二張相符──► idle（同一玩家續翻）或 finished
//
// 並發設計：
//   - 整個翻牌操作在 Room.Mu 內原子完成，對呼叫方是同步的
//   - 配對失敗的蓋牌回調只攜帶 PIN、位置與排程當下的 SettleGen，
//     觸發時重新查表、重新取鎖、重新驗證房間仍在進行、RevealLock
//     仍然為真且代數未變（期間可能已結束、重開或被計時器換過人）
type Engine struct {
	registry  *Registry
	timer     *TurnTimer
	publisher Publisher
	logger    *slog.Logger
}

// NewEngine 創建翻牌引擎
func NewEngine(registry *Registry, timer *TurnTimer, publisher Publisher, logger *slog.Logger) *Engine {
	return &Engine{
		registry:  registry,
		timer:     timer,
		publisher: publisher,
		logger:    logger,
	}
}

// RevealCard 翻開一張牌
//
// 兩段式協議：第一張只翻開並記錄位置；第二張觸發比對，相符則雙雙配對、
// 當前玩家得一分並保留回合，不符則鎖住點擊、展示一段時間後蓋回並換人。
//
// 以下情況靜默忽略（返回 nil，不是錯誤）：RevealLock 期間的點擊、
// 翻已翻開或已配對的牌、重複點擊本回合的第一張牌。
func (e *Engine) RevealCard(pin, playerID string, pos int) error {
	room, err := e.registry.FindByPin(pin)
	if err != nil {
		return err
	}

	room.Mu.Lock()

	if room.State != StateRunning {
		room.Mu.Unlock()
		return ErrGameNotRunning
	}
	if playerID != room.CurrentPlayerID {
		room.Mu.Unlock()
		return ErrNotYourTurn
	}
	if room.RevealLock {
		// 比對展示期間，點擊直接丟棄
		room.Mu.Unlock()
		return nil
	}

	card := room.CardAt(pos)
	if card == nil {
		room.Mu.Unlock()
		return ErrInvalidPosition
	}
	if card.State != CardHidden {
		// 舊的點擊落在已翻開/已配對的牌上，冪等處理
		room.Mu.Unlock()
		return nil
	}

	// 第一張：翻開、記錄位置，回合與計時都不動
	if room.FirstRevealedPos == nil {
		card.State = CardRevealed
		room.FirstRevealedPos = &pos
		snap := BuildSnapshot(room)
		room.Mu.Unlock()

		e.publish(snap)
		return nil
	}

	if *room.FirstRevealedPos == pos {
		room.Mu.Unlock()
		return nil
	}

	// 第二張：比對
	firstPos := *room.FirstRevealedPos
	first := room.CardAt(firstPos)
	card.State = CardRevealed

	if first.PairID == card.PairID {
		e.settleMatch(room, first, card, playerID)
		return nil
	}

	// 不符：鎖住點擊，立即廣播讓所有人看到兩張牌，延遲後蓋回
	room.RevealLock = true
	gen := room.SettleGen
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	e.publish(snap)
	time.AfterFunc(e.registry.Config().SettleDelay, func() {
		e.settleMismatch(pin, firstPos, pos, gen)
	})
	return nil
}

// settleMatch 處理配對成功。進入時持有 room.Mu，返回前釋放。
func (e *Engine) settleMatch(room *Room, first, second *Card, playerID string) {
	first.State = CardMatched
	second.State = CardMatched
	room.FirstRevealedPos = nil

	if p := room.PlayerByID(playerID); p != nil {
		p.Score++
	}

	// 全部配對完成？
	if room.AllMatched() {
		room.State = StateFinished
		room.TimeLeft = 0
		snap := BuildSnapshot(room)
		pin := room.Pin
		room.Mu.Unlock()

		e.publish(snap)
		e.timer.StopCountdown(pin)
		e.logger.Info("遊戲結束", "pin", pin)
		return
	}

	// 配對成功的玩家保留回合，倒數重置
	room.TimeLeft = e.registry.Config().TurnSeconds
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	e.publish(snap)
}

// settleMismatch 配對失敗的延遲蓋牌回調
//
// 觸發時房間可能已結束、重開或不復存在——重新驗證後不符合則靜默放棄。
// gen 是排程當下的 SettleGen：單看 RevealLock 分不出回調屬於哪一次
// 比對（重開後的新一局可能在舊的延遲窗口內又出現一次配對失敗），
// 代數不符就表示這個回調屬於上一局，直接放棄。
// 回調永不向任何呼叫方傳播錯誤；意外的內部錯誤記錄後吞掉。
func (e *Engine) settleMismatch(pin string, firstPos, secondPos int, gen uint64) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("蓋牌回調發生 panic", "pin", pin, "error", r)
		}
	}()

	room, err := e.registry.FindByPin(pin)
	if err != nil {
		return
	}

	room.Mu.Lock()
	if room.State != StateRunning || !room.RevealLock || room.SettleGen != gen {
		room.Mu.Unlock()
		return
	}

	if c := room.CardAt(firstPos); c != nil {
		c.State = CardHidden
	}
	if c := room.CardAt(secondPos); c != nil {
		c.State = CardHidden
	}
	room.FirstRevealedPos = nil
	room.CurrentPlayerID = room.NextPlayerID()
	room.TimeLeft = e.registry.Config().TurnSeconds
	room.RevealLock = false
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	e.publish(snap)
}

// publish 發布快照（fire-and-forget）
func (e *Engine) publish(snap Snapshot) {
	if e.publisher != nil {
		e.publisher.Publish(snap.Pin, snap)
	}
}
