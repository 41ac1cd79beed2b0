package game

import (
	"log/slog"
	"sync"
	"time"
)

// TurnTimer 回合計時器
//
// 每個進行中的房間各有一個獨立的週期任務，固定間隔 tick 一次：
// 倒數歸零時強制換人（與蓋牌回調相同的輪替邏輯），否則只遞減並廣播。
//
// 並發設計：
//   - 同一 PIN 任何時刻至多一個存活的計時任務；StartCountdown 先取消舊的
//   - tick 只攜帶 PIN，每次觸發重新查表並驗證房間仍在進行，
//     否則自我取消——對已取消或不存在的任務取消是 no-op
//   - tick 與翻牌、蓋牌回調共用 Room.Mu，對同一房間邏輯上串行
type TurnTimer struct {
	registry  *Registry
	publisher Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	tasks map[string]chan struct{} // pin -> 停止信號
	wg    sync.WaitGroup
}

// NewTurnTimer 創建回合計時器
func NewTurnTimer(registry *Registry, publisher Publisher, logger *slog.Logger) *TurnTimer {
	return &TurnTimer{
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		tasks:     make(map[string]chan struct{}),
	}
}

// StartCountdown 為房間啟動回合倒數
//
// 先取消該房間既有的任務，保證同一房間至多一個存活計時任務。
func (t *TurnTimer) StartCountdown(pin string) {
	t.mu.Lock()
	t.cancelLocked(pin)

	stop := make(chan struct{})
	t.tasks[pin] = stop
	t.mu.Unlock()

	t.wg.Add(1)
	go t.run(pin, stop)
}

// StopCountdown 取消房間的計時任務；沒有任務時安全地不做事。
func (t *TurnTimer) StopCountdown(pin string) {
	t.mu.Lock()
	t.cancelLocked(pin)
	t.mu.Unlock()
}

// Stop 取消所有計時任務並等待 goroutine 退出（進程關閉用）
func (t *TurnTimer) Stop() {
	t.mu.Lock()
	for pin, stop := range t.tasks {
		close(stop)
		delete(t.tasks, pin)
	}
	t.mu.Unlock()

	t.wg.Wait()
	t.logger.Info("回合計時器已停止")
}

// cancelLocked 關閉並移除任務。呼叫方必須持有 mu。
func (t *TurnTimer) cancelLocked(pin string) {
	if stop, exists := t.tasks[pin]; exists {
		close(stop)
		delete(t.tasks, pin)
	}
}

// run 單一房間的計時循環
func (t *TurnTimer) run(pin string, stop chan struct{}) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.registry.Config().TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !t.tick(pin) {
				t.clear(pin, stop)
				return
			}
		case <-stop:
			return
		}
	}
}

// clear 移除自己的任務記錄；若任務已被新的計時任務取代則不動。
func (t *TurnTimer) clear(pin string, stop chan struct{}) {
	t.mu.Lock()
	if cur, exists := t.tasks[pin]; exists && cur == stop {
		delete(t.tasks, pin)
	}
	t.mu.Unlock()
}

// tick 執行一次倒數；返回 false 表示任務應自我取消。
//
// 倒數歸零的強制換人不觸碰牌面、分數、FirstRevealedPos 與 RevealLock——
// 上一位玩家翻開未配對的牌會跨回合保持翻開，留給下一位玩家。
func (t *TurnTimer) tick(pin string) (alive bool) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("計時 tick 發生 panic", "pin", pin, "error", r)
			alive = true
		}
	}()

	room, err := t.registry.FindByPin(pin)
	if err != nil {
		return false
	}

	room.Mu.Lock()
	if room.State != StateRunning {
		room.Mu.Unlock()
		return false
	}

	if room.TimeLeft <= 1 {
		// 時間到：換下一位玩家，倒數重置
		room.CurrentPlayerID = room.NextPlayerID()
		room.TimeLeft = t.registry.Config().TurnSeconds
	} else {
		room.TimeLeft--
	}
	snap := BuildSnapshot(room)
	room.Mu.Unlock()

	if t.publisher != nil {
		t.publisher.Publish(pin, snap)
	}
	return true
}
