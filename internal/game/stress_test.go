package game_test

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/memory-match/internal/game"
)

// TestStress_ConcurrentRoomCreation 測試併發創建房間
func TestStress_ConcurrentRoomCreation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	registry, timer, _, _ := newTestGame(game.DefaultConfig())
	defer timer.Stop()

	const (
		numGoroutines     = 50
		roomsPerGoroutine = 10
	)

	var (
		wg           sync.WaitGroup
		successCount int32
		errorCount   int32
	)
	pins := sync.Map{}

	start := time.Now()

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for j := 0; j < roomsPerGoroutine; j++ {
				room, err := registry.CreateRoom()
				if err != nil {
					atomic.AddInt32(&errorCount, 1)
					continue
				}
				atomic.AddInt32(&successCount, 1)
				if _, dup := pins.LoadOrStore(room.Pin, true); dup {
					t.Errorf("PIN 重複: %s", room.Pin)
				}
			}
		}()
	}

	wg.Wait()
	duration := time.Since(start)

	t.Logf("創建房間壓力測試結果:")
	t.Logf("  總房間數: %d", numGoroutines*roomsPerGoroutine)
	t.Logf("  成功: %d", successCount)
	t.Logf("  失敗: %d", errorCount)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f rooms/sec", float64(successCount)/duration.Seconds())

	assert.Equal(t, int32(numGoroutines*roomsPerGoroutine), successCount)
	assert.Equal(t, int32(0), errorCount)

	stats := registry.Stats()
	assert.Equal(t, int(successCount), stats["total_rooms"])
}

// TestStress_ConcurrentJoin 測試併發加入同一房間
func TestStress_ConcurrentJoin(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	registry, timer, _, _ := newTestGame(game.DefaultConfig())
	defer timer.Stop()

	room, err := registry.CreateRoom()
	require.NoError(t, err)

	const numPlayers = 100

	var (
		wg        sync.WaitGroup
		joinCount int32
	)

	start := time.Now()

	for i := 0; i < numPlayers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			_, err := registry.AddPlayer(room.Pin, fmt.Sprintf("玩家_%d", idx))
			if err == nil {
				atomic.AddInt32(&joinCount, 1)
			}
		}(i)
	}

	wg.Wait()
	duration := time.Since(start)

	t.Logf("併發加入壓力測試結果:")
	t.Logf("  加入成功: %d", joinCount)
	t.Logf("  耗時: %v", duration)

	assert.Equal(t, int32(numPlayers), joinCount)

	// 名單完整且無重複 ID
	room.Mu.Lock()
	seen := make(map[string]bool)
	for _, p := range room.Players {
		assert.False(t, seen[p.ID], "玩家 ID 重複: %s", p.ID)
		seen[p.ID] = true
	}
	assert.Len(t, room.Players, numPlayers)
	room.Mu.Unlock()
}

// TestStress_ConcurrentReveals 測試多房間併發翻牌
func TestStress_ConcurrentReveals(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	cfg := fastConfig()
	cfg.SettleDelay = 5 * time.Millisecond
	registry, timer, engine, _ := newTestGame(cfg)
	defer timer.Stop()

	const (
		numRooms         = 20
		revealsPerPlayer = 50
	)

	type seat struct {
		pin      string
		playerID string
	}
	seats := make([]seat, 0, numRooms*2)

	for i := 0; i < numRooms; i++ {
		room, err := registry.CreateRoom()
		require.NoError(t, err)
		a, err := registry.AddPlayer(room.Pin, fmt.Sprintf("甲_%d", i))
		require.NoError(t, err)
		b, err := registry.AddPlayer(room.Pin, fmt.Sprintf("乙_%d", i))
		require.NoError(t, err)
		require.NoError(t, registry.StartGame(room.Pin))
		timer.StartCountdown(room.Pin)

		seats = append(seats, seat{room.Pin, a.ID}, seat{room.Pin, b.ID})
	}

	var (
		wg              sync.WaitGroup
		totalOperations int32
	)

	start := time.Now()

	// 兩名玩家對同一房間亂按：引擎必須保持狀態一致，不能恐慌
	for _, s := range seats {
		wg.Add(1)
		go func(s seat) {
			defer wg.Done()

			for op := 0; op < revealsPerPlayer; op++ {
				pos := rand.Intn(16)
				engine.RevealCard(s.pin, s.playerID, pos)
				atomic.AddInt32(&totalOperations, 1)

				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
			}
		}(s)
	}

	wg.Wait()
	duration := time.Since(start)

	t.Logf("併發翻牌壓力測試結果:")
	t.Logf("  房間數: %d", numRooms)
	t.Logf("  總操作數: %d", totalOperations)
	t.Logf("  耗時: %v", duration)
	t.Logf("  速率: %.2f ops/sec", float64(totalOperations)/duration.Seconds())

	// 等待所有延遲蓋回的回呼結束
	time.Sleep(3 * cfg.SettleDelay)

	// 每個房間的狀態仍然自洽
	for i := 0; i < len(seats); i += 2 {
		room, err := registry.FindByPin(seats[i].pin)
		require.NoError(t, err)

		room.Mu.Lock()
		matched := 0
		revealed := 0
		for _, c := range room.Board {
			switch c.State {
			case game.CardMatched:
				matched++
			case game.CardRevealed:
				revealed++
			}
		}
		totalScore := 0
		for _, p := range room.Players {
			totalScore += p.Score
		}
		state := room.State
		room.Mu.Unlock()

		assert.Equal(t, 0, matched%2, "配對的牌必須成雙")
		assert.Equal(t, matched/2, totalScore, "分數總和等於配對數")
		if state == game.StateFinished {
			assert.Equal(t, len(room.Board), matched, "結束時全部配對")
		} else {
			assert.LessOrEqual(t, revealed, 1, "落定後最多一張亮牌")
		}
	}
}

// TestStress_TimerChurn 測試倒數任務反覆啟停不洩漏
func TestStress_TimerChurn(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	cfg := fastConfig()
	registry, timer, _, _ := newTestGame(cfg)

	const (
		numRooms  = 10
		numCycles = 50
	)

	pins := make([]string, numRooms)
	for i := range pins {
		room, err := registry.CreateRoom()
		require.NoError(t, err)
		_, err = registry.AddPlayer(room.Pin, fmt.Sprintf("玩家_%d", i))
		require.NoError(t, err)
		require.NoError(t, registry.StartGame(room.Pin))
		pins[i] = room.Pin
	}

	var wg sync.WaitGroup
	for _, pin := range pins {
		wg.Add(1)
		go func(pin string) {
			defer wg.Done()

			for c := 0; c < numCycles; c++ {
				timer.StartCountdown(pin)
				time.Sleep(time.Duration(rand.Intn(3)) * time.Millisecond)
				timer.StopCountdown(pin)
			}
		}(pin)
	}
	wg.Wait()

	// Stop 會等所有任務 goroutine 結束；卡住即洩漏
	done := make(chan struct{})
	go func() {
		timer.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("計時器任務洩漏: Stop 未能結束")
	}
}

// BenchmarkRegistry_CreateRoom 基準測試：創建房間
func BenchmarkRegistry_CreateRoom(b *testing.B) {
	registry := game.NewRegistry(game.DefaultConfig(), &recordingPublisher{}, testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := registry.CreateRoom(); err != nil {
			b.Skip("PIN 空間耗盡")
		}
	}

	b.ReportMetric(float64(b.N)/b.Elapsed().Seconds(), "rooms/sec")
}

// BenchmarkGenerateBoard 基準測試：生成牌面
func BenchmarkGenerateBoard(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := game.GenerateBoard(4); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkBuildSnapshot 基準測試：構建快照
func BenchmarkBuildSnapshot(b *testing.B) {
	registry, timer, _, _ := newTestGame(game.DefaultConfig())
	defer timer.Stop()

	room, err := registry.CreateRoom()
	if err != nil {
		b.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		if _, err := registry.AddPlayer(room.Pin, fmt.Sprintf("玩家_%d", i)); err != nil {
			b.Fatal(err)
		}
	}
	if err := registry.StartGame(room.Pin); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		room.Mu.Lock()
		_ = game.BuildSnapshot(room)
		room.Mu.Unlock()
	}
}
