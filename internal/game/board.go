package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// pairSymbolTable 配對符號表
//
// 依 pairId 順序取用；64 格（8x8）棋盤最多需要 32 組。
var pairSymbolTable = []string{
	"🐶", "🐱", "🦊", "🐻", "🐼", "🐸", "🐵", "🦁",
	"🐯", "🐨", "🐷", "🐮", "🐹", "🐰", "🦉", "🐺",
	"🦄", "🐙", "🦀", "🐠", "🐳", "🦋", "🐞", "🐝",
	"🌸", "🍀", "🍄", "🌵", "🍎", "🍋", "🍇", "🍉",
}

// GenerateBoard 產生一副洗好的記憶牌
//
// 給定邊長 size（格數 = size²，必須為偶數），每個 pairId（0..pairs-1）
// 恰好出現兩次，再以 crypto/rand 做 Fisher-Yates 洗牌。
//
// 純函數：只依賴 size 與隨機源，對之前的棋盤沒有記憶。
// 所有牌以蓋著（hidden）狀態返回。
func GenerateBoard(size int) ([]*Card, map[int]string, error) {
	if err := ValidateBoardSize(size); err != nil {
		return nil, nil, err
	}
	total := size * size
	pairs := total / 2

	// 每個 pairId 放兩次
	pairIDs := make([]int, 0, total)
	for p := 0; p < pairs; p++ {
		pairIDs = append(pairIDs, p, p)
	}

	// Fisher-Yates 洗牌（crypto/rand）
	for i := total - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return nil, nil, fmt.Errorf("洗牌失敗: %w", err)
		}
		pairIDs[i], pairIDs[j] = pairIDs[j], pairIDs[i]
	}

	board := make([]*Card, total)
	for pos := 0; pos < total; pos++ {
		board[pos] = &Card{
			Position: pos,
			PairID:   pairIDs[pos],
			State:    CardHidden,
		}
	}

	symbols := make(map[int]string, pairs)
	for p := 0; p < pairs; p++ {
		symbols[p] = pairSymbolTable[p]
	}

	return board, symbols, nil
}

// ValidateBoardSize 檢查邊長能否構成合法棋盤：
// 必須為正數、格數為偶數、配對組數不超過符號表容量。
func ValidateBoardSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("棋盤邊長必須為正數: %d", size)
	}
	total := size * size
	if total%2 != 0 {
		return fmt.Errorf("棋盤格數必須為偶數: %d", total)
	}
	if total/2 > len(pairSymbolTable) {
		return fmt.Errorf("棋盤過大，符號不足: 需要 %d 組", total/2)
	}
	return nil
}

// randInt 返回 [0, max) 的均勻隨機整數
func randInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
