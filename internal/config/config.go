// Package config 從環境變數載入遊戲核心的運行參數
package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/koopa0/memory-match/internal/game"
)

// Load 載入遊戲參數
//
// 依序嘗試 .env 檔與進程環境變數；缺漏、格式錯誤或構不成合法棋盤的
// 值記錄警告後使用預設值：
//   - BOARD_SIZE       棋盤邊長（預設 4，格數 = 邊長²，必須為偶數格）
//   - TURN_SECONDS     每回合秒數（預設 20）
//   - SETTLE_DELAY_MS  配對失敗展示毫秒數（預設 900）
//   - TICK_MS          倒數 tick 間隔毫秒數（預設 1000）
func Load(logger *slog.Logger) game.Config {
	if err := godotenv.Load(); err != nil {
		logger.Debug("未載入 .env 檔", "error", err)
	}

	cfg := game.DefaultConfig()
	cfg.BoardSize = envInt(logger, "BOARD_SIZE", cfg.BoardSize)
	if err := game.ValidateBoardSize(cfg.BoardSize); err != nil {
		logger.Warn("BOARD_SIZE 不合法，使用預設值",
			"value", cfg.BoardSize,
			"default", game.DefaultConfig().BoardSize,
			"error", err)
		cfg.BoardSize = game.DefaultConfig().BoardSize
	}
	cfg.TurnSeconds = envInt(logger, "TURN_SECONDS", cfg.TurnSeconds)
	cfg.SettleDelay = time.Duration(envInt(logger, "SETTLE_DELAY_MS", int(cfg.SettleDelay/time.Millisecond))) * time.Millisecond
	cfg.TickInterval = time.Duration(envInt(logger, "TICK_MS", int(cfg.TickInterval/time.Millisecond))) * time.Millisecond
	return cfg
}

// envInt 讀取整數環境變數；未設定或格式錯誤時返回預設值。
func envInt(logger *slog.Logger, key string, fallback int) int {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warn("環境變數必須為整數，使用預設值", "key", key, "value", raw, "default", fallback)
		return fallback
	}
	return value
}
