package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koopa0/memory-match/internal/config"
	"github.com/koopa0/memory-match/internal/game"
	"github.com/koopa0/memory-match/internal/handler"
	"github.com/koopa0/memory-match/internal/ws"
)

func main() {
	// 解析命令行參數
	var (
		port      = flag.Int("port", 8080, "服務器端口")
		logLevel  = flag.String("log-level", "info", "日誌級別 (debug, info, warn, error)")
		logFormat = flag.String("log-format", "text", "日誌格式 (text, json)")
	)
	flag.Parse()

	// 設置日誌
	logger := setupLogger(*logLevel, *logFormat)

	// 載入遊戲參數（.env / 環境變數）
	cfg := config.Load(logger)

	// 組裝核心：Hub 是快照的發布端，註冊表、計時器、翻牌引擎共用它
	registry := game.NewRegistry(cfg, nil, logger)
	hub := ws.NewHub(registry, logger)
	registry.SetPublisher(hub)
	timer := game.NewTurnTimer(registry, hub, logger)
	engine := game.NewEngine(registry, timer, hub, logger)

	// HTTP 處理器
	h := handler.NewHandler(registry, engine, timer, hub, logger)

	// 設置路由
	mux := http.NewServeMux()
	mux.Handle("/", h.Routes())
	mux.HandleFunc("GET /ws/rooms/{pin}", hub.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 啟動服務器
	go func() {
		logger.Info("記憶翻牌服務器啟動",
			"port", *port,
			"board_size", cfg.BoardSize,
			"turn_seconds", cfg.TurnSeconds)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("服務器啟動失敗", "error", err)
			os.Exit(1)
		}
	}()

	// 等待中斷信號
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("收到關閉信號，開始優雅關閉...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("服務器關閉失敗", "error", err)
	}

	timer.Stop()
	hub.Stop()

	logger.Info("服務器已關閉")
}

// setupLogger 設置日誌
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     logLevel,
		AddSource: level == "debug",
	}

	var h slog.Handler
	if format == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(h)
}
