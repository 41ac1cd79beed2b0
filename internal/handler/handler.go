// Package handler 將遊戲核心映射為 HTTP API
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/koopa0/memory-match/internal/game"
)

// Handler HTTP 請求處理器
type Handler struct {
	registry  *game.Registry
	engine    *game.Engine
	timer     *game.TurnTimer
	publisher game.Publisher
	logger    *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(registry *game.Registry, engine *game.Engine, timer *game.TurnTimer, publisher game.Publisher, logger *slog.Logger) *Handler {
	return &Handler{
		registry:  registry,
		engine:    engine,
		timer:     timer,
		publisher: publisher,
		logger:    logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	mux.HandleFunc("POST /api/rooms", wrap(h.createRoom))
	mux.HandleFunc("GET /api/rooms/{pin}", wrap(h.getRoom))
	mux.HandleFunc("POST /api/rooms/{pin}/join", wrap(h.joinRoom))
	mux.HandleFunc("POST /api/rooms/{pin}/start", wrap(h.startGame))
	mux.HandleFunc("POST /api/rooms/{pin}/reveal", wrap(h.revealCard))
	mux.HandleFunc("POST /api/rooms/{pin}/restart", wrap(h.restartRound))
	mux.HandleFunc("POST /api/rooms/{pin}/stop", wrap(h.stopTimer))

	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// 請求結構
type joinRequest struct {
	Name string `json:"name"`
}

type revealRequest struct {
	PlayerID string `json:"playerId"`
	Pos      *int   `json:"pos"`
}

type restartRequest struct {
	ResetScores bool `json:"resetScores"`
}

// createRoom 創建房間
//
// 核心的 CreateRoom 只負責註冊，對外公告新房間在這裡完成。
func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.registry.CreateRoom()
	if err != nil {
		h.errorResponse(w, err.Error(), http.StatusInternalServerError)
		return
	}

	room.Mu.Lock()
	snap := game.BuildSnapshot(room)
	room.Mu.Unlock()
	h.publisher.Publish(room.Pin, snap)

	h.jsonResponse(w, map[string]any{
		"roomId": room.ID,
		"pin":    room.Pin,
		"state":  room.State,
	}, http.StatusCreated)
}

// getRoom 查詢房間（返回與廣播相同的快照形狀）
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")

	room, err := h.registry.FindByPin(pin)
	if err != nil {
		h.mapError(w, err)
		return
	}

	room.Mu.Lock()
	snap := game.BuildSnapshot(room)
	room.Mu.Unlock()

	h.jsonResponse(w, snap, http.StatusOK)
}

// joinRoom 加入房間（只允許在 lobby）
func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		h.errorResponse(w, "名稱不能為空", http.StatusBadRequest)
		return
	}

	player, err := h.registry.AddPlayer(pin, name)
	if err != nil {
		h.mapError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{
		"playerId": player.ID,
		"name":     player.Name,
		"pin":      pin,
	}, http.StatusOK)
}

// startGame 開始遊戲並啟動回合倒數
func (h *Handler) startGame(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")

	if err := h.registry.StartGame(pin); err != nil {
		h.mapError(w, err)
		return
	}
	h.timer.StartCountdown(pin)

	h.jsonResponse(w, map[string]any{"ok": true}, http.StatusOK)
}

// revealCard 翻牌
func (h *Handler) revealCard(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")

	var req revealRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}
	if req.PlayerID == "" || req.Pos == nil {
		h.errorResponse(w, "playerId/pos 為必填", http.StatusBadRequest)
		return
	}

	if err := h.engine.RevealCard(pin, req.PlayerID, *req.Pos); err != nil {
		h.mapError(w, err)
		return
	}

	h.jsonResponse(w, map[string]any{"ok": true}, http.StatusOK)
}

// restartRound 重開一局並重新啟動倒數
func (h *Handler) restartRound(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")

	var req restartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorResponse(w, "無效的請求格式", http.StatusBadRequest)
		return
	}

	if err := h.registry.RestartRound(pin, req.ResetScores); err != nil {
		h.mapError(w, err)
		return
	}
	h.timer.StartCountdown(pin)

	h.jsonResponse(w, map[string]any{"ok": true}, http.StatusOK)
}

// stopTimer 停止房間倒數（冪等，總是成功）
func (h *Handler) stopTimer(w http.ResponseWriter, r *http.Request) {
	pin := r.PathValue("pin")
	h.timer.StopCountdown(pin)

	h.jsonResponse(w, map[string]any{"ok": true}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.registry.Stats(), http.StatusOK)
}

// mapError 將核心錯誤映射為 HTTP 狀態碼
//
//   - ErrRoomNotFound → 404
//   - 狀態衝突（已開始、沒玩家、非你的回合、遊戲未進行）→ 409
//   - ErrInvalidPosition → 400
func (h *Handler) mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrRoomNotFound):
		h.errorResponse(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, game.ErrRoomStarted),
		errors.Is(err, game.ErrNoPlayers),
		errors.Is(err, game.ErrNotYourTurn),
		errors.Is(err, game.ErrGameNotRunning):
		h.errorResponse(w, err.Error(), http.StatusConflict)
	case errors.Is(err, game.ErrInvalidPosition):
		h.errorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		h.errorResponse(w, err.Error(), http.StatusInternalServerError)
	}
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
