// Package memorymatch 提供一個伺服器權威的多人記憶翻牌遊戲。
//
// 實現了一個同步多人翻牌對戰服務器，玩家輪流在共享棋盤上翻牌配對，
// 伺服器裁決回合順序、配對結果、計分與每回合倒數，並把每一次權威
// 狀態變更推送給所有觀看者。
//
// # 房間生命週期
//
// 以短數字 PIN 建立與加入房間：
//   - lobby：玩家以名稱加入，順序即回合輪替順序
//   - running：棋盤生成、第一位玩家開始、回合倒數啟動
//   - finished：所有牌配對完成；可重開一局（可選清零分數）
//
// # 翻牌協議
//
// 兩段式：第一張翻開後等待第二張；相符則雙雙配對、得分、保留回合，
// 不符則展示片刻後蓋回並輪到下一位。比對展示期間的點擊靜默丟棄，
// 蓋著的牌面身份絕不離開伺服器。
//
// # 併發安全設計
//
// 採用多層次的併發控制策略：
//   - 每房間一把互斥鎖串行化翻牌、計時 tick 與延遲蓋牌
//   - 延遲與週期任務只攜帶 PIN，觸發時重新查表並驗證狀態
//   - 註冊表讀寫鎖只保護房間映射，遊戲過程不持全局鎖
//   - 快照廣播 fire-and-forget，絕不阻塞狀態轉換
//
// # 架構設計
//
// 系統採用分層架構：
//   - handler 層：HTTP API 與錯誤映射
//   - game 層：註冊表、棋盤生成、翻牌引擎、回合計時、快照
//   - ws 層：WebSocket Hub，快照扇出
//
// 啟動服務器：
//
//	registry := game.NewRegistry(cfg, nil, logger)
//	hub := ws.NewHub(registry, logger)
//	registry.SetPublisher(hub)
//	timer := game.NewTurnTimer(registry, hub, logger)
//	engine := game.NewEngine(registry, timer, hub, logger)
package memorymatch
