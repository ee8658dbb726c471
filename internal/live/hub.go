// Package live はWebSocketライブチャネルを提供する。
// 着信・SMSイベントを各ユーザーの接続中クライアントへプッシュする。
package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Metrics はライブチャネルのメトリクス記録インターフェース。
type Metrics interface {
	SetLiveConnections(count int)
	RecordBroadcast()
}

// Hub はユーザーIDごとの接続クライアント集合を管理する。
// 同一ユーザーの複数タブ・複数デバイスは同じ集合に入り、
// Broadcastは集合内の全クライアントに配信される。
type Hub struct {
	mu      sync.RWMutex
	users   map[string]map[*Client]bool
	metrics Metrics
	logger  *slog.Logger
}

// NewHub はHubを生成する。metricsはnil可。
func NewHub(metrics Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		users:   make(map[string]map[*Client]bool),
		metrics: metrics,
		logger:  logger,
	}
}

// Subscribe はクライアントをユーザーの接続集合に登録する。
func (h *Hub) Subscribe(userID string, c *Client) {
	h.mu.Lock()
	if h.users[userID] == nil {
		h.users[userID] = make(map[*Client]bool)
	}
	h.users[userID][c] = true
	total := h.connectionCountLocked()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetLiveConnections(total)
	}
	h.logger.Debug("live client subscribed", slog.String("user_id", userID))
}

// Unsubscribe はクライアントを接続集合から除外する。
// 最後のクライアントが抜けたらユーザーのエントリごと削除する。
func (h *Hub) Unsubscribe(userID string, c *Client) {
	h.mu.Lock()
	if m := h.users[userID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.users, userID)
		}
	}
	total := h.connectionCountLocked()
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.SetLiveConnections(total)
	}
	h.logger.Debug("live client unsubscribed", slog.String("user_id", userID))
}

// Broadcast はペイロードをJSONにエンコードし、指定ユーザーの
// 全接続クライアントへ送信する。送信バッファが詰まっている
// クライアントは切断する（遅い受信者が他を道連れにしないため）。
func (h *Hub) Broadcast(userID string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("failed to encode live event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	h.mu.RLock()
	conns := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		select {
		case <-c.done:
			// 切断済みクライアントには送らない
		case c.send <- data:
		default:
			go c.Close()
		}
	}

	if h.metrics != nil && len(conns) > 0 {
		h.metrics.RecordBroadcast()
	}
}

// CloseAll は全ユーザーの全接続を切断する。
// サーバーのグレースフルシャットダウン時に呼ばれる。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	conns := make([]*Client, 0)
	for _, m := range h.users {
		for c := range m {
			conns = append(conns, c)
		}
	}
	h.users = make(map[string]map[*Client]bool)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	if h.metrics != nil {
		h.metrics.SetLiveConnections(0)
	}
}

// ConnectionCount は現在の総接続数を返す。
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectionCountLocked()
}

func (h *Hub) connectionCountLocked() int {
	total := 0
	for _, m := range h.users {
		total += len(m)
	}
	return total
}
