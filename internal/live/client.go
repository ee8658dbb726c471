package live

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client はライブチャネルの1接続を表す。
// 書き込みはwritePumpに集約し、Hubからの配信はsendチャネル経由で受ける。
// sendは閉じない。切断はdoneのcloseで通知し、配信側はdoneを見て
// 送信をやめる（closeされたチャネルへの送信panicを避けるため）。
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func newClient(hub *Hub, userID string, conn *websocket.Conn) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
	}
}

// readPump はクライアントからの受信を読み捨て、pongで読み取り
// デッドラインを延長する。読み取りエラーで接続を閉じる。
// ライブチャネルはサーバー発信専用で、クライアントからの
// メッセージは扱わない。
func (c *Client) readPump() {
	defer c.Close()
	c.conn.SetReadLimit(8 * 1024)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump はsendチャネルのイベント送信と定期pingを担う。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close はクライアントをHubから外し、doneと接続を閉じる。
// 複数経路から呼ばれても安全。
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.hub.Unsubscribe(c.userID, c)
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
