package live

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/hitoshi/purplecrm/internal/middleware"
)

// Handler はWebSocketアップグレードを処理するHTTPハンドラ。
// セッションミドルウェアの背後に配置され、認証済みユーザーIDを
// コンテキストから受け取る。
type Handler struct {
	hub           *Hub
	allowedOrigin string
	logger        *slog.Logger
}

// NewHandler はWebSocketハンドラを生成する。
// allowedOriginはブラウザからのクロスオリジン接続を許可するオリジン。
func NewHandler(hub *Hub, allowedOrigin string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{hub: hub, allowedOrigin: allowedOrigin, logger: logger}
}

// ServeHTTP は接続をWebSocketへアップグレードし、
// 認証ユーザーのライブチャネルに登録する。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Originヘッダの無い接続（CLIクライアント等）は許可する
			return origin == "" || origin == h.allowedOrigin
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgradeはエラー時に自身でレスポンスを書き込む
		h.logger.Warn("websocket upgrade failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}

	client := newClient(h.hub, userID, conn)
	h.hub.Subscribe(userID, client)
	go client.writePump()
	go client.readPump()
}
