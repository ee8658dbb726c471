package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/purplecrm/internal/middleware"
)

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, config)

	r.Route("/auth", func(r chi.Router) {
		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)
	})

	// セッション管理
	r.Get("/api/logout", h.Logout)
	r.Get("/api/user", h.Me)

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// 死活監視（*sql.DBを渡す。nilの場合は疎通確認なしで200を返す）
	HealthChecker HealthChecker

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// リクエストログ（nilの場合はログミドルウェアを適用しない）
	Logger         *slog.Logger
	StatusRecorder middleware.StatusRecorder

	// Prometheusメトリクス公開（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// グラフ
	GraphService GraphServiceInterface

	// 着信Webhook
	CallerService CallerServiceInterface

	// ライブチャネル
	LiveHandler http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RecoveryMiddleware → SecurityHeadersMiddleware → LoggingMiddleware → CORSMiddleware
//	→ SessionMiddleware → CSRFMiddleware → RateLimitMiddleware(GeneralMiddleware)
//
// 認証ルート（/auth/*）と着信Webhook（/incoming-*）はセッションミドルウェアの外に配置する。
// Webhookは電話システムから認証なしで呼ばれるため、専用のレート制限のみ適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// パニックリカバリとセキュリティヘッダーは全ルートに適用する
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	}

	// CORS ミドルウェアを最上位に適用（全ルートに効く）
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	nodeHandler := NewNodeHandler(deps.GraphService)
	edgeHandler := NewEdgeHandler(deps.GraphService)
	callerHandler := NewCallerHandler(deps.CallerService)

	// --- 認証不要のルート ---

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
	})

	// セッション管理
	r.Get("/api/logout", authHandler.Logout)
	r.Get("/api/user", authHandler.Me)

	// CSRFトークン取得
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 死活監視とメトリクス
	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// 着信Webhook（電話システムから呼ばれる。リモートIP単位のレート制限）
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.WebhookMiddleware())
		r.Get("/incoming-call", callerHandler.IncomingCall)
		r.Get("/incoming-sms", callerHandler.IncomingSMS)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	// セッション検証をCSRF検証より先に実行する（未認証は403ではなく401を返す）。
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// ノード管理
		r.Route("/api/nodes", func(r chi.Router) {
			r.Get("/", nodeHandler.ListNodes)
			r.Post("/", nodeHandler.CreateNode)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", nodeHandler.UpdateNode)
				r.Delete("/", nodeHandler.DeleteNode)
			})
		})

		// エッジ管理
		r.Route("/api/edges", func(r chi.Router) {
			r.Get("/", edgeHandler.ListEdges)
			r.Post("/", edgeHandler.CreateEdge)
		})

		// ライブチャネル（WebSocketアップグレード）
		if deps.LiveHandler != nil {
			r.Get("/ws", deps.LiveHandler.ServeHTTP)
		}
	})

	return r
}
