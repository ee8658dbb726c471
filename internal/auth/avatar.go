package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// SSRFValidator はアバター取得時のSSRF防止に必要なインターフェース。
// security.SSRFGuardServiceの部分集合として定義する。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// AvatarFetcherService はプロフィール画像取得のインターフェース。
type AvatarFetcherService interface {
	// FetchAvatar は指定URLからプロフィール画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	// アバターはログイン体験の付加要素であり、取得失敗で
	// ログイン自体を失敗させない。
	FetchAvatar(ctx context.Context, avatarURL string) (data []byte, mimeType string, err error)
}

// AvatarFetcher はプロフィール画像取得機能の実装。
// Googleのユーザー情報から得たpicture URLを取得してキャッシュ用に返す。
type AvatarFetcher struct {
	ssrfGuard SSRFValidator
	timeout   time.Duration
	maxSize   int64
}

// NewAvatarFetcher はAvatarFetcherの新しいインスタンスを生成する。
func NewAvatarFetcher(ssrfGuard SSRFValidator, timeout time.Duration, maxSize int64) *AvatarFetcher {
	return &AvatarFetcher{
		ssrfGuard: ssrfGuard,
		timeout:   timeout,
		maxSize:   maxSize,
	}
}

// FetchAvatar は指定URLからプロフィール画像を取得する。
// 取得失敗時はnilデータと空MIMEを返す。
func (f *AvatarFetcher) FetchAvatar(ctx context.Context, avatarURL string) ([]byte, string, error) {
	if avatarURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if f.ssrfGuard != nil {
		if err := f.ssrfGuard.ValidateURL(avatarURL); err != nil {
			slog.Warn("アバター取得: SSRFブロック", "url", avatarURL, "error", err)
			return nil, "", nil
		}
	}

	client := f.getHTTPClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, avatarURL, nil)
	if err != nil {
		slog.Warn("アバター取得: リクエスト作成失敗", "url", avatarURL, "error", err)
		return nil, "", nil
	}
	req.Header.Set("User-Agent", "PurpleCRM/1.0")

	resp, err := client.Do(req)
	if err != nil {
		slog.Warn("アバター取得: HTTPリクエスト失敗", "url", avatarURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("アバター取得: HTTPステータス異常", "url", avatarURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大サイズ+1バイトで超過検知）
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		slog.Warn("アバター取得: レスポンス読み取り失敗", "url", avatarURL, "error", err)
		return nil, "", nil
	}

	if int64(len(body)) > f.maxSize {
		slog.Warn("アバター取得: サイズ超過", "url", avatarURL, "size", len(body))
		return nil, "", nil
	}

	contentType := resp.Header.Get("Content-Type")
	mimeType := extractMimeType(contentType)

	if !isImageMime(mimeType) {
		slog.Warn("アバター取得: 画像以外のContent-Type", "url", avatarURL, "contentType", contentType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

func (f *AvatarFetcher) getHTTPClient() *http.Client {
	if f.ssrfGuard != nil {
		return f.ssrfGuard.NewSafeClient(f.timeout, f.maxSize)
	}
	return &http.Client{Timeout: f.timeout}
}

// extractMimeType はContent-Typeヘッダーからメディアタイプを抽出する。
func extractMimeType(contentType string) string {
	if contentType == "" {
		return ""
	}
	// セミコロンの前の部分（charset等を除去）
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}

// isImageMime はMIMEタイプが画像かどうかを判定する。
func isImageMime(mimeType string) bool {
	return strings.HasPrefix(mimeType, "image/")
}

// compile-time interface check
var _ AvatarFetcherService = (*AvatarFetcher)(nil)
