// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// 表示名とアバターは初回ログイン時のGoogleプロフィールから取得し、
// 以降のログインでは上書きしない（first-write wins）。
type User struct {
	ID         string
	Email      string
	Name       string
	AvatarURL  string
	AvatarData []byte // キャッシュ済みアバター画像。取得失敗時はnil。
	AvatarMime string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
