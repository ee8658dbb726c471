// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, graph, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeNodeNotFound        = "NODE_NOT_FOUND"
	ErrCodeInvalidNodeType     = "INVALID_NODE_TYPE"
	ErrCodeProtectedNode       = "PROTECTED_NODE"
	ErrCodeEdgeEndpointMissing = "EDGE_ENDPOINT_REQUIRED"
	ErrCodeEdgeEndpointOwner   = "EDGE_ENDPOINT_NOT_OWNED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
)

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewNodeNotFoundError はノード未検出エラーを生成する。
// 他ユーザーの所有するノードも「見つからない」として扱う。
func NewNodeNotFoundError(nodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeNodeNotFound,
		Message:  fmt.Sprintf("指定されたノードが見つかりません: %s", nodeID),
		Category: "graph",
		Action:   "ノードIDを確認してください。",
	}
}

// NewInvalidNodeTypeError は未知のノード種別エラーを生成する。
func NewInvalidNodeTypeError(nodeType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidNodeType,
		Message:  fmt.Sprintf("無効なノード種別です: %s", nodeType),
		Category: "validation",
		Action:   "種別には user、customer、contractor、note、sms、timer のいずれかを指定してください。",
	}
}

// NewProtectedNodeError は保護ノードの削除・種別変更エラーを生成する。
func NewProtectedNodeError(nodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeProtectedNode,
		Message:  fmt.Sprintf("ユーザーノードは削除・種別変更できません: %s", nodeID),
		Category: "validation",
		Action:   "ユーザーノード以外を指定してください。",
	}
}

// NewEdgeEndpointMissingError はエッジの端点未指定エラーを生成する。
func NewEdgeEndpointMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeEdgeEndpointMissing,
		Message:  "エッジにはsourceとtargetの両方が必要です。",
		Category: "validation",
		Action:   "接続元と接続先のノードIDを指定してください。",
	}
}

// NewEdgeEndpointOwnerError はエッジ端点の所有者不一致エラーを生成する。
func NewEdgeEndpointOwnerError(nodeID string) *APIError {
	return &APIError{
		Code:     ErrCodeEdgeEndpointOwner,
		Message:  fmt.Sprintf("エッジの端点が自分のノードではありません: %s", nodeID),
		Category: "validation",
		Action:   "自分のキャンバス上のノード同士を接続してください。",
	}
}

// NewInvalidRequestError はリクエスト解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
