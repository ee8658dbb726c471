// Package model はドメインモデルを定義する。
package model

// NodeType はキャンバス上のノード種別を表す。
type NodeType string

const (
	// NodeTypeUser はログインユーザー自身を表すノード。削除・種別変更不可。
	NodeTypeUser NodeType = "user"
	// NodeTypeCustomer は顧客ノード。ペイロードはclientsテーブルの行に正規化される。
	NodeTypeCustomer NodeType = "customer"
	// NodeTypeContractor は業者ノード。
	NodeTypeContractor NodeType = "contractor"
	// NodeTypeNote はメモノード。
	NodeTypeNote NodeType = "note"
	// NodeTypeSMS は受信SMSスレッドを表すノード。
	NodeTypeSMS NodeType = "sms"
	// NodeTypeTimer はタイマーノード。
	NodeTypeTimer NodeType = "timer"
)

// IsValid は既知のノード種別かどうかを返す。
func (t NodeType) IsValid() bool {
	switch t {
	case NodeTypeUser, NodeTypeCustomer, NodeTypeContractor,
		NodeTypeNote, NodeTypeSMS, NodeTypeTimer:
		return true
	}
	return false
}

// Node はキャンバスのグラフ頂点を表す。
// IDはクライアント生成のグローバル一意な文字列。
// customerノードはClientIDがclientsテーブルの行を指し、Dataは使わない。
// それ以外のノードはDataに種別固有のJSONペイロードを持つ。
// 1行につき有効なのは {ClientID, Data} のどちらか一方のみ。
type Node struct {
	ID       string
	Type     NodeType
	X        float64
	Y        float64
	UserID   string
	ClientID int64 // 0 = クライアント行なし
	Data     map[string]any
}

// Edge はノード間の有向リレーションを表す。
// 両端はどちらも同一ユーザーが所有するノードを参照しなければならない
// （DB制約ではなくアプリケーション層で強制する）。
type Edge struct {
	ID     string
	Source string
	Target string
	UserID string
}

// Client は顧客ノードの正規化済みペイロードを表す。
// 所有ノードの削除に連動して削除される。
type Client struct {
	ID     int64
	UserID string
	Name   string
	Emails []string
	Phones []string
	Note   string
}

// PayloadKeys はノード種別ごとのペイロードのキー許可リスト。
// updateNodeの部分マージはこのリストに含まれるキーのみを対象にする。
// customerはクライアント行に正規化されるためここには含まれない。
var PayloadKeys = map[NodeType][]string{
	NodeTypeContractor: {"contractor_name", "services", "emails", "numbers", "price_suggested", "created_at"},
	NodeTypeNote:       {"notes"},
	NodeTypeSMS:        {"messages"},
	NodeTypeTimer:      {"created_at"},
	NodeTypeUser:       {"name", "avatar"},
}
