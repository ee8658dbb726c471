// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/purplecrm/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// UpdateAvatarCache はユーザーのアバター画像キャッシュを更新する。
	UpdateAvatarCache(ctx context.Context, userID string, data []byte, mimeType string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
}

// GraphRepository はノード・エッジグラフの永続化インターフェース。
// すべての読み書きはユーザー単位にスコープされる。
type GraphRepository interface {
	// ListNodes はユーザーの全ノードを返す。customerノードはクライアント行と
	// JOINし、ペイロードを正規化した形（client_name / client_emails /
	// client_phones / client_note、欠損は空のデフォルト）で返す。
	// その他のノードはJSONペイロードをパースして返す。ペイロードが無い場合は
	// 空のマップを返し、nilにはしない。
	ListNodes(ctx context.Context, userID string) ([]*model.Node, error)

	// ListEdges はユーザーの全エッジを返す。両端のノードが存在しないエッジ
	// （過去の不完全な削除の取り残し）は結果から除外する。
	ListEdges(ctx context.Context, userID string) ([]*model.Edge, error)

	// FindNode は(id, userID)でノードを取得する。見つからない場合はnilを返す。
	FindNode(ctx context.Context, id, userID string) (*model.Node, error)

	// FindClient は指定IDのクライアント行を取得する。見つからない場合はnilを返す。
	FindClient(ctx context.Context, clientID int64) (*model.Client, error)

	// CreateNode はノードを作成する。clientがnilでない場合はクライアント行の
	// INSERTとノード行のINSERTを同一トランザクションで行う。
	CreateNode(ctx context.Context, node *model.Node, client *model.Client) error

	// UpdateNode はノード行を更新する。clientがnilでない場合は紐付く
	// クライアント行も同一トランザクションで更新する。
	UpdateNode(ctx context.Context, node *model.Node, client *model.Client) error

	// ConvertNodeToClient はJSONペイロードのノードをクライアント行参照へ変換する。
	// クライアント行のINSERT、ノード行のclient_id設定とdataクリアを
	// 同一トランザクションで行う。
	ConvertNodeToClient(ctx context.Context, node *model.Node, client *model.Client) error

	// DetachClient はcustomerノードからクライアント行を切り離し、JSONペイロード
	// 表現へ変換する。クライアント行の削除とノード行の更新を同一トランザクションで行う。
	DetachClient(ctx context.Context, node *model.Node, clientID int64) error

	// DeleteNode はノード行、紐付くクライアント行、端点に持つ全エッジを
	// 同一トランザクションで削除する。clientIDが0の場合はクライアント行の削除を行わない。
	DeleteNode(ctx context.Context, id, userID string, clientID int64) error

	// CreateEdge はエッジを作成する。
	CreateEdge(ctx context.Context, edge *model.Edge) error

	// CountNodesByIDs は指定ユーザーが所有するノードのうち、与えたID群に
	// 含まれるものの数を返す。エッジ端点の所有検証に使用する。
	CountNodesByIDs(ctx context.Context, userID string, ids []string) (int, error)
}

// DirectoryRepository は着信番号照合のための電話番号ディレクトリ取得インターフェース。
type DirectoryRepository interface {
	// ListPhoneDirectory はcustomer/contractorノードの電話番号一覧を
	// 全ユーザー横断で返す。customerノードはクライアント行のphones、
	// contractorノードはJSONペイロードのnumbersから取得する。
	// 結果はノードIDの昇順で返す（照合順を決定的にするため）。
	ListPhoneDirectory(ctx context.Context) ([]DirectoryEntry, error)
}

// DirectoryEntry は電話番号ディレクトリの1エントリ。
// 1ノードにつき1エントリで、そのノードに登録された全番号を持つ。
type DirectoryEntry struct {
	NodeID  string
	UserID  string
	Numbers []string
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
