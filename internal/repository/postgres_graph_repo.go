package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/purplecrm/internal/model"
)

// PostgresGraphRepo はPostgreSQLを使用したグラフリポジトリ。
// customerノードのペイロードはclientsテーブルに正規化し、
// その他のノードはJSONBカラムにそのまま保存する。
type PostgresGraphRepo struct {
	db *sql.DB
}

// NewPostgresGraphRepo はPostgresGraphRepoを生成する。
func NewPostgresGraphRepo(db *sql.DB) *PostgresGraphRepo {
	return &PostgresGraphRepo{db: db}
}

// ListNodes はユーザーの全ノードを返す。
// customerノードはクライアント行とLEFT JOINし、正規化済みペイロード
// （client_name / client_emails / client_phones / client_note）に変換する。
// emails/phonesは欠損時も空の配列になり、nullにはならない。
func (r *PostgresGraphRepo) ListNodes(ctx context.Context, userID string) ([]*model.Node, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.type, n.x, n.y, n.client_id, n.data,
		        c.name, c.emails, c.phones, c.note
		 FROM nodes n
		 LEFT JOIN clients c ON n.client_id = c.id
		 WHERE n.user_id = $1
		 ORDER BY n.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		var (
			node       model.Node
			clientID   sql.NullInt64
			rawData    []byte
			clientName sql.NullString
			rawEmails  []byte
			rawPhones  []byte
			clientNote sql.NullString
		)
		if err := rows.Scan(&node.ID, &node.Type, &node.X, &node.Y, &clientID, &rawData,
			&clientName, &rawEmails, &rawPhones, &clientNote); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}

		node.UserID = userID
		if clientID.Valid {
			node.ClientID = clientID.Int64
			node.Data = map[string]any{
				"client_name":   clientName.String,
				"client_emails": decodeStringList(rawEmails),
				"client_phones": decodeStringList(rawPhones),
				"client_note":   clientNote.String,
			}
		} else {
			node.Data = decodePayload(rawData)
		}

		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate node rows: %w", err)
	}

	return nodes, nil
}

// ListEdges はユーザーの全エッジを返す。
// 両端のノードが存在しないエッジは取り残し（過去の不完全な削除の痕跡）として
// 結果から除外する。物理削除はクリーンアップジョブが行う。
func (r *PostgresGraphRepo) ListEdges(ctx context.Context, userID string) ([]*model.Edge, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.source, e.target
		 FROM edges e
		 JOIN nodes s ON e.source = s.id
		 JOIN nodes t ON e.target = t.id
		 WHERE e.user_id = $1
		 ORDER BY e.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	defer rows.Close()

	var edges []*model.Edge
	for rows.Next() {
		edge := &model.Edge{UserID: userID}
		if err := rows.Scan(&edge.ID, &edge.Source, &edge.Target); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		edges = append(edges, edge)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate edge rows: %w", err)
	}

	return edges, nil
}

// FindNode は(id, userID)でノードを取得する。見つからない場合はnilを返す。
// 他ユーザーの所有するノードは見つからない扱いになる。
func (r *PostgresGraphRepo) FindNode(ctx context.Context, id, userID string) (*model.Node, error) {
	var (
		node     model.Node
		clientID sql.NullInt64
		rawData  []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, type, x, y, client_id, data FROM nodes WHERE id = $1 AND user_id = $2`,
		id, userID,
	).Scan(&node.ID, &node.Type, &node.X, &node.Y, &clientID, &rawData)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find node: %w", err)
	}

	node.UserID = userID
	if clientID.Valid {
		node.ClientID = clientID.Int64
	}
	node.Data = decodePayload(rawData)

	return &node, nil
}

// FindClient は指定IDのクライアント行を取得する。見つからない場合はnilを返す。
func (r *PostgresGraphRepo) FindClient(ctx context.Context, clientID int64) (*model.Client, error) {
	var (
		client    model.Client
		rawEmails []byte
		rawPhones []byte
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, name, emails, phones, note FROM clients WHERE id = $1`,
		clientID,
	).Scan(&client.ID, &client.UserID, &client.Name, &rawEmails, &rawPhones, &client.Note)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find client: %w", err)
	}

	client.Emails = decodeStringList(rawEmails)
	client.Phones = decodeStringList(rawPhones)

	return &client, nil
}

// CreateNode はノードを作成する。
// clientがnilでない場合（customerノード）はクライアント行のINSERTと
// ノード行のINSERTを同一トランザクションで行い、クライアント行の孤児を残さない。
func (r *PostgresGraphRepo) CreateNode(ctx context.Context, node *model.Node, client *model.Client) error {
	if client == nil {
		rawData, err := encodePayload(node.Data)
		if err != nil {
			return err
		}
		_, err = r.db.ExecContext(ctx,
			`INSERT INTO nodes (id, type, x, y, user_id, data) VALUES ($1, $2, $3, $4, $5, $6)`,
			node.ID, node.Type, node.X, node.Y, node.UserID, rawData,
		)
		if err != nil {
			return fmt.Errorf("failed to insert node: %w", err)
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	clientID, err := insertClient(ctx, tx, client)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO nodes (id, type, x, y, client_id, user_id) VALUES ($1, $2, $3, $4, $5, $6)`,
		node.ID, node.Type, node.X, node.Y, clientID, node.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert customer node: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	node.ClientID = clientID
	return nil
}

// UpdateNode はノード行を更新する。
// clientがnilでない場合は紐付くクライアント行も同一トランザクションで更新する。
func (r *PostgresGraphRepo) UpdateNode(ctx context.Context, node *model.Node, client *model.Client) error {
	rawData, err := encodePayload(node.Data)
	if err != nil {
		return err
	}
	if node.ClientID != 0 {
		// クライアント行参照のノードはJSONペイロードを持たない
		rawData = nil
	}

	if client == nil {
		_, err := r.db.ExecContext(ctx,
			`UPDATE nodes SET type = $1, x = $2, y = $3, data = $4 WHERE id = $5 AND user_id = $6`,
			node.Type, node.X, node.Y, rawData, node.ID, node.UserID,
		)
		if err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET type = $1, x = $2, y = $3, data = NULL WHERE id = $4 AND user_id = $5`,
		node.Type, node.X, node.Y, node.ID, node.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update customer node: %w", err)
	}

	if err := updateClient(ctx, tx, node.ClientID, client); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// ConvertNodeToClient はJSONペイロードのノードをクライアント行参照へ変換する。
// 種別変更でcustomerに変わったノードに使用する。
func (r *PostgresGraphRepo) ConvertNodeToClient(ctx context.Context, node *model.Node, client *model.Client) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	clientID, err := insertClient(ctx, tx, client)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET type = $1, x = $2, y = $3, client_id = $4, data = NULL
		 WHERE id = $5 AND user_id = $6`,
		node.Type, node.X, node.Y, clientID, node.ID, node.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to convert node to client-backed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	node.ClientID = clientID
	return nil
}

// DetachClient はcustomerノードからクライアント行を切り離し、
// JSONペイロード表現へ変換する。種別変更でcustomerから他種別に変わったノードに使用する。
func (r *PostgresGraphRepo) DetachClient(ctx context.Context, node *model.Node, clientID int64) error {
	rawData, err := encodePayload(node.Data)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE nodes SET type = $1, x = $2, y = $3, client_id = NULL, data = $4
		 WHERE id = $5 AND user_id = $6`,
		node.Type, node.X, node.Y, rawData, node.ID, node.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to detach client from node: %w", err)
	}

	_, err = tx.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete detached client: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	node.ClientID = 0
	return nil
}

// DeleteNode はノード行、紐付くクライアント行、端点に持つ全エッジを
// 同一トランザクションで削除する。
func (r *PostgresGraphRepo) DeleteNode(ctx context.Context, id, userID string, clientID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM nodes WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	if clientID != 0 {
		_, err = tx.ExecContext(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
		if err != nil {
			return fmt.Errorf("failed to delete client: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx,
		`DELETE FROM edges WHERE source = $1 OR target = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// CreateEdge はエッジを作成する。
func (r *PostgresGraphRepo) CreateEdge(ctx context.Context, edge *model.Edge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO edges (id, source, target, user_id) VALUES ($1, $2, $3, $4)`,
		edge.ID, edge.Source, edge.Target, edge.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert edge: %w", err)
	}
	return nil
}

// CountNodesByIDs は指定ユーザーが所有するノードのうち、与えたID群に含まれるものの数を返す。
func (r *PostgresGraphRepo) CountNodesByIDs(ctx context.Context, userID string, ids []string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM nodes WHERE user_id = $1 AND id = ANY($2)`,
		userID, pq.Array(ids),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

// insertClient はトランザクション内でクライアント行をINSERTし、採番されたIDを返す。
func insertClient(ctx context.Context, tx *sql.Tx, client *model.Client) (int64, error) {
	rawEmails, err := json.Marshal(stringListOrEmpty(client.Emails))
	if err != nil {
		return 0, fmt.Errorf("failed to encode client emails: %w", err)
	}
	rawPhones, err := json.Marshal(stringListOrEmpty(client.Phones))
	if err != nil {
		return 0, fmt.Errorf("failed to encode client phones: %w", err)
	}

	var clientID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO clients (user_id, name, emails, phones, note)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		client.UserID, client.Name, rawEmails, rawPhones, client.Note,
	).Scan(&clientID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert client: %w", err)
	}

	client.ID = clientID
	return clientID, nil
}

// updateClient はトランザクション内でクライアント行をUPDATEする。
func updateClient(ctx context.Context, tx *sql.Tx, clientID int64, client *model.Client) error {
	rawEmails, err := json.Marshal(stringListOrEmpty(client.Emails))
	if err != nil {
		return fmt.Errorf("failed to encode client emails: %w", err)
	}
	rawPhones, err := json.Marshal(stringListOrEmpty(client.Phones))
	if err != nil {
		return fmt.Errorf("failed to encode client phones: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE clients SET name = $1, emails = $2, phones = $3, note = $4 WHERE id = $5`,
		client.Name, rawEmails, rawPhones, client.Note, clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	return nil
}

// decodePayload はJSONBカラムの生バイト列をマップに変換する。
// NULLや不正なJSONは空のマップとして扱う（ペイロードは絶対にnilにしない）。
func decodePayload(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]any{}
	}
	return data
}

// encodePayload はペイロードマップをJSONに変換する。nilは空オブジェクトになる。
func encodePayload(data map[string]any) ([]byte, error) {
	if data == nil {
		data = map[string]any{}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode node payload: %w", err)
	}
	return raw, nil
}

// decodeStringList はJSONB配列カラムを文字列スライスに変換する。
// NULLや不正な値は空スライスとして扱う。
func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil || list == nil {
		return []string{}
	}
	return list
}

// stringListOrEmpty はnilスライスを空スライスに正規化する。
func stringListOrEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

// compile-time interface check
var _ GraphRepository = (*PostgresGraphRepo)(nil)
