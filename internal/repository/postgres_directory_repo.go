package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/purplecrm/internal/model"
)

// PostgresDirectoryRepo はPostgreSQLを使用した電話番号ディレクトリリポジトリ。
// 着信番号の照合に必要な最小限の読み取りだけを提供する。
type PostgresDirectoryRepo struct {
	db *sql.DB
}

// NewPostgresDirectoryRepo はPostgresDirectoryRepoを生成する。
func NewPostgresDirectoryRepo(db *sql.DB) *PostgresDirectoryRepo {
	return &PostgresDirectoryRepo{db: db}
}

// ListPhoneDirectory はcustomer/contractorノードの電話番号一覧を全ユーザー横断で返す。
// customerノードはクライアント行のphones、contractorノードはJSONペイロードの
// numbersから取得する。ノードIDの昇順で返し、照合順を決定的にする。
func (r *PostgresDirectoryRepo) ListPhoneDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT n.id, n.user_id,
		        COALESCE(c.phones, n.data->'numbers', '[]'::jsonb)
		 FROM nodes n
		 LEFT JOIN clients c ON n.client_id = c.id
		 WHERE n.type IN ($1, $2)
		 ORDER BY n.id`,
		model.NodeTypeCustomer, model.NodeTypeContractor,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query phone directory: %w", err)
	}
	defer rows.Close()

	var entries []DirectoryEntry
	for rows.Next() {
		var (
			entry      DirectoryEntry
			rawNumbers []byte
		)
		if err := rows.Scan(&entry.NodeID, &entry.UserID, &rawNumbers); err != nil {
			return nil, fmt.Errorf("failed to scan directory row: %w", err)
		}
		entry.Numbers = decodeStringList(rawNumbers)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate directory rows: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ DirectoryRepository = (*PostgresDirectoryRepo)(nil)
