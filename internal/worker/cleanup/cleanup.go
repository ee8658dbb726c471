// Package cleanup はグラフストアとセッションの日次メンテナンスジョブを提供する。
// 期限切れセッションの削除、端点を失ったエッジの除去、
// どのノードからも参照されないクライアント行の除去を行う。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob はグラフストアの整合性を回復する日次バッチジョブ。
// ノード削除のカスケードは単一トランザクションだが、過去の障害や
// クラッシュで取り残された行を拾うため、冪等な削除を定期実行する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:     db,
		logger: logger,
	}
}

// Run は3つの掃除処理を順に実行する。
// 途中で失敗した場合は以降の処理をスキップしてエラーを返す。
// どの処理も冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.deleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	danglingEdges, err := j.pruneDanglingEdges(ctx)
	if err != nil {
		return err
	}

	orphanClients, err := j.pruneOrphanClients(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("dangling_edges", danglingEdges),
		slog.Int64("orphan_clients", orphanClients),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteExpiredSessions は有効期限を過ぎたセッションを削除する。
func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// pruneDanglingEdges は端点のノードが存在しないエッジを削除する。
// listEdgesは取り残しエッジをJOINで除外して返すが、行自体はここで消す。
func (j *CleanupJob) pruneDanglingEdges(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM edges
		WHERE NOT EXISTS (SELECT 1 FROM nodes WHERE nodes.id = edges.source)
		   OR NOT EXISTS (SELECT 1 FROM nodes WHERE nodes.id = edges.target)`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("取り残しエッジの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("取り残しエッジの削除に失敗: %w", err)
	}
	return result.RowsAffected()
}

// pruneOrphanClients はどのノードからも参照されないクライアント行を削除する。
// 顧客ノード作成はクライアント行とノード行を同一トランザクションで
// 書き込むため通常は発生しないが、旧データの回収として残す。
func (j *CleanupJob) pruneOrphanClients(ctx context.Context) (int64, error) {
	query := `
		DELETE FROM clients
		WHERE NOT EXISTS (SELECT 1 FROM nodes WHERE nodes.client_id = clients.id)`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("孤立クライアント行の削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("孤立クライアント行の削除に失敗: %w", err)
	}
	return result.RowsAffected()
}
