// Package caller は着信電話・SMSの発信元番号を
// キャンバス上のcustomer/contractorノードに照合する。
package caller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/purplecrm/internal/repository"
)

// Broadcaster は照合結果を該当ユーザーのライブチャネルへ配信するインターフェース。
type Broadcaster interface {
	Broadcast(userID string, payload any)
}

// Metrics は照合処理のメトリクス記録インターフェース。
type Metrics interface {
	RecordCallIdentified(outcome string)
	ObserveIdentifyDuration(seconds float64)
}

// Match は番号照合の結果。
type Match struct {
	NodeID string
	UserID string
}

// CallEvent はライブチャネルへ配信される着信イベント。
type CallEvent struct {
	Type   string `json:"type"`
	NodeID string `json:"nodeId"`
}

// SMSEvent はライブチャネルへ配信されるSMS受信イベント。
// NodeIDは親ノードに紐づくSMSノードの合成ID（<parentId>-sms）。
// 同一発信元からの連続メッセージが単一ノードに集約される。
type SMSEvent struct {
	Type      string `json:"type"`
	NodeID    string `json:"nodeId"`
	ParentID  string `json:"parentId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Identifier は電話番号ディレクトリを走査して着信元ノードを特定し、
// そのノードの所有ユーザーにのみイベントを配信する。
type Identifier struct {
	dirRepo     repository.DirectoryRepository
	broadcaster Broadcaster
	metrics     Metrics
	logger      *slog.Logger
}

// NewIdentifier はIdentifierを生成する。
// broadcasterとmetricsはnil可（照合のみ行う）。
func NewIdentifier(dirRepo repository.DirectoryRepository, broadcaster Broadcaster, metrics Metrics, logger *slog.Logger) *Identifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Identifier{
		dirRepo:     dirRepo,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger,
	}
}

// NormalizeNumber は電話番号から数字以外の文字をすべて除去する。
// "+1 (555) 123-4567" と "15551234567" を同一視するための正規化。
func NormalizeNumber(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Identify は着信番号をディレクトリと照合し、最初に一致したノードを返す。
// 一致が無い場合は(nil, nil)を返す。
func (i *Identifier) Identify(ctx context.Context, number string) (*Match, error) {
	start := time.Now()
	defer func() {
		if i.metrics != nil {
			i.metrics.ObserveIdentifyDuration(time.Since(start).Seconds())
		}
	}()

	normalized := NormalizeNumber(number)
	if normalized == "" {
		// 数字を含まない入力は何にも一致しない（空文字同士の一致を防ぐ）
		i.recordOutcome("invalid")
		return nil, nil
	}

	entries, err := i.dirRepo.ListPhoneDirectory(ctx)
	if err != nil {
		i.recordOutcome("error")
		return nil, fmt.Errorf("failed to load phone directory: %w", err)
	}

	for _, entry := range entries {
		for _, candidate := range entry.Numbers {
			if NormalizeNumber(candidate) == normalized {
				i.recordOutcome("matched")
				return &Match{NodeID: entry.NodeID, UserID: entry.UserID}, nil
			}
		}
	}

	i.recordOutcome("unmatched")
	return nil, nil
}

// IdentifyCall は着信を照合し、一致したノードの所有ユーザーへ
// incoming_callイベントを配信する。
func (i *Identifier) IdentifyCall(ctx context.Context, number string) (*Match, error) {
	match, err := i.Identify(ctx, number)
	if err != nil {
		return nil, err
	}
	if match == nil {
		i.logger.Info("incoming call from unknown number", slog.String("number", NormalizeNumber(number)))
		return nil, nil
	}

	i.logger.Info("incoming call identified",
		slog.String("node_id", match.NodeID),
		slog.String("user_id", match.UserID))

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(match.UserID, CallEvent{
			Type:   "incoming-call",
			NodeID: match.NodeID,
		})
	}
	return match, nil
}

// IdentifySMS はSMSの発信元を照合し、一致したノードの所有ユーザーへ
// incoming-smsイベントを配信する。サーバーはSMSノードを永続化しない。
// クライアント側が合成IDのノードをキャンバス上に生成して表示する。
func (i *Identifier) IdentifySMS(ctx context.Context, number, message string) (*Match, error) {
	match, err := i.Identify(ctx, number)
	if err != nil {
		return nil, err
	}
	if match == nil {
		i.logger.Info("incoming sms from unknown number", slog.String("number", NormalizeNumber(number)))
		return nil, nil
	}

	i.logger.Info("incoming sms identified",
		slog.String("node_id", match.NodeID),
		slog.String("user_id", match.UserID))

	if i.broadcaster != nil {
		i.broadcaster.Broadcast(match.UserID, SMSEvent{
			Type:      "incoming-sms",
			NodeID:    match.NodeID + "-sms",
			ParentID:  match.NodeID,
			Message:   message,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return match, nil
}

func (i *Identifier) recordOutcome(outcome string) {
	if i.metrics != nil {
		i.metrics.RecordCallIdentified(outcome)
	}
}
