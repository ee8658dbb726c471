// Package graph はノード・エッジグラフのドメインロジックを提供する。
// ワイヤ表現（フラットなノード: id, type, position, 種別ごとのフィールド）と
// ストレージ表現（クライアント行参照またはJSONペイロード）の変換を担う。
package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hitoshi/purplecrm/internal/model"
	"github.com/hitoshi/purplecrm/internal/repository"
)

// Sanitizer はフリーテキストフィールドのサニタイズインターフェース。
// security.ContentSanitizerServiceの部分集合として定義する。
type Sanitizer interface {
	Sanitize(raw string) string
}

// Metrics はグラフ操作のメトリクス収集インターフェース。
type Metrics interface {
	RecordNodeCreated(nodeType string)
	RecordNodeDeleted(nodeType string)
	RecordEdgeCreated()
}

// Service はグラフストアのビジネスロジックを提供する。
type Service struct {
	repo      repository.GraphRepository
	sanitizer Sanitizer
	metrics   Metrics
}

// NewService はServiceを生成する。
// sanitizerとmetricsはnilを許容する（テスト用）。
func NewService(repo repository.GraphRepository, sanitizer Sanitizer, metrics Metrics) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// CreateNodeInput はノード作成の入力を表す。
// Payloadにはid/type/x/y以外のリクエストフィールドがそのまま入る。
type CreateNodeInput struct {
	ID      string
	Type    string
	X       float64
	Y       float64
	Payload map[string]any
}

// ListNodes はユーザーの全ノードを返す。
// customerノードのペイロードは正規化済み（client_emails/client_phonesは
// 欠損時も空のシーケンス）で返る。
func (s *Service) ListNodes(ctx context.Context, userID string) ([]*model.Node, error) {
	nodes, err := s.repo.ListNodes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return nodes, nil
}

// ListEdges はユーザーの全エッジを返す。
// 端点のノードが存在しないエッジは取り残しとして除外済み。
func (s *Service) ListEdges(ctx context.Context, userID string) ([]*model.Edge, error) {
	edges, err := s.repo.ListEdges(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list edges: %w", err)
	}
	return edges, nil
}

// CreateNode はノードを作成する。
// customerノードはクライアント行のINSERTとノード行のINSERTを
// 同一トランザクションで行う（リポジトリ層で保証）。
func (s *Service) CreateNode(ctx context.Context, userID string, input CreateNodeInput) error {
	if input.ID == "" {
		return model.NewInvalidRequestError()
	}
	nodeType := model.NodeType(input.Type)
	if !nodeType.IsValid() {
		return model.NewInvalidNodeTypeError(input.Type)
	}

	node := &model.Node{
		ID:     input.ID,
		Type:   nodeType,
		X:      input.X,
		Y:      input.Y,
		UserID: userID,
	}

	var client *model.Client
	if nodeType == model.NodeTypeCustomer {
		client = s.clientFromPayload(userID, input.Payload, nil)
	} else {
		node.Data = s.filterPayload(nodeType, input.Payload)
	}

	if err := s.repo.CreateNode(ctx, node, client); err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordNodeCreated(string(nodeType))
	}
	slog.Info("node created",
		slog.String("node_id", node.ID),
		slog.String("type", string(nodeType)),
		slog.String("user_id", userID),
	)
	return nil
}

// UpdateNode は(id, userID)のノードに部分更新を適用する。
// 対象が存在しないか他ユーザーの所有の場合はNodeNotFoundを返す。
// x/y/typeはパッチに無ければ既存値を維持する。種別ごとのペイロードフィールドは
// パッチに存在するキーだけを上書きするシャローマージを行う。
// 種別変更時はペイロード表現（クライアント行参照 <-> JSON）を変換する。
func (s *Service) UpdateNode(ctx context.Context, id, userID string, patch map[string]any) error {
	node, err := s.repo.FindNode(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to load node: %w", err)
	}
	if node == nil {
		return model.NewNodeNotFoundError(id)
	}

	newType := node.Type
	if raw, ok := patch["type"].(string); ok && raw != "" {
		t := model.NodeType(raw)
		if !t.IsValid() {
			return model.NewInvalidNodeTypeError(raw)
		}
		newType = t
	}

	// ユーザーノードは種別変更不可
	if node.Type == model.NodeTypeUser && newType != model.NodeTypeUser {
		return model.NewProtectedNodeError(id)
	}

	node.X = floatFromPatch(patch, "x", node.X)
	node.Y = floatFromPatch(patch, "y", node.Y)

	switch {
	case newType == model.NodeTypeCustomer && node.ClientID != 0:
		// 既存のcustomerノード: クライアント行を部分更新し、JSONペイロードは空のまま
		existing, err := s.repo.FindClient(ctx, node.ClientID)
		if err != nil {
			return fmt.Errorf("failed to load client: %w", err)
		}
		client := s.clientFromPayload(userID, patch, existing)
		node.Type = newType
		node.Data = nil
		if err := s.repo.UpdateNode(ctx, node, client); err != nil {
			return fmt.Errorf("failed to update customer node: %w", err)
		}

	case newType == model.NodeTypeCustomer && node.ClientID == 0:
		// customerへの種別変更: JSONペイロードからクライアント行参照へ変換
		client := s.clientFromPayload(userID, patch, nil)
		node.Type = newType
		node.Data = nil
		if err := s.repo.ConvertNodeToClient(ctx, node, client); err != nil {
			return fmt.Errorf("failed to convert node to customer: %w", err)
		}

	case newType != model.NodeTypeCustomer && node.ClientID != 0:
		// customerからの種別変更: クライアント行を切り離してJSONペイロードへ変換
		clientID := node.ClientID
		node.Type = newType
		node.Data = s.filterPayload(newType, patch)
		if err := s.repo.DetachClient(ctx, node, clientID); err != nil {
			return fmt.Errorf("failed to detach client: %w", err)
		}

	default:
		// JSONペイロードのシャローマージ: パッチに存在するキーのみ上書き
		merged := node.Data
		if merged == nil {
			merged = map[string]any{}
		}
		for key, value := range s.filterPayload(newType, patch) {
			merged[key] = value
		}
		node.Type = newType
		node.Data = merged
		if err := s.repo.UpdateNode(ctx, node, nil); err != nil {
			return fmt.Errorf("failed to update node: %w", err)
		}
	}

	slog.Info("node updated",
		slog.String("node_id", id),
		slog.String("type", string(newType)),
		slog.String("user_id", userID),
	)
	return nil
}

// DeleteNode は(id, userID)のノードを削除する。
// ノード行、紐付くクライアント行、端点に持つ全エッジが消える。
// ユーザーノードは削除できない。
func (s *Service) DeleteNode(ctx context.Context, id, userID string) error {
	node, err := s.repo.FindNode(ctx, id, userID)
	if err != nil {
		return fmt.Errorf("failed to load node: %w", err)
	}
	if node == nil {
		return model.NewNodeNotFoundError(id)
	}
	if node.Type == model.NodeTypeUser {
		return model.NewProtectedNodeError(id)
	}

	if err := s.repo.DeleteNode(ctx, id, userID, node.ClientID); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordNodeDeleted(string(node.Type))
	}
	slog.Info("node deleted",
		slog.String("node_id", id),
		slog.String("type", string(node.Type)),
		slog.String("user_id", userID),
	)
	return nil
}

// CreateEdge はエッジを作成して生成したIDを返す。
// source/targetは必須で、どちらも呼び出しユーザーが所有するノードでなければならない。
func (s *Service) CreateEdge(ctx context.Context, userID, source, target string) (string, error) {
	if source == "" || target == "" {
		return "", model.NewEdgeEndpointMissingError()
	}

	ids := []string{source, target}
	expected := 2
	if source == target {
		ids = []string{source}
		expected = 1
	}
	count, err := s.repo.CountNodesByIDs(ctx, userID, ids)
	if err != nil {
		return "", fmt.Errorf("failed to verify edge endpoints: %w", err)
	}
	if count < expected {
		return "", model.NewEdgeEndpointOwnerError(source + " -> " + target)
	}

	edge := &model.Edge{
		ID:     "edge-" + uuid.New().String(),
		Source: source,
		Target: target,
		UserID: userID,
	}
	if err := s.repo.CreateEdge(ctx, edge); err != nil {
		return "", fmt.Errorf("failed to create edge: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordEdgeCreated()
	}
	return edge.ID, nil
}

// clientFromPayload はワイヤ表現のcustomerフィールドからクライアント行を構築する。
// existingがnilでない場合、パッチに無いフィールドは既存値を維持する。
func (s *Service) clientFromPayload(userID string, payload map[string]any, existing *model.Client) *model.Client {
	client := &model.Client{UserID: userID}
	if existing != nil {
		client.Name = existing.Name
		client.Emails = existing.Emails
		client.Phones = existing.Phones
		client.Note = existing.Note
	}

	if name, ok := payload["client_name"].(string); ok {
		client.Name = name
	}
	if emails, ok := payload["client_emails"]; ok {
		client.Emails = toStringList(emails)
	}
	if phones, ok := payload["client_phones"]; ok {
		client.Phones = toStringList(phones)
	}
	if note, ok := payload["client_note"].(string); ok {
		client.Note = s.sanitize(note)
	}

	if client.Emails == nil {
		client.Emails = []string{}
	}
	if client.Phones == nil {
		client.Phones = []string{}
	}
	return client
}

// filterPayload は種別の許可リストに含まれるキーだけをパッチから抜き出す。
// フリーテキストフィールドはサニタイズする。
func (s *Service) filterPayload(nodeType model.NodeType, payload map[string]any) map[string]any {
	filtered := map[string]any{}
	for _, key := range model.PayloadKeys[nodeType] {
		value, ok := payload[key]
		if !ok {
			continue
		}
		if text, isString := value.(string); isString && isFreeTextKey(key) {
			value = s.sanitize(text)
		}
		filtered[key] = value
	}
	return filtered
}

// sanitize はサニタイザ未設定の場合に素通しする。
func (s *Service) sanitize(raw string) string {
	if s.sanitizer == nil {
		return raw
	}
	return s.sanitizer.Sanitize(raw)
}

// isFreeTextKey はUIにリッチテキストとして描画されるフィールドかどうかを返す。
func isFreeTextKey(key string) bool {
	return key == "notes" || key == "services"
}

// floatFromPatch はパッチから数値を取り出す。無ければfallbackを返す。
// JSONデコード済みのパッチでは数値はfloat64になっている。
func floatFromPatch(patch map[string]any, key string, fallback float64) float64 {
	if value, ok := patch[key].(float64); ok {
		return value
	}
	return fallback
}

// toStringList はany型のJSON配列を文字列スライスへ変換する。
// 文字列以外の要素は読み飛ばす。
func toStringList(value any) []string {
	items, ok := value.([]any)
	if !ok {
		if list, isList := value.([]string); isList {
			return list
		}
		return []string{}
	}
	list := make([]string, 0, len(items))
	for _, item := range items {
		if text, isString := item.(string); isString {
			list = append(list, text)
		}
	}
	return list
}
