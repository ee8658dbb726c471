package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/purplecrm/internal/model"
)

// SeedInitialGraph は初回ログインユーザーのキャンバスに初期グラフを投入する。
// ユーザーノード、デモ顧客ノード（クライアント行付き）、ウェルカムメモノードと、
// それらをつなぐ2本のエッジを作成する。
// シードは付加的な処理であり、一部の作成に失敗してもログインは成功させる
// 前提で、最初に失敗した時点のエラーを返す。
func (s *Service) SeedInitialGraph(ctx context.Context, userID, displayName, avatarURL string) error {
	now := time.Now().UnixMilli()

	userNodeID := fmt.Sprintf("%s-user-node", userID)
	customerNodeID := fmt.Sprintf("%s-customer-%d", userID, now)
	noteNodeID := fmt.Sprintf("%s-note-%d", userID, now)

	userNode := &model.Node{
		ID:     userNodeID,
		Type:   model.NodeTypeUser,
		X:      300,
		Y:      200,
		UserID: userID,
		Data:   map[string]any{"name": displayName, "avatar": avatarURL},
	}
	if err := s.repo.CreateNode(ctx, userNode, nil); err != nil {
		return fmt.Errorf("failed to seed user node: %w", err)
	}

	customerNode := &model.Node{
		ID:     customerNodeID,
		Type:   model.NodeTypeCustomer,
		X:      500,
		Y:      300,
		UserID: userID,
	}
	demoClient := &model.Client{
		UserID: userID,
		Name:   "Demo Client",
		Emails: []string{"demo@example.com"},
		Phones: []string{"123-456-7890"},
		Note:   "Needs follow-up",
	}
	if err := s.repo.CreateNode(ctx, customerNode, demoClient); err != nil {
		return fmt.Errorf("failed to seed demo customer node: %w", err)
	}

	noteNode := &model.Node{
		ID:     noteNodeID,
		Type:   model.NodeTypeNote,
		X:      400,
		Y:      400,
		UserID: userID,
		Data:   map[string]any{"notes": "Welcome to PurpleCRM!"},
	}
	if err := s.repo.CreateNode(ctx, noteNode, nil); err != nil {
		return fmt.Errorf("failed to seed welcome note node: %w", err)
	}

	edges := []*model.Edge{
		{
			ID:     fmt.Sprintf("%s-edge-%d-1", userID, now),
			Source: userNodeID,
			Target: customerNodeID,
			UserID: userID,
		},
		{
			ID:     fmt.Sprintf("%s-edge-%d-2", userID, now),
			Source: customerNodeID,
			Target: noteNodeID,
			UserID: userID,
		},
	}
	for _, edge := range edges {
		if err := s.repo.CreateEdge(ctx, edge); err != nil {
			return fmt.Errorf("failed to seed edge %s: %w", edge.ID, err)
		}
	}

	return nil
}
