package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/purplecrm/internal/graph"
	"github.com/hitoshi/purplecrm/internal/middleware"
	"github.com/hitoshi/purplecrm/internal/model"
)

// GraphServiceInterface はノード・エッジハンドラーが必要とするサービスインターフェース。
type GraphServiceInterface interface {
	ListNodes(ctx context.Context, userID string) ([]*model.Node, error)
	ListEdges(ctx context.Context, userID string) ([]*model.Edge, error)
	CreateNode(ctx context.Context, userID string, input graph.CreateNodeInput) error
	UpdateNode(ctx context.Context, id, userID string, patch map[string]any) error
	DeleteNode(ctx context.Context, id, userID string) error
	CreateEdge(ctx context.Context, userID, source, target string) (string, error)
}

// NodeHandler はノードCRUDのHTTPハンドラー。
type NodeHandler struct {
	service GraphServiceInterface
}

// NewNodeHandler はNodeHandlerを生成する。
func NewNodeHandler(service GraphServiceInterface) *NodeHandler {
	return &NodeHandler{service: service}
}

// apiErrorResponse は統一エラーフォーマットのレスポンス。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// ListNodes はユーザーの全ノードを返す。
// GET /api/nodes
func (h *NodeHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	nodes, err := h.service.ListNodes(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	wire := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		wire = append(wire, toWireNode(node))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wire)
}

// CreateNode はノードを作成する。
// POST /api/nodes body {id, type, x, y, ...種別フィールド}
func (h *NodeHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	input := graph.CreateNodeInput{
		ID:      stringField(body, "id"),
		Type:    stringField(body, "type"),
		X:       floatField(body, "x"),
		Y:       floatField(body, "y"),
		Payload: payloadFields(body),
	}

	if err := h.service.CreateNode(r.Context(), userID, input); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"message": "ノードを作成しました。",
		"nodeId":  input.ID,
	})
}

// UpdateNode はノードに部分更新を適用する。
// PUT /api/nodes/:id body {x?, y?, type?, ...種別フィールド}
func (h *NodeHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	nodeID := chi.URLParam(r, "id")

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	if err := h.service.UpdateNode(r.Context(), nodeID, userID, patch); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "ノードを更新しました。",
	})
}

// DeleteNode はノードと紐付くクライアント行・エッジを削除する。
// DELETE /api/nodes/:id
func (h *NodeHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	nodeID := chi.URLParam(r, "id")

	if err := h.service.DeleteNode(r.Context(), nodeID, userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"message": "ノードを削除しました。",
	})
}

// --- ヘルパー関数 ---

// toWireNode はノードをフラットなワイヤ表現に変換する。
// id/type/x/yに種別ごとのペイロードフィールドをマージする。
func toWireNode(node *model.Node) map[string]any {
	wire := make(map[string]any, len(node.Data)+4)
	for key, value := range node.Data {
		wire[key] = value
	}
	wire["id"] = node.ID
	wire["type"] = string(node.Type)
	wire["x"] = node.X
	wire["y"] = node.Y
	return wire
}

// stringField はJSONボディから文字列フィールドを取り出す。
func stringField(body map[string]any, key string) string {
	if value, ok := body[key].(string); ok {
		return value
	}
	return ""
}

// floatField はJSONボディから数値フィールドを取り出す。
func floatField(body map[string]any, key string) float64 {
	if value, ok := body[key].(float64); ok {
		return value
	}
	return 0
}

// payloadFields はid/type/x/y以外のフィールドを種別ペイロードとして抜き出す。
func payloadFields(body map[string]any) map[string]any {
	payload := make(map[string]any)
	for key, value := range body {
		switch key {
		case "id", "type", "x", "y":
			continue
		default:
			payload[key] = value
		}
	}
	return payload
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 他ユーザー所有の端点を指定したエッジ作成は404ではなく400を返す
// （作成対象のリソースはエッジ自身であるため）。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeNodeNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeInvalidNodeType,
		model.ErrCodeProtectedNode,
		model.ErrCodeEdgeEndpointMissing,
		model.ErrCodeEdgeEndpointOwner,
		model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
