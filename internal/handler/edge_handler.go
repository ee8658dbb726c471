package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/purplecrm/internal/middleware"
	"github.com/hitoshi/purplecrm/internal/model"
)

// EdgeHandler はエッジCRUDのHTTPハンドラー。
type EdgeHandler struct {
	service GraphServiceInterface
}

// NewEdgeHandler はEdgeHandlerを生成する。
func NewEdgeHandler(service GraphServiceInterface) *EdgeHandler {
	return &EdgeHandler{service: service}
}

// createEdgeRequest はエッジ作成リクエストのボディ。
type createEdgeRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// edgeResponse はエッジのAPIレスポンス。
type edgeResponse struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// ListEdges はユーザーの全エッジを返す。
// GET /api/edges
func (h *EdgeHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	edges, err := h.service.ListEdges(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	wire := make([]edgeResponse, 0, len(edges))
	for _, edge := range edges {
		wire = append(wire, edgeResponse{
			ID:     edge.ID,
			Source: edge.Source,
			Target: edge.Target,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(wire)
}

// CreateEdge はエッジを作成する。
// POST /api/edges body {source, target}
func (h *EdgeHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	var req createEdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
		return
	}

	edgeID, err := h.service.CreateEdge(r.Context(), userID, req.Source, req.Target)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"message": "エッジを作成しました。",
		"edgeId":  edgeID,
	})
}
