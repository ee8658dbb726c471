package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/purplecrm/internal/graph"
	"github.com/hitoshi/purplecrm/internal/middleware"
	"github.com/hitoshi/purplecrm/internal/model"
)

// --- テストヘルパー ---

// withUserID はテスト用にリクエストコンテキストにユーザーIDを注入するヘルパー。
func withUserID(r *http.Request, userID string) *http.Request {
	ctx := middleware.ContextWithUserID(r.Context(), userID)
	return r.WithContext(ctx)
}

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}

// --- GET /api/nodes テスト ---

func TestNodeHandler_ListNodes_ReturnsFlatWireNodes(t *testing.T) {
	svc := &mockGraphService{
		listNodesFn: func(ctx context.Context, userID string) ([]*model.Node, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return []*model.Node{
				{
					ID:   "node-note",
					Type: model.NodeTypeNote,
					X:    10.5,
					Y:    -3,
					Data: map[string]any{"notes": "折返し連絡"},
				},
				{
					ID:       "node-cust",
					Type:     model.NodeTypeCustomer,
					X:        0,
					Y:        0,
					ClientID: 7,
					Data: map[string]any{
						"client_name":   "山田商事",
						"client_emails": []string{"info@yamada.example"},
						"client_phones": []string{"03-1234-5678"},
						"client_note":   "",
					},
				},
			}, nil
		},
	}
	h := NewNodeHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/nodes", nil), "user-123")
	w := httptest.NewRecorder()

	h.ListNodes(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var nodes []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&nodes); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}

	// ペイロードフィールドがトップレベルにフラット化されること
	if nodes[0]["id"] != "node-note" || nodes[0]["type"] != "note" {
		t.Errorf("node[0] = %+v", nodes[0])
	}
	if nodes[0]["notes"] != "折返し連絡" {
		t.Errorf("notes = %v, want flattened payload field", nodes[0]["notes"])
	}
	if nodes[0]["x"] != 10.5 {
		t.Errorf("x = %v, want 10.5", nodes[0]["x"])
	}
	if nodes[1]["client_name"] != "山田商事" {
		t.Errorf("client_name = %v", nodes[1]["client_name"])
	}
}

func TestNodeHandler_ListNodes_Unauthenticated_Returns401(t *testing.T) {
	h := NewNodeHandler(&mockGraphService{})

	req := httptest.NewRequest(http.MethodGet, "/api/nodes", nil)
	w := httptest.NewRecorder()

	h.ListNodes(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != "UNAUTHORIZED" {
		t.Errorf("code = %q, want UNAUTHORIZED", body["code"])
	}
}

func TestNodeHandler_ListNodes_EmptyGraph_ReturnsEmptyArray(t *testing.T) {
	h := NewNodeHandler(&mockGraphService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/nodes", nil), "user-123")
	w := httptest.NewRecorder()

	h.ListNodes(w, req)

	// nullではなく[]が返ること
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestNodeHandler_ListNodes_StorageError_Returns500(t *testing.T) {
	svc := &mockGraphService{
		listNodesFn: func(ctx context.Context, userID string) ([]*model.Node, error) {
			return nil, errors.New("connection refused")
		},
	}
	h := NewNodeHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/nodes", nil), "user-123")
	w := httptest.NewRecorder()

	h.ListNodes(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// --- POST /api/nodes テスト ---

func TestNodeHandler_CreateNode_Success(t *testing.T) {
	svc := &mockGraphService{
		createNodeFn: func(ctx context.Context, userID string, input graph.CreateNodeInput) error {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			if input.ID != "node-new" || input.Type != "contractor" {
				t.Errorf("input = %+v", input)
			}
			if input.X != 120 || input.Y != 44.5 {
				t.Errorf("position = (%v, %v)", input.X, input.Y)
			}
			// id/type/x/y以外のフィールドがペイロードに入ること
			if input.Payload["contractor_name"] != "鈴木設備" {
				t.Errorf("payload = %+v", input.Payload)
			}
			if _, ok := input.Payload["id"]; ok {
				t.Error("payload should not contain id")
			}
			return nil
		},
	}
	h := NewNodeHandler(svc)

	body := `{"id": "node-new", "type": "contractor", "x": 120, "y": 44.5, "contractor_name": "鈴木設備", "numbers": ["090-1111-2222"]}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.CreateNode(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["nodeId"] != "node-new" {
		t.Errorf("nodeId = %v, want node-new", resp["nodeId"])
	}
	if resp["message"] == "" {
		t.Error("expected non-empty message")
	}
}

func TestNodeHandler_CreateNode_InvalidJSON_Returns400(t *testing.T) {
	h := NewNodeHandler(&mockGraphService{})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader("{not json")), "user-123")
	w := httptest.NewRecorder()

	h.CreateNode(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestNodeHandler_CreateNode_InvalidType_Returns400(t *testing.T) {
	svc := &mockGraphService{
		createNodeFn: func(ctx context.Context, userID string, input graph.CreateNodeInput) error {
			return model.NewInvalidNodeTypeError(input.Type)
		},
	}
	h := NewNodeHandler(svc)

	body := `{"id": "node-x", "type": "spaceship", "x": 0, "y": 0}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/nodes", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.CreateNode(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	respBody := parseAPIErrorResponse(t, w)
	if respBody["code"] != "INVALID_NODE_TYPE" {
		t.Errorf("code = %q, want INVALID_NODE_TYPE", respBody["code"])
	}
}

// --- PUT /api/nodes/:id テスト ---

func TestNodeHandler_UpdateNode_Success(t *testing.T) {
	svc := &mockGraphService{
		updateNodeFn: func(ctx context.Context, id, userID string, patch map[string]any) error {
			if id != "node-1" || userID != "user-123" {
				t.Errorf("id = %q, userID = %q", id, userID)
			}
			if patch["x"] != float64(55) {
				t.Errorf("patch = %+v", patch)
			}
			return nil
		},
	}
	h := NewNodeHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/nodes/node-1", strings.NewReader(`{"x": 55}`))
	req = withUserID(withChiURLParam(req, "id", "node-1"), "user-123")
	w := httptest.NewRecorder()

	h.UpdateNode(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestNodeHandler_UpdateNode_NotFound_Returns404(t *testing.T) {
	svc := &mockGraphService{
		updateNodeFn: func(ctx context.Context, id, userID string, patch map[string]any) error {
			return model.NewNodeNotFoundError(id)
		},
	}
	h := NewNodeHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/nodes/node-missing", strings.NewReader(`{"x": 1}`))
	req = withUserID(withChiURLParam(req, "id", "node-missing"), "user-123")
	w := httptest.NewRecorder()

	h.UpdateNode(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
	body := parseAPIErrorResponse(t, w)
	if body["code"] != "NODE_NOT_FOUND" {
		t.Errorf("code = %q, want NODE_NOT_FOUND", body["code"])
	}
}

func TestNodeHandler_UpdateNode_ProtectedNode_Returns400(t *testing.T) {
	svc := &mockGraphService{
		updateNodeFn: func(ctx context.Context, id, userID string, patch map[string]any) error {
			return model.NewProtectedNodeError(id)
		},
	}
	h := NewNodeHandler(svc)

	req := httptest.NewRequest(http.MethodPut, "/api/nodes/node-user", strings.NewReader(`{"type": "note"}`))
	req = withUserID(withChiURLParam(req, "id", "node-user"), "user-123")
	w := httptest.NewRecorder()

	h.UpdateNode(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// --- DELETE /api/nodes/:id テスト ---

func TestNodeHandler_DeleteNode_Success(t *testing.T) {
	deleted := false
	svc := &mockGraphService{
		deleteNodeFn: func(ctx context.Context, id, userID string) error {
			deleted = true
			if id != "node-1" || userID != "user-123" {
				t.Errorf("id = %q, userID = %q", id, userID)
			}
			return nil
		},
	}
	h := NewNodeHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/nodes/node-1", nil)
	req = withUserID(withChiURLParam(req, "id", "node-1"), "user-123")
	w := httptest.NewRecorder()

	h.DeleteNode(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !deleted {
		t.Error("expected DeleteNode to be called")
	}
}

func TestNodeHandler_DeleteNode_NotFound_Returns404(t *testing.T) {
	svc := &mockGraphService{
		deleteNodeFn: func(ctx context.Context, id, userID string) error {
			return model.NewNodeNotFoundError(id)
		},
	}
	h := NewNodeHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/nodes/node-missing", nil)
	req = withUserID(withChiURLParam(req, "id", "node-missing"), "user-123")
	w := httptest.NewRecorder()

	h.DeleteNode(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
