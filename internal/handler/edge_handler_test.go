package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/purplecrm/internal/model"
)

// --- GET /api/edges テスト ---

func TestEdgeHandler_ListEdges_ReturnsEdges(t *testing.T) {
	svc := &mockGraphService{
		listEdgesFn: func(ctx context.Context, userID string) ([]*model.Edge, error) {
			if userID != "user-123" {
				t.Errorf("userID = %q, want %q", userID, "user-123")
			}
			return []*model.Edge{
				{ID: "edge-1", Source: "node-a", Target: "node-b", UserID: "user-123"},
			}, nil
		},
	}
	h := NewEdgeHandler(svc)

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/edges", nil), "user-123")
	w := httptest.NewRecorder()

	h.ListEdges(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var edges []map[string]any
	if err := json.NewDecoder(w.Body).Decode(&edges); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(edges) != 1 {
		t.Fatalf("len(edges) = %d, want 1", len(edges))
	}
	if edges[0]["id"] != "edge-1" || edges[0]["source"] != "node-a" || edges[0]["target"] != "node-b" {
		t.Errorf("edge = %+v", edges[0])
	}
}

func TestEdgeHandler_ListEdges_Unauthenticated_Returns401(t *testing.T) {
	h := NewEdgeHandler(&mockGraphService{})

	req := httptest.NewRequest(http.MethodGet, "/api/edges", nil)
	w := httptest.NewRecorder()

	h.ListEdges(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestEdgeHandler_ListEdges_EmptyGraph_ReturnsEmptyArray(t *testing.T) {
	h := NewEdgeHandler(&mockGraphService{})

	req := withUserID(httptest.NewRequest(http.MethodGet, "/api/edges", nil), "user-123")
	w := httptest.NewRecorder()

	h.ListEdges(w, req)

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

// --- POST /api/edges テスト ---

func TestEdgeHandler_CreateEdge_Success(t *testing.T) {
	svc := &mockGraphService{
		createEdgeFn: func(ctx context.Context, userID, source, target string) (string, error) {
			if userID != "user-123" || source != "node-a" || target != "node-b" {
				t.Errorf("userID = %q, source = %q, target = %q", userID, source, target)
			}
			return "edge-new", nil
		},
	}
	h := NewEdgeHandler(svc)

	body := `{"source": "node-a", "target": "node-b"}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/edges", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.CreateEdge(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusCreated)
	}

	var resp map[string]any
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["edgeId"] != "edge-new" {
		t.Errorf("edgeId = %v, want edge-new", resp["edgeId"])
	}
}

func TestEdgeHandler_CreateEdge_MissingEndpoint_Returns400(t *testing.T) {
	svc := &mockGraphService{
		createEdgeFn: func(ctx context.Context, userID, source, target string) (string, error) {
			return "", model.NewEdgeEndpointMissingError()
		},
	}
	h := NewEdgeHandler(svc)

	body := `{"source": "node-a"}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/edges", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.CreateEdge(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	respBody := parseAPIErrorResponse(t, w)
	if respBody["code"] != "EDGE_ENDPOINT_REQUIRED" {
		t.Errorf("code = %q, want EDGE_ENDPOINT_REQUIRED", respBody["code"])
	}
}

func TestEdgeHandler_CreateEdge_EndpointNotOwned_Returns400(t *testing.T) {
	svc := &mockGraphService{
		createEdgeFn: func(ctx context.Context, userID, source, target string) (string, error) {
			return "", model.NewEdgeEndpointOwnerError(target)
		},
	}
	h := NewEdgeHandler(svc)

	body := `{"source": "node-a", "target": "node-foreign"}`
	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/edges", strings.NewReader(body)), "user-123")
	w := httptest.NewRecorder()

	h.CreateEdge(w, req)

	// 他ユーザー所有の端点は404ではなく400（作成対象のリソースはエッジ自身）
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	respBody := parseAPIErrorResponse(t, w)
	if respBody["code"] != "EDGE_ENDPOINT_NOT_OWNED" {
		t.Errorf("code = %q, want EDGE_ENDPOINT_NOT_OWNED", respBody["code"])
	}
}

func TestEdgeHandler_CreateEdge_InvalidJSON_Returns400(t *testing.T) {
	h := NewEdgeHandler(&mockGraphService{})

	req := withUserID(httptest.NewRequest(http.MethodPost, "/api/edges", strings.NewReader("{broken")), "user-123")
	w := httptest.NewRecorder()

	h.CreateEdge(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}
