package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/purplecrm/internal/caller"
	"github.com/hitoshi/purplecrm/internal/model"
)

// CallerServiceInterface は電話・SMS Webhookハンドラーが必要とするサービスインターフェース。
type CallerServiceInterface interface {
	IdentifyCall(ctx context.Context, number string) (*caller.Match, error)
	IdentifySMS(ctx context.Context, number, message string) (*caller.Match, error)
}

// CallerHandler は電話システムからのWebhookを処理するHTTPハンドラー。
// 認証なしで呼ばれるため、ルーター側でWebhook専用レート制限を適用する。
type CallerHandler struct {
	service CallerServiceInterface
}

// NewCallerHandler はCallerHandlerを生成する。
func NewCallerHandler(service CallerServiceInterface) *CallerHandler {
	return &CallerHandler{service: service}
}

// IncomingCall は着信番号を照合する。
// GET /incoming-call?number=<raw>
func (h *CallerHandler) IncomingCall(w http.ResponseWriter, r *http.Request) {
	number := r.URL.Query().Get("number")
	if number == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "numberパラメータが必要です。",
			Category: "validation",
			Action:   "着信番号をnumberクエリパラメータで指定してください。",
		})
		return
	}

	match, err := h.service.IdentifyCall(r.Context(), number)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeMatchResponse(w, match)
}

// IncomingSMS はSMSの発信元を照合する。
// GET /incoming-sms?sender=<raw>&message=<text>
// 照合のみ行い、SMSノードの永続化はしない（キャンバス側が合成する）。
func (h *CallerHandler) IncomingSMS(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender")
	if sender == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     model.ErrCodeInvalidRequest,
			Message:  "senderパラメータが必要です。",
			Category: "validation",
			Action:   "発信元番号をsenderクエリパラメータで指定してください。",
		})
		return
	}
	message := r.URL.Query().Get("message")

	match, err := h.service.IdentifySMS(r.Context(), sender, message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeMatchResponse(w, match)
}

// writeMatchResponse は照合結果を{found, nodeId?}形式で書き込む。
// 一致なしはエラーではなく正常レスポンス。
func writeMatchResponse(w http.ResponseWriter, match *caller.Match) {
	w.Header().Set("Content-Type", "application/json")
	if match == nil {
		json.NewEncoder(w).Encode(map[string]any{
			"found": false,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]any{
		"found":  true,
		"nodeId": match.NodeID,
	})
}
